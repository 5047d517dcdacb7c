// Package postgres is the gorm-backed lead store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/AngelCh415/lead-funnel/internal/filter"
	"github.com/AngelCh415/lead-funnel/internal/models"
)

type Store struct {
	db  *gorm.DB
	log *zap.Logger
}

// Open connects to dsn. Schema management is left to RunMigrations.
func Open(dsn string, log *zap.Logger) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return New(db, log), nil
}

func New(db *gorm.DB, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{db: db, log: log}
}

func (s *Store) DB() *gorm.DB { return s.db }

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

var leadColumns = []string{
	"applicant_name", "bank", "card_name", "application_month", "application_date",
	"decision_date", "stage_code", "application_quality", "total_commission",
	"ops_status", "rejection_category", "rejection_reason", "updated_at",
}

func (s *Store) UpsertLeads(ctx context.Context, recs []models.LeadRecord) (int, error) {
	if len(recs) == 0 {
		return 0, nil
	}
	now := time.Now().UTC()
	rows := make([]LeadModel, 0, len(recs))
	for _, r := range recs {
		m := toLeadModel(r)
		m.UpdatedAt = now
		rows = append(rows, m)
	}
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "application_id"}},
			DoUpdates: clause.AssignmentColumns(leadColumns),
		}).
		CreateInBatches(rows, 500)
	if res.Error != nil {
		return 0, fmt.Errorf("upsert leads: %w", res.Error)
	}
	return len(rows), nil
}

func (s *Store) UpsertClicks(ctx context.Context, clicks []models.ClickEvent) (int, error) {
	if len(clicks) == 0 {
		return 0, nil
	}
	rows := make([]ClickModel, 0, len(clicks))
	for _, c := range clicks {
		rows = append(rows, toClickModel(c))
	}
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "click_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"clicked_on", "clicked_month", "clean"}),
		}).
		CreateInBatches(rows, 500)
	if res.Error != nil {
		return 0, fmt.Errorf("upsert clicks: %w", res.Error)
	}
	return len(rows), nil
}

// AdvanceStage applies u under a row lock so concurrent events for one
// application serialize.
func (s *Store) AdvanceStage(ctx context.Context, u models.StageUpdate) (bool, error) {
	var applied bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row LeadModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("application_id = ?", u.ApplicationID).
			First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("application %s: %w", u.ApplicationID, models.ErrNotFound)
		}
		if err != nil {
			return err
		}
		rec, err := row.toRecord()
		if err != nil {
			return err
		}
		next, ok, err := u.Apply(rec)
		if err != nil || !ok {
			return err
		}
		m := toLeadModel(next)
		m.UpdatedAt = time.Now().UTC()
		if err := tx.Save(&m).Error; err != nil {
			return err
		}
		applied = true
		return nil
	})
	return applied, err
}

func (s *Store) ScanLeads(ctx context.Context, spec filter.Spec, offset, limit int) ([]models.LeadRecord, error) {
	q, err := applyFilter(s.db.WithContext(ctx).Model(&LeadModel{}), spec)
	if err != nil {
		return nil, err
	}
	var rows []LeadModel
	err = q.Order("application_date DESC").
		Order("application_id ASC").
		Offset(offset).
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("scan leads: %w", err)
	}

	out := make([]models.LeadRecord, 0, len(rows))
	for _, m := range rows {
		rec, err := m.toRecord()
		if err != nil {
			return nil, fmt.Errorf("decode lead row: %w", err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *Store) CountLeads(ctx context.Context, spec filter.Spec) (int64, error) {
	q, err := applyFilter(s.db.WithContext(ctx).Model(&LeadModel{}), spec)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count leads: %w", err)
	}
	return n, nil
}

func (s *Store) CountCleanClicks(ctx context.Context, w filter.Window) (int64, error) {
	q := s.db.WithContext(ctx).Model(&ClickModel{}).Where("clean = ?", true)
	if m, ok := w.MonthRange(); ok {
		q = q.Where("clicked_month BETWEEN ? AND ?", m.Start, m.End)
	}
	if d, ok := w.DayRange(); ok {
		q = q.Where("clicked_on BETWEEN ? AND ?", d.From, d.To)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count clicks: %w", err)
	}
	return n, nil
}

// applyFilter translates spec into WHERE clauses equivalent to filter.Resolve.
func applyFilter(q *gorm.DB, spec filter.Spec) (*gorm.DB, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if m, ok := spec.MonthRange(); ok {
		q = q.Where("application_month BETWEEN ? AND ?", m.Start, m.End)
	}
	if d, ok := spec.DayRange(); ok {
		q = q.Where("application_date BETWEEN ? AND ?", d.From, d.To)
	}
	if banks := spec.Banks(); len(banks) > 0 {
		q = q.Where("bank IN ?", banks)
	}
	if cards := spec.Cards(); len(cards) > 0 {
		q = q.Where("card_name IN ?", cards)
	}
	if qs := spec.Qualities(); len(qs) > 0 {
		labels := make([]string, 0, len(qs))
		for _, v := range qs {
			labels = append(labels, string(v))
		}
		q = q.Where("application_quality IN ?", labels)
	}
	if codes, unknown := spec.StageCodes(); len(codes) > 0 || unknown {
		switch {
		case unknown && len(codes) > 0:
			q = q.Where("(stage_code IN ? OR stage_code NOT IN ?)", codes, models.KnownCodes())
		case unknown:
			q = q.Where("stage_code NOT IN ?", models.KnownCodes())
		default:
			q = q.Where("stage_code IN ?", codes)
		}
	}
	if needle := spec.SearchText(); needle != "" {
		like := "%" + escapeLike(needle) + "%"
		q = q.Where("(application_id ILIKE ? OR applicant_name ILIKE ? OR card_name ILIKE ? OR bank ILIKE ?)",
			like, like, like, like)
	}
	return q, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }
