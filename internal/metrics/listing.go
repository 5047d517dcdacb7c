package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/AngelCh415/lead-funnel/internal/filter"
	"github.com/AngelCh415/lead-funnel/internal/models"
)

// ListLeads returns one page of matching records, newest first. Total is the
// full matching count; a page past the end is empty, not an error.
func (s *Service) ListLeads(ctx context.Context, spec filter.Spec, page, limit int) (res *models.LeadPage, err error) {
	const op = "list_leads"
	defer func(start time.Time) { s.observe(op, start, err) }(time.Now())

	if err := spec.Validate(); err != nil {
		return nil, err
	}
	page, limit = s.clampPage(page, limit)

	total, err := s.src.CountLeads(ctx, spec)
	if err != nil {
		return nil, fmt.Errorf("%w: count leads: %w", models.ErrUpstreamFetch, err)
	}

	offset := (page - 1) * limit
	rows := []models.LeadSummary{}
	if int64(offset) < total {
		recs, err := s.scanRange(ctx, spec, offset, limit)
		if err != nil {
			return nil, err
		}
		rows = make([]models.LeadSummary, 0, len(recs))
		for _, r := range recs {
			rows = append(rows, summarize(r))
		}
	}
	return &models.LeadPage{Rows: rows, Total: total, Page: page, Limit: limit}, nil
}

// clampPage defaults and bounds paging input; oversized limits are clamped.
func (s *Service) clampPage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = s.opts.DefaultLimit
	}
	if limit > s.opts.MaxLimit {
		limit = s.opts.MaxLimit
	}
	return page, limit
}

// scanRange reads [offset, offset+limit), following up when the store returns short pages.
func (s *Service) scanRange(ctx context.Context, spec filter.Spec, offset, limit int) ([]models.LeadRecord, error) {
	out := make([]models.LeadRecord, 0, limit)
	for len(out) < limit {
		batch, err := s.src.ScanLeads(ctx, spec, offset+len(out), limit-len(out))
		if err != nil {
			return nil, fmt.Errorf("%w: scan leads: %w", models.ErrUpstreamFetch, err)
		}
		if len(batch) == 0 {
			break
		}
		out = append(out, batch...)
	}
	return out, nil
}

func summarize(r models.LeadRecord) models.LeadSummary {
	return models.LeadSummary{
		ApplicationID:    r.ApplicationID,
		ApplicantName:    r.ApplicantName,
		ApplicationDate:  r.ApplicationDate,
		Bank:             r.Bank,
		CardName:         r.CardName,
		StageCode:        r.StageCode,
		StageBucket:      r.Bucket(),
		Quality:          r.Quality,
		Commission:       money(r.TotalCommission),
		CommissionStatus: r.OpsStatus,
	}
}
