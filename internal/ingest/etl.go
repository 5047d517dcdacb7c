package ingest

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/AngelCh415/lead-funnel/internal/config"
	"github.com/AngelCh415/lead-funnel/internal/filter"
	"github.com/AngelCh415/lead-funnel/internal/models"
	"github.com/AngelCh415/lead-funnel/internal/telemetry"
	"github.com/AngelCh415/lead-funnel/internal/utils"
)

// Sink is the write side of a record store.
type Sink interface {
	UpsertLeads(ctx context.Context, recs []models.LeadRecord) (int, error)
	UpsertClicks(ctx context.Context, clicks []models.ClickEvent) (int, error)
	AdvanceStage(ctx context.Context, u models.StageUpdate) (bool, error)
}

// FunnelSource computes the snapshot ExportDay ships.
type FunnelSource interface {
	ComputeFunnel(ctx context.Context, spec filter.Spec, includeClicks bool) (*models.Funnel, error)
}

var ErrSinkNotConfigured = errors.New("sink not configured")

type ETL struct {
	c       HTTPClient
	sink    Sink
	funnel  FunnelSource
	log     *zap.Logger
	rec     *telemetry.Recorder
	cfg     config.Feeds
	backoff utils.Backoff
}

func NewETL(c HTTPClient, sink Sink, funnel FunnelSource, log *zap.Logger, rec *telemetry.Recorder, cfg config.Feeds) *ETL {
	if log == nil {
		log = zap.NewNop()
	}
	return &ETL{c: c, sink: sink, funnel: funnel, log: log, rec: rec, cfg: cfg, backoff: defaultBackoff}
}

// WithBackoff replaces the retry policy; tests use it to avoid real sleeps.
func (e *ETL) WithBackoff(b utils.Backoff) *ETL {
	e.backoff = b
	return e
}

type clickInput struct {
	ClickID   string `json:"clickId"`
	ClickedOn string `json:"clickedOn"`
	// Clean defaults to true; feeds only flag the clicks they filtered as fraud.
	Clean *bool `json:"clean"`
}

type RunSummary struct {
	LeadsAccepted  int `json:"leadsAccepted"`
	LeadsRejected  int `json:"leadsRejected"`
	ClicksAccepted int `json:"clicksAccepted"`
	ClicksRejected int `json:"clicksRejected"`
}

// Run pulls the lead and click feeds and upserts every valid row. Invalid rows
// are counted and skipped; a feed or store failure aborts the run.
func (e *ETL) Run(ctx context.Context) (RunSummary, error) {
	var sum RunSummary
	if e.cfg.LeadsURL == "" && e.cfg.ClicksURL == "" {
		return sum, fmt.Errorf("%w: no feeds configured", models.ErrUpstreamFetch)
	}

	if e.cfg.LeadsURL != "" {
		var raw []models.LeadInput
		if err := GetJSONWithRetry(ctx, e.c, e.backoff, e.cfg.LeadsURL, &raw); err != nil {
			return sum, fmt.Errorf("%w: leads feed: %w", models.ErrUpstreamFetch, err)
		}
		recs := make([]models.LeadRecord, 0, len(raw))
		idx := make(map[string]int, len(raw))
		for _, in := range raw {
			rec, err := models.NewLeadRecord(in)
			if err != nil {
				sum.LeadsRejected++
				e.log.Debug("skip lead", zap.Error(err))
				continue
			}
			// last write wins inside one batch
			if i, dup := idx[rec.ApplicationID]; dup {
				recs[i] = rec
				continue
			}
			idx[rec.ApplicationID] = len(recs)
			recs = append(recs, rec)
		}
		n, err := e.sink.UpsertLeads(ctx, recs)
		if err != nil {
			return sum, err
		}
		sum.LeadsAccepted = n
		e.rec.IngestRecords("leads", "accepted", n)
		e.rec.IngestRecords("leads", "rejected", sum.LeadsRejected)
	}

	if e.cfg.ClicksURL != "" {
		var raw []clickInput
		if err := GetJSONWithRetry(ctx, e.c, e.backoff, e.cfg.ClicksURL, &raw); err != nil {
			return sum, fmt.Errorf("%w: clicks feed: %w", models.ErrUpstreamFetch, err)
		}
		clicks := make([]models.ClickEvent, 0, len(raw))
		for _, in := range raw {
			c, err := normalizeClick(in)
			if err != nil {
				sum.ClicksRejected++
				e.log.Debug("skip click", zap.Error(err))
				continue
			}
			clicks = append(clicks, c)
		}
		n, err := e.sink.UpsertClicks(ctx, clicks)
		if err != nil {
			return sum, err
		}
		sum.ClicksAccepted = n
		e.rec.IngestRecords("clicks", "accepted", n)
		e.rec.IngestRecords("clicks", "rejected", sum.ClicksRejected)
	}

	e.log.Info("ingest complete",
		zap.Int("leads_accepted", sum.LeadsAccepted),
		zap.Int("leads_rejected", sum.LeadsRejected),
		zap.Int("clicks_accepted", sum.ClicksAccepted),
		zap.Int("clicks_rejected", sum.ClicksRejected))
	return sum, nil
}

func normalizeClick(in clickInput) (models.ClickEvent, error) {
	id := strings.TrimSpace(in.ClickID)
	if id == "" {
		return models.ClickEvent{}, fmt.Errorf("%w: empty click id", models.ErrInvalidRecord)
	}
	day, err := models.NormalizeDate(in.ClickedOn)
	if err != nil {
		return models.ClickEvent{}, fmt.Errorf("click %s: %w", id, err)
	}
	if day == "" {
		return models.ClickEvent{}, fmt.Errorf("%w: click %s has no date", models.ErrInvalidRecord, id)
	}
	clean := in.Clean == nil || *in.Clean
	return models.ClickEvent{ClickID: id, ClickedOn: day, Clean: clean}, nil
}

type daySnapshot struct {
	Date   string         `json:"date"`
	Funnel *models.Funnel `json:"funnel"`
}

// ExportDay posts the funnel for one application day to the sink, signed with
// HMAC-SHA256 over the body in X-Signature. It returns the exported lead count.
func (e *ETL) ExportDay(ctx context.Context, date time.Time) (int, error) {
	if e.cfg.SinkURL == "" || e.cfg.SinkSecret == "" {
		return 0, ErrSinkNotConfigured
	}
	day := date.UTC().Format(models.DateLayout)
	f, err := e.funnel.ComputeFunnel(ctx, filter.New(filter.Days(day, day)), true)
	if err != nil {
		return 0, err
	}
	if f.Leads == 0 && f.Clicks == 0 {
		return 0, nil
	}

	b, err := json.Marshal(daySnapshot{Date: day, Funnel: f})
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.SinkURL, bytes.NewReader(b))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Signature", Sign(e.cfg.SinkSecret, b))
	resp, err := e.c.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: export: %w", models.ErrUpstreamFetch, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return 0, fmt.Errorf("%w: export sink: %w", models.ErrUpstreamFetch, &StatusError{Code: resp.StatusCode, Body: string(body)})
	}
	e.log.Info("export complete", zap.String("date", day), zap.Int("leads", f.Leads))
	return f.Leads, nil
}

func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
