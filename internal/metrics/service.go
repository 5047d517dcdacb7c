// Package metrics is the lead aggregation engine: it resolves a filter
// specification against a record source and computes funnel, report,
// commission and listing views. It keeps no state between calls.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/AngelCh415/lead-funnel/internal/filter"
	"github.com/AngelCh415/lead-funnel/internal/models"
	"github.com/AngelCh415/lead-funnel/internal/telemetry"
)

// LeadReader is the read side of a record store. ScanLeads returns matching
// records in listing order and may return fewer than limit rows per call.
type LeadReader interface {
	ScanLeads(ctx context.Context, spec filter.Spec, offset, limit int) ([]models.LeadRecord, error)
	CountLeads(ctx context.Context, spec filter.Spec) (int64, error)
	CountCleanClicks(ctx context.Context, w filter.Window) (int64, error)
}

type Options struct {
	// PotentialRate is the share of total commission reported as potential.
	PotentialRate decimal.Decimal
	// ChunkSize bounds each store read when an aggregation pages through a range.
	ChunkSize    int
	DefaultLimit int
	MaxLimit     int
}

func DefaultOptions() Options {
	return Options{
		PotentialRate: decimal.NewFromFloat(0.10),
		ChunkSize:     1000,
		DefaultLimit:  50,
		MaxLimit:      100,
	}
}

type Service struct {
	src  LeadReader
	log  *zap.Logger
	rec  *telemetry.Recorder
	opts Options
}

func NewService(src LeadReader, log *zap.Logger, rec *telemetry.Recorder, opts Options) *Service {
	def := DefaultOptions()
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = def.ChunkSize
	}
	if opts.MaxLimit <= 0 {
		opts.MaxLimit = def.MaxLimit
	}
	if opts.DefaultLimit <= 0 || opts.DefaultLimit > opts.MaxLimit {
		opts.DefaultLimit = min(def.DefaultLimit, opts.MaxLimit)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{src: src, log: log, rec: rec, opts: opts}
}

// fetch validates spec, then reads every matching record in bounded chunks.
// Records seen twice across chunks (the set shifting under a concurrent write)
// are kept once.
func (s *Service) fetch(ctx context.Context, op string, spec filter.Spec) ([]models.LeadRecord, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	var out []models.LeadRecord
	seen := make(map[string]struct{})
	for offset := 0; ; {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		batch, err := s.src.ScanLeads(ctx, spec, offset, s.opts.ChunkSize)
		if err != nil {
			return nil, fmt.Errorf("%w: scan leads at offset %d: %w", models.ErrUpstreamFetch, offset, err)
		}
		if len(batch) == 0 {
			break
		}
		for _, r := range batch {
			if _, dup := seen[r.ApplicationID]; dup {
				continue
			}
			seen[r.ApplicationID] = struct{}{}
			out = append(out, r)
		}
		offset += len(batch)
	}
	s.rec.RecordsScanned(op, len(out))
	return out, nil
}

func (s *Service) cleanClicks(ctx context.Context, w filter.Window) (int64, error) {
	n, err := s.src.CountCleanClicks(ctx, w)
	if err != nil {
		return 0, fmt.Errorf("%w: count clicks: %w", models.ErrUpstreamFetch, err)
	}
	return n, nil
}

// classifier buckets the records of one engine call. Every record with a code
// outside the taxonomy is counted; each distinct code is logged once per call.
type classifier struct {
	s       *Service
	op      string
	unknown map[string]struct{}
}

func (s *Service) classifier(op string) *classifier {
	return &classifier{s: s, op: op, unknown: make(map[string]struct{})}
}

func (c *classifier) bucket(r models.LeadRecord) models.Bucket {
	b := r.Bucket()
	if b != models.BucketUnknown {
		return b
	}
	c.s.rec.UnknownStageCode(r.StageCode)
	if _, seen := c.unknown[r.StageCode]; !seen {
		c.unknown[r.StageCode] = struct{}{}
		c.s.log.Warn("unknown stage code",
			zap.String("operation", c.op),
			zap.String("application_id", r.ApplicationID),
			zap.String("stage_code", r.StageCode))
	}
	return b
}

// observe records latency and failure kind for one engine call.
func (s *Service) observe(op string, start time.Time, err error) {
	s.rec.ObserveAggregation(op, time.Since(start))
	if err == nil {
		return
	}
	kind := "internal"
	switch {
	case errors.Is(err, models.ErrInvalidRange), errors.Is(err, models.ErrInvalidFilter):
		kind = "invalid"
	case errors.Is(err, models.ErrUpstreamFetch):
		kind = "upstream"
		s.log.Error("aggregation failed", zap.String("operation", op), zap.Error(err))
	}
	s.rec.AggregationFailed(op, kind)
}

func pct(num, den int) float64 {
	if den <= 0 {
		return 0
	}
	return float64(num) / float64(den) * 100
}

func money(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}

// bankName is the display label of a bank key. Reports group by the raw key, so
// the label never merges a missing bank with a real bank of the same name.
func bankName(b string) string {
	if b == "" {
		return "Unknown"
	}
	return b
}
