package metrics

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/AngelCh415/lead-funnel/internal/filter"
	"github.com/AngelCh415/lead-funnel/internal/models"
)

type qualityAgg struct {
	leads, approved, rejected int
	earnings                  decimal.Decimal
}

// ComputeFunnel counts leads per stage bucket and per quality tier. Clicks come
// from the clean click population in the same window, or are 0 when includeClicks is false.
// Leads is derived from the stage counts so the two always agree.
func (s *Service) ComputeFunnel(ctx context.Context, spec filter.Spec, includeClicks bool) (res *models.Funnel, err error) {
	const op = "funnel"
	defer func(start time.Time) { s.observe(op, start, err) }(time.Now())

	recs, err := s.fetch(ctx, op, spec)
	if err != nil {
		return nil, err
	}

	var clicks int64
	if includeClicks {
		if clicks, err = s.cleanClicks(ctx, spec.Window()); err != nil {
			return nil, err
		}
	}

	var stages models.StageCounts
	tiers := make(map[models.Quality]*qualityAgg, len(models.Qualities))
	for _, q := range models.Qualities {
		tiers[q] = &qualityAgg{earnings: decimal.Zero}
	}

	cls := s.classifier(op)
	for _, r := range recs {
		b := cls.bucket(r)
		stages.Add(b)

		t, ok := tiers[r.Quality]
		if !ok {
			t = tiers[models.QualityUnknown]
		}
		t.leads++
		switch b {
		case models.BucketApproved:
			t.approved++
			t.earnings = t.earnings.Add(r.TotalCommission)
		case models.BucketRejected:
			t.rejected++
		}
	}

	rows := make([]models.QualityRow, 0, len(models.Qualities))
	for _, q := range models.Qualities {
		t := tiers[q]
		rows = append(rows, models.QualityRow{
			Label:       q,
			Leads:       t.leads,
			Cardouts:    t.approved,
			CardoutRate: pct(t.approved, t.leads),
			Earnings:    money(t.earnings),
			Rejections:  t.rejected,
		})
	}

	return &models.Funnel{
		Clicks:  clicks,
		Leads:   stages.Total(),
		Stages:  stages,
		Quality: rows,
	}, nil
}
