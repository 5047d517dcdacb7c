package metrics

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/AngelCh415/lead-funnel/internal/filter"
	"github.com/AngelCh415/lead-funnel/internal/models"
)

type commissionSums struct {
	total, pending, confirmed, paid decimal.Decimal
}

// sumCommission accumulates exactly. Paid and confirmed money is only realizable
// on approved leads, so those sums skip records in any other bucket.
func sumCommission(recs []models.LeadRecord) commissionSums {
	sums := commissionSums{decimal.Zero, decimal.Zero, decimal.Zero, decimal.Zero}
	for _, r := range recs {
		sums.total = sums.total.Add(r.TotalCommission)
		switch r.OpsStatus {
		case models.OpsPending:
			sums.pending = sums.pending.Add(r.TotalCommission)
		case models.OpsConfirmed:
			if r.Bucket() == models.BucketApproved {
				sums.confirmed = sums.confirmed.Add(r.TotalCommission)
			}
		case models.OpsPaid:
			if r.Bucket() == models.BucketApproved {
				sums.paid = sums.paid.Add(r.TotalCommission)
			}
		}
	}
	return sums
}

// ComputeCommission sums totalCommission over matching records, split by payment
// status. Potential is total times the configured policy rate.
func (s *Service) ComputeCommission(ctx context.Context, spec filter.Spec) (res *models.Commission, err error) {
	const op = "commission"
	defer func(start time.Time) { s.observe(op, start, err) }(time.Now())

	recs, err := s.fetch(ctx, op, spec)
	if err != nil {
		return nil, err
	}

	sums := sumCommission(recs)
	return &models.Commission{
		Total:     money(sums.total),
		Pending:   money(sums.pending),
		Confirmed: money(sums.confirmed),
		Paid:      money(sums.paid),
		Potential: money(sums.total.Mul(s.opts.PotentialRate)),
	}, nil
}

// ComputeKPIs returns the dashboard headline numbers.
func (s *Service) ComputeKPIs(ctx context.Context, spec filter.Spec) (res *models.KPIs, err error) {
	const op = "kpis"
	defer func(start time.Time) { s.observe(op, start, err) }(time.Now())

	recs, err := s.fetch(ctx, op, spec)
	if err != nil {
		return nil, err
	}

	var stages models.StageCounts
	cls := s.classifier(op)
	for _, r := range recs {
		stages.Add(cls.bucket(r))
	}
	sums := sumCommission(recs)
	total := stages.Total()
	return &models.KPIs{
		TotalLeads:          total,
		Approved:            stages.Approved,
		ApprovalRate:        pct(stages.Approved, total),
		Incomplete:          stages.Incomplete,
		TotalCommission:     money(sums.total),
		PotentialCommission: money(sums.total.Mul(s.opts.PotentialRate)),
	}, nil
}
