package metrics

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/AngelCh415/lead-funnel/internal/filter"
	"github.com/AngelCh415/lead-funnel/internal/models"
)

type bankAgg struct {
	total, approved, rejected int
	daysSum, daysN            int
}

// ComputeApprovalReport groups matching records by bank. avgDays averages
// decision-minus-application days over approved records carrying both dates;
// a negative difference is floored to zero and flagged.
func (s *Service) ComputeApprovalReport(ctx context.Context, spec filter.Spec) (res *models.ApprovalReport, err error) {
	const op = "approval_report"
	defer func(start time.Time) { s.observe(op, start, err) }(time.Now())

	recs, err := s.fetch(ctx, op, spec)
	if err != nil {
		return nil, err
	}

	byBank := make(map[string]*bankAgg)
	var allDays, allDaysN int
	cls := s.classifier(op)
	for _, r := range recs {
		a := byBank[r.Bank]
		if a == nil {
			a = &bankAgg{}
			byBank[r.Bank] = a
		}
		a.total++
		if cls.bucket(r) != models.BucketApproved {
			continue
		}
		a.approved++

		days, ok := s.latencyDays(r)
		if !ok {
			continue
		}
		a.daysSum += days
		a.daysN++
		allDays += days
		allDaysN++
	}

	banks := make([]models.BankApproval, 0, len(byBank))
	var totalLeads, totalApproved int
	for key, a := range byBank {
		row := models.BankApproval{
			Bank:         bankName(key),
			Unattributed: key == "",
			Total:        a.total,
			Approved:     a.approved,
			Rate:         pct(a.approved, a.total),
		}
		if a.daysN > 0 {
			avg := float64(a.daysSum) / float64(a.daysN)
			row.AvgDays = &avg
		}
		banks = append(banks, row)
		totalLeads += a.total
		totalApproved += a.approved
	}
	sort.Slice(banks, func(i, j int) bool {
		if banks[i].Rate != banks[j].Rate {
			return banks[i].Rate > banks[j].Rate
		}
		if banks[i].Approved != banks[j].Approved {
			return banks[i].Approved > banks[j].Approved
		}
		return bankLess(banks[i].Bank, banks[i].Unattributed, banks[j].Bank, banks[j].Unattributed)
	})

	kpis := models.ApprovalKPIs{
		TotalApprovals: totalApproved,
		ApprovalRate:   pct(totalApproved, totalLeads),
	}
	if len(banks) > 0 {
		kpis.TopBank = &models.BankRank{Bank: banks[0].Bank, Unattributed: banks[0].Unattributed, Rate: banks[0].Rate}
	}
	if allDaysN > 0 {
		avg := float64(allDays) / float64(allDaysN)
		kpis.AvgProcessingDays = &avg
	}
	return &models.ApprovalReport{KPIs: kpis, Banks: banks}, nil
}

func (s *Service) latencyDays(r models.LeadRecord) (int, bool) {
	if r.ApplicationDate == "" || r.DecisionDate == "" {
		return 0, false
	}
	days, err := models.DaysBetween(r.ApplicationDate, r.DecisionDate)
	if err != nil {
		s.log.Warn("unparseable lead dates",
			zap.String("application_id", r.ApplicationID),
			zap.Error(err))
		return 0, false
	}
	if days < 0 {
		s.rec.NegativeLatency(bankName(r.Bank))
		s.log.Warn("decision date precedes application date",
			zap.String("application_id", r.ApplicationID),
			zap.String("bank", r.Bank),
			zap.String("application_date", r.ApplicationDate),
			zap.String("decision_date", r.DecisionDate))
		return 0, true
	}
	return days, true
}

type reasonKey struct{ category, reason string }

// ComputeRejectionReport groups rejected records by bank and by
// (category, reason). Percentages are relative to all matching leads.
func (s *Service) ComputeRejectionReport(ctx context.Context, spec filter.Spec) (res *models.RejectionReport, err error) {
	const op = "rejection_report"
	defer func(start time.Time) { s.observe(op, start, err) }(time.Now())

	recs, err := s.fetch(ctx, op, spec)
	if err != nil {
		return nil, err
	}

	byBank := make(map[string]*bankAgg)
	reasons := make(map[reasonKey]int)
	cls := s.classifier(op)
	for _, r := range recs {
		a := byBank[r.Bank]
		if a == nil {
			a = &bankAgg{}
			byBank[r.Bank] = a
		}
		a.total++
		if cls.bucket(r) != models.BucketRejected {
			continue
		}
		a.rejected++
		reasons[reasonKey{category: orUnknown(r.RejectionCategory), reason: orUnknown(r.RejectionReason)}]++
	}

	banks := make([]models.BankRejection, 0, len(byBank))
	var totalLeads, totalRejected int
	for key, a := range byBank {
		banks = append(banks, models.BankRejection{
			Bank:         bankName(key),
			Unattributed: key == "",
			Total:        a.total,
			Rejected:     a.rejected,
			Rate:         pct(a.rejected, a.total),
		})
		totalLeads += a.total
		totalRejected += a.rejected
	}
	sort.Slice(banks, func(i, j int) bool {
		if banks[i].Rate != banks[j].Rate {
			return banks[i].Rate > banks[j].Rate
		}
		if banks[i].Rejected != banks[j].Rejected {
			return banks[i].Rejected > banks[j].Rejected
		}
		return bankLess(banks[i].Bank, banks[i].Unattributed, banks[j].Bank, banks[j].Unattributed)
	})

	rows := make([]models.RejectionReason, 0, len(reasons))
	for k, n := range reasons {
		rows = append(rows, models.RejectionReason{
			Category:   k.category,
			Reason:     k.reason,
			Count:      n,
			PctOfTotal: pct(n, totalLeads),
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count != rows[j].Count {
			return rows[i].Count > rows[j].Count
		}
		if rows[i].Reason != rows[j].Reason {
			return rows[i].Reason < rows[j].Reason
		}
		return rows[i].Category < rows[j].Category
	})

	kpis := models.RejectionKPIs{
		TotalRejections: totalRejected,
		RejectionRate:   pct(totalRejected, totalLeads),
	}
	if len(rows) > 0 {
		top := rows[0].Reason
		kpis.TopReason = &top
	}
	if len(banks) > 0 {
		kpis.WorstBank = &models.BankRank{Bank: banks[0].Bank, Unattributed: banks[0].Unattributed, Rate: banks[0].Rate}
	}
	return &models.RejectionReport{KPIs: kpis, Banks: banks, Reasons: rows}, nil
}

// bankLess orders by label, placing the unattributed row after a real bank
// that shares its label.
func bankLess(a string, aUnattributed bool, b string, bUnattributed bool) bool {
	if a != b {
		return a < b
	}
	return !aUnattributed && bUnattributed
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}
