package metrics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/AngelCh415/lead-funnel/internal/filter"
	"github.com/AngelCh415/lead-funnel/internal/models"
)

const (
	TimelineMonth = "month"
	TimelineDay   = "day"
)

// ComputeTimeline buckets matching records by application month, or by day
// within month when view is "day". Points are ordered by label ascending.
func (s *Service) ComputeTimeline(ctx context.Context, spec filter.Spec, view, month string, includeClicks bool) (res []models.TimelinePoint, err error) {
	const op = "timeline"
	defer func(start time.Time) { s.observe(op, start, err) }(time.Now())

	switch view {
	case "", TimelineMonth:
		view = TimelineMonth
	case TimelineDay:
		if !models.ValidMonth(month) {
			return nil, fmt.Errorf("%w: day view needs month YYYY-MM, got %q", models.ErrInvalidFilter, month)
		}
		spec = spec.With(filter.Months(month, month))
	default:
		return nil, fmt.Errorf("%w: timeline view %q", models.ErrInvalidFilter, view)
	}

	recs, err := s.fetch(ctx, op, spec)
	if err != nil {
		return nil, err
	}

	points := make(map[string]*models.TimelinePoint)
	cls := s.classifier(op)
	for _, r := range recs {
		label := r.ApplicationMonth
		if view == TimelineDay {
			label = r.ApplicationDate
		}
		if label == "" {
			continue
		}
		p := points[label]
		if p == nil {
			p = &models.TimelinePoint{Label: label}
			points[label] = p
		}
		p.Leads++
		switch cls.bucket(r) {
		case models.BucketIncomplete:
			p.Incomplete++
		case models.BucketKYC:
			p.KYC++
		case models.BucketUnderwriting, models.BucketCuring:
			p.Verification++
		case models.BucketApproved:
			p.Approved++
		case models.BucketRejected:
			p.Rejected++
		case models.BucketExpired:
			p.Expired++
		}
	}

	out := make([]models.TimelinePoint, 0, len(points))
	for _, p := range points {
		if includeClicks {
			narrowed := spec.With(filter.Months(p.Label, p.Label))
			if view == TimelineDay {
				narrowed = spec.With(filter.Days(p.Label, p.Label))
			}
			if p.Clicks, err = s.cleanClicks(ctx, narrowed.Window()); err != nil {
				return nil, err
			}
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out, nil
}
