package filter

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/AngelCh415/lead-funnel/internal/models"
)

// Payload is the JSON shape the dashboard sends in the `filters` query parameter.
type Payload struct {
	TimeRange *struct {
		Start  string `json:"start"`
		End    string `json:"end"`
		Preset string `json:"preset"`
	} `json:"timeRange"`
	CustomRange        *DayRange `json:"customRange"`
	Banks              []string  `json:"banks"`
	Cards              []string  `json:"cards"`
	ApplicationQuality []string  `json:"applicationQuality"`
	QualityStages      []string  `json:"qualityStages"`
	Stages             []string  `json:"stages"`
	Search             string    `json:"search"`
}

// Parse decodes raw into a validated Spec. An empty raw value, or one without a
// time range, selects the month containing now.
func Parse(raw string, now time.Time) (Spec, error) {
	var p Payload
	if strings.TrimSpace(raw) != "" {
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return Spec{}, fmt.Errorf("%w: %v", models.ErrInvalidFilter, err)
		}
	}
	return p.Spec(now)
}

// Spec converts p, resolving presets relative to now.
func (p Payload) Spec(now time.Time) (Spec, error) {
	var opts []Option

	switch {
	case p.TimeRange != nil && p.TimeRange.Preset != "" && p.TimeRange.Preset != "custom":
		start, end, err := presetRange(p.TimeRange.Preset, now)
		if err != nil {
			return Spec{}, err
		}
		opts = append(opts, Months(start, end))
	case p.TimeRange != nil && (p.TimeRange.Start != "" || p.TimeRange.End != ""):
		opts = append(opts, Months(p.TimeRange.Start, p.TimeRange.End))
	case p.CustomRange == nil:
		m := now.Format(models.MonthLayout)
		opts = append(opts, Months(m, m))
	}

	if p.CustomRange != nil {
		from, err := models.NormalizeDate(p.CustomRange.From)
		if err != nil {
			return Spec{}, fmt.Errorf("%w: customRange.from: %v", models.ErrInvalidFilter, err)
		}
		to, err := models.NormalizeDate(p.CustomRange.To)
		if err != nil {
			return Spec{}, fmt.Errorf("%w: customRange.to: %v", models.ErrInvalidFilter, err)
		}
		opts = append(opts, Days(from, to))
	}

	opts = append(opts, Banks(p.Banks...), Cards(p.Cards...), Search(p.Search))
	for _, list := range [][]string{p.ApplicationQuality, p.QualityStages} {
		for _, q := range list {
			opts = append(opts, Qualities(models.Quality(q)))
		}
	}
	for _, st := range p.Stages {
		opts = append(opts, stageOption(st))
	}

	s := New(opts...)
	if err := s.Validate(); err != nil {
		return Spec{}, err
	}
	return s, nil
}

// stageOption accepts a bucket name, a raw stage code, or "Verification",
// the dashboard's label for underwriting plus curing.
func stageOption(v string) Option {
	key := strings.ToLower(strings.TrimSpace(v))
	switch {
	case key == "verification":
		return Stages(models.BucketUnderwriting, models.BucketCuring)
	case models.IsKnownCode(key):
		return Codes(key)
	}
	return Stages(models.Bucket(v))
}

func presetRange(preset string, now time.Time) (string, string, error) {
	months := 0
	switch preset {
	case "current_month":
		months = 1
	case "last_3_months":
		months = 3
	case "last_6_months":
		months = 6
	default:
		return "", "", fmt.Errorf("%w: preset %q", models.ErrInvalidFilter, preset)
	}
	end := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	start := end.AddDate(0, -(months - 1), 0)
	return start.Format(models.MonthLayout), end.Format(models.MonthLayout), nil
}
