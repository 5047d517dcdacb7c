// Package filter defines the immutable filter specification every aggregation
// runs against and resolves it into a record predicate.
package filter

import (
	"fmt"
	"sort"
	"strings"

	"github.com/AngelCh415/lead-funnel/internal/models"
)

// MonthRange is an inclusive YYYY-MM range matched against applicationMonth.
type MonthRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// DayRange is an inclusive YYYY-MM-DD range matched against applicationDate.
type DayRange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Spec is built once per query through New and never mutated afterwards;
// list fields are private copies, sorted and deduplicated.
type Spec struct {
	months    *MonthRange
	days      *DayRange
	banks     []string
	cards     []string
	qualities []models.Quality
	stages    []models.Bucket
	codes     []string
	search    string
}

type Option func(*Spec)

func Months(start, end string) Option {
	return func(s *Spec) { s.months = &MonthRange{Start: strings.TrimSpace(start), End: strings.TrimSpace(end)} }
}

func Days(from, to string) Option {
	return func(s *Spec) { s.days = &DayRange{From: strings.TrimSpace(from), To: strings.TrimSpace(to)} }
}

func Banks(banks ...string) Option {
	return func(s *Spec) { s.banks = append(s.banks, banks...) }
}

func Cards(cards ...string) Option {
	return func(s *Spec) { s.cards = append(s.cards, cards...) }
}

// Qualities constrains applicationQuality. Labels are canonicalized; unrecognized
// labels are kept as given so that Validate rejects them.
func Qualities(q ...models.Quality) Option {
	return func(s *Spec) {
		for _, v := range q {
			if p, err := models.ParseQuality(string(v)); err == nil && strings.TrimSpace(string(v)) != "" {
				v = p
			}
			s.qualities = append(s.qualities, v)
		}
	}
}

// Stages constrains the stage bucket; each bucket expands to its codes.
func Stages(b ...models.Bucket) Option {
	return func(s *Spec) {
		for _, v := range b {
			if p, ok := models.ParseBucket(string(v)); ok {
				v = p
			}
			s.stages = append(s.stages, v)
		}
	}
}

// Codes constrains the raw stage code. It combines with Stages as a union:
// a record matches when its bucket or its code is selected.
func Codes(codes ...string) Option {
	return func(s *Spec) {
		for _, c := range codes {
			s.codes = append(s.codes, strings.ToLower(strings.TrimSpace(c)))
		}
	}
}

func Search(q string) Option {
	return func(s *Spec) { s.search = SanitizeSearch(q) }
}

// New builds a Spec from opts. It does not validate; see Validate and Resolve.
func New(opts ...Option) Spec {
	var s Spec
	for _, opt := range opts {
		opt(&s)
	}
	s.banks = uniqSorted(s.banks)
	s.cards = uniqSorted(s.cards)
	s.qualities = uniqSorted(s.qualities)
	s.stages = uniqSorted(s.stages)
	s.codes = uniqSorted(s.codes)
	return s
}

// With returns a copy of s with extra constraints applied.
func (s Spec) With(opts ...Option) Spec {
	base := []Option{func(c *Spec) {
		*c = s
		c.banks = append([]string(nil), s.banks...)
		c.cards = append([]string(nil), s.cards...)
		c.qualities = append([]models.Quality(nil), s.qualities...)
		c.stages = append([]models.Bucket(nil), s.stages...)
		c.codes = append([]string(nil), s.codes...)
	}}
	return New(append(base, opts...)...)
}

func (s Spec) MonthRange() (MonthRange, bool) {
	if s.months == nil {
		return MonthRange{}, false
	}
	return *s.months, true
}

func (s Spec) DayRange() (DayRange, bool) {
	if s.days == nil {
		return DayRange{}, false
	}
	return *s.days, true
}

func (s Spec) Banks() []string             { return append([]string(nil), s.banks...) }
func (s Spec) Cards() []string             { return append([]string(nil), s.cards...) }
func (s Spec) Qualities() []models.Quality { return append([]models.Quality(nil), s.qualities...) }
func (s Spec) Stages() []models.Bucket     { return append([]models.Bucket(nil), s.stages...) }
func (s Spec) Codes() []string             { return append([]string(nil), s.codes...) }
func (s Spec) SearchText() string          { return s.search }

// StageCodes expands the stage bucket and raw code constraints into the raw
// codes they select. The Unknown bucket has no codes and is reported through
// includesUnknown.
func (s Spec) StageCodes() (codes []string, includesUnknown bool) {
	seen := make(map[string]struct{})
	add := func(c string) {
		if _, ok := seen[c]; !ok {
			seen[c] = struct{}{}
			codes = append(codes, c)
		}
	}
	for _, b := range s.stages {
		if b == models.BucketUnknown {
			includesUnknown = true
			continue
		}
		for _, c := range models.CodesOf(b) {
			add(c)
		}
	}
	for _, c := range s.codes {
		add(c)
	}
	return codes, includesUnknown
}

// Validate checks the time range and enumerated constraints without touching any data.
func (s Spec) Validate() error {
	if s.months == nil && s.days == nil {
		return fmt.Errorf("%w: a month or day range is required", models.ErrInvalidFilter)
	}
	if m := s.months; m != nil {
		if !models.ValidMonth(m.Start) || !models.ValidMonth(m.End) {
			return fmt.Errorf("%w: month range %q..%q must be YYYY-MM", models.ErrInvalidFilter, m.Start, m.End)
		}
		if m.Start > m.End {
			return fmt.Errorf("%w: start %s is after end %s", models.ErrInvalidRange, m.Start, m.End)
		}
	}
	if d := s.days; d != nil {
		if !models.ValidDate(d.From) || !models.ValidDate(d.To) {
			return fmt.Errorf("%w: day range %q..%q must be YYYY-MM-DD", models.ErrInvalidFilter, d.From, d.To)
		}
		if d.From > d.To {
			return fmt.Errorf("%w: from %s is after to %s", models.ErrInvalidRange, d.From, d.To)
		}
	}
	for _, q := range s.qualities {
		if _, err := models.ParseQuality(string(q)); err != nil {
			return fmt.Errorf("%w: quality %q", models.ErrInvalidFilter, q)
		}
	}
	for _, b := range s.stages {
		if _, ok := models.ParseBucket(string(b)); !ok {
			return fmt.Errorf("%w: stage %q", models.ErrInvalidFilter, b)
		}
	}
	for _, c := range s.codes {
		if !models.IsKnownCode(c) {
			return fmt.Errorf("%w: stage code %q", models.ErrInvalidFilter, c)
		}
	}
	return nil
}

// Window is the time window of s, shared with the independent click population.
func (s Spec) Window() Window {
	return Window{months: s.months, days: s.days}
}

// Window is an inclusive time window over canonical dates.
type Window struct {
	months *MonthRange
	days   *DayRange
}

func (w Window) MonthRange() (MonthRange, bool) {
	if w.months == nil {
		return MonthRange{}, false
	}
	return *w.months, true
}

func (w Window) DayRange() (DayRange, bool) {
	if w.days == nil {
		return DayRange{}, false
	}
	return *w.days, true
}

// ContainsDate reports whether a canonical date falls in the window.
func (w Window) ContainsDate(date string) bool {
	if len(date) < len(models.MonthLayout) {
		return false
	}
	if w.months != nil && !w.ContainsMonth(date[:7]) {
		return false
	}
	if w.days != nil && (date < w.days.From || date > w.days.To) {
		return false
	}
	return true
}

func (w Window) ContainsMonth(month string) bool {
	if w.months == nil {
		return true
	}
	return month >= w.months.Start && month <= w.months.End
}

func uniqSorted[T ~string](in []T) []T {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[T]struct{}, len(in))
	out := make([]T, 0, len(in))
	for _, v := range in {
		v = T(strings.TrimSpace(string(v)))
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
