package filter

import (
	"strings"

	"github.com/AngelCh415/lead-funnel/internal/models"
)

// Predicate selects lead records.
type Predicate func(models.LeadRecord) bool

// Resolve validates s and returns the predicate it denotes. Constraints are OR'd
// within a field and AND'd across fields; an invalid range fails before any data is read.
func Resolve(s Spec) (Predicate, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	banks := set(s.banks)
	cards := set(s.cards)
	qualities := set(s.qualities)
	stages := set(s.stages)
	codes := set(s.codes)
	search := strings.ToLower(s.search)
	months, days := s.months, s.days

	return func(r models.LeadRecord) bool {
		if months != nil && (r.ApplicationMonth < months.Start || r.ApplicationMonth > months.End) {
			return false
		}
		if days != nil && (r.ApplicationDate == "" || r.ApplicationDate < days.From || r.ApplicationDate > days.To) {
			return false
		}
		if !member(banks, r.Bank) || !member(cards, r.CardName) {
			return false
		}
		if !member(qualities, r.Quality) || !inStage(stages, codes, r) {
			return false
		}
		if search != "" && !matchesSearch(r, search) {
			return false
		}
		return true
	}, nil
}

// inStage matches when either the bucket or the raw code of r is selected.
func inStage(stages map[models.Bucket]struct{}, codes map[string]struct{}, r models.LeadRecord) bool {
	if stages == nil && codes == nil {
		return true
	}
	if _, ok := stages[r.Bucket()]; ok {
		return true
	}
	_, ok := codes[r.StageCode]
	return ok
}

func matchesSearch(r models.LeadRecord, needle string) bool {
	for _, field := range []string{r.ApplicationID, r.ApplicantName, r.CardName, r.Bank} {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}

func set[T comparable](in []T) map[T]struct{} {
	if len(in) == 0 {
		return nil
	}
	out := make(map[T]struct{}, len(in))
	for _, v := range in {
		out[v] = struct{}{}
	}
	return out
}

// member treats an empty set as "no constraint".
func member[T comparable](s map[T]struct{}, v T) bool {
	if s == nil {
		return true
	}
	_, ok := s[v]
	return ok
}

const maxSearchLen = 100

var searchReplacer = strings.NewReplacer(
	"\n", " ", "\r", " ", "\t", " ", "\x00", " ",
	"<", " ", ">", " ", "`", " ", `"`, " ", "'", " ", `\`, " ",
)

// SanitizeSearch caps free text at 100 runes and blanks characters that have no
// place in a name or identifier search.
func SanitizeSearch(q string) string {
	if r := []rune(q); len(r) > maxSearchLen {
		q = string(r[:maxSearchLen])
	}
	return strings.TrimSpace(searchReplacer.Replace(q))
}
