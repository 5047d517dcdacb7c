package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/AngelCh415/lead-funnel/internal/filter"
	"github.com/AngelCh415/lead-funnel/internal/models"
)

// MemoryStore keeps leads and clicks in process. It backs local runs without a
// database and the engine tests.
type MemoryStore struct {
	mu      sync.RWMutex
	leads   map[string]models.LeadRecord
	clicks  map[string]models.ClickEvent
	maxPage int
}

type Option func(*MemoryStore)

// WithMaxPage caps how many records a single ScanLeads call returns, like a
// hosted database that limits result sizes.
func WithMaxPage(n int) Option {
	return func(s *MemoryStore) { s.maxPage = n }
}

func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{
		leads:  make(map[string]models.LeadRecord),
		clicks: make(map[string]models.ClickEvent),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) UpsertLeads(_ context.Context, recs []models.LeadRecord) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range recs {
		s.leads[r.ApplicationID] = r
	}
	return len(recs), nil
}

func (s *MemoryStore) UpsertClicks(_ context.Context, clicks []models.ClickEvent) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range clicks {
		s.clicks[c.ClickID] = c
	}
	return len(clicks), nil
}

func (s *MemoryStore) AdvanceStage(_ context.Context, u models.StageUpdate) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.leads[u.ApplicationID]
	if !ok {
		return false, fmt.Errorf("application %s: %w", u.ApplicationID, models.ErrNotFound)
	}
	next, applied, err := u.Apply(rec)
	if err != nil || !applied {
		return false, err
	}
	s.leads[u.ApplicationID] = next
	return true, nil
}

// ScanLeads returns the page [offset, offset+limit) of matching records in listing order.
func (s *MemoryStore) ScanLeads(_ context.Context, spec filter.Spec, offset, limit int) ([]models.LeadRecord, error) {
	match, err := filter.Resolve(spec)
	if err != nil {
		return nil, err
	}
	if s.maxPage > 0 && limit > s.maxPage {
		limit = s.maxPage
	}

	out := s.query(match)
	models.SortForListing(out)
	if offset >= len(out) || limit <= 0 {
		return []models.LeadRecord{}, nil
	}
	end := offset + limit
	if end > len(out) {
		end = len(out)
	}
	return out[offset:end], nil
}

func (s *MemoryStore) CountLeads(_ context.Context, spec filter.Spec) (int64, error) {
	match, err := filter.Resolve(spec)
	if err != nil {
		return 0, err
	}
	return int64(len(s.query(match))), nil
}

func (s *MemoryStore) CountCleanClicks(_ context.Context, w filter.Window) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, c := range s.clicks {
		if c.Clean && w.ContainsDate(c.ClickedOn) {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) All() []models.LeadRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.LeadRecord, 0, len(s.leads))
	for _, v := range s.leads {
		out = append(out, v)
	}
	return out
}

func (s *MemoryStore) query(f filter.Predicate) []models.LeadRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.LeadRecord
	for _, v := range s.leads {
		if f == nil || f(v) {
			out = append(out, v)
		}
	}
	return out
}
