package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/punchamoorthee/feeledger/internal/domain"
)

type periodKey struct {
	kind    domain.Kind
	payerID string
	period  domain.Period
}

// MemoryStore is an in-process LedgerStore with the same uniqueness rules as
// the PostgreSQL schema. Entries are copied in and out so callers never share
// state with the store.
type MemoryStore struct {
	mu       sync.RWMutex
	entries  map[domain.Kind]map[string]domain.Entry
	byPeriod map[periodKey]string
}

func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		entries:  make(map[domain.Kind]map[string]domain.Entry),
		byPeriod: make(map[periodKey]string),
	}
	for _, k := range domain.Kinds {
		s.entries[k] = make(map[string]domain.Entry)
	}
	return s
}

func (s *MemoryStore) Insert(_ context.Context, e *domain.Entry) error {
	if !e.Kind.Valid() {
		return domain.ErrInvalidKind
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := periodKey{kind: e.Kind, payerID: e.PayerID, period: e.Period}
	if _, exists := s.byPeriod[key]; exists {
		return fmt.Errorf("%s %s %s: %w", e.Kind, e.PayerID, e.Period, domain.ErrDuplicatePeriod)
	}
	if _, exists := s.entries[e.Kind][e.ID]; exists {
		return fmt.Errorf("entry id %s taken: %w", e.ID, domain.ErrDuplicatePeriod)
	}
	s.entries[e.Kind][e.ID] = e.Clone()
	s.byPeriod[key] = e.ID
	return nil
}

func (s *MemoryStore) Get(_ context.Context, kind domain.Kind, id string) (*domain.Entry, error) {
	if !kind.Valid() {
		return nil, domain.ErrInvalidKind
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[kind][id]
	if !ok {
		return nil, domain.ErrEntryNotFound
	}
	out := e.Clone()
	return &out, nil
}

func (s *MemoryStore) FindByPeriod(_ context.Context, kind domain.Kind, payerID string, p domain.Period) (*domain.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byPeriod[periodKey{kind: kind, payerID: payerID, period: p}]
	if !ok {
		return nil, domain.ErrEntryNotFound
	}
	out := s.entries[kind][id].Clone()
	return &out, nil
}

func (s *MemoryStore) List(_ context.Context, kind domain.Kind, f domain.Filter) ([]domain.Entry, error) {
	if !kind.Valid() {
		return nil, domain.ErrInvalidKind
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []domain.Entry{}
	for _, e := range s.entries[kind] {
		if f.PayerID != "" && e.PayerID != f.PayerID {
			continue
		}
		if f.Status != "" && e.Status != f.Status {
			continue
		}
		if f.Period != nil && e.Period != *f.Period {
			continue
		}
		out = append(out, e.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Period != out[j].Period {
			return out[j].Period.Before(out[i].Period)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) ListDue(_ context.Context, kind domain.Kind, asOf time.Time) ([]domain.Entry, error) {
	if !kind.Valid() {
		return nil, domain.ErrInvalidKind
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	latest := map[string]domain.Entry{}
	for _, e := range s.entries[kind] {
		if e.Status != domain.StatusPaid || !e.IsRecurring || e.NextPeriodDue == nil || e.NextPeriodDue.After(asOf) {
			continue
		}
		if cur, ok := latest[e.PayerID]; ok && !cur.Period.Before(e.Period) {
			continue
		}
		latest[e.PayerID] = e
	}
	out := make([]domain.Entry, 0, len(latest))
	for _, e := range latest {
		out = append(out, e.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PayerID != out[j].PayerID {
			return out[i].PayerID < out[j].PayerID
		}
		return out[j].Period.Before(out[i].Period)
	})
	return out, nil
}

func (s *MemoryStore) Update(_ context.Context, kind domain.Kind, id string, fn func(*domain.Entry) error) (*domain.Entry, error) {
	if !kind.Valid() {
		return nil, domain.ErrInvalidKind
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.entries[kind][id]
	if !ok {
		return nil, domain.ErrEntryNotFound
	}
	working := current.Clone()
	if err := fn(&working); err != nil {
		return nil, err
	}
	// payer, period and id are immutable through Update, matching the SQL statement.
	working.ID, working.Kind, working.PayerID, working.Period = current.ID, current.Kind, current.PayerID, current.Period
	s.entries[kind][id] = working.Clone()
	return &working, nil
}
