package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rexfever/showmethestock-sub000/internal/contracts"
)

// MemoryStore is a process-local RecommendationStore (tests, dry-run audits).
// Writes inside WithTickerLock are staged and become visible only on commit.
type MemoryStore struct {
	locks *KeyedMutex

	mu     sync.RWMutex
	recs   map[string]*contracts.Recommendation
	order  []string // 삽입 순서
	events map[string][]*contracts.StateEvent
	nEvent int
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		locks:  NewKeyedMutex(),
		recs:   make(map[string]*contracts.Recommendation),
		events: make(map[string][]*contracts.StateEvent),
	}
}

// GetByID returns a copy of the record
func (s *MemoryStore) GetByID(_ context.Context, id string) (*contracts.Recommendation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.recs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", contracts.ErrNotFound, id)
	}
	return rec.Clone(), nil
}

// ListByStatus returns copies of matching records in insertion order.
// No statuses means every record.
func (s *MemoryStore) ListByStatus(_ context.Context, statuses ...contracts.Status) ([]*contracts.Recommendation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*contracts.Recommendation
	for _, id := range s.order {
		rec := s.recs[id]
		if len(statuses) > 0 && !hasStatus(statuses, rec.Status) {
			continue
		}
		out = append(out, rec.Clone())
	}
	return out, nil
}

// ListEvents returns the audit trail of a record in append order
func (s *MemoryStore) ListEvents(_ context.Context, id string) ([]*contracts.StateEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	evs := s.events[id]
	out := make([]*contracts.StateEvent, len(evs))
	for i, ev := range evs {
		c := *ev
		out[i] = &c
	}
	return out, nil
}

// Seed loads committed records as-is, without events or uniqueness checks.
// It backs throwaway overlays of another store (dry-run backfill).
func (s *MemoryStore) Seed(recs ...*contracts.Recommendation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range recs {
		if _, exists := s.recs[rec.ID]; !exists {
			s.order = append(s.order, rec.ID)
		}
		s.recs[rec.ID] = rec.Clone()
	}
}

// EventCount returns the total number of events (idempotence checks)
func (s *MemoryStore) EventCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nEvent
}

// WithTickerLock runs fn under the ticker's keyed mutex and commits its
// staged writes iff fn returns nil.
func (s *MemoryStore) WithTickerLock(ctx context.Context, ticker string, fn func(tx contracts.RecommendationTx) error) error {
	unlock, err := s.locks.Lock(ctx, ticker)
	if err != nil {
		return fmt.Errorf("lock ticker %s: %w", ticker, err)
	}
	defer unlock()

	tx := &memoryTx{
		store:  s,
		ticker: ticker,
		staged: make(map[string]*contracts.Recommendation),
	}
	if err := fn(tx); err != nil {
		return err
	}

	s.commit(tx)
	return nil
}

func (s *MemoryStore) commit(tx *memoryTx) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range tx.inserted {
		s.order = append(s.order, id)
	}
	for id, rec := range tx.staged {
		s.recs[id] = rec
	}
	for _, ev := range tx.events {
		s.events[ev.RecommendationID] = append(s.events[ev.RecommendationID], ev)
		s.nEvent++
	}
}

// memoryTx is a copy-on-write overlay over the committed maps
type memoryTx struct {
	store    *MemoryStore
	ticker   string
	staged   map[string]*contracts.Recommendation
	inserted []string
	events   []*contracts.StateEvent
}

func (tx *memoryTx) lookup(id string) (*contracts.Recommendation, bool) {
	if rec, ok := tx.staged[id]; ok {
		return rec, true
	}
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	rec, ok := tx.store.recs[id]
	return rec, ok
}

// snapshot merges committed and staged records of ticker
func (tx *memoryTx) snapshot(ticker string) []*contracts.Recommendation {
	tx.store.mu.RLock()
	var out []*contracts.Recommendation
	for _, id := range tx.store.order {
		rec := tx.store.recs[id]
		if rec.Ticker != ticker {
			continue
		}
		if staged, ok := tx.staged[id]; ok {
			rec = staged
		}
		out = append(out, rec)
	}
	tx.store.mu.RUnlock()

	for _, id := range tx.inserted {
		if rec := tx.staged[id]; rec.Ticker == ticker {
			out = append(out, rec)
		}
	}
	return out
}

func (tx *memoryTx) Get(_ context.Context, id string) (*contracts.Recommendation, error) {
	rec, ok := tx.lookup(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", contracts.ErrNotFound, id)
	}
	return rec.Clone(), nil
}

func (tx *memoryTx) FindOpen(_ context.Context, ticker string) ([]*contracts.Recommendation, error) {
	var out []*contracts.Recommendation
	for _, rec := range tx.snapshot(ticker) {
		if rec.Status.IsOpen() {
			out = append(out, rec.Clone())
		}
	}
	return out, nil
}

func (tx *memoryTx) FindLatestClosed(_ context.Context, ticker string) (*contracts.Recommendation, error) {
	var closed []*contracts.Recommendation
	for _, rec := range tx.snapshot(ticker) {
		if !rec.Status.IsOpen() && rec.ClosedAt() != nil {
			closed = append(closed, rec)
		}
	}
	if len(closed) == 0 {
		return nil, fmt.Errorf("%w: no closed record for %s", contracts.ErrNotFound, ticker)
	}

	sort.SliceStable(closed, func(i, j int) bool {
		ci, cj := *closed[i].ClosedAt(), *closed[j].ClosedAt()
		if !ci.Equal(cj) {
			return ci.After(cj)
		}
		return closed[i].StatusChangedAt.After(closed[j].StatusChangedAt)
	})
	return closed[0].Clone(), nil
}

func (tx *memoryTx) Insert(ctx context.Context, rec *contracts.Recommendation) error {
	if rec.Ticker != tx.ticker {
		return fmt.Errorf("%w: insert %s under %s", contracts.ErrTickerNotLocked, rec.Ticker, tx.ticker)
	}
	if _, exists := tx.lookup(rec.ID); exists {
		return fmt.Errorf("insert %s: id already exists", rec.ID)
	}
	if rec.Status.IsOpen() {
		open, _ := tx.FindOpen(ctx, rec.Ticker)
		if len(open) > 0 {
			return fmt.Errorf("%w: %s already has open record %s", contracts.ErrDuplicateActive, rec.Ticker, open[0].ID)
		}
	}

	tx.staged[rec.ID] = rec.Clone()
	tx.inserted = append(tx.inserted, rec.ID)
	return nil
}

func (tx *memoryTx) Update(ctx context.Context, rec *contracts.Recommendation) error {
	if rec.Ticker != tx.ticker {
		return fmt.Errorf("%w: update %s under %s", contracts.ErrTickerNotLocked, rec.Ticker, tx.ticker)
	}
	prev, ok := tx.lookup(rec.ID)
	if !ok {
		return fmt.Errorf("%w: %s", contracts.ErrNotFound, rec.ID)
	}
	if err := checkUpdate(prev, rec); err != nil {
		return err
	}
	if rec.Status.IsOpen() && !prev.Status.IsOpen() {
		open, _ := tx.FindOpen(ctx, rec.Ticker)
		if len(open) > 0 {
			return fmt.Errorf("%w: %s already has open record %s", contracts.ErrDuplicateActive, rec.Ticker, open[0].ID)
		}
	}

	tx.staged[rec.ID] = rec.Clone()
	return nil
}

func (tx *memoryTx) AppendEvent(_ context.Context, ev *contracts.StateEvent) error {
	if ev.Ticker != tx.ticker {
		return fmt.Errorf("%w: event for %s under %s", contracts.ErrTickerNotLocked, ev.Ticker, tx.ticker)
	}
	if _, ok := tx.lookup(ev.RecommendationID); !ok {
		return fmt.Errorf("%w: event for unknown record %s", contracts.ErrNotFound, ev.RecommendationID)
	}
	c := *ev
	tx.events = append(tx.events, &c)
	return nil
}

func hasStatus(statuses []contracts.Status, s contracts.Status) bool {
	for _, st := range statuses {
		if st == s {
			return true
		}
	}
	return false
}
