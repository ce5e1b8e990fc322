package stats

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dialcoach/dialcoach/internal/outcome"
)

// Compile-time assertion that MemStore satisfies the Store interface.
var _ Store = (*MemStore)(nil)

// MemStore is a thread-safe, in-memory implementation of [Store].
// It is the default backend when no database is configured and the test
// double of choice for the recommendation and session layers.
type MemStore struct {
	mu         sync.RWMutex
	records    map[string]OpenerStatistics
	generation uint64

	// now is swappable for tests.
	now func() time.Time
}

// NewMemStore returns an initialised, empty [MemStore].
func NewMemStore() *MemStore {
	return &MemStore{
		records: make(map[string]OpenerStatistics),
		now:     time.Now,
	}
}

// All implements [Store.All].
func (s *MemStore) All(ctx context.Context) (Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]OpenerStatistics, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	return Snapshot{Generation: s.generation, Stats: out}, nil
}

// Get implements [Store.Get].
func (s *MemStore) Get(ctx context.Context, openerID string) (OpenerStatistics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[openerID]
	if !ok {
		return OpenerStatistics{}, fmt.Errorf("stats: opener %q: %w", openerID, ErrNotFound)
	}
	return rec, nil
}

// Record implements [Store.Record]. The whole read-modify-write happens under
// one lock, so per-opener updates cannot be lost.
func (s *MemStore) Record(ctx context.Context, openerID string, oc outcome.Outcome) error {
	if !oc.IsValid() {
		return fmt.Errorf("stats: record %q: invalid outcome %q", openerID, oc)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.records[openerID]
	rec.OpenerID = openerID
	rec.TotalUses++
	if oc == outcome.OutcomeStayed {
		rec.SuccessfulUses++
	}
	rec.LastUsed = s.now()
	s.records[openerID] = rec
	s.generation++
	return nil
}
