// Package stats defines per-opener usage statistics and the narrow store
// interface through which the rest of the system reads and updates them.
//
// Statistics are cumulative aggregates: one record per opener, created lazily
// on first use and updated exactly once per completed call session via
// [Store.Record]. The success rate is always derived from the two counters
// rather than stored, so it cannot drift.
//
// Reads return a [Snapshot] carrying a monotonically increasing generation
// tag. Consumers that cache anything derived from statistics should key their
// caches on the generation rather than invalidating by hand.
package stats

import (
	"context"
	"errors"
	"time"

	"github.com/dialcoach/dialcoach/internal/outcome"
)

// ErrNotFound is returned by [Store.Get] when no statistics record exists for
// the requested opener.
var ErrNotFound = errors.New("stats: opener statistics not found")

// OpenerStatistics is the cumulative usage record for a single opener.
// Invariant: 0 ≤ SuccessfulUses ≤ TotalUses.
type OpenerStatistics struct {
	// OpenerID references the catalog entry these counters belong to.
	OpenerID string

	// TotalUses counts completed sessions where this opener was used.
	TotalUses int

	// SuccessfulUses counts those sessions that ended with the prospect
	// staying on the call.
	SuccessfulUses int

	// LastUsed is the time of the most recent completed session, zero when
	// the opener has never been used.
	LastUsed time.Time
}

// SuccessRate returns SuccessfulUses / TotalUses, or 0 when the opener has
// never been used.
func (s OpenerStatistics) SuccessRate() float64 {
	if s.TotalUses == 0 {
		return 0
	}
	return float64(s.SuccessfulUses) / float64(s.TotalUses)
}

// Snapshot is a point-in-time view of all opener statistics. Generation
// increases by one for every successful [Store.Record], so two snapshots with
// the same generation are identical.
type Snapshot struct {
	Generation uint64
	Stats      []OpenerStatistics
}

// Store is the persistence boundary for opener statistics.
//
// Implementations must apply Record as a single atomic read-modify-write and
// serialize concurrent Record calls for the same opener; updates for
// different openers are independent. All returns a consistent snapshot with
// no ordering guarantee — consumers sort as needed.
type Store interface {
	// All returns a snapshot of every opener's statistics.
	All(ctx context.Context) (Snapshot, error)

	// Get returns the statistics record for one opener, or [ErrNotFound].
	Get(ctx context.Context, openerID string) (OpenerStatistics, error)

	// Record registers one completed session for openerID, incrementing
	// TotalUses and, when oc is [outcome.OutcomeStayed], SuccessfulUses.
	// The record is created lazily on first use.
	Record(ctx context.Context, openerID string, oc outcome.Outcome) error
}
