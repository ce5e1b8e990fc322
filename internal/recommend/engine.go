// Package recommend implements the phased recommendation engine that decides
// which opener an agent should lead with next.
//
// The engine balances exploration against exploitation in three phases,
// evaluated in order with the first applicable result winning:
//
//  1. Fair testing — while any opener has fewer than the minimum attempts,
//     recommend the least-used one so every opener accumulates a baseline
//     sample before any performance judgment is made. Ties break by ascending
//     opener ID.
//
//  2. Performance-based — once every opener has its baseline, recommend the
//     opener with the highest success rate. When the incumbent favorite (the
//     most-sampled opener, the one past recommendations have been funneling
//     calls to) is in measurable decline relative to its peers, switch to the
//     best-performing alternative instead.
//
//  3. Fallback — with an empty statistics snapshot and nothing else to go on,
//     recommend the first catalog opener. Phase 1 normally fires first for
//     any untested opener, so this is a defensive default.
//
// The engine is a pure function of the statistics snapshot: no I/O, no
// retained state, safe for concurrent use.
package recommend

import (
	"fmt"
	"sort"

	"github.com/dialcoach/dialcoach/internal/catalog"
	"github.com/dialcoach/dialcoach/internal/stats"
)

// Reason explains which phase produced a recommendation.
type Reason string

const (
	ReasonFairTesting        Reason = "fair_testing"
	ReasonBestPerformer      Reason = "best_performer"
	ReasonPerformanceDecline Reason = "performance_decline"
	ReasonFallback           Reason = "fallback"
)

// Confidence rates how much history backs a recommendation.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Policy holds the tunable constants governing phase transitions and decline
// detection. The defaults mirror field-tested values; they are policy knobs,
// not derived quantities.
type Policy struct {
	// MinAttemptsForFairTesting is the minimum number of uses before an
	// opener exits the exploration phase. Default: 3.
	MinAttemptsForFairTesting int

	// MinAttemptsForConfidence is the number of uses required for a
	// recommendation to be rated high confidence. Default: 5.
	MinAttemptsForConfidence int

	// PerformanceDeclineThreshold is the success-rate gap below the peer
	// average (as a fraction, e.g. 0.15 = 15 points) that triggers a switch
	// away from the nominal best performer. Default: 0.15.
	PerformanceDeclineThreshold float64
}

// DefaultPolicy returns the default policy constants.
func DefaultPolicy() Policy {
	return Policy{
		MinAttemptsForFairTesting:   3,
		MinAttemptsForConfidence:    5,
		PerformanceDeclineThreshold: 0.15,
	}
}

// validate rejects impossible policy configurations at construction time.
func (p Policy) validate() error {
	if p.MinAttemptsForFairTesting < 1 {
		return fmt.Errorf("recommend: min attempts for fair testing %d must be at least 1", p.MinAttemptsForFairTesting)
	}
	if p.MinAttemptsForConfidence < p.MinAttemptsForFairTesting {
		return fmt.Errorf("recommend: min attempts for confidence %d must be >= min attempts for fair testing %d",
			p.MinAttemptsForConfidence, p.MinAttemptsForFairTesting)
	}
	if p.PerformanceDeclineThreshold <= 0 || p.PerformanceDeclineThreshold >= 1 {
		return fmt.Errorf("recommend: performance decline threshold %.2f is out of range (0, 1)", p.PerformanceDeclineThreshold)
	}
	return nil
}

// Recommendation is the engine's transient output. It is recomputed from the
// statistics snapshot on every call, never persisted.
type Recommendation struct {
	Opener     catalog.Opener
	Reason     Reason
	Confidence Confidence
}

// Option is a functional option for configuring an [Engine].
type Option func(*Engine)

// WithPolicy overrides the default policy constants.
func WithPolicy(p Policy) Option {
	return func(e *Engine) {
		e.policy = p
	}
}

// Engine computes opener recommendations from statistics snapshots.
// Safe for concurrent use — read-only after construction.
type Engine struct {
	cat    *catalog.Catalog
	policy Policy
}

// New creates an [Engine] over cat with the supplied options, validating the
// policy constants up front.
func New(cat *catalog.Catalog, opts ...Option) (*Engine, error) {
	e := &Engine{
		cat:    cat,
		policy: DefaultPolicy(),
	}
	for _, o := range opts {
		o(e)
	}
	if err := e.policy.validate(); err != nil {
		return nil, err
	}
	return e, nil
}

// Policy returns the engine's policy constants.
func (e *Engine) Policy() Policy {
	return e.policy
}

// Catalog returns the catalog the engine recommends from.
func (e *Engine) Catalog() *catalog.Catalog {
	return e.cat
}

// Recommend decides which opener to present next given snap. Statistics
// entries referencing opener IDs absent from the catalog are silently
// ignored; catalog openers without a statistics record count as zero uses.
func (e *Engine) Recommend(snap stats.Snapshot) Recommendation {
	byID := e.indexStats(snap)

	// Phase 1 — fair testing: recommend the least-used opener that has not
	// yet reached its baseline sample.
	if rec, ok := e.fairTesting(byID); ok {
		return rec
	}

	// Phase 2 — performance-based ranking with decline detection.
	if rec, ok := e.performanceBased(byID); ok {
		return rec
	}

	// Phase 3 — defensive fallback.
	return Recommendation{
		Opener:     e.cat.First(),
		Reason:     ReasonFallback,
		Confidence: ConfidenceLow,
	}
}

// SortedOpeners returns the full catalog with the currently recommended
// opener moved to the front. The remaining openers are ordered by descending
// success rate (no record = rate 0); catalog order breaks ties.
func (e *Engine) SortedOpeners(snap stats.Snapshot) []catalog.Opener {
	byID := e.indexStats(snap)
	recommended := e.Recommend(snap)

	rest := make([]catalog.Opener, 0, e.cat.Len())
	for _, o := range e.cat.Openers() {
		if o.ID == recommended.Opener.ID {
			continue
		}
		rest = append(rest, o)
	}
	sort.SliceStable(rest, func(a, b int) bool {
		return byID[rest[a].ID].SuccessRate() > byID[rest[b].ID].SuccessRate()
	})

	out := make([]catalog.Opener, 0, e.cat.Len())
	if recommended.Opener.ID != "" {
		out = append(out, recommended.Opener)
	}
	return append(out, rest...)
}

// Explain maps a recommendation to a fixed human-readable label.
func (e *Engine) Explain(rec Recommendation) string {
	switch rec.Reason {
	case ReasonFairTesting:
		return "Testing for optimal performance"
	case ReasonBestPerformer:
		return fmt.Sprintf("Top performer (%s confidence)", rec.Confidence)
	case ReasonPerformanceDecline:
		return "Switching to better alternative"
	default:
		return "Default recommendation"
	}
}

// indexStats builds an opener-ID lookup over snap, dropping entries that do
// not resolve to a catalog opener.
func (e *Engine) indexStats(snap stats.Snapshot) map[string]stats.OpenerStatistics {
	byID := make(map[string]stats.OpenerStatistics, len(snap.Stats))
	for _, rec := range snap.Stats {
		if _, ok := e.cat.Get(rec.OpenerID); !ok {
			continue
		}
		byID[rec.OpenerID] = rec
	}
	return byID
}

// fairTesting returns the least-used opener still below the fair-testing
// baseline, ties broken by ascending opener ID.
func (e *Engine) fairTesting(byID map[string]stats.OpenerStatistics) (Recommendation, bool) {
	var (
		found bool
		best  catalog.Opener
		uses  int
	)
	for _, o := range e.cat.Openers() {
		n := byID[o.ID].TotalUses
		if n >= e.policy.MinAttemptsForFairTesting {
			continue
		}
		if !found || n < uses || (n == uses && o.ID < best.ID) {
			found = true
			best = o
			uses = n
		}
	}
	if !found {
		return Recommendation{}, false
	}
	return Recommendation{
		Opener:     best,
		Reason:     ReasonFairTesting,
		Confidence: ConfidenceLow,
	}, true
}

// performanceBased ranks fully-tested openers by success rate and applies the
// decline switch. Reached only once every catalog opener has its baseline, so
// the qualifying set is normally the whole catalog.
func (e *Engine) performanceBased(byID map[string]stats.OpenerStatistics) (Recommendation, bool) {
	var qualified []stats.OpenerStatistics
	for _, o := range e.cat.Openers() {
		rec, ok := byID[o.ID]
		if ok && rec.TotalUses >= e.policy.MinAttemptsForFairTesting {
			qualified = append(qualified, rec)
		}
	}
	if len(qualified) == 0 {
		return Recommendation{}, false
	}

	// Rank by success rate descending; qualified is in catalog order, so the
	// stable sort keeps catalog order for equal rates.
	ranked := make([]stats.OpenerStatistics, len(qualified))
	copy(ranked, qualified)
	sort.SliceStable(ranked, func(a, b int) bool {
		return ranked[a].SuccessRate() > ranked[b].SuccessRate()
	})

	// The incumbent favorite is the most-sampled opener — the one past
	// recommendations have been funneling calls to. Decline is judged on the
	// incumbent, not on the current rate leader: a favorite whose cumulative
	// rate has sunk below its peers is switched away from explicitly rather
	// than just falling down the ranking. Ties keep catalog order.
	incumbent := qualified[0]
	for _, rec := range qualified[1:] {
		if rec.TotalUses > incumbent.TotalUses {
			incumbent = rec
		}
	}

	if len(qualified) >= 2 && e.isDeclining(incumbent, qualified) {
		alternative := ranked[0]
		if alternative.OpenerID == incumbent.OpenerID {
			alternative = ranked[1]
		}
		opener, _ := e.cat.Get(alternative.OpenerID)
		return Recommendation{
			Opener:     opener,
			Reason:     ReasonPerformanceDecline,
			Confidence: e.confidenceFor(alternative),
		}, true
	}

	opener, _ := e.cat.Get(ranked[0].OpenerID)
	return Recommendation{
		Opener:     opener,
		Reason:     ReasonBestPerformer,
		Confidence: e.confidenceFor(ranked[0]),
	}, true
}

// isDeclining reports whether candidate's success rate has fallen more than
// the decline threshold below the average of all other qualifying openers.
// With insufficient own history (fewer than twice the confidence minimum) or
// no peer to compare against, an opener is never flagged as declining.
func (e *Engine) isDeclining(candidate stats.OpenerStatistics, qualified []stats.OpenerStatistics) bool {
	if candidate.TotalUses < 2*e.policy.MinAttemptsForConfidence {
		return false
	}

	var (
		peers   int
		rateSum float64
	)
	for _, rec := range qualified {
		if rec.OpenerID == candidate.OpenerID {
			continue
		}
		peers++
		rateSum += rec.SuccessRate()
	}
	if peers == 0 {
		return false
	}

	peerAverage := rateSum / float64(peers)
	return peerAverage-candidate.SuccessRate() > e.policy.PerformanceDeclineThreshold
}

// confidenceFor rates a recommendation's statistical backing.
func (e *Engine) confidenceFor(rec stats.OpenerStatistics) Confidence {
	if rec.TotalUses >= e.policy.MinAttemptsForConfidence {
		return ConfidenceHigh
	}
	return ConfidenceMedium
}
