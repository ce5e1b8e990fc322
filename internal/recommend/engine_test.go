package recommend_test

import (
	"testing"
	"time"

	"github.com/dialcoach/dialcoach/internal/catalog"
	"github.com/dialcoach/dialcoach/internal/recommend"
	"github.com/dialcoach/dialcoach/internal/stats"
)

// testCatalog builds a three-opener catalog in the order A, B, C.
func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.New([]catalog.Opener{
		{ID: "a", Text: "opener alpha"},
		{ID: "b", Text: "opener bravo"},
		{ID: "c", Text: "opener charlie"},
	})
	if err != nil {
		t.Fatalf("catalog.New: %v", err)
	}
	return cat
}

func newEngine(t *testing.T, opts ...recommend.Option) *recommend.Engine {
	t.Helper()
	e, err := recommend.New(testCatalog(t), opts...)
	if err != nil {
		t.Fatalf("recommend.New: %v", err)
	}
	return e
}

// record is a shorthand statistics constructor.
func record(id string, total, successful int) stats.OpenerStatistics {
	return stats.OpenerStatistics{
		OpenerID:       id,
		TotalUses:      total,
		SuccessfulUses: successful,
		LastUsed:       time.Now(),
	}
}

func snapshot(recs ...stats.OpenerStatistics) stats.Snapshot {
	return stats.Snapshot{Generation: 1, Stats: recs}
}

func TestRecommend_EmptyStatisticsIsFairTesting(t *testing.T) {
	t.Parallel()

	e := newEngine(t)
	rec := e.Recommend(stats.Snapshot{})

	if rec.Reason != recommend.ReasonFairTesting {
		t.Errorf("Reason = %q, want %q", rec.Reason, recommend.ReasonFairTesting)
	}
	if rec.Opener.ID != "a" {
		t.Errorf("Opener = %q, want %q (least used, ID ascending)", rec.Opener.ID, "a")
	}
	if rec.Confidence != recommend.ConfidenceLow {
		t.Errorf("Confidence = %q, want %q", rec.Confidence, recommend.ConfidenceLow)
	}
}

func TestRecommend_FairTestingPicksLeastUsed(t *testing.T) {
	t.Parallel()

	e := newEngine(t)
	rec := e.Recommend(snapshot(
		record("a", 1, 0),
		record("b", 0, 0),
		record("c", 2, 2),
	))

	if rec.Reason != recommend.ReasonFairTesting {
		t.Fatalf("Reason = %q, want %q", rec.Reason, recommend.ReasonFairTesting)
	}
	if rec.Opener.ID != "b" {
		t.Errorf("Opener = %q, want %q (0 uses beats 1 and 2)", rec.Opener.ID, "b")
	}
}

func TestRecommend_FairTestingTieBreaksByID(t *testing.T) {
	t.Parallel()

	e := newEngine(t)
	rec := e.Recommend(snapshot(
		record("a", 1, 1),
		record("b", 1, 0),
		record("c", 1, 1),
	))

	if rec.Opener.ID != "a" {
		t.Errorf("Opener = %q, want %q (equal uses, ascending ID)", rec.Opener.ID, "a")
	}
}

func TestRecommend_FairTestingExhaustiveness(t *testing.T) {
	t.Parallel()

	e := newEngine(t)
	uses := map[string]int{}

	// Repeatedly "use the recommended opener once". Every recommendation
	// while any opener is under the baseline must be fair_testing, and after
	// N openers × 3 attempts the exploration phase must be exhausted.
	for i := 0; i < 3*3; i++ {
		var recs []stats.OpenerStatistics
		for id, n := range uses {
			recs = append(recs, record(id, n, 0))
		}
		rec := e.Recommend(snapshot(recs...))
		if rec.Reason != recommend.ReasonFairTesting {
			t.Fatalf("iteration %d: Reason = %q, want %q", i, rec.Reason, recommend.ReasonFairTesting)
		}
		uses[rec.Opener.ID]++
	}

	for _, id := range []string{"a", "b", "c"} {
		if uses[id] != 3 {
			t.Errorf("opener %q used %d times during fair testing, want exactly 3", id, uses[id])
		}
	}

	// One more call with every opener at the baseline leaves fair testing.
	var recs []stats.OpenerStatistics
	for id, n := range uses {
		recs = append(recs, record(id, n, 0))
	}
	if rec := e.Recommend(snapshot(recs...)); rec.Reason == recommend.ReasonFairTesting {
		t.Errorf("after baseline reached: Reason = %q, want a performance phase", rec.Reason)
	}
}

func TestRecommend_BestPerformer(t *testing.T) {
	t.Parallel()

	e := newEngine(t)
	rec := e.Recommend(snapshot(
		record("a", 4, 4), // 100%
		record("b", 4, 2), // 50%
		record("c", 4, 0), // 0%
	))

	if rec.Reason != recommend.ReasonBestPerformer {
		t.Fatalf("Reason = %q, want %q", rec.Reason, recommend.ReasonBestPerformer)
	}
	if rec.Opener.ID != "a" {
		t.Errorf("Opener = %q, want %q", rec.Opener.ID, "a")
	}
	if rec.Confidence != recommend.ConfidenceMedium {
		t.Errorf("Confidence = %q, want %q (4 uses is below the high bar of 5)", rec.Confidence, recommend.ConfidenceMedium)
	}
}

func TestRecommend_ConfidenceThreshold(t *testing.T) {
	t.Parallel()

	e := newEngine(t)

	tests := []struct {
		name string
		uses int
		want recommend.Confidence
	}{
		{"at confidence minimum", 5, recommend.ConfidenceHigh},
		{"above confidence minimum", 9, recommend.ConfidenceHigh},
		{"below confidence minimum", 4, recommend.ConfidenceMedium},
		{"at fair-testing minimum", 3, recommend.ConfidenceMedium},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := e.Recommend(snapshot(
				record("a", tt.uses, tt.uses), // winner
				record("b", 3, 0),
				record("c", 3, 0),
			))
			if rec.Opener.ID != "a" {
				t.Fatalf("Opener = %q, want %q", rec.Opener.ID, "a")
			}
			if rec.Confidence != tt.want {
				t.Errorf("Confidence with %d uses = %q, want %q", tt.uses, rec.Confidence, tt.want)
			}
		})
	}
}

func TestRecommend_DeclineSwitchesToBestAlternative(t *testing.T) {
	t.Parallel()

	e := newEngine(t)

	// "a" is the incumbent favorite (12 uses) but its rate has sunk to 50%
	// while the peer average is (100% + 75%) / 2 = 87.5%, well past the
	// 15-point threshold. The engine switches to the best-rated alternative.
	rec := e.Recommend(snapshot(
		record("a", 12, 6), // 50%, incumbent
		record("b", 4, 4),  // 100%
		record("c", 4, 3),  // 75%
	))

	if rec.Reason != recommend.ReasonPerformanceDecline {
		t.Fatalf("Reason = %q, want %q", rec.Reason, recommend.ReasonPerformanceDecline)
	}
	if rec.Opener.ID != "b" {
		t.Errorf("Opener = %q, want %q", rec.Opener.ID, "b")
	}
	if rec.Confidence != recommend.ConfidenceMedium {
		t.Errorf("Confidence = %q, want %q (alternative has 4 uses)", rec.Confidence, recommend.ConfidenceMedium)
	}

	// With a well-sampled alternative the switch carries high confidence.
	rec = e.Recommend(snapshot(
		record("a", 12, 6),
		record("b", 6, 6),
		record("c", 4, 3),
	))
	if rec.Reason != recommend.ReasonPerformanceDecline || rec.Opener.ID != "b" {
		t.Fatalf("got %q/%q, want performance_decline/b", rec.Reason, rec.Opener.ID)
	}
	if rec.Confidence != recommend.ConfidenceHigh {
		t.Errorf("Confidence = %q, want %q (alternative has 6 uses)", rec.Confidence, recommend.ConfidenceHigh)
	}
}

func TestRecommend_HealthyIncumbentStaysBestPerformer(t *testing.T) {
	t.Parallel()

	e := newEngine(t)

	// The incumbent still leads: peer average (90% + 80%) / 2 = 85% is below
	// its 91.7%, so no decline and it wins on rate.
	rec := e.Recommend(snapshot(
		record("a", 12, 11), // 91.7%, incumbent
		record("b", 10, 9),  // 90%
		record("c", 10, 8),  // 80%
	))
	if rec.Reason != recommend.ReasonBestPerformer || rec.Opener.ID != "a" {
		t.Errorf("got %q/%q, want best_performer/a", rec.Reason, rec.Opener.ID)
	}
	if rec.Confidence != recommend.ConfidenceHigh {
		t.Errorf("Confidence = %q, want %q", rec.Confidence, recommend.ConfidenceHigh)
	}
}

func TestRecommend_DeclineRequiresOwnHistory(t *testing.T) {
	t.Parallel()

	e := newEngine(t)

	// The incumbent trails the peer average by far more than the threshold,
	// but with only 9 uses (below 2×5) it is never flagged as declining. The
	// rate leader wins with the ordinary best_performer reason.
	rec := e.Recommend(snapshot(
		record("a", 9, 2), // 22%, incumbent, too little history to judge
		record("b", 5, 5), // 100%
		record("c", 5, 4), // 80%
	))
	if rec.Reason != recommend.ReasonBestPerformer || rec.Opener.ID != "b" {
		t.Errorf("got %q/%q, want best_performer/b", rec.Reason, rec.Opener.ID)
	}
}

func TestRecommend_DeclineRequiresPeer(t *testing.T) {
	t.Parallel()

	cat, err := catalog.New([]catalog.Opener{{ID: "solo", Text: "only opener"}})
	if err != nil {
		t.Fatalf("catalog.New: %v", err)
	}
	e, err := recommend.New(cat)
	if err != nil {
		t.Fatalf("recommend.New: %v", err)
	}

	// A lone opener has no peers to decline against, however poorly it does.
	rec := e.Recommend(snapshot(record("solo", 20, 0)))
	if rec.Reason != recommend.ReasonBestPerformer || rec.Opener.ID != "solo" {
		t.Errorf("got %q/%q, want best_performer/solo", rec.Reason, rec.Opener.ID)
	}
}

func TestRecommend_IgnoresUnknownOpenerIDs(t *testing.T) {
	t.Parallel()

	e := newEngine(t)
	rec := e.Recommend(snapshot(
		record("ghost", 100, 100), // not in the catalog — ignored
		record("a", 1, 1),
	))

	if rec.Reason != recommend.ReasonFairTesting {
		t.Errorf("Reason = %q, want %q (catalog openers still under baseline)", rec.Reason, recommend.ReasonFairTesting)
	}
	if rec.Opener.ID == "ghost" {
		t.Error("recommended an opener that is not in the catalog")
	}
}

func TestRecommend_EndToEndScenario(t *testing.T) {
	t.Parallel()

	e := newEngine(t)

	// Call 1: empty statistics → fair testing recommends A.
	rec := e.Recommend(stats.Snapshot{})
	if rec.Opener.ID != "a" || rec.Reason != recommend.ReasonFairTesting {
		t.Fatalf("call 1: got %q/%q, want a/fair_testing", rec.Opener.ID, rec.Reason)
	}

	// Call 2: A used once → B is now least used.
	rec = e.Recommend(snapshot(record("a", 1, 1)))
	if rec.Opener.ID != "b" || rec.Reason != recommend.ReasonFairTesting {
		t.Fatalf("call 2: got %q/%q, want b/fair_testing", rec.Opener.ID, rec.Reason)
	}

	// Round-robin to the baseline: A succeeds every time, B and C never.
	final := snapshot(
		record("a", 3, 3),
		record("b", 3, 0),
		record("c", 3, 0),
	)
	rec = e.Recommend(final)
	if rec.Reason != recommend.ReasonBestPerformer {
		t.Fatalf("after baseline: Reason = %q, want %q", rec.Reason, recommend.ReasonBestPerformer)
	}
	if rec.Opener.ID != "a" {
		t.Errorf("after baseline: Opener = %q, want %q", rec.Opener.ID, "a")
	}
}

func TestSortedOpeners(t *testing.T) {
	t.Parallel()

	e := newEngine(t)
	snap := snapshot(
		record("a", 3, 1), // 33%
		record("b", 3, 3), // 100% — recommended
		record("c", 3, 2), // 67%
	)

	got := e.SortedOpeners(snap)
	want := []string{"b", "c", "a"}
	if len(got) != len(want) {
		t.Fatalf("SortedOpeners returned %d openers, want %d", len(got), len(want))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("SortedOpeners[%d] = %q, want %q", i, got[i].ID, id)
		}
	}
}

func TestSortedOpeners_MissingStatsTreatedAsZero(t *testing.T) {
	t.Parallel()

	e := newEngine(t)
	// Only "c" has statistics; "a" and "b" are under the baseline so fair
	// testing recommends "a"; the rest sort by rate with missing = 0 and
	// catalog order breaking the b/ nothing tie.
	got := e.SortedOpeners(snapshot(record("c", 3, 3)))
	want := []string{"a", "c", "b"}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("SortedOpeners[%d] = %q, want %q (full order %v)", i, got[i].ID, id, openersIDs(got))
		}
	}
}

func openersIDs(openers []catalog.Opener) []string {
	ids := make([]string, len(openers))
	for i, o := range openers {
		ids[i] = o.ID
	}
	return ids
}

func TestExplain(t *testing.T) {
	t.Parallel()

	e := newEngine(t)

	tests := []struct {
		rec  recommend.Recommendation
		want string
	}{
		{recommend.Recommendation{Reason: recommend.ReasonFairTesting}, "Testing for optimal performance"},
		{recommend.Recommendation{Reason: recommend.ReasonBestPerformer, Confidence: recommend.ConfidenceHigh}, "Top performer (high confidence)"},
		{recommend.Recommendation{Reason: recommend.ReasonBestPerformer, Confidence: recommend.ConfidenceMedium}, "Top performer (medium confidence)"},
		{recommend.Recommendation{Reason: recommend.ReasonPerformanceDecline}, "Switching to better alternative"},
		{recommend.Recommendation{Reason: recommend.ReasonFallback}, "Default recommendation"},
	}
	for _, tt := range tests {
		if got := e.Explain(tt.rec); got != tt.want {
			t.Errorf("Explain(%q) = %q, want %q", tt.rec.Reason, got, tt.want)
		}
	}
}

func TestNew_RejectsInvalidPolicy(t *testing.T) {
	t.Parallel()

	bad := []recommend.Policy{
		{MinAttemptsForFairTesting: 0, MinAttemptsForConfidence: 5, PerformanceDeclineThreshold: 0.15},
		{MinAttemptsForFairTesting: 3, MinAttemptsForConfidence: 2, PerformanceDeclineThreshold: 0.15},
		{MinAttemptsForFairTesting: 3, MinAttemptsForConfidence: 5, PerformanceDeclineThreshold: 0},
		{MinAttemptsForFairTesting: 3, MinAttemptsForConfidence: 5, PerformanceDeclineThreshold: 1.5},
	}
	for i, p := range bad {
		if _, err := recommend.New(testCatalog(t), recommend.WithPolicy(p)); err == nil {
			t.Errorf("policy %d: nil error, want construction-time rejection", i)
		}
	}
}
