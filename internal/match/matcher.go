// Package match implements the fuzzy text matcher that maps a noisy speech
// transcript onto one of the canonical openers in the catalog.
//
// Matching is a two-step process:
//
//  1. Normalization: both the transcript and each catalog text are
//     lower-cased, stripped of everything that is not a letter, digit, or
//     whitespace, and have whitespace runs collapsed to single spaces. This
//     makes matching invariant to capitalization, punctuation, and spacing
//     artifacts introduced by transcription.
//
//  2. Similarity scoring: the Levenshtein edit distance between the two
//     normalized strings is converted to a 0–100 percentage,
//     ((maxLen − distance) / maxLen) × 100, rounded to two decimal places.
//     Two empty strings score 100.
//
// Candidates at or above the similarity threshold are ranked by descending
// score; ties keep catalog order. When the top two scores are within the
// ambiguity threshold of each other the result is flagged ambiguous so the
// caller can ask the agent to disambiguate instead of guessing.
package match

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/antzucaro/matchr"

	"github.com/dialcoach/dialcoach/internal/catalog"
)

const (
	// defaultSimilarityThreshold is the minimum similarity percentage for a
	// catalog entry to count as a match.
	defaultSimilarityThreshold = 80

	// defaultAmbiguityThreshold is the maximum gap, in percentage points,
	// between the top two scores for a match to be flagged ambiguous.
	defaultAmbiguityThreshold = 5
)

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithSimilarityThreshold sets the minimum similarity percentage (0–100)
// required for a catalog entry to qualify as a match. Default: 80.
func WithSimilarityThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.similarityThreshold = threshold
	}
}

// WithAmbiguityThreshold sets the maximum gap, in percentage points, between
// the top two qualifying scores below which the result is flagged ambiguous.
// Default: 5. Independent of the similarity threshold.
func WithAmbiguityThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.ambiguityThreshold = threshold
	}
}

// Result pairs a matched opener with its similarity score (0–100).
type Result struct {
	Opener     catalog.Opener
	Similarity float64
}

// Ambiguity is the full outcome of an ambiguity-aware match: all qualifying
// candidates in descending score order, whether the decision is ambiguous,
// and the best match (nil when no candidate qualifies).
type Ambiguity struct {
	Matches     []Result
	IsAmbiguous bool
	BestMatch   *Result
}

// Matcher maps transcripts onto catalog openers. Safe for concurrent use —
// read-only after construction.
type Matcher struct {
	cat                 *catalog.Catalog
	similarityThreshold float64
	ambiguityThreshold  float64

	// normalized catalog texts, precomputed once, aligned with catalog order.
	normalized []string
}

// New creates a [Matcher] over cat with the supplied options. Impossible
// threshold configurations are rejected here rather than producing silently
// wrong comparisons later.
func New(cat *catalog.Catalog, opts ...Option) (*Matcher, error) {
	m := &Matcher{
		cat:                 cat,
		similarityThreshold: defaultSimilarityThreshold,
		ambiguityThreshold:  defaultAmbiguityThreshold,
	}
	for _, o := range opts {
		o(m)
	}

	if m.similarityThreshold < 0 || m.similarityThreshold > 100 {
		return nil, fmt.Errorf("match: similarity threshold %.2f is out of range [0, 100]", m.similarityThreshold)
	}
	if m.ambiguityThreshold < 0 {
		return nil, fmt.Errorf("match: ambiguity threshold %.2f must be non-negative", m.ambiguityThreshold)
	}

	openers := cat.Openers()
	m.normalized = make([]string, len(openers))
	for i, o := range openers {
		m.normalized[i] = Normalize(o.Text)
	}
	return m, nil
}

// Match returns the single best-matching opener when its similarity meets the
// similarity threshold. Empty or whitespace-only transcripts never match.
func (m *Matcher) Match(transcript string) (catalog.Opener, bool) {
	r, ok := m.MatchWithConfidence(transcript)
	if !ok {
		return catalog.Opener{}, false
	}
	return r.Opener, true
}

// MatchWithConfidence is [Matcher.Match] with the numeric similarity score
// exposed alongside the opener.
func (m *Matcher) MatchWithConfidence(transcript string) (Result, bool) {
	candidates := m.qualifying(transcript)
	if len(candidates) == 0 {
		return Result{}, false
	}
	return candidates[0], true
}

// MatchWithAmbiguityDetection computes all qualifying matches in descending
// score order and flags the result ambiguous when at least two matches exist
// and the gap between the top two scores is at most the ambiguity threshold.
func (m *Matcher) MatchWithAmbiguityDetection(transcript string) Ambiguity {
	candidates := m.qualifying(transcript)
	out := Ambiguity{Matches: candidates}
	if len(candidates) == 0 {
		return out
	}
	out.BestMatch = &candidates[0]
	if len(candidates) >= 2 {
		out.IsAmbiguous = candidates[0].Similarity-candidates[1].Similarity <= m.ambiguityThreshold
	}
	return out
}

// Openers returns a defensive copy of the underlying catalog.
func (m *Matcher) Openers() []catalog.Opener {
	return m.cat.Openers()
}

// qualifying scores the transcript against every catalog entry and returns
// the entries at or above the similarity threshold, sorted by descending
// similarity. The sort is stable so equal scores keep catalog order.
func (m *Matcher) qualifying(transcript string) []Result {
	norm := Normalize(transcript)
	if norm == "" {
		return nil
	}

	openers := m.cat.Openers()
	var results []Result
	for i, o := range openers {
		score := similarity(norm, m.normalized[i])
		if score >= m.similarityThreshold {
			results = append(results, Result{Opener: o, Similarity: score})
		}
	}

	sort.SliceStable(results, func(a, b int) bool {
		return results[a].Similarity > results[b].Similarity
	})
	return results
}

// Normalize lower-cases s, strips every rune that is not a letter, digit, or
// whitespace, collapses whitespace runs to a single space, and trims.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	lastSpace := true // leading whitespace is dropped
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case unicode.IsSpace(r):
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimRight(b.String(), " ")
}

// Similarity returns the percentage similarity (0–100, two decimal places)
// between the normalized forms of a and b. Symmetric in its arguments.
func Similarity(a, b string) float64 {
	return similarity(Normalize(a), Normalize(b))
}

// similarity computes the Levenshtein-based percentage score over two
// already-normalized strings. Both empty counts as identical (100).
func similarity(a, b string) float64 {
	maxLen := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > maxLen {
		maxLen = n
	}
	if maxLen == 0 {
		return 100
	}
	distance := matchr.Levenshtein(a, b)
	pct := (float64(maxLen-distance) / float64(maxLen)) * 100
	return math.Round(pct*100) / 100
}
