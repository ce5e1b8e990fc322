package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/dialcoach/dialcoach/internal/catalog"
	"github.com/dialcoach/dialcoach/internal/match"
	"github.com/dialcoach/dialcoach/internal/recommend"
	"github.com/dialcoach/dialcoach/internal/session"
)

// openerJSON is the wire form of a catalog opener.
type openerJSON struct {
	ID       string `json:"id"`
	Text     string `json:"text"`
	Category string `json:"category,omitempty"`
}

func toOpenerJSON(o catalog.Opener) openerJSON {
	return openerJSON{ID: o.ID, Text: o.Text, Category: o.Category}
}

// recommendationJSON is the wire form of a recommendation.
type recommendationJSON struct {
	Opener      openerJSON `json:"opener"`
	Reason      string     `json:"reason"`
	Confidence  string     `json:"confidence"`
	Explanation string     `json:"explanation"`
}

func toRecommendationJSON(engine *recommend.Engine, rec recommend.Recommendation) recommendationJSON {
	return recommendationJSON{
		Opener:      toOpenerJSON(rec.Opener),
		Reason:      string(rec.Reason),
		Confidence:  string(rec.Confidence),
		Explanation: engine.Explain(rec),
	}
}

// handleRecommendation serves GET /api/recommendation: which opener to lead
// with on the next call, recomputed from the current statistics.
func (s *Server) handleRecommendation(w http.ResponseWriter, r *http.Request) {
	snap, err := s.store.All(r.Context())
	if err != nil {
		http.Error(w, "failed to load statistics", http.StatusInternalServerError)
		return
	}

	engine := s.manager.Engine()
	rec := engine.Recommend(snap)
	s.metrics.RecordRecommendation(r.Context(), string(rec.Reason))

	writeJSON(w, http.StatusOK, toRecommendationJSON(engine, rec))
}

// openerWithStatsJSON pairs an opener with its cumulative statistics.
type openerWithStatsJSON struct {
	openerJSON
	TotalUses      int        `json:"total_uses"`
	SuccessfulUses int        `json:"successful_uses"`
	SuccessRate    float64    `json:"success_rate"`
	LastUsed       *time.Time `json:"last_used,omitempty"`
}

// handleOpeners serves GET /api/openers: the full catalog sorted for display,
// recommended opener first, the rest by descending success rate.
func (s *Server) handleOpeners(w http.ResponseWriter, r *http.Request) {
	snap, err := s.store.All(r.Context())
	if err != nil {
		http.Error(w, "failed to load statistics", http.StatusInternalServerError)
		return
	}

	engine := s.manager.Engine()
	byID := make(map[string]int, len(snap.Stats))
	for i, rec := range snap.Stats {
		byID[rec.OpenerID] = i
	}

	sorted := engine.SortedOpeners(snap)
	out := make([]openerWithStatsJSON, 0, len(sorted))
	for _, o := range sorted {
		entry := openerWithStatsJSON{openerJSON: toOpenerJSON(o)}
		if i, ok := byID[o.ID]; ok {
			rec := snap.Stats[i]
			entry.TotalUses = rec.TotalUses
			entry.SuccessfulUses = rec.SuccessfulUses
			entry.SuccessRate = rec.SuccessRate()
			if !rec.LastUsed.IsZero() {
				t := rec.LastUsed
				entry.LastUsed = &t
			}
		}
		out = append(out, entry)
	}
	writeJSON(w, http.StatusOK, out)
}

// statsResponse is the wire form of a statistics snapshot.
type statsResponse struct {
	Generation uint64                `json:"generation"`
	Stats      []openerWithStatsJSON `json:"stats"`
}

// handleStats serves GET /api/stats: the raw statistics snapshot.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	snap, err := s.store.All(r.Context())
	if err != nil {
		http.Error(w, "failed to load statistics", http.StatusInternalServerError)
		return
	}

	cat := s.manager.Engine().Catalog()
	out := statsResponse{Generation: snap.Generation, Stats: []openerWithStatsJSON{}}
	for _, rec := range snap.Stats {
		entry := openerWithStatsJSON{
			TotalUses:      rec.TotalUses,
			SuccessfulUses: rec.SuccessfulUses,
			SuccessRate:    rec.SuccessRate(),
		}
		entry.openerJSON.ID = rec.OpenerID
		if o, ok := cat.Get(rec.OpenerID); ok {
			entry.openerJSON = toOpenerJSON(o)
		}
		if !rec.LastUsed.IsZero() {
			t := rec.LastUsed
			entry.LastUsed = &t
		}
		out.Stats = append(out.Stats, entry)
	}
	writeJSON(w, http.StatusOK, out)
}

// matchRequest is the JSON body for the match endpoint.
type matchRequest struct {
	Transcript string `json:"transcript"`
}

// matchResultJSON is one scored candidate.
type matchResultJSON struct {
	Opener     openerJSON `json:"opener"`
	Similarity float64    `json:"similarity"`
}

// matchResponse is the wire form of an ambiguity-aware match.
type matchResponse struct {
	Matched    bool              `json:"matched"`
	Ambiguous  bool              `json:"ambiguous"`
	Best       *matchResultJSON  `json:"best,omitempty"`
	Candidates []matchResultJSON `json:"candidates"`
}

// handleMatch serves POST /api/match: score a transcript against the catalog.
func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	var req matchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Transcript) == "" {
		http.Error(w, "transcript is required", http.StatusBadRequest)
		return
	}

	start := time.Now()
	amb := s.manager.Matcher().MatchWithAmbiguityDetection(req.Transcript)
	s.metrics.RecordMatch(r.Context(), time.Since(start).Seconds(), matchResultLabel(amb))

	resp := matchResponse{
		Matched:    amb.BestMatch != nil,
		Ambiguous:  amb.IsAmbiguous,
		Candidates: make([]matchResultJSON, 0, len(amb.Matches)),
	}
	for _, m := range amb.Matches {
		resp.Candidates = append(resp.Candidates, matchResultJSON{
			Opener:     toOpenerJSON(m.Opener),
			Similarity: m.Similarity,
		})
	}
	if amb.BestMatch != nil {
		resp.Best = &matchResultJSON{
			Opener:     toOpenerJSON(amb.BestMatch.Opener),
			Similarity: amb.BestMatch.Similarity,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func matchResultLabel(amb match.Ambiguity) string {
	switch {
	case amb.BestMatch == nil:
		return "no_match"
	case amb.IsAmbiguous:
		return "ambiguous"
	default:
		return "matched"
	}
}

// sessionJSON is the wire form of session metadata.
type sessionJSON struct {
	SessionID    string    `json:"session_id"`
	StartedAt    time.Time `json:"started_at"`
	OpenerID     string    `json:"opener_id,omitempty"`
	OpenerManual bool      `json:"opener_manual,omitempty"`
	HadResponse  bool      `json:"had_response"`
}

func toSessionJSON(info session.Info) sessionJSON {
	return sessionJSON{
		SessionID:    info.SessionID,
		StartedAt:    info.StartedAt,
		OpenerID:     info.OpenerID,
		OpenerManual: info.OpenerManual,
		HadResponse:  info.HadResponse,
	}
}

// handleSessionStart serves POST /api/sessions.
func (s *Server) handleSessionStart(w http.ResponseWriter, r *http.Request) {
	info, err := s.manager.Start(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	s.metrics.ActiveSessions.Add(r.Context(), 1)
	writeJSON(w, http.StatusCreated, toSessionJSON(info))
}

// handleSessionCurrent serves GET /api/sessions/current.
func (s *Server) handleSessionCurrent(w http.ResponseWriter, r *http.Request) {
	if !s.manager.IsActive() {
		http.Error(w, "no active session", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, toSessionJSON(s.manager.Info()))
}

// selectOpenerRequest is the JSON body for manual opener selection.
type selectOpenerRequest struct {
	OpenerID string `json:"opener_id"`
}

// handleSessionSelectOpener serves POST /api/sessions/current/opener.
func (s *Server) handleSessionSelectOpener(w http.ResponseWriter, r *http.Request) {
	var req selectOpenerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.OpenerID == "" {
		http.Error(w, "opener_id is required", http.StatusBadRequest)
		return
	}
	if !s.manager.IsActive() {
		http.Error(w, "no active session", http.StatusNotFound)
		return
	}
	if err := s.manager.SelectOpener(req.OpenerID); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	writeJSON(w, http.StatusOK, toSessionJSON(s.manager.Info()))
}

// summaryJSON is the wire form of a completed session.
type summaryJSON struct {
	Session         sessionJSON        `json:"session"`
	DurationSeconds float64            `json:"duration_seconds"`
	Outcome         string             `json:"outcome"`
	Feedback        string             `json:"feedback"`
	Next            recommendationJSON `json:"next"`
}

// handleSessionEnd serves POST /api/sessions/current/end.
func (s *Server) handleSessionEnd(w http.ResponseWriter, r *http.Request) {
	if !s.manager.IsActive() {
		http.Error(w, "no active session", http.StatusNotFound)
		return
	}

	summary, err := s.manager.End(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	ctx := r.Context()
	s.metrics.ActiveSessions.Add(ctx, -1)
	s.metrics.SessionDuration.Record(ctx, summary.Duration.Seconds())
	s.metrics.RecordOutcome(ctx, string(summary.Outcome))
	s.metrics.RecordRecommendation(ctx, string(summary.Next.Reason))

	writeJSON(w, http.StatusOK, summaryJSON{
		Session:         toSessionJSON(summary.Info),
		DurationSeconds: summary.Duration.Seconds(),
		Outcome:         string(summary.Outcome),
		Feedback:        summary.Feedback,
		Next:            toRecommendationJSON(s.manager.Engine(), summary.Next),
	})
}

// writeJSON encodes v with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encoding failed"}`, http.StatusInternalServerError)
	}
}
