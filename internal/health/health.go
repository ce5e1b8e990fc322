// Package health serves the liveness and readiness probes.
//
// /healthz reports liveness and always returns 200 for a process that can
// still serve HTTP. /readyz runs every registered [Checker] and returns 200
// only when all pass; the body is a JSON object with a "status" field and a
// per-check "checks" map.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// probeTimeout bounds each individual readiness check.
const probeTimeout = 5 * time.Second

// Checker is a named readiness probe. Check returns nil when the dependency
// is usable and must respect context cancellation.
type Checker struct {
	// Name keys the check in the JSON response (e.g. "storage").
	Name string

	Check func(ctx context.Context) error
}

// report is the response body for both probes.
type report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves the probe endpoints. The checker list is fixed at
// construction, so a Handler is safe for concurrent use.
type Handler struct {
	checkers []Checker
}

// New creates a Handler that runs the given checkers, in order, on each
// /readyz request.
func New(checkers ...Checker) *Handler {
	return &Handler{checkers: append([]Checker(nil), checkers...)}
}

// Register mounts the probe routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

// Healthz always reports ok.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeReport(w, http.StatusOK, report{Status: "ok"})
}

// Readyz runs every checker under a [probeTimeout] deadline and reports 503
// when any fails.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	rep := report{Status: "ok", Checks: make(map[string]string, len(h.checkers))}
	status := http.StatusOK

	for _, c := range h.checkers {
		if err := h.runCheck(r.Context(), c); err != nil {
			rep.Checks[c.Name] = "fail: " + err.Error()
			rep.Status = "fail"
			status = http.StatusServiceUnavailable
		} else {
			rep.Checks[c.Name] = "ok"
		}
	}

	writeReport(w, status, rep)
}

func (h *Handler) runCheck(ctx context.Context, c Checker) error {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	return c.Check(ctx)
}

// Pinger is implemented by statistics stores that hold a live connection
// (SQLite, PostgreSQL) and can probe it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StoreChecker returns a Checker named "storage" that probes the statistics
// backend. A nil pinger (the in-memory backend has no connection to probe)
// always passes.
func StoreChecker(p Pinger) Checker {
	return Checker{
		Name: "storage",
		Check: func(ctx context.Context) error {
			if p == nil {
				return nil
			}
			return p.Ping(ctx)
		},
	}
}

func writeReport(w http.ResponseWriter, status int, rep report) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(rep); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
