// Package health reports whether the voice pipeline can serve its next
// interaction.
//
// Two endpoints are exposed:
//
//   - /healthz — process liveness; always 200 while the process serves HTTP.
//   - /readyz  — pipeline readiness, built from named [Check] probes.
//
// Readiness distinguishes hard dependencies from optional ones. An ask can
// proceed without a speaking voice, but not without a transcription backend
// or a writable state directory: a failing required check makes the pipeline
// "unavailable" (503), a failing optional check only marks it "degraded"
// (still 200).
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// probeTimeout caps a single readiness probe. Transcription probes reach out
// to local servers or the cloud and must not hang the endpoint.
const probeTimeout = 5 * time.Second

// Check is one named readiness probe.
type Check struct {
	// Name keys the probe's result in the /readyz response, e.g.
	// "transcription" or "state-dir".
	Name string

	// Optional marks dependencies whose failure degrades the pipeline
	// without making it unready.
	Optional bool

	// Probe returns nil while the dependency can serve the next
	// interaction. It must respect context cancellation.
	Probe func(ctx context.Context) error
}

// Pipeline readiness states, ordered by severity.
const (
	StatusOK          = "ok"
	StatusDegraded    = "degraded"
	StatusUnavailable = "unavailable"
)

type probeResult struct {
	Status   string `json:"status"` // "ok" or "fail"
	Optional bool   `json:"optional,omitempty"`
	Error    string `json:"error,omitempty"`
}

type report struct {
	Status string                 `json:"status"`
	Checks map[string]probeResult `json:"checks,omitempty"`
}

// Handler serves the liveness and readiness endpoints. The check list is
// fixed at construction; requests may run concurrently.
type Handler struct {
	checks []Check
}

// New creates a Handler that runs the given checks, in order, on every
// /readyz request.
func New(checks ...Check) *Handler {
	return &Handler{checks: append([]Check(nil), checks...)}
}

// Healthz answers the liveness probe. A process that reaches this handler is
// alive regardless of the pipeline's state.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, report{Status: StatusOK})
}

// Readyz runs every probe under a [probeTimeout]-bounded context and folds
// the results into the pipeline status: any required failure is
// "unavailable" with 503, optional-only failures are "degraded" with 200.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	rep := report{
		Status: StatusOK,
		Checks: make(map[string]probeResult, len(h.checks)),
	}

	for _, c := range h.checks {
		ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
		err := c.Probe(ctx)
		cancel()

		res := probeResult{Status: "ok", Optional: c.Optional}
		if err != nil {
			res.Status = "fail"
			res.Error = err.Error()
			if c.Optional {
				if rep.Status == StatusOK {
					rep.Status = StatusDegraded
				}
			} else {
				rep.Status = StatusUnavailable
			}
		}
		rep.Checks[c.Name] = res
	}

	code := http.StatusOK
	if rep.Status == StatusUnavailable {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, rep)
}

// Register adds the /healthz and /readyz routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
