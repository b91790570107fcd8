// Package health serves the gateway's liveness and readiness probes.
//
//   - /healthz — liveness; a process that can answer HTTP is alive.
//   - /readyz  — readiness; 200 only when every registered check passes.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// checkTimeout bounds a single readiness check.
const checkTimeout = 5 * time.Second

// Check is a named readiness probe. Probe returns nil when the dependency
// is usable and must respect context cancellation.
type Check struct {
	Name  string
	Probe func(ctx context.Context) error
}

// status is the JSON body of both endpoints.
type status struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler evaluates the registered checks. The check list is fixed at
// construction, so Handler is safe for concurrent use.
type Handler struct {
	checks []Check
}

// New creates a Handler evaluating checks in order on each /readyz request.
func New(checks ...Check) *Handler {
	return &Handler{checks: append([]Check(nil), checks...)}
}

// Register adds the probe routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

// Healthz always answers 200 OK.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, status{Status: "ok"})
}

// Readyz answers 200 only when every check passes; otherwise 503 with the
// failing checks named in the body.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	res := status{Status: "ok", Checks: make(map[string]string, len(h.checks))}
	code := http.StatusOK

	for _, c := range h.checks {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := c.Probe(ctx)
		cancel()

		if err != nil {
			res.Checks[c.Name] = "fail: " + err.Error()
			res.Status = "fail"
			code = http.StatusServiceUnavailable
		} else {
			res.Checks[c.Name] = "ok"
		}
	}

	writeJSON(w, code, res)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
