package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// probeTimeout bounds a single readiness probe.
const probeTimeout = 5 * time.Second

// HealthCheck is a named readiness probe. Probe returns nil when the
// dependency is usable and a non-nil error describing the failure otherwise.
type HealthCheck struct {
	// Name labels this check in the JSON response (e.g. "database", "llm").
	Name string

	// Probe tests the dependency. It must respect context cancellation.
	Probe func(ctx context.Context) error
}

// healthResult is the JSON body for /healthz and /readyz.
type healthResult struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// handleHealthz is the liveness probe. A process that can serve HTTP is
// alive, so it always returns 200.
func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResult{Status: "ok"})
}

// handleReadyz runs every registered [HealthCheck] sequentially, each under
// a [probeTimeout] deadline, and returns 503 if any fails.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(s.checks))
	allOK := true

	for _, c := range s.checks {
		ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
		err := c.Probe(ctx)
		cancel()

		if err != nil {
			checks[c.Name] = "fail: " + err.Error()
			allOK = false
		} else {
			checks[c.Name] = "ok"
		}
	}

	res := healthResult{Status: "ok", Checks: checks}
	status := http.StatusOK
	if !allOK {
		res.Status = "fail"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, res)
}

// writeJSON encodes v with the given status code. Falls back to a plain 500
// body on encoding failure.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
