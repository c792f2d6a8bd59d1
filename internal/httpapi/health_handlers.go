package httpapi

import (
	"context"
	"net/http"
	"time"

	"corpsite.org/internal/auth"
)

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		methodNotAllowed(w, r, http.MethodGet, http.MethodHead)
		return
	}
	report := a.health.Evaluate()
	code := http.StatusOK
	if !report.Healthy() {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"success": report.Healthy(),
		"service": "corpsite-api",
		"version": a.opts.Version,
		"data":    report,
	})
}

// handleMetrics serves the aggregator snapshot. Memory history is only shown to staff.
func (a *API) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	snap := a.agg.Snapshot()
	if p, ok := auth.PrincipalFromContext(r.Context()); !ok || !auth.Allowed(p, auth.Staff...) {
		snap.MemoryHistory = nil
	}
	writeOK(w, http.StatusOK, "", snap)
}

func (a *API) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	checks, err := a.ready.Check(ctx)
	if err != nil {
		body := map[string]any{"status": "not_ready", "checks": checks}
		if !a.opts.Production {
			body["error"] = err.Error()
		}
		writeJSON(w, http.StatusServiceUnavailable, body)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready", "checks": checks})
}
