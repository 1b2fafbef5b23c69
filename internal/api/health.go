package api

import (
	"context"
	"net/http"
)

// Health returns the status of the API and its dependencies.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.healthTimeout)
	defer cancel()

	checks := map[string]string{"api": "ok"}
	status := "healthy"
	statusCode := http.StatusOK

	for _, c := range h.checks {
		if err := c.Pinger.Ping(ctx); err != nil {
			h.logger.Error("Health check failed", "check", c.Name, "error", err)
			checks[c.Name] = "unreachable"
			status = "degraded"
			statusCode = http.StatusServiceUnavailable
			continue
		}
		checks[c.Name] = "ok"
	}

	JSON(w, statusCode, map[string]any{"status": status, "checks": checks})
}
