// Package health serves the process-level /healthz endpoint on the
// metrics listener, supplementing spec.md's per-service
// /.nlx/health/<service> check (which lives on the mesh-facing listener
// instead). Grounded on the teacher's agent.HealthzHandler.
package health

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// Status is the payload returned by the /healthz endpoint.
type Status struct {
	Status  string `json:"status"`
	UptimeS float64 `json:"uptime_s"`
	Detail  any    `json:"detail,omitempty"`
}

// Handler returns an http.HandlerFunc reporting "ok" plus process uptime
// since start, and whatever role-specific detail() returns (e.g. routing
// table size for the inway, organization count for the outway).
func Handler(start time.Time, logger *slog.Logger, detail func() any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := Status{
			Status:  "ok",
			UptimeS: time.Since(start).Seconds(),
		}
		if detail != nil {
			status.Detail = detail()
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if err := json.NewEncoder(w).Encode(status); err != nil {
			logger.Warn("healthz: failed to encode response", slog.Any("error", err))
		}
	}
}
