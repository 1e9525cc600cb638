package handler

import (
	"context"
	"net/http"

	"github.com/teleglass/gateway/internal/api/response"
)

// Pinger is the dependency probed by the health check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Health returns a health check handler. A nil pinger skips the
// database probe.
func Health(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			if err := db.Ping(r.Context()); err != nil {
				response.JSON(w, http.StatusServiceUnavailable, map[string]string{
					"status": "degraded",
					"error":  "database unreachable",
				})
				return
			}
		}
		response.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
