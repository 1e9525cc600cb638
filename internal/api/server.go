package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/teleglass/gateway/internal/api/handler"
	"github.com/teleglass/gateway/internal/api/middleware"
	"github.com/teleglass/gateway/internal/config"
	"github.com/teleglass/gateway/internal/service"
	"github.com/teleglass/gateway/internal/store"
)

// Services bundles all service dependencies for the router.
type Services struct {
	Access   *service.AccessService
	Sessions *service.SessionService
	Acks     *service.AckService
	Store    *store.Store         // nil when running without persistence
	Alias    handler.AliasPatcher // nil when mail is not relay-backed
}

// NewRouter creates the Chi router with all routes and middleware.
func NewRouter(cfg *config.Config, logger *slog.Logger, svcs *Services) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.TraceLog(logger))
	r.Use(middleware.Security(cfg.BaseURL))

	if cfg.FrontendURL != "" {
		r.Use(middleware.CORS(cfg.FrontendURL))
	}

	// Health and metrics (no auth)
	var pinger handler.Pinger
	if svcs.Store != nil {
		pinger = svcs.Store
	}
	r.Get("/healthz", handler.Health(pinger))
	r.Handle("/metrics", promhttp.Handler())

	// Template catalog (no auth, served to the public gate page)
	r.Get("/templates", handler.Templates())

	// Access code flow (no auth, rate-limited per client IP)
	ach := handler.NewAccessHandler(svcs.Access)
	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(1, 5))
		r.Post("/access/request", ach.Request)
		r.Post("/access/verify", ach.Verify)
	})

	sh := handler.NewSessionHandler(svcs.Sessions, svcs.Acks)
	sth := handler.NewStreamHandler(svcs.Sessions, cfg.JWTSecret, cfg.AdminAPIKey)

	// Transcript stream (auth inside the handler: browsers cannot set an
	// Authorization header on a WebSocket request)
	r.Get("/sessions/{id}/stream", sth.Stream)

	// Authenticated routes (dual-mode: JWT + API key)
	r.Group(func(r chi.Router) {
		r.Use(middleware.UserAuth(cfg.JWTSecret, cfg.AdminAPIKey))

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", sh.Create)
			r.Delete("/{id}", sh.Delete)
			r.Get("/{id}/messages", sh.Messages)
			r.Post("/{id}/messages", sh.Send)
			r.Post("/{id}/external", sh.External)
			r.Post("/{id}/navigate", sh.Navigate)
			r.Get("/{id}/view", sh.View)
			r.Post("/{id}/ack/{ackID}", sh.Ack)
			r.Post("/{id}/notify", sh.Notify)
			r.Post("/{id}/mute", sh.Mute)
			r.Post("/{id}/background", sh.Background)
		})

		// Relay mailbox maintenance (admin API key only)
		if svcs.Alias != nil {
			r.Post("/admin/alias", handler.PatchAlias(svcs.Alias))
		}
	})

	return r
}
