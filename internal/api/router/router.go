package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/salon-concierge/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/salon-concierge/internal/http/middleware"
	"github.com/wolfman30/salon-concierge/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	InboundHandler     *handlers.InboundHandler
	AdminConversations *handlers.AdminConversationsHandler
	AdminAuthSecret    string
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string

	// Per-client limit on /v1 intake. Nil disables limiting.
	InboundLimiter *httpmiddleware.RateLimiter
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	if cfg.InboundHandler == nil {
		panic("router: inbound handler required")
	}
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", handlers.HealthCheck)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/v1", func(v1 chi.Router) {
		if len(cfg.CORSAllowedOrigins) > 0 {
			v1.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
		}
		if cfg.InboundLimiter != nil {
			v1.Use(httpmiddleware.RateLimit(cfg.InboundLimiter))
		}
		v1.Post("/inbound", cfg.InboundHandler.Handle)
		v1.Post("/inbound/async", cfg.InboundHandler.HandleAsync)
	})

	// Operator routes are only mounted when a signing secret is configured.
	if cfg.AdminAuthSecret != "" && cfg.AdminConversations != nil {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			admin.Get("/salons/{salonID}/conversations/{customer}/turns", cfg.AdminConversations.GetTurns)
		})
	}

	return r
}
