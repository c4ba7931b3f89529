package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/inquire/internal/api/middleware"
	"github.com/eldtechnologies/inquire/internal/handlers"
	"github.com/eldtechnologies/inquire/internal/store"
)

// Options configures the router.
type Options struct {
	WebhookSecret string
	RateLimit     middleware.RateLimiterConfig
}

// NewRouter creates and configures the HTTP router. Rate limiting is
// enabled only when redisStore is non-nil.
func NewRouter(logger zerolog.Logger, h *handlers.Handler, redisStore *store.RedisStore, opts Options) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(64 * 1024)) // 64KB max body
	r.Use(middleware.ValidateRequest)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// Rate limiting
	if redisStore != nil {
		limiter := middleware.NewRateLimiter(redisStore.Client(), logger, opts.RateLimit)
		r.Use(limiter.Middleware)
	}

	// CORS - the FAQ frontend is served from another origin
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", middleware.SignatureHeader},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/api", h.Root)
	r.Get("/health", h.Health)

	// Read side for the FAQ frontend
	r.Get("/spaces/{id}", h.GetSpace)
	r.Get("/spaces/{id}/questions", h.ListQuestions)
	r.Get("/spaces/{id}/questions/{sequence}", h.GetQuestion)

	// Platform webhooks (signed when a secret is configured)
	auth := middleware.NewWebhookAuth(opts.WebhookSecret, logger)
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireSignature)

		r.Post("/webhooks/messages", h.Messages)
		r.Post("/webhooks/spaces", h.Spaces)
	})

	return r
}
