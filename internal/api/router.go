package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/campuslink/campuslink/internal/api/middleware"
	"github.com/campuslink/campuslink/internal/auth"
	"github.com/campuslink/campuslink/internal/handlers"
)

// NewRouter creates and configures the HTTP router. The websocket handler is
// mounted outside the REST middleware chain; its lifecycle is owned by the
// gateway.
func NewRouter(logger zerolog.Logger, h *handlers.Handler, verifier auth.TokenVerifier, redisClient *redis.Client, wsHandler http.HandlerFunc) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(8 * 1024)) // 8KB max body
	r.Use(middleware.ValidateRequest)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// CORS - browsers connect from the campus web frontends
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	authmw := middleware.NewAuthMiddleware(verifier)
	limiter := middleware.NewRateLimiter(redisClient, logger)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	// Public routes (no auth required)
	r.Get("/", h.Root)
	r.Get("/health", h.Health)

	// Persistent channel; the gateway authenticates the first frame itself
	r.Get("/ws", wsHandler)

	// Authenticated REST routes
	r.Route("/api", func(r chi.Router) {
		r.Use(authmw.RequireAuth)
		r.Use(limiter.Middleware)

		r.Post("/profiles", h.UpsertProfile)
		r.Get("/profiles/me", h.GetProfile)

		r.Post("/rooms", h.CreateRoom)
		r.Get("/rooms", h.ListRooms)
		r.Get("/rooms/{id}/messages", h.GetRoomMessages)
	})

	return r
}
