/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the hotel dashboards

ROUTE GROUPS:
  /api/quotes       Pricing
  /api/bookings/*   Booking lifecycle
  /api/payments/*   Payment outcomes
  /api/programs/*   Loyalty program configuration
  /api/members/*    Member balances, redemption, adjustment
  /api/admin/*      Operational sweeps
  /metrics          Prometheus scrape endpoint
  /healthz          Liveness and storage check

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	// Gatherer backs /metrics. Nil uses the default registry.
	Gatherer       prometheus.Gatherer
	AllowedOrigins []string
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:8080"}
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Post("/quotes", h.CreateQuote)

		// Booking routes
		r.Route("/bookings", func(r chi.Router) {
			r.Post("/", h.CreateBooking)
			r.Get("/{id}", h.GetBooking)
			r.Post("/{id}/transitions", h.TransitionBooking)
			r.Post("/{id}/cancel", h.CancelBooking)
			r.Post("/{id}/modify", h.ModifyBooking)
		})

		// Payment routes
		r.Post("/payments/outcomes", h.ApplyPaymentOutcome)

		// Program routes
		r.Route("/programs", func(r chi.Router) {
			r.Get("/", h.ListPrograms)
			r.Get("/{hotel}", h.GetProgram)
			r.Put("/{hotel}", h.PutProgram)
			r.Put("/{hotel}/tiers", h.ReplaceTiers)
			r.Post("/{hotel}/recalculate", h.RecalculateTiers)
			r.Get("/{hotel}/members", h.ListProgramMembers)
		})

		// Member routes
		r.Route("/members/{guest}/{hotel}", func(r chi.Router) {
			r.Get("/", h.GetMember)
			r.Post("/redeem", h.Redeem)
			r.Post("/adjust", h.Adjust)
			r.Post("/deactivate", h.DeactivateMember)
			r.Post("/reactivate", h.ReactivateMember)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/expire", h.TriggerExpiry)
		})
	})

	metrics := promhttp.Handler()
	if opts.Gatherer != nil {
		metrics = promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})
	}
	r.Method(http.MethodGet, "/metrics", metrics)
	r.Get("/healthz", h.Healthz)

	return r
}
