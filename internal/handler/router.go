package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Shivanand-hulikatti/activity-registration/internal/metrics"
)

// NewRouter builds the HTTP routes and the global middleware stack.
func NewRouter(h *ActivityHandler, m *metrics.Metrics, gatherer prometheus.Gatherer, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer) // recover from panics, return 500
	r.Use(chimiddleware.RequestID) // attach request IDs
	r.Use(chimiddleware.RealIP)    // trust X-Forwarded-For
	r.Use(Logger(logger))
	r.Use(CORS)
	r.Use(m.Instrument)

	r.Get("/health", HealthCheck)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/activities", func(r chi.Router) {
		r.Post("/", h.CreateActivity)
		r.Get("/", h.ListActivities)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetActivity)
			r.Post("/register", h.Register)
			r.Post("/unregister", h.Unregister)
			r.Get("/registrations", h.ListRegistrations)
			r.Get("/waitlist", h.WaitingList)
			r.Get("/registrants/{registrantID}", h.RegistrantStatus)
		})
	})

	return r
}
