// Package metrics exposes Prometheus metrics for registration outcomes and HTTP latency.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Shivanand-hulikatti/activity-registration/internal/notify"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	Registrations   *prometheus.CounterVec
	Rejections      *prometheus.CounterVec
	PartySize       prometheus.Histogram
	EndpointLatency *prometheus.HistogramVec
}

// New creates the metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Registrations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "activity_registrations_total",
			Help: "Registration outcomes by kind (confirmed, waitlisted, promoted, unregistered, rejected)",
		}, []string{"outcome"}),
		Rejections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "activity_rejections_total",
			Help: "Rejected registration operations by reason",
		}, []string{"reason"}),
		PartySize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "activity_confirmed_party_size",
			Help:    "Party sizes of confirmed and promoted registrations",
			Buckets: []float64{1, 2, 3, 4, 6, 8, 12, 20},
		}),
		EndpointLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "activity_http_request_duration_seconds",
			Help:    "Latency of HTTP endpoints in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
}

// Notify implements notify.Notifier so metrics can sit in a notification fan-out.
func (m *Metrics) Notify(_ context.Context, n notify.Notification) {
	m.Registrations.WithLabelValues(string(n.Kind)).Inc()
	switch n.Kind {
	case notify.KindRejected:
		m.Rejections.WithLabelValues(n.Reason).Inc()
	case notify.KindConfirmed, notify.KindPromoted:
		m.PartySize.Observe(float64(n.PartySize))
	}
}

// Instrument records request latency labelled by chi route pattern.
func (m *Metrics) Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.EndpointLatency.
			WithLabelValues(r.Method, route, strconv.Itoa(status)).
			Observe(time.Since(start).Seconds())
	})
}
