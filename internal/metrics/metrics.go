// Package metrics exposes storefront counters in Prometheus format.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"storefront/internal/cart"
	"storefront/internal/session"
)

// Metrics owns a private registry so tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	CartMutations      *prometheus.CounterVec
	SessionTransitions *prometheus.CounterVec
	Logins             *prometheus.CounterVec
	Uploads            *prometheus.CounterVec
	RequestDuration    *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		CartMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_cart_mutations_total",
			Help: "Cart mutations applied, by operation.",
		}, []string{"op"}),
		SessionTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_session_transitions_total",
			Help: "Session state transitions, by target state.",
		}, []string{"to"}),
		Logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_admin_logins_total",
			Help: "Admin login attempts, by outcome.",
		}, []string{"outcome"}),
		Uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_uploads_total",
			Help: "Receipt uploads, by outcome.",
		}, []string{"outcome"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "storefront_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.CartMutations,
		m.SessionTransitions,
		m.Logins,
		m.Uploads,
		m.RequestDuration,
	)
	return m
}

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// CartListener counts every persisted cart mutation.
func (m *Metrics) CartListener() cart.Listener {
	return func(e cart.Event) {
		m.CartMutations.WithLabelValues(string(e.Op)).Inc()
	}
}

// SessionListener counts guard transitions.
func (m *Metrics) SessionListener() session.Listener {
	return func(t session.Transition) {
		m.SessionTransitions.WithLabelValues(t.To.String()).Inc()
	}
}

// ObserveRequest records one HTTP request.
func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	m.RequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}
