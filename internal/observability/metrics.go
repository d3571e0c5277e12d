// Package observability exports the API process metrics.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// unmatchedRoute labels requests that no route matched, keeping label cardinality bounded.
const unmatchedRoute = "unmatched"

// Metrics owns a private registry with HTTP, order and runtime collectors.
// It implements the orders transition observer.
type Metrics struct {
	registry    *prometheus.Registry
	requests    *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	inFlight    prometheus.Gauge
	transitions *prometheus.CounterVec
	stockMoved  *prometheus.CounterVec
}

// NewMetrics builds and registers every collector.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pos_http_requests_total",
			Help: "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pos_http_request_duration_seconds",
			Help:    "HTTP request duration per route.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"route"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pos_http_requests_in_flight",
			Help: "Requests currently being served.",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pos_order_transitions_total",
			Help: "Order status changes by kind, source and target status, and outcome.",
		}, []string{"kind", "from", "to", "outcome"}),
		stockMoved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pos_stock_units_moved_total",
			Help: "Stock units moved by committed order transitions.",
		}, []string{"kind", "direction"}),
	}
	m.registry.MustRegister(
		m.requests, m.latency, m.inFlight, m.transitions, m.stockMoved,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware counts requests by chi route pattern. It must be installed on the
// router so the pattern is resolved by the time the handler returns.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.inFlight.Inc()
		defer m.inFlight.Dec()

		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := unmatchedRoute
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		m.requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
		m.latency.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// ObserveTransition counts one order status change attempt. from is empty when
// the order could not be loaded.
func (m *Metrics) ObserveTransition(kind, from, to, outcome string) {
	if m == nil {
		return
	}
	if from == "" {
		from = "unknown"
	}
	m.transitions.WithLabelValues(kind, from, to, outcome).Inc()
}

// ObserveStockMovement adds the units a committed transition moved. Positive
// deltas enter stock, negative ones leave it.
func (m *Metrics) ObserveStockMovement(kind string, delta int64) {
	if m == nil || delta == 0 {
		return
	}
	direction := "in"
	if delta < 0 {
		direction, delta = "out", -delta
	}
	m.stockMoved.WithLabelValues(kind, direction).Add(float64(delta))
}
