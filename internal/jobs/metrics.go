// Package jobmetrics holds the Prometheus collectors of the background worker.
package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Task outcomes reported on pos_jobs_total.
const (
	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomeSkipped = "skipped"
)

// Metrics exposes task and inventory collectors.
type Metrics struct {
	tasks            *prometheus.CounterVec
	duration         *prometheus.HistogramVec
	lastSuccess      *prometheus.GaugeVec
	lowStockAlerts   prometheus.Counter
	lowStockProducts prometheus.Gauge
	keysPurged       prometheus.Counter
}

var defaultMetrics = sync.OnceValue(func() *Metrics {
	return register(prometheus.DefaultRegisterer)
})

// NewMetrics registers the collectors on registerer. A nil registerer shares one
// set registered on the Prometheus default registry.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		return defaultMetrics()
	}
	return register(registerer)
}

// ObserveTask records one processed task of type job.
func (m *Metrics) ObserveTask(job string, elapsed time.Duration, outcome string) {
	if m == nil {
		return
	}
	m.tasks.WithLabelValues(job, outcome).Inc()
	m.duration.WithLabelValues(job).Observe(elapsed.Seconds())
	if outcome == OutcomeOK {
		m.lastSuccess.WithLabelValues(job).SetToCurrentTime()
	}
}

// AddLowStockAlerts counts products reported by low-stock alert tasks.
func (m *Metrics) AddLowStockAlerts(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.lowStockAlerts.Add(float64(count))
}

// SetLowStockProducts exports the latest scan result.
func (m *Metrics) SetLowStockProducts(count int) {
	if m == nil {
		return
	}
	m.lowStockProducts.Set(float64(count))
}

// AddPurgedKeys counts idempotency keys removed by cleanup runs.
func (m *Metrics) AddPurgedKeys(count int64) {
	if m == nil || count <= 0 {
		return
	}
	m.keysPurged.Add(float64(count))
}

func register(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pos_jobs_total",
			Help: "Processed tasks by type and outcome.",
		}, []string{"job", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pos_job_duration_seconds",
			Help:    "Task processing time by type.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
		}, []string{"job"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pos_job_last_success_timestamp_seconds",
			Help: "Unix time of the last successful task by type.",
		}, []string{"job"}),
		lowStockAlerts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pos_low_stock_alerts_total",
			Help: "Products reported at or below their minimum stock.",
		}),
		lowStockProducts: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pos_low_stock_products",
			Help: "Active products at or below their minimum stock at the last scan.",
		}),
		keysPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pos_idempotency_keys_purged_total",
			Help: "Idempotency keys removed by the retention job.",
		}),
	}
	registerer.MustRegister(m.tasks, m.duration, m.lastSuccess, m.lowStockAlerts, m.lowStockProducts, m.keysPurged)
	return m
}
