// Package metrics exposes delivery, sweep and queue metrics to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Priya8975/hookrelay/internal/engine"
)

type Metrics struct {
	// Delivery metrics
	DeliveriesTotal  *prometheus.CounterVec
	DeliveryDuration *prometheus.HistogramVec
	AbandonedTotal   prometheus.Counter

	// Retry sweep metrics
	SweepsTotal     *prometheus.CounterVec
	SweepDuration   prometheus.Histogram
	SweepEntries    *prometheus.CounterVec
	PrunedLogsTotal prometheus.Counter
}

// NewMetrics creates the collectors and registers them on registry
// together with the Go runtime and process collectors.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		DeliveriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hookrelay_deliveries_total",
				Help: "Webhook delivery attempts by event, outcome and trigger",
			},
			[]string{"event", "outcome", "trigger"},
		),
		DeliveryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hookrelay_delivery_duration_seconds",
				Help:    "Webhook delivery attempt latency",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"event"},
		),
		AbandonedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "hookrelay_deliveries_abandoned_total",
				Help: "Delivery log entries finished without a successful attempt",
			},
		),
		SweepsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hookrelay_retry_sweeps_total",
				Help: "Retry sweeps by result",
			},
			[]string{"result"},
		),
		SweepDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "hookrelay_retry_sweep_duration_seconds",
				Help:    "Retry sweep duration",
				Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
			},
		),
		SweepEntries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hookrelay_retry_sweep_entries_total",
				Help: "Delivery log entries visited by retry sweeps, by disposition",
			},
			[]string{"disposition"},
		),
		PrunedLogsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "hookrelay_pruned_logs_total",
				Help: "Delivery log entries deleted by retention pruning",
			},
		),
	}

	registry.MustRegister(
		m.DeliveriesTotal,
		m.DeliveryDuration,
		m.AbandonedTotal,
		m.SweepsTotal,
		m.SweepDuration,
		m.SweepEntries,
		m.PrunedLogsTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// RegisterQueueDepth exposes the dispatch queue length as a gauge.
func RegisterQueueDepth(registry *prometheus.Registry, depth func() int) {
	registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "hookrelay_queue_depth",
			Help: "Delivery jobs waiting for a worker",
		},
		func() float64 { return float64(depth()) },
	))
}

func (m *Metrics) DeliveryAttempted(o engine.Outcome) {
	outcome := "failure"
	switch {
	case o.Success:
		outcome = "success"
	case o.StatusCode == nil:
		outcome = "transport_error"
	}
	trigger := "event"
	if o.Retry {
		trigger = "retry"
	}

	m.DeliveriesTotal.WithLabelValues(o.Event, outcome, trigger).Inc()
	m.DeliveryDuration.WithLabelValues(o.Event).Observe(o.Duration.Seconds())
}

func (m *Metrics) SweepCompleted(r engine.SweepResult, elapsed time.Duration) {
	if r.LeaseHeld {
		m.SweepsTotal.WithLabelValues("skipped").Inc()
		return
	}
	m.SweepsTotal.WithLabelValues("completed").Inc()
	m.SweepDuration.Observe(elapsed.Seconds())

	m.SweepEntries.WithLabelValues("delivered").Add(float64(r.Delivered))
	m.SweepEntries.WithLabelValues("failed").Add(float64(r.Failed))
	m.SweepEntries.WithLabelValues("not_due").Add(float64(r.NotDue))
	m.SweepEntries.WithLabelValues("orphaned").Add(float64(r.Orphaned))
	m.AbandonedTotal.Add(float64(r.Abandoned + r.Orphaned))
}

func (m *Metrics) LogsPruned(n int64) {
	m.PrunedLogsTotal.Add(float64(n))
}

// Handler serves the registry in the Prometheus text format.
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
