// Package metrics exposes Prometheus metrics for psurops.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"psurops/internal/notify"
	"psurops/internal/record"
)

const namespace = "psurops"

// Collector owns a private registry with the operation, event and store
// metrics. Its methods match the hooks exposed by dispatch, notify and
// storage so they can be passed in directly.
type Collector struct {
	registry *prometheus.Registry

	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	eventsPublished   *prometheus.CounterVec
	observersDropped  *prometheus.CounterVec
	dueHeals          prometheus.Counter
	records           prometheus.Gauge
}

// NewCollector registers every metric plus the Go runtime and process
// collectors.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		operationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Dispatched operations by outcome (ok or error code).",
		}, []string{"operation", "outcome"}),
		operationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Operation latency.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"operation"}),
		eventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Change events published to observers.",
		}, []string{"kind"}),
		observersDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "observers_dropped_total",
			Help:      "Observers removed from the notifier.",
		}, []string{"reason"}),
		dueHeals: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "due_heals_total",
			Help:      "Stale due dates corrected on read.",
		}),
		records: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "records",
			Help:      "Rows in the store at the last statistics call.",
		}),
	}
	reg.MustRegister(
		c.operationsTotal,
		c.operationDuration,
		c.eventsPublished,
		c.observersDropped,
		c.dueHeals,
		c.records,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// ObserveCall records one dispatched operation.
func (c *Collector) ObserveCall(operation, outcome string, elapsed time.Duration) {
	c.operationsTotal.WithLabelValues(operation, outcome).Inc()
	c.operationDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// ObservePublish counts a published event.
func (c *Collector) ObservePublish(e notify.Event, _ int) {
	c.eventsPublished.WithLabelValues(string(e.Kind)).Inc()
}

// ObserveDrop counts an observer removal.
func (c *Collector) ObserveDrop(_ string, reason notify.DropReason) {
	c.observersDropped.WithLabelValues(string(reason)).Inc()
}

// ObserveHeal counts a due date corrected on read.
func (c *Collector) ObserveHeal(_ *record.Record) {
	c.dueHeals.Inc()
}

// SetRecords sets the row-count gauge.
func (c *Collector) SetRecords(n int) {
	c.records.Set(float64(n))
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
