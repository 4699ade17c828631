// Package metrics exposes Prometheus instrumentation for the fleet engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the engine's collectors.
type Metrics struct {
	Ticks               prometheus.Counter
	Operations          *prometheus.CounterVec
	PinValidations      *prometheus.CounterVec
	RunLogs             prometheus.Counter
	PersistenceFailures prometheus.Counter
	Flushes             prometheus.Counter
	Subscribers         prometheus.Gauge
	DroppedJobs         prometheus.Counter

	gatherer prometheus.Gatherer
}

// New registers the collectors on reg. Pass prometheus.NewRegistry() in tests
// to avoid duplicate registration against the default registerer.
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Ticks: f.NewCounter(prometheus.CounterOpts{
			Name: "jutefleet_ticks_total",
			Help: "Telemetry simulation ticks executed.",
		}),
		Operations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "jutefleet_operations_total",
			Help: "Control operations by name and result.",
		}, []string{"op", "result"}),
		PinValidations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "jutefleet_pin_validations_total",
			Help: "PIN activation attempts by result.",
		}, []string{"result"}),
		RunLogs: f.NewCounter(prometheus.CounterOpts{
			Name: "jutefleet_run_logs_total",
			Help: "Run logs recorded.",
		}),
		PersistenceFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "jutefleet_persistence_failures_total",
			Help: "Failed snapshot loads and saves.",
		}),
		Flushes: f.NewCounter(prometheus.CounterOpts{
			Name: "jutefleet_flushes_total",
			Help: "Snapshots written to the durable store.",
		}),
		Subscribers: f.NewGauge(prometheus.GaugeOpts{
			Name: "jutefleet_subscribers",
			Help: "Active snapshot subscribers.",
		}),
		DroppedJobs: f.NewCounter(prometheus.CounterOpts{
			Name: "jutefleet_notification_jobs_dropped_total",
			Help: "Notification jobs dropped because the queue was full.",
		}),
		gatherer: reg,
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
