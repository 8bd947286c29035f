// Package telemetry instruments the engine itself with Prometheus metrics.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ember"

// Recorder owns the engine's metric registry.
type Recorder struct {
	registry *prometheus.Registry

	cycles        *prometheus.CounterVec
	cycleDuration prometheus.Histogram
	alertsFired   *prometheus.CounterVec
	historyPruned prometheus.Counter
	slosTracked   prometheus.Gauge
}

// NewRecorder creates a recorder with its own registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "measurement_cycles_total",
			Help:      "Measurement cycles run, by result.",
		}, []string{"result"}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "measurement_cycle_duration_seconds",
			Help:      "Duration of measurement cycles.",
			Buckets:   prometheus.DefBuckets,
		}),
		alertsFired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_fired_total",
			Help:      "Alerts created, by type.",
		}, []string{"type"}),
		historyPruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_entries_pruned_total",
			Help:      "History entries removed by retention pruning.",
		}),
		slosTracked: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "slos_tracked",
			Help:      "SLOs with an active measurement schedule.",
		}),
	}

	r.registry.MustRegister(r.cycles, r.cycleDuration, r.alertsFired, r.historyPruned, r.slosTracked)
	return r
}

// ObserveCycle records one measurement cycle.
func (r *Recorder) ObserveCycle(d time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	r.cycles.WithLabelValues(result).Inc()
	r.cycleDuration.Observe(d.Seconds())
}

// AlertFired records one created alert.
func (r *Recorder) AlertFired(alertType string) {
	r.alertsFired.WithLabelValues(alertType).Inc()
}

// HistoryPruned records entries removed by retention.
func (r *Recorder) HistoryPruned(n int) {
	r.historyPruned.Add(float64(n))
}

// SetTracked records the number of scheduled SLOs.
func (r *Recorder) SetTracked(n int) {
	r.slosTracked.Set(float64(n))
}

// Handler serves the registry over HTTP.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
