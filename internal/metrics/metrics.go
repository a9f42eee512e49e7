// Package metrics holds the Prometheus collectors for the clipboard engine.
// All methods are safe on a nil *Metrics so components can run unmetered.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "clipvault"

// Metrics contains the engine's collectors and the registry they live in.
type Metrics struct {
	registry *prometheus.Registry

	changesDetected      prometheus.Counter
	itemsRecorded        *prometheus.CounterVec
	duplicatesSuppressed prometheus.Counter
	storageErrors        *prometheus.CounterVec
	itemsPruned          prometheus.Counter
	pastes               *prometheus.CounterVec
	persistDuration      prometheus.Histogram
}

// New creates the collectors on a fresh registry that also carries the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		changesDetected: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "clipboard_changes_total",
			Help:      "Clipboard change-counter movements observed by the monitor.",
		}),
		itemsRecorded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_recorded_total",
			Help:      "History items inserted, by kind.",
		}, []string{"kind"}),
		duplicatesSuppressed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicates_suppressed_total",
			Help:      "Changes skipped because the content matched the newest item.",
		}),
		storageErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_errors_total",
			Help:      "Failed history store operations, by operation.",
		}, []string{"operation"}),
		itemsPruned: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_pruned_total",
			Help:      "History items removed by retention pruning.",
		}),
		pastes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "paste_back_total",
			Help:      "Paste-back requests, by item kind and result.",
		}, []string{"kind", "result"}),
		persistDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "persist_duration_seconds",
			Help:      "Time spent deduplicating and inserting one change.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2},
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ChangeDetected() {
	if m != nil {
		m.changesDetected.Inc()
	}
}

func (m *Metrics) ItemRecorded(kind string) {
	if m != nil {
		m.itemsRecorded.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) DuplicateSuppressed() {
	if m != nil {
		m.duplicatesSuppressed.Inc()
	}
}

func (m *Metrics) StorageError(op string) {
	if m != nil {
		m.storageErrors.WithLabelValues(op).Inc()
	}
}

func (m *Metrics) Pruned(n int64) {
	if m != nil && n > 0 {
		m.itemsPruned.Add(float64(n))
	}
}

func (m *Metrics) Paste(kind, result string) {
	if m != nil {
		m.pastes.WithLabelValues(kind, result).Inc()
	}
}

func (m *Metrics) ObservePersist(seconds float64) {
	if m != nil {
		m.persistDuration.Observe(seconds)
	}
}
