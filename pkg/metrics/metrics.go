// Package metrics exports watcher and diff activity as Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/entrhq/workmem/pkg/changes"
)

// Namespace prefixes every metric name.
const Namespace = "workmem"

var durationBuckets = []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5}

// Collector holds the metrics and the registry they are exposed from. It
// implements changes.Observer.
type Collector struct {
	registry *prometheus.Registry

	watchersCreated prometheus.Counter
	watchersStopped prometheus.Counter
	watchersExpired prometheus.Counter
	polls           *prometheus.CounterVec
	pollDuration    prometheus.Histogram
	changesReported *prometheus.CounterVec

	diffs        *prometheus.CounterVec
	diffEntries  *prometheus.CounterVec
	diffDuration prometheus.Histogram
}

// NewCollector creates a collector with its own registry, so several can
// coexist in one process.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		watchersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "watchers_created_total",
			Help:      "Total number of watchers created",
		}),
		watchersStopped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "watchers_stopped_total",
			Help:      "Total number of watchers stopped by their owner",
		}),
		watchersExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "watchers_expired_total",
			Help:      "Total number of watchers expired after going idle",
		}),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "watcher_polls_total",
			Help:      "Total number of watcher polls by outcome",
		}, []string{"outcome"}),
		pollDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "watcher_poll_duration_seconds",
			Help:      "Watcher poll duration in seconds",
			Buckets:   durationBuckets,
		}),
		changesReported: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "changes_reported_total",
			Help:      "Total number of changes reported to watchers by type",
		}, []string{"type"}),
		diffs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "diffs_total",
			Help:      "Total number of diffs computed by anchor kind",
		}, []string{"anchor"}),
		diffEntries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "diff_entries_total",
			Help:      "Total number of entries returned by diffs by bucket",
		}, []string{"bucket"}),
		diffDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "diff_duration_seconds",
			Help:      "Diff duration in seconds",
			Buckets:   durationBuckets,
		}),
	}

	c.registry.MustRegister(
		c.watchersCreated,
		c.watchersStopped,
		c.watchersExpired,
		c.polls,
		c.pollDuration,
		c.changesReported,
		c.diffs,
		c.diffEntries,
		c.diffDuration,
	)
	return c
}

// Registry returns the registry the metrics are registered with.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the metrics in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// WatcherCreated implements changes.Observer.
func (c *Collector) WatcherCreated(string) {
	c.watchersCreated.Inc()
}

// WatcherPolled implements changes.Observer.
func (c *Collector) WatcherPolled(outcome changes.PollOutcome, reported []changes.Change, elapsed time.Duration) {
	c.polls.WithLabelValues(string(outcome)).Inc()
	c.pollDuration.Observe(elapsed.Seconds())
	for _, ch := range reported {
		c.changesReported.WithLabelValues(string(ch.Type)).Inc()
	}
}

// WatcherStopped implements changes.Observer.
func (c *Collector) WatcherStopped() {
	c.watchersStopped.Inc()
}

// WatchersExpired implements changes.Observer.
func (c *Collector) WatchersExpired(n int64) {
	c.watchersExpired.Add(float64(n))
}

// DiffComputed implements changes.Observer.
func (c *Collector) DiffComputed(kind changes.AnchorKind, result *changes.DiffResult, elapsed time.Duration) {
	c.diffs.WithLabelValues(string(kind)).Inc()
	c.diffDuration.Observe(elapsed.Seconds())
	if result == nil {
		return
	}
	c.diffEntries.WithLabelValues("added").Add(float64(len(result.Added)))
	c.diffEntries.WithLabelValues("modified").Add(float64(len(result.Modified)))
	c.diffEntries.WithLabelValues("deleted").Add(float64(len(result.Deleted)))
}

var _ changes.Observer = (*Collector)(nil)
