// Package metrics provides a Prometheus implementation of ripple.Observer.
//
// Metrics collected (with the default namespace):
//   - ripple_commits_total: Counter of accepted writes by cell kind
//   - ripple_dispatches_total: Counter of dispatch passes by cell kind
//   - ripple_callbacks_total: Counter of subscriptions by kind and outcome
//     ("fired" or "skipped")
//   - ripple_deferred_total: Counter of notifications queued inside batches
//   - ripple_flushes_total: Counter of outermost batch exits
//   - ripple_flush_listeners: Histogram of distinct listeners per flush
//
// Example:
//
//	reg := prometheus.NewRegistry()
//	obs := metrics.New(metrics.WithRegistry(reg))
//	sched := ripple.NewScheduler(ripple.WithSchedulerObserver(obs))
//	todos := ripple.NewArray(nil, ripple.WithScheduler(sched), ripple.WithObserver(obs))
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vango-dev/ripple/pkg/ripple"
)

// Config configures the Prometheus observer.
type Config struct {
	// Namespace is the metrics namespace (default: "ripple").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for listeners per flush.
	// Default: 1, 2, 4 ... 256
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// Option configures the Prometheus observer.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) Option {
	return func(c *Config) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the flush histogram buckets.
func WithBuckets(buckets []float64) Option {
	return func(c *Config) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) Option {
	return func(c *Config) {
		c.Registry = registry
	}
}

func defaultConfig() Config {
	return Config{
		Namespace: "ripple",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 9),
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Collector records ripple activity as Prometheus metrics. It implements
// ripple.Observer and is safe for concurrent use.
type Collector struct {
	commits        *prometheus.CounterVec
	dispatches     *prometheus.CounterVec
	callbacks      *prometheus.CounterVec
	deferred       prometheus.Counter
	flushes        prometheus.Counter
	flushListeners prometheus.Histogram
}

var _ ripple.Observer = (*Collector)(nil)

// New creates a Collector and registers its metrics. It panics if the
// metrics are already registered with the same registry, like promauto.
func New(opts ...Option) *Collector {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}

	factory := promauto.With(config.Registry)

	return &Collector{
		commits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "commits_total",
			Help:        "Total number of accepted cell writes",
			ConstLabels: config.ConstLabels,
		}, []string{"kind"}),

		dispatches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "dispatches_total",
			Help:        "Total number of subscriber dispatch passes",
			ConstLabels: config.ConstLabels,
		}, []string{"kind"}),

		callbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "callbacks_total",
			Help:        "Subscriptions evaluated during dispatch by outcome",
			ConstLabels: config.ConstLabels,
		}, []string{"kind", "outcome"}),

		deferred: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "deferred_total",
			Help:        "Total number of notifications queued inside a batch",
			ConstLabels: config.ConstLabels,
		}),

		flushes: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "flushes_total",
			Help:        "Total number of outermost batch exits",
			ConstLabels: config.ConstLabels,
		}),

		flushListeners: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "flush_listeners",
			Help:        "Distinct listeners notified per batch flush",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}),
	}
}

// Committed implements ripple.Observer.
func (c *Collector) Committed(kind ripple.Kind) {
	c.commits.WithLabelValues(kind.String()).Inc()
}

// Dispatched implements ripple.Observer.
func (c *Collector) Dispatched(kind ripple.Kind, fired, skipped int) {
	k := kind.String()
	c.dispatches.WithLabelValues(k).Inc()
	if fired > 0 {
		c.callbacks.WithLabelValues(k, "fired").Add(float64(fired))
	}
	if skipped > 0 {
		c.callbacks.WithLabelValues(k, "skipped").Add(float64(skipped))
	}
}

// Deferred implements ripple.Observer.
func (c *Collector) Deferred() {
	c.deferred.Inc()
}

// Flushed implements ripple.Observer.
func (c *Collector) Flushed(listeners int) {
	c.flushes.Inc()
	c.flushListeners.Observe(float64(listeners))
}
