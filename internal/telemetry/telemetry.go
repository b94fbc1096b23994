// Package telemetry wires structured logging and Prometheus metrics
// through functional options, on by default for logging (defaulting to a
// no-op logger) and opt-in for metrics (a no-op sink until a registry is
// supplied). Neither the hash table core nor the substrate layer import
// this package; only cmd/rank, internal/assembly and internal/contig do.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Option configures a Telemetry instance. Passed to New.
type Option func(*config)

type config struct {
	logger   *zap.Logger
	registry *prometheus.Registry
}

func defaultConfig() *config {
	return &config{logger: zap.NewNop()}
}

// WithLogger plugs an external zap.Logger. The hash table core never logs,
// and nothing in this repository logs through Telemetry.Logger: cmd/rank
// logs its join and run completion at Info and a failed run (table-full
// and key-not-found included) at Fatal through its own logger. Phase
// transitions are not logged.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics enables Prometheus metrics collection, registering this
// rank's probe-count and phase-duration histograms and its table-full
// counter against reg. Passing nil leaves metrics
// disabled (the default), and the hot path pays nothing for it.
func WithMetrics(reg *prometheus.Registry) Option {
	return func(c *config) {
		c.registry = reg
	}
}

// Telemetry bundles one rank's logger and metrics sink.
type Telemetry struct {
	Logger  *zap.Logger
	metrics metricsSink
}

// New builds a Telemetry from opts.
func New(opts ...Option) *Telemetry {
	c := defaultConfig()
	for _, opt := range opts {
		opt(c)
	}
	return &Telemetry{
		Logger:  c.logger,
		metrics: newMetricsSink(c.registry),
	}
}

// ObserveInsertProbe records the probe count a successful Insert used.
func (t *Telemetry) ObserveInsertProbe(rank int, probes int) {
	t.metrics.observeInsertProbe(rank, probes)
}

// ObserveFindProbe records the probe count a Find call used, whether or
// not it found the key.
func (t *Telemetry) ObserveFindProbe(rank int, probes int) {
	t.metrics.observeFindProbe(rank, probes)
}

// ObservePhaseDuration records how long one rank spent in a named phase
// ("insert", "lookup").
func (t *Telemetry) ObservePhaseDuration(rank int, phase string, seconds float64) {
	t.metrics.observePhaseDuration(rank, phase, seconds)
}

// IncTableFull counts a permanent insert failure (table-full) on rank.
func (t *Telemetry) IncTableFull(rank int) {
	t.metrics.incTableFull(rank)
}
