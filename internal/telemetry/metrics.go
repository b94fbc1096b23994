package telemetry

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// metricsSink abstracts the concrete backend (Prometheus vs no-op) so that
// Telemetry's exported methods never branch on whether metrics are
// enabled; the no-op sink absorbs every call for free.
type metricsSink interface {
	observeInsertProbe(rank int, probes int)
	observeFindProbe(rank int, probes int)
	observePhaseDuration(rank int, phase string, seconds float64)
	incTableFull(rank int)
}

type noopMetrics struct{}

func (noopMetrics) observeInsertProbe(int, int)                {}
func (noopMetrics) observeFindProbe(int, int)                  {}
func (noopMetrics) observePhaseDuration(int, string, float64)  {}
func (noopMetrics) incTableFull(int)                           {}

type promMetrics struct {
	insertProbes  *prometheus.HistogramVec
	findProbes    *prometheus.HistogramVec
	phaseDuration *prometheus.HistogramVec
	tableFull     *prometheus.CounterVec
}

func newPromMetrics(reg *prometheus.Registry) *promMetrics {
	rankLabel := []string{"rank"}

	pm := &promMetrics{
		insertProbes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "debruijn",
			Name:      "insert_probe_count",
			Help:      "Number of linear-probe steps a successful Insert used.",
			Buckets:   prometheus.LinearBuckets(1, 2, 16),
		}, rankLabel),
		findProbes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "debruijn",
			Name:      "find_probe_count",
			Help:      "Number of linear-probe steps a Find call used.",
			Buckets:   prometheus.LinearBuckets(1, 2, 16),
		}, rankLabel),
		phaseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "debruijn",
			Name:      "phase_duration_seconds",
			Help:      "Wall-clock duration of one rank's insert or lookup phase.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"rank", "phase"}),
		tableFull: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "debruijn",
			Name:      "table_full_total",
			Help:      "Number of times Insert returned ErrTableFull.",
		}, rankLabel),
	}

	reg.MustRegister(pm.insertProbes, pm.findProbes, pm.phaseDuration, pm.tableFull)
	return pm
}

func (m *promMetrics) observeInsertProbe(rank int, probes int) {
	m.insertProbes.WithLabelValues(strconv.Itoa(rank)).Observe(float64(probes))
}

func (m *promMetrics) observeFindProbe(rank int, probes int) {
	m.findProbes.WithLabelValues(strconv.Itoa(rank)).Observe(float64(probes))
}

func (m *promMetrics) observePhaseDuration(rank int, phase string, seconds float64) {
	m.phaseDuration.WithLabelValues(strconv.Itoa(rank), phase).Observe(seconds)
}

func (m *promMetrics) incTableFull(rank int) {
	m.tableFull.WithLabelValues(strconv.Itoa(rank)).Inc()
}

// newMetricsSink decides which implementation to use, falling back to a
// free no-op sink when reg is nil.
func newMetricsSink(reg *prometheus.Registry) metricsSink {
	if reg == nil {
		return noopMetrics{}
	}
	return newPromMetrics(reg)
}
