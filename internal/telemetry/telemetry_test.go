package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestDefaultLoggerIsNop(t *testing.T) {
	tel := New()
	if tel.Logger == nil {
		t.Fatal("Logger is nil, want a no-op logger")
	}
	// A nop logger must not panic and must not produce output.
	tel.Logger.Info("should be discarded")
}

func TestWithLoggerOverridesDefault(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	logger := zap.New(core)

	tel := New(WithLogger(logger))
	tel.Logger.Info("phase transition", zap.Int("rank", 0))

	if logs.Len() != 1 {
		t.Fatalf("got %d log entries, want 1", logs.Len())
	}
}

func TestMetricsDisabledByDefaultDoesNotPanic(t *testing.T) {
	tel := New()
	tel.ObserveInsertProbe(0, 3)
	tel.ObserveFindProbe(0, 1)
	tel.ObservePhaseDuration(0, "insert", 0.5)
	tel.IncTableFull(0)
}

func TestMetricsRecordedWhenRegistrySupplied(t *testing.T) {
	reg := prometheus.NewRegistry()
	tel := New(WithMetrics(reg))

	tel.ObserveInsertProbe(1, 4)
	tel.IncTableFull(1)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}

	var sawInsertProbes, sawTableFull bool
	for _, fam := range families {
		switch fam.GetName() {
		case "debruijn_insert_probe_count":
			sawInsertProbes = true
		case "debruijn_table_full_total":
			sawTableFull = true
			if got := fam.GetMetric()[0].GetCounter().GetValue(); got != 1 {
				t.Errorf("table_full_total = %v, want 1", got)
			}
		}
	}
	if !sawInsertProbes {
		t.Error("expected debruijn_insert_probe_count to be registered")
	}
	if !sawTableFull {
		t.Error("expected debruijn_table_full_total to be registered")
	}
}
