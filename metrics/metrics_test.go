package metrics

import (
	"testing"

	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c interface{ Write(*dto.Metric) error }) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatal(err)
	}
	return m.GetCounter().GetValue()
}

func TestCountersStartAtZeroAndIncrement(t *testing.T) {
	m := New(func() float64 { return 3 })

	if v := counterValue(t, m.ShardsPushed); v != 0 {
		t.Fatalf("expected a fresh counter to read 0, got %v", v)
	}
	m.ShardsPushed.Inc()
	m.ShardsPushed.Inc()
	if v := counterValue(t, m.ShardsPushed); v != 2 {
		t.Fatalf("expected 2 after two increments, got %v", v)
	}
}

func TestContractsOfferedPartitionsByOutcome(t *testing.T) {
	m := New(nil)
	m.ContractsOffered.WithLabelValues("accepted").Inc()
	m.ContractsOffered.WithLabelValues("accepted").Inc()
	m.ContractsOffered.WithLabelValues("already_matched").Inc()

	if v := counterValue(t, m.ContractsOffered.WithLabelValues("accepted")); v != 2 {
		t.Fatalf("expected 2 accepted, got %v", v)
	}
	if v := counterValue(t, m.ContractsOffered.WithLabelValues("already_matched")); v != 1 {
		t.Fatalf("expected 1 already_matched, got %v", v)
	}
}

func TestRoutingTableSizeReflectsSizeFn(t *testing.T) {
	n := 0
	m := New(func() float64 { return float64(n) })
	n = 5

	var dm dto.Metric
	if err := m.RoutingTableSize.Write(&dm); err != nil {
		t.Fatal(err)
	}
	if got := dm.GetGauge().GetValue(); got != 5 {
		t.Fatalf("expected gauge to reflect live sizeFn, got %v", got)
	}
}
