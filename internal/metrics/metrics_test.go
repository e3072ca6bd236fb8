package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCountersRegisteredOnRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.CacheRequest(LayerLRU, true)
	m.CacheRequest(LayerLRU, false)
	m.CacheRequest(LayerLRU, true)
	m.TaskFinished("SEARCH", "completed", 3*time.Millisecond)
	m.QueueDepth(4)
	m.Sample("render", 20*time.Millisecond)

	if got := testutil.ToFloat64(m.CacheRequests.WithLabelValues(LayerLRU, "hit")); got != 2 {
		t.Errorf("expected 2 hits, got %v", got)
	}
	if got := testutil.ToFloat64(m.Tasks.WithLabelValues("SEARCH", "completed")); got != 1 {
		t.Errorf("expected 1 completed search, got %v", got)
	}
	if got := testutil.ToFloat64(m.QueueSize); got != 4 {
		t.Errorf("expected depth 4, got %v", got)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if len(families) != 5 {
		t.Errorf("expected 5 metric families, got %d", len(families))
	}
}

func TestSeparateRegistries(t *testing.T) {
	// Each registry gets its own collectors, so building twice must not panic.
	New(prometheus.NewRegistry())
	New(prometheus.NewRegistry())
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.CacheRequest(LayerStore, true)
	m.TaskFinished("SORT", "failed", time.Second)
	m.QueueDepth(1)
	m.Sample("scroll", time.Millisecond)
}
