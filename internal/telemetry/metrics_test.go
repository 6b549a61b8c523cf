package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics_RegistersAll(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RequestsTotal.WithLabelValues("POST", "/synthesize", "200").Inc()
	m.CacheHits.Inc()
	m.CacheMisses.Add(2)
	m.RateLimitRejects.Inc()
	m.SynthesisCharacters.Add(11)

	if got := testutil.ToFloat64(m.CacheHits); got != 1 {
		t.Errorf("CacheHits = %g, want 1", got)
	}
	if got := testutil.ToFloat64(m.CacheMisses); got != 2 {
		t.Errorf("CacheMisses = %g, want 2", got)
	}

	// Double registration panics; a second NewMetrics on the same registry
	// would indicate broken wiring.
	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate registration")
		}
	}()
	NewMetrics(reg)
}
