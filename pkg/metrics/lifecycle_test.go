package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestLifecycleMetricsCountsTransitions(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewLifecycleMetrics(reg)
	m.ObserveTransition("event_registration", "register", OutcomeApplied, 10*time.Millisecond)
	m.ObserveTransition("event_registration", "register", OutcomeApplied, 10*time.Millisecond)
	m.ObserveTransition("event_registration", "register", OutcomeRejected, time.Millisecond)
	m.IncDrift("campaign")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	got, err := fetchCounterByLabels(mfs, "alumnet_ledger_transitions_total", map[string]string{
		"kind": "event_registration", "action": "register", "outcome": OutcomeApplied,
	})
	if err != nil {
		t.Fatalf("fetch transitions: %v", err)
	}
	if got != 2 {
		t.Fatalf("expected 2 applied transitions, got %f", got)
	}
	if got, err := fetchCounterValue(mfs, "alumnet_counter_drift_total", "kind", "campaign"); err != nil || got != 1 {
		t.Fatalf("expected drift=1, got %f (%v)", got, err)
	}
}

func TestCacheMetricsNilSafe(t *testing.T) {
	var m *CacheMetrics
	m.IncHit("dashboard")
	m.IncMiss("dashboard")
	m.AddEvictions("dashboard", 3)
	m.SetEntries("dashboard", 1)

	NewLifecycleMetrics(nil).ObserveTransition("", "", "", 0)
}

func TestCacheMetricsExportsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCacheMetrics(reg)
	m.IncHit("dashboard")
	m.IncMiss("dashboard")
	m.IncMiss("dashboard")
	m.AddEvictions("dashboard", 4)
	m.AddEvictions("dashboard", 0)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, _ := fetchCounterValue(mfs, "alumnet_cache_misses_total", "cache", "dashboard"); got != 2 {
		t.Fatalf("expected misses=2, got %f", got)
	}
	if got, _ := fetchCounterValue(mfs, "alumnet_cache_evictions_total", "cache", "dashboard"); got != 4 {
		t.Fatalf("expected evictions=4, got %f", got)
	}
}
