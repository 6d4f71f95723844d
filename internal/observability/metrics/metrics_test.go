package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if matchLabels(metric, labels) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func matchLabels(m *dto.Metric, want map[string]string) bool {
	got := map[string]string{}
	for _, lp := range m.GetLabel() {
		got[lp.GetName()] = lp.GetValue()
	}
	for k, v := range want {
		if got[k] != v {
			return false
		}
	}
	return true
}

func TestBookingMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBookingMetrics(reg)
	m.ObserveInbound("text", "offered")
	m.ObserveInbound("text", "offered")
	m.ObserveInbound("interactive_reply", "booked")
	m.ObserveDuplicate()
	m.ObserveTurn("text", 120*time.Millisecond)
	m.ObserveExtraction("ok", time.Second)
	m.ObserveOffered(3)
	m.ObserveCommit("conflict")
	m.ObservePurged(4)
	m.ObservePurged(0)

	if got := counterValue(t, reg, "salon_assistant_inbound_events_total", map[string]string{"event_type": "text", "outcome": "offered"}); got != 2 {
		t.Fatalf("expected 2 offered text events, got %v", got)
	}
	if got := counterValue(t, reg, "salon_assistant_duplicate_events_total", nil); got != 1 {
		t.Fatalf("expected 1 duplicate, got %v", got)
	}
	if got := counterValue(t, reg, "salon_bookings_commits_total", map[string]string{"result": "conflict"}); got != 1 {
		t.Fatalf("expected 1 conflict, got %v", got)
	}
	if got := counterValue(t, reg, "salon_assistant_ledger_purged_total", nil); got != 4 {
		t.Fatalf("expected 4 purged, got %v", got)
	}
}

func TestBookingMetricsNilSafe(t *testing.T) {
	var m *BookingMetrics
	m.ObserveInbound("text", "offered")
	m.ObserveDuplicate()
	m.ObserveTurn("text", time.Second)
	m.ObserveExtraction("timeout", time.Second)
	m.ObserveOffered(0)
	m.ObserveCommit("confirmed")
	m.ObservePurged(1)
}
