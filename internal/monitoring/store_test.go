package monitoring_test

import (
	"context"
	"testing"
	"time"

	"darkroom/internal/logging"
	"darkroom/internal/monitoring"
	"darkroom/internal/monitoring/alerts"
	"darkroom/internal/monitoring/metrics"
	"darkroom/internal/monitoring/tracing"
	"darkroom/internal/testsupport"
)

func newStore(t *testing.T) *monitoring.Store {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	sessions := testsupport.MustOpenStore(t, cfg)
	store, err := monitoring.NewStore(context.Background(), sessions.DB())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store
}

func TestSaveMetricsBatch(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	events := []metrics.Event{
		{Name: "import.files.total", Kind: metrics.KindCounter, Value: 3, Timestamp: time.Now(), Tags: metrics.Tags{"type": "video"}},
		{Name: "workers.active", Kind: metrics.KindGauge, Value: 2, Timestamp: time.Now()},
	}
	if err := store.SaveMetrics(ctx, events); err != nil {
		t.Fatalf("SaveMetrics: %v", err)
	}

	n, err := store.CountMetrics(ctx)
	if err != nil {
		t.Fatalf("CountMetrics: %v", err)
	}
	if n != 2 {
		t.Fatalf("stored %d metric events, want 2", n)
	}
}

func TestSaveSpanRoundTrip(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	tracer := tracing.NewTracer(logging.NewNop())
	span := tracer.StartSpan("import.copy", map[string]string{"file": "a.mov"})
	span.Log("copied 1 chunk")
	span.End(tracing.StatusSuccess, nil)

	if err := store.SaveSpan(ctx, span); err != nil {
		t.Fatalf("SaveSpan: %v", err)
	}
	// INSERT OR REPLACE keeps the save idempotent per span id.
	if err := store.SaveSpan(ctx, span); err != nil {
		t.Fatalf("SaveSpan repeat: %v", err)
	}

	n, err := store.CountSpans(ctx)
	if err != nil {
		t.Fatalf("CountSpans: %v", err)
	}
	if n != 1 {
		t.Fatalf("stored %d spans, want 1", n)
	}
}

func TestSaveAndListAlerts(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	first := alerts.Alert{ID: "a1", RuleID: "disk_space_low", Severity: alerts.SeverityWarning, Message: "low", Timestamp: time.Now().Add(-time.Hour)}
	second := alerts.Alert{ID: "a2", RuleID: "disk_space_critical", Severity: alerts.SeverityCritical, Message: "critical", Timestamp: time.Now()}
	for _, alert := range []alerts.Alert{first, second} {
		if err := store.SaveAlert(ctx, alert); err != nil {
			t.Fatalf("SaveAlert: %v", err)
		}
	}

	recent, err := store.RecentAlerts(ctx, 10)
	if err != nil {
		t.Fatalf("RecentAlerts: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("got %d alerts, want 2", len(recent))
	}
	if recent[0].ID != "a2" {
		t.Fatalf("newest alert first, got %s", recent[0].ID)
	}
}

func TestCleanupExpiredHonorsPerTableRetention(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	old := now.Add(-10 * 24 * time.Hour)
	if err := store.SaveMetrics(ctx, []metrics.Event{
		{Name: "stale", Kind: metrics.KindCounter, Value: 1, Timestamp: old},
		{Name: "fresh", Kind: metrics.KindCounter, Value: 1, Timestamp: now},
	}); err != nil {
		t.Fatalf("SaveMetrics: %v", err)
	}
	if err := store.SaveAlert(ctx, alerts.Alert{
		ID: "old", RuleID: "stuck_queue", Severity: alerts.SeverityWarning, Message: "old", Timestamp: old,
	}); err != nil {
		t.Fatalf("SaveAlert: %v", err)
	}

	removed, err := store.CleanupExpired(ctx, monitoring.Retention{
		Metrics: 7 * 24 * time.Hour,
		Traces:  3 * 24 * time.Hour,
		Alerts:  30 * 24 * time.Hour,
	}, now)
	if err != nil {
		t.Fatalf("CleanupExpired: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed %d rows, want 1 (only the stale metric)", removed)
	}

	nMetrics, _ := store.CountMetrics(ctx)
	if nMetrics != 1 {
		t.Fatalf("metrics remaining = %d, want 1", nMetrics)
	}
	nAlerts, _ := store.CountAlerts(ctx)
	if nAlerts != 1 {
		t.Fatalf("10-day-old alert inside 30d retention was removed")
	}
}
