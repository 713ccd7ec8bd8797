package monitoring_test

import (
	"context"
	"testing"

	"darkroom/internal/logging"
	"darkroom/internal/monitoring"
	"darkroom/internal/monitoring/alerts"
	"darkroom/internal/monitoring/tracing"
	"darkroom/internal/testsupport"
)

func TestServiceWiresFlushAndAlertsToStore(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	sessions := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	snapshot := alerts.Snapshot{DiskFreePercent: 1}
	svc, err := monitoring.NewService(ctx, logging.NewNop(), cfg, sessions.DB(),
		func(context.Context) (alerts.Snapshot, error) { return snapshot, nil })
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	svc.Metrics.Inc("import.files.total", 2, nil)
	svc.Metrics.Flush()

	n, err := svc.Store().CountMetrics(ctx)
	if err != nil {
		t.Fatalf("CountMetrics: %v", err)
	}
	if n != 1 {
		t.Fatalf("flushed metrics persisted = %d, want 1", n)
	}

	fired := svc.CheckAlerts(ctx)
	if len(fired) != 1 || fired[0].RuleID != "disk_space_critical" {
		t.Fatalf("expected disk_space_critical alert, got %+v", fired)
	}
	nAlerts, err := svc.Store().CountAlerts(ctx)
	if err != nil {
		t.Fatalf("CountAlerts: %v", err)
	}
	if nAlerts != 1 {
		t.Fatalf("persisted alerts = %d, want 1", nAlerts)
	}

	if err := svc.Tracer.Trace("import.scan", nil, func(span *tracing.Span) error { return nil }); err != nil {
		t.Fatalf("Trace: %v", err)
	}
	svc.Tracer.Wait()
	nSpans, err := svc.Store().CountSpans(ctx)
	if err != nil {
		t.Fatalf("CountSpans: %v", err)
	}
	if nSpans != 1 {
		t.Fatalf("persisted spans = %d, want 1", nSpans)
	}
}
