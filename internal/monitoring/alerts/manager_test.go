package alerts_test

import (
	"testing"
	"time"

	"darkroom/internal/logging"
	"darkroom/internal/monitoring/alerts"
)

func testThresholds() alerts.Thresholds {
	return alerts.Thresholds{
		DiskCriticalPercent: 5,
		DiskLowPercent:      10,
		StuckQueueAge:       30 * time.Minute,
		ErrorRatePercent:    10,
		DeadLetterMax:       50,
		StarvationBacklog:   100,
	}
}

func managerAt(t *testing.T, clock *time.Time, opts ...alerts.Option) *alerts.Manager {
	t.Helper()
	opts = append(opts, alerts.WithClock(func() time.Time { return *clock }))
	return alerts.NewManager(logging.NewNop(), alerts.DefaultRules(testThresholds()), opts...)
}

func TestCooldownSuppressesRepeatFiring(t *testing.T) {
	clock := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	m := managerAt(t, &clock)

	snapshot := alerts.Snapshot{DiskFreePercent: 2}

	if fired := m.Check(snapshot); len(fired) != 1 {
		t.Fatalf("first check fired %d alerts, want 1", len(fired))
	}
	clock = clock.Add(time.Minute)
	if fired := m.Check(snapshot); len(fired) != 0 {
		t.Fatalf("check inside cooldown fired %d alerts, want 0", len(fired))
	}
	clock = clock.Add(5 * time.Minute)
	if fired := m.Check(snapshot); len(fired) != 1 {
		t.Fatalf("check after cooldown fired %d alerts, want 1", len(fired))
	}
	if got := len(m.History()); got != 2 {
		t.Fatalf("history = %d, want 2", got)
	}
}

func TestDiskRulesAreMutuallyExclusive(t *testing.T) {
	clock := time.Now()
	m := managerAt(t, &clock)

	fired := m.Check(alerts.Snapshot{DiskFreePercent: 7})
	if len(fired) != 1 {
		t.Fatalf("fired %d alerts, want 1", len(fired))
	}
	if fired[0].RuleID != "disk_space_low" {
		t.Fatalf("rule = %s, want disk_space_low", fired[0].RuleID)
	}

	fired = m.Check(alerts.Snapshot{DiskFreePercent: 2})
	if len(fired) != 1 || fired[0].RuleID != "disk_space_critical" {
		t.Fatalf("expected only disk_space_critical, got %+v", fired)
	}
}

func TestErrorRateNeedsMinimumSample(t *testing.T) {
	clock := time.Now()
	m := managerAt(t, &clock)

	fired := m.Check(alerts.Snapshot{DiskFreePercent: 50, ProcessedCount: 2, ErrorCount: 2})
	if len(fired) != 0 {
		t.Fatalf("error-rate rule fired on a 2-file sample: %+v", fired)
	}

	fired = m.Check(alerts.Snapshot{DiskFreePercent: 50, ProcessedCount: 20, ErrorCount: 5})
	if len(fired) != 1 || fired[0].RuleID != "high_error_rate" {
		t.Fatalf("expected high_error_rate, got %+v", fired)
	}
}

func TestStuckQueueRequiresDepth(t *testing.T) {
	clock := time.Now()
	m := managerAt(t, &clock)

	fired := m.Check(alerts.Snapshot{DiskFreePercent: 50, QueueDepth: 0, OldestPendingAge: 2 * time.Hour})
	if len(fired) != 0 {
		t.Fatalf("stuck_queue fired with empty queue: %+v", fired)
	}

	fired = m.Check(alerts.Snapshot{DiskFreePercent: 50, QueueDepth: 3, OldestPendingAge: 45 * time.Minute})
	if len(fired) != 1 || fired[0].RuleID != "stuck_queue" {
		t.Fatalf("expected stuck_queue, got %+v", fired)
	}
}

func TestPanickingPredicateDisablesOnlyThatRule(t *testing.T) {
	clock := time.Now()
	rules := []alerts.Rule{
		{
			ID:        "broken",
			Severity:  alerts.SeverityWarning,
			Cooldown:  time.Minute,
			Predicate: func(alerts.Snapshot) bool { panic("boom") },
			Message:   func(alerts.Snapshot) string { return "never" },
		},
		{
			ID:        "healthy",
			Severity:  alerts.SeverityInfo,
			Cooldown:  time.Minute,
			Predicate: func(alerts.Snapshot) bool { return true },
			Message:   func(alerts.Snapshot) string { return "ok" },
		},
	}
	m := alerts.NewManager(logging.NewNop(), rules, alerts.WithClock(func() time.Time { return clock }))

	fired := m.Check(alerts.Snapshot{})
	if len(fired) != 1 || fired[0].RuleID != "healthy" {
		t.Fatalf("expected only healthy to fire, got %+v", fired)
	}
}

func TestAlertFuncReceivesFiredAlerts(t *testing.T) {
	clock := time.Now()
	var received []alerts.Alert
	m := managerAt(t, &clock, alerts.WithAlertFunc(func(a alerts.Alert) {
		received = append(received, a)
	}))

	m.Check(alerts.Snapshot{DiskFreePercent: 1, DeadLetterCount: 99})
	if len(received) != 2 {
		t.Fatalf("callback saw %d alerts, want 2", len(received))
	}
}

func TestHistoryCapped(t *testing.T) {
	clock := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)
	m := managerAt(t, &clock, alerts.WithHistoryCap(3))

	for i := 0; i < 10; i++ {
		m.Check(alerts.Snapshot{DiskFreePercent: 1})
		clock = clock.Add(time.Hour)
	}
	if got := len(m.History()); got != 3 {
		t.Fatalf("history = %d, want 3", got)
	}
}
