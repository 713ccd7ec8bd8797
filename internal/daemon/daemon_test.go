package daemon_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"darkroom/internal/daemon"
	"darkroom/internal/logging"
	"darkroom/internal/session"
	"darkroom/internal/testsupport"
)

func TestDaemonEnforcesSingleInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	first, err := daemon.New(cfg, logging.NewNop(), store, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer first.Stop()

	secondStore := testsupport.MustOpenStore(t, cfg)
	second, err := daemon.New(cfg, logging.NewNop(), secondStore, nil)
	if err != nil {
		t.Fatalf("New second: %v", err)
	}
	if err := second.Start(context.Background()); err == nil {
		second.Stop()
		t.Fatal("second instance must fail to acquire the lock")
	}
}

func TestEnqueueRequiresRunningDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	d, err := daemon.New(cfg, logging.NewNop(), store, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := d.EnqueueImport([]string{t.TempDir()}); err == nil {
		t.Fatal("enqueue on a stopped daemon must fail")
	}
	if err := d.EnqueueResume("some-id"); err == nil {
		t.Fatal("resume on a stopped daemon must fail")
	}
}

func TestDaemonProcessesQueuedImport(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	d, err := daemon.New(cfg, logging.NewNop(), store, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer d.Stop()

	sourceDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(sourceDir, "shot.mov"), []byte("payload"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := d.EnqueueImport([]string{sourceDir}); err != nil {
		t.Fatalf("EnqueueImport: %v", err)
	}

	deadline := time.Now().Add(10 * time.Second)
	for {
		sessions, err := store.List(context.Background(), session.StatusCompleted)
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(sessions) == 1 {
			if sessions[0].FilesTotal != 1 {
				t.Fatalf("files total = %d, want 1", sessions[0].FilesTotal)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("queued import never completed")
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func TestHealthSnapshotCountsSessions(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	paused, err := store.Create(ctx, []string{"/src"}, cfg.Paths.ArchiveRoot)
	if err != nil {
		t.Fatal(err)
	}
	paused.Status = session.StatusPaused
	if err := store.Update(ctx, paused); err != nil {
		t.Fatal(err)
	}

	failed, err := store.Create(ctx, []string{"/src"}, cfg.Paths.ArchiveRoot)
	if err != nil {
		t.Fatal(err)
	}
	failed.Status = session.StatusFailed
	failed.Errors = 3
	failed.FilesProcessed = 10
	if err := store.Update(ctx, failed); err != nil {
		t.Fatal(err)
	}

	d, err := daemon.New(cfg, logging.NewNop(), store, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := os.MkdirAll(cfg.Paths.ArchiveRoot, 0o755); err != nil {
		t.Fatal(err)
	}

	snapshot, err := d.HealthSnapshot(ctx)
	if err != nil {
		t.Fatalf("HealthSnapshot: %v", err)
	}
	if snapshot.QueueDepth != 1 {
		t.Fatalf("queue depth = %d, want 1 (the paused session)", snapshot.QueueDepth)
	}
	if snapshot.DeadLetterCount != 1 {
		t.Fatalf("dead letter = %d, want 1 (the failed session)", snapshot.DeadLetterCount)
	}
	if snapshot.ErrorCount != 3 || snapshot.ProcessedCount != 10 {
		t.Fatalf("unexpected counts: %+v", snapshot)
	}
	if snapshot.IdleWorkers != 1 {
		t.Fatalf("idle daemon should report one idle worker: %+v", snapshot)
	}
}
