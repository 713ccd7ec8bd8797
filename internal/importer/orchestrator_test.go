package importer_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"darkroom/internal/errdefs"
	"darkroom/internal/importer"
	"darkroom/internal/logging"
	"darkroom/internal/session"
	"darkroom/internal/testsupport"
)

func TestImportEndToEnd(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	orch := importer.NewOrchestrator(logging.NewNop(), cfg, store, nil, nil, nil)

	sourceDir := t.TempDir()
	testsupport.WriteFile(t, sourceDir, "clip_a.mov", []byte("first unique payload"))
	testsupport.WriteFile(t, sourceDir, "photo_b.jpg", []byte("second unique payload"))
	testsupport.WriteFile(t, sourceDir, "clip_c.mov", []byte("first unique payload")) // same bytes as clip_a

	var (
		progress    []importer.ProgressEvent
		completions []importer.CompletionEvent
	)
	sess, err := orch.Start(context.Background(), importer.Options{
		SourcePaths: []string{sourceDir},
		OnProgress:  func(e importer.ProgressEvent) { progress = append(progress, e) },
		OnComplete:  func(e importer.CompletionEvent) { completions = append(completions, e) },
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	if sess.Status != session.StatusCompleted {
		t.Fatalf("status = %s, want completed", sess.Status)
	}
	if len(completions) != 1 {
		t.Fatalf("completion events = %d, want exactly 1", len(completions))
	}
	done := completions[0]
	if done.TotalImported != 2 {
		t.Fatalf("imported = %d, want 2 (duplicate must not be copied)", done.TotalImported)
	}
	if done.TotalDuplicates != 1 {
		t.Fatalf("duplicates = %d, want 1", done.TotalDuplicates)
	}
	if done.TotalErrors != 0 {
		t.Fatalf("errors = %d, want 0", done.TotalErrors)
	}

	if len(progress) == 0 {
		t.Fatal("no progress events emitted")
	}
	last := 0.0
	for _, event := range progress {
		if event.Percent < last {
			t.Fatalf("progress went backwards: %v after %v", event.Percent, last)
		}
		last = event.Percent
	}
	if last != 100 {
		t.Fatalf("final percent = %v, want 100", last)
	}

	// Both unique payloads must be archived and catalogued.
	snapshot, err := sess.GetSnapshot()
	if err != nil {
		t.Fatal(err)
	}
	if len(snapshot.Finalized) != 2 {
		t.Fatalf("finalized = %d, want 2", len(snapshot.Finalized))
	}
	for _, file := range snapshot.Finalized {
		if _, err := os.Stat(file.ArchivePath); err != nil {
			t.Fatalf("archived file missing: %v", err)
		}
		if _, found, err := store.FindCatalogHash(context.Background(), file.Hash); err != nil || !found {
			t.Fatalf("hash %s not in catalog (err %v)", file.Hash, err)
		}
	}
}

func TestDuplicateDetectedAcrossSessions(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	orch := importer.NewOrchestrator(logging.NewNop(), cfg, store, nil, nil, nil)
	ctx := context.Background()

	firstDir := t.TempDir()
	testsupport.WriteFile(t, firstDir, "original.mov", []byte("shared payload"))
	if _, err := orch.Start(ctx, importer.Options{SourcePaths: []string{firstDir}}); err != nil {
		t.Fatalf("first import: %v", err)
	}

	secondDir := t.TempDir()
	testsupport.WriteFile(t, secondDir, "reimport.mov", []byte("shared payload"))
	var done importer.CompletionEvent
	sess, err := orch.Start(ctx, importer.Options{
		SourcePaths: []string{secondDir},
		OnComplete:  func(e importer.CompletionEvent) { done = e },
	})
	if err != nil {
		t.Fatalf("second import: %v", err)
	}

	if sess.Status != session.StatusCompleted {
		t.Fatalf("status = %s, want completed", sess.Status)
	}
	if done.TotalImported != 0 || done.TotalDuplicates != 1 {
		t.Fatalf("imported=%d duplicates=%d, want 0 and 1", done.TotalImported, done.TotalDuplicates)
	}
}

func TestCancelledContextCancelsSession(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	orch := importer.NewOrchestrator(logging.NewNop(), cfg, store, nil, nil, nil)

	sourceDir := t.TempDir()
	testsupport.WriteFile(t, sourceDir, "never.mov", []byte("payload"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var done importer.CompletionEvent
	sess, err := orch.Start(ctx, importer.Options{
		SourcePaths: []string{sourceDir},
		OnComplete:  func(e importer.CompletionEvent) { done = e },
	})
	if err != nil {
		t.Fatalf("cancellation is not an error: %v", err)
	}
	if sess.Status != session.StatusCancelled {
		t.Fatalf("status = %s, want cancelled", sess.Status)
	}
	if done.Status != session.StatusCancelled {
		t.Fatalf("completion status = %s, want cancelled", done.Status)
	}

	stored, err := store.Get(context.Background(), sess.ID)
	if err != nil || stored == nil {
		t.Fatalf("session not persisted: %v", err)
	}
	if stored.Resumable() {
		t.Fatal("cancelled sessions must not be resumable")
	}
}

func TestResumeRejectsNonPausedSessions(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	orch := importer.NewOrchestrator(logging.NewNop(), cfg, store, nil, nil, nil)
	ctx := context.Background()

	sourceDir := t.TempDir()
	testsupport.WriteFile(t, sourceDir, "done.mov", []byte("payload"))
	sess, err := orch.Start(ctx, importer.Options{SourcePaths: []string{sourceDir}})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	if _, err := orch.Resume(ctx, sess.ID, importer.Options{}); !errors.Is(err, errdefs.ErrValidation) {
		t.Fatalf("resuming a completed session must fail with the validation marker, got %v", err)
	}
	if _, err := orch.Resume(ctx, "no-such-session", importer.Options{}); !errors.Is(err, errdefs.ErrNotFound) {
		t.Fatalf("resuming an unknown session must fail with not-found, got %v", err)
	}
}

func TestResumeCarriesValidatedFiles(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	orch := importer.NewOrchestrator(logging.NewNop(), cfg, store, nil, nil, nil)
	ctx := context.Background()

	sourceDir := t.TempDir()
	testsupport.WriteFile(t, sourceDir, "kept.mov", []byte("already valid payload"))
	testsupport.WriteFile(t, sourceDir, "redo.mov", []byte("needs another pass"))

	sess, err := orch.Start(ctx, importer.Options{SourcePaths: []string{sourceDir}})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Rewind the completed session into the paused shape a network
	// escalation leaves behind: one file validated, one still pending.
	snapshot, err := sess.GetSnapshot()
	if err != nil {
		t.Fatal(err)
	}
	if len(snapshot.Validated) != 2 {
		t.Fatalf("validated = %d, want 2", len(snapshot.Validated))
	}
	keptPath := snapshot.Validated[0].ArchivePath
	snapshot.Validated = snapshot.Validated[:1]
	snapshot.Copied = nil
	snapshot.Finalized = nil
	if err := sess.SetSnapshot(snapshot); err != nil {
		t.Fatal(err)
	}
	sess.Status = session.StatusPaused
	if err := store.Update(ctx, sess); err != nil {
		t.Fatal(err)
	}

	var done importer.CompletionEvent
	resumed, err := orch.Resume(ctx, sess.ID, importer.Options{
		OnComplete: func(e importer.CompletionEvent) { done = e },
	})
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if resumed.Status != session.StatusCompleted {
		t.Fatalf("status = %s, want completed", resumed.Status)
	}
	if !resumed.Resumed {
		t.Fatal("resumed flag not set")
	}
	if done.TotalImported != 2 {
		t.Fatalf("imported = %d, want 2 (carried file plus reprocessed file)", done.TotalImported)
	}
	if _, err := os.Stat(keptPath); err != nil {
		t.Fatalf("carried file should remain archived: %v", err)
	}
}

func TestProgressReportsFilesProcessed(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	orch := importer.NewOrchestrator(logging.NewNop(), cfg, store, nil, nil, nil)

	sourceDir := t.TempDir()
	testsupport.WriteFile(t, sourceDir, "one.mov", []byte("payload one"))
	testsupport.WriteFile(t, sourceDir, "two.mov", []byte("payload two"))
	testsupport.WriteFile(t, sourceDir, "three.jpg", []byte("payload three"))

	var progress []importer.ProgressEvent
	sess, err := orch.Start(context.Background(), importer.Options{
		SourcePaths: []string{sourceDir},
		OnProgress:  func(e importer.ProgressEvent) { progress = append(progress, e) },
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if sess.Status != session.StatusCompleted {
		t.Fatalf("status = %s, want completed", sess.Status)
	}

	advancedMidRun := false
	previous := 0
	for _, event := range progress {
		if event.FilesProcessed < previous {
			t.Fatalf("filesProcessed went backwards: %d after %d", event.FilesProcessed, previous)
		}
		previous = event.FilesProcessed
		if event.Percent < 100 && event.FilesProcessed > 0 {
			advancedMidRun = true
		}
	}
	if !advancedMidRun {
		t.Fatalf("filesProcessed never advanced before completion across %d events", len(progress))
	}
	if previous != 3 {
		t.Fatalf("final filesProcessed = %d, want 3", previous)
	}
}
