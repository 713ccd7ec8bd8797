package session_test

import (
	"context"
	"testing"

	"darkroom/internal/media"
	"darkroom/internal/session"
	"darkroom/internal/testsupport"
)

func TestCreateAndGet(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	sess, err := store.Create(ctx, []string{"/media/op/SDCARD"}, cfg.Paths.ArchiveRoot)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if sess.ID == "" {
		t.Fatal("expected session id")
	}
	if sess.Status != session.StatusPending {
		t.Fatalf("new session status = %s", sess.Status)
	}

	fetched, err := store.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if fetched == nil || fetched.ID != sess.ID {
		t.Fatalf("unexpected fetched session: %#v", fetched)
	}
	if len(fetched.SourcePaths) != 1 || fetched.SourcePaths[0] != "/media/op/SDCARD" {
		t.Fatalf("source paths not round-tripped: %#v", fetched.SourcePaths)
	}
}

func TestCreateRequiresSources(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	if _, err := store.Create(context.Background(), nil, cfg.Paths.ArchiveRoot); err == nil {
		t.Fatal("expected error without source paths")
	}
}

func TestUpdateAndSnapshotRoundTrip(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	sess, err := store.Create(ctx, []string{"/src"}, cfg.Paths.ArchiveRoot)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	snapshot := session.Snapshot{
		Hashed: []media.HashedFile{{
			ScannedFile: media.ScannedFile{ID: "f1", Filename: "a.mp4", SourcePath: "/src/a.mp4", Size: 10},
			Hash:        "abc123",
		}},
	}
	if err := sess.SetSnapshot(snapshot); err != nil {
		t.Fatalf("SetSnapshot: %v", err)
	}
	sess.Status = session.StatusPaused
	sess.LastError = "network unavailable"
	sess.FilesTotal = 1
	sess.BytesTotal = 10
	if err := store.Update(ctx, sess); err != nil {
		t.Fatalf("Update: %v", err)
	}

	fetched, err := store.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !fetched.Resumable() {
		t.Fatalf("paused session should be resumable, status %s", fetched.Status)
	}
	restored, err := fetched.GetSnapshot()
	if err != nil {
		t.Fatalf("GetSnapshot: %v", err)
	}
	if len(restored.Hashed) != 1 || restored.Hashed[0].Hash != "abc123" {
		t.Fatalf("snapshot not round-tripped: %#v", restored)
	}
}

func TestResumableOnlyWhenPaused(t *testing.T) {
	for _, tc := range []struct {
		status    session.Status
		resumable bool
	}{
		{session.StatusPaused, true},
		{session.StatusFailed, false},
		{session.StatusCancelled, false},
		{session.StatusCompleted, false},
		{session.StatusCopying, false},
	} {
		sess := &session.Session{Status: tc.status}
		if sess.Resumable() != tc.resumable {
			t.Fatalf("Resumable() for %s = %v, want %v", tc.status, sess.Resumable(), tc.resumable)
		}
	}
}

func TestCatalogInsertIdempotentByHash(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	file := media.ValidatedFile{
		CopiedFile: media.CopiedFile{
			HashedFile: media.HashedFile{
				ScannedFile: media.ScannedFile{ID: "f1", Filename: "a.mp4", SourcePath: "/src/a.mp4", Size: 3, Type: media.TypeVideo},
				Hash:        "deadbeef",
			},
			ArchivePath: "/archive/2026/05/deadbeef.mp4",
		},
		IsValid: true,
	}

	first, err := store.InsertCatalogFile(ctx, "s1", file)
	if err != nil {
		t.Fatalf("InsertCatalogFile: %v", err)
	}
	second, err := store.InsertCatalogFile(ctx, "s2", file)
	if err != nil {
		t.Fatalf("InsertCatalogFile again: %v", err)
	}
	if first != second {
		t.Fatalf("duplicate hash should return the same record id: %d vs %d", first, second)
	}

	path, found, err := store.FindCatalogHash(ctx, "deadbeef")
	if err != nil {
		t.Fatalf("FindCatalogHash: %v", err)
	}
	if !found || path != file.ArchivePath {
		t.Fatalf("catalog lookup: found=%v path=%s", found, path)
	}
}

func TestListFiltersByStatus(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	a, _ := store.Create(ctx, []string{"/a"}, cfg.Paths.ArchiveRoot)
	b, _ := store.Create(ctx, []string{"/b"}, cfg.Paths.ArchiveRoot)
	b.Status = session.StatusCompleted
	if err := store.Update(ctx, b); err != nil {
		t.Fatalf("Update: %v", err)
	}

	pending, err := store.List(ctx, session.StatusPending)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != a.ID {
		t.Fatalf("unexpected pending list: %#v", pending)
	}

	all, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(all))
	}
}
