package transfer_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"darkroom/internal/hashing"
	"darkroom/internal/logging"
	"darkroom/internal/media"
	"darkroom/internal/storagekind"
	"darkroom/internal/transfer"
)

func testOptions() transfer.Options {
	opts := transfer.DefaultOptions(storagekind.PolicyFor("/tmp"))
	opts.Policy.Concurrency = 1
	opts.RetryDelays = []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond}
	return opts
}

func sourceFile(t *testing.T, dir, name string, content []byte) media.HashedFile {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat fixture: %v", err)
	}
	return media.HashedFile{
		ScannedFile: media.ScannedFile{
			ID:         name,
			Filename:   name,
			SourcePath: path,
			Extension:  filepath.Ext(name),
			Size:       info.Size(),
			ModTime:    info.ModTime(),
			Type:       media.DetectType(name),
		},
		Hash: hashing.Sum(content),
	}
}

func TestCopyPlacesFileAtHashedPath(t *testing.T) {
	srcDir := t.TempDir()
	archive := t.TempDir()
	file := sourceFile(t, srcDir, "clip.mp4", []byte("video payload"))

	copier := transfer.NewCopier(archive, testOptions(), transfer.NewNetGuard(5), logging.NewNop())
	copied, err := copier.Copy(context.Background(), file)
	if err != nil {
		t.Fatalf("Copy: %v", err)
	}
	if copied.CopyError != "" {
		t.Fatalf("unexpected copy error: %s", copied.CopyError)
	}
	if copied.ArchivePath == "" {
		t.Fatal("archive path not set on successful copy")
	}
	if !strings.HasSuffix(copied.ArchivePath, file.Hash+".mp4") {
		t.Fatalf("archive path %s not named by content hash", copied.ArchivePath)
	}

	data, err := os.ReadFile(copied.ArchivePath)
	if err != nil {
		t.Fatalf("read destination: %v", err)
	}
	if hashing.Sum(data) != file.Hash {
		t.Fatal("destination bytes differ from source")
	}
}

func TestCopySkipsDuplicatesAndHashFailures(t *testing.T) {
	srcDir := t.TempDir()
	archive := t.TempDir()
	copier := transfer.NewCopier(archive, testOptions(), transfer.NewNetGuard(5), logging.NewNop())

	dup := sourceFile(t, srcDir, "dup.jpg", []byte("same"))
	dup.Duplicate = true
	copied, err := copier.Copy(context.Background(), dup)
	if err != nil {
		t.Fatalf("Copy duplicate: %v", err)
	}
	if copied.ArchivePath != "" || copied.CopyError != "" {
		t.Fatalf("duplicate should be skipped cleanly: %+v", copied)
	}

	bad := sourceFile(t, srcDir, "bad.jpg", []byte("x"))
	bad.Hash = ""
	bad.HashError = "read failed"
	copied, err = copier.Copy(context.Background(), bad)
	if err != nil {
		t.Fatalf("Copy hash-failed file: %v", err)
	}
	if copied.ArchivePath != "" {
		t.Fatal("hash-failed file must not be copied")
	}
	if copied.CopyError == "" {
		t.Fatal("hash-failed file should record a copy error")
	}
}

func TestCopyDeferredHash(t *testing.T) {
	srcDir := t.TempDir()
	archive := t.TempDir()
	content := []byte("network-sourced payload")
	file := sourceFile(t, srcDir, "remote.mov", content)
	file.Hash = "" // deferred: network sources hash during the copy stream

	copier := transfer.NewCopier(archive, testOptions(), transfer.NewNetGuard(5), logging.NewNop())
	copied, err := copier.Copy(context.Background(), file)
	if err != nil {
		t.Fatalf("Copy: %v", err)
	}
	if copied.Hash != hashing.Sum(content) {
		t.Fatalf("deferred hash = %s, want %s", copied.Hash, hashing.Sum(content))
	}
	if !strings.HasSuffix(copied.ArchivePath, copied.Hash+".mov") {
		t.Fatalf("final path %s not renamed to hash", copied.ArchivePath)
	}
	if _, err := os.Stat(copied.ArchivePath); err != nil {
		t.Fatalf("stat destination: %v", err)
	}
}

func TestCopyMissingSourceFailsFileNotBatch(t *testing.T) {
	archive := t.TempDir()
	copier := transfer.NewCopier(archive, testOptions(), transfer.NewNetGuard(5), logging.NewNop())

	srcDir := t.TempDir()
	missing := sourceFile(t, srcDir, "gone.mp4", []byte("will vanish"))
	if err := os.Remove(missing.SourcePath); err != nil {
		t.Fatalf("remove fixture: %v", err)
	}
	ok := sourceFile(t, srcDir, "stays.mp4", []byte("still here"))

	results, err := copier.CopyBatch(context.Background(), []media.HashedFile{missing, ok}, nil)
	if err != nil {
		t.Fatalf("CopyBatch: %v", err)
	}
	if results[0].CopyError == "" {
		t.Fatal("missing source should record a per-file error")
	}
	if results[0].Retries != 0 {
		t.Fatalf("not-found is non-retryable; retries = %d", results[0].Retries)
	}
	if results[1].CopyError != "" || results[1].ArchivePath == "" {
		t.Fatalf("batch should continue past a failed file: %+v", results[1])
	}
}

func TestCopyBatchReusesExistingDestination(t *testing.T) {
	srcDir := t.TempDir()
	archive := t.TempDir()
	file := sourceFile(t, srcDir, "clip.mp4", []byte("stable content"))

	copier := transfer.NewCopier(archive, testOptions(), transfer.NewNetGuard(5), logging.NewNop())
	first, err := copier.Copy(context.Background(), file)
	if err != nil {
		t.Fatalf("first copy: %v", err)
	}
	second, err := copier.Copy(context.Background(), file)
	if err != nil {
		t.Fatalf("second copy: %v", err)
	}
	if second.ArchivePath != first.ArchivePath {
		t.Fatalf("resume copy should land on the same path: %s vs %s", second.ArchivePath, first.ArchivePath)
	}
}

func TestCopyBatchCancellationMarksRemainder(t *testing.T) {
	srcDir := t.TempDir()
	archive := t.TempDir()
	files := []media.HashedFile{
		sourceFile(t, srcDir, "a.mp4", []byte("aaa")),
		sourceFile(t, srcDir, "b.mp4", []byte("bbb")),
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	copier := transfer.NewCopier(archive, testOptions(), transfer.NewNetGuard(5), logging.NewNop())
	results, err := copier.CopyBatch(ctx, files, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("CopyBatch should surface the cancellation, got %v", err)
	}
	for i, result := range results {
		if !result.Cancelled {
			t.Fatalf("file %d should be marked cancelled", i)
		}
		if result.ArchivePath != "" {
			t.Fatalf("file %d should not have been copied", i)
		}
	}
}
