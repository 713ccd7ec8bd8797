package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/time/rate"

	"darkroom/internal/hashing"
	"darkroom/internal/logging"
	"darkroom/internal/media"
)

// Copier copies hashed source files into the archive.
type Copier struct {
	archiveRoot string
	opts        Options
	guard       *NetGuard
	logger      *slog.Logger
	limiter     *rate.Limiter
}

// NewCopier constructs a copier for one batch. The guard is shared with
// the batch's Validator.
func NewCopier(archiveRoot string, opts Options, guard *NetGuard, logger *slog.Logger) *Copier {
	return &Copier{
		archiveRoot: archiveRoot,
		opts:        opts,
		guard:       guard,
		logger:      logging.WithComponent(logger, "copier"),
		limiter:     opts.Policy.Limiter(),
	}
}

// DestinationPath returns the deterministic archive location for a file:
// <root>/<yyyy>/<mm>/<hash><ext>, dated by source modification time.
func (c *Copier) DestinationPath(file media.HashedFile) string {
	return filepath.Join(
		c.archiveRoot,
		file.ModTime.UTC().Format("2006"),
		file.ModTime.UTC().Format("01"),
		file.Hash+file.Extension,
	)
}

// Copy transfers a single file. Per-file errors land on the returned
// record; only a NetworkFailureError escalates as an error.
func (c *Copier) Copy(ctx context.Context, file media.HashedFile) (media.CopiedFile, error) {
	out := media.CopiedFile{HashedFile: file, Storage: c.opts.Policy.Kind}

	if file.Duplicate {
		return out, nil
	}
	if file.HashError != "" {
		out.CopyError = "skipped: " + file.HashError
		return out, nil
	}

	var streamedHash string
	attempts, err, escalation := withRetry(ctx, c.logger, c.guard, c.opts, "copy", func(opCtx context.Context) error {
		var copyErr error
		streamedHash, copyErr = c.copyOnce(opCtx, &out)
		return copyErr
	})
	out.Retries = attempts - 1

	if escalation != nil {
		out.CopyError = escalation.Error()
		return out, escalation
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			out.Cancelled = true
		} else {
			out.CopyError = err.Error()
		}
		return out, nil
	}

	// Deferred hashing for network sources: the copy stream is the first
	// and only read of the source bytes, so adopt the streamed hash now.
	if out.Hash == "" {
		out.Hash = streamedHash
		final := c.DestinationPath(out.HashedFile)
		if renameErr := finalizeDestination(out.ArchivePath, final); renameErr != nil {
			out.ArchivePath = ""
			out.CopyError = renameErr.Error()
			return out, nil
		}
		out.ArchivePath = final
	}

	c.logger.Debug("file copied",
		logging.String(logging.FieldFile, out.Filename),
		logging.String("archive_path", out.ArchivePath),
		logging.Int("retries", out.Retries),
	)
	return out, nil
}

// copyOnce performs one copy attempt. With a known hash the destination
// is final from the start; with a deferred hash the stream lands in a
// partial file named by record id and is renamed by the caller.
func (c *Copier) copyOnce(ctx context.Context, out *media.CopiedFile) (string, error) {
	var dest string
	if out.Hash != "" {
		dest = c.DestinationPath(out.HashedFile)
		if info, statErr := os.Stat(dest); statErr == nil && info.Size() == out.Size {
			// Already archived (earlier batch or resumed session).
			out.ArchivePath = dest
			return out.Hash, nil
		}
	} else {
		dest = filepath.Join(c.archiveRoot, ".partial", out.ID+out.Extension)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("create archive directory: %w", err)
	}

	src, err := os.Open(out.SourcePath)
	if err != nil {
		return "", err
	}
	defer src.Close()

	tmp := dest + ".partial"
	dst, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return "", err
	}

	digest := hashing.New()
	buf := make([]byte, c.opts.Policy.BufferSize)
	var written int64
	for {
		if err := ctx.Err(); err != nil {
			dst.Close()
			_ = os.Remove(tmp)
			return "", err
		}
		n, readErr := src.Read(buf)
		if n > 0 {
			if _, writeErr := dst.Write(buf[:n]); writeErr != nil {
				dst.Close()
				_ = os.Remove(tmp)
				return "", writeErr
			}
			_, _ = digest.Write(buf[:n])
			written += int64(n)
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			dst.Close()
			_ = os.Remove(tmp)
			return "", readErr
		}
	}
	if err := dst.Close(); err != nil {
		_ = os.Remove(tmp)
		return "", err
	}

	if written != out.Size {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("copy size mismatch: source %d bytes, copied %d bytes", out.Size, written)
	}

	if err := os.Rename(tmp, dest); err != nil {
		_ = os.Remove(tmp)
		return "", err
	}
	out.ArchivePath = dest
	return hashing.Format(digest), nil
}

func finalizeDestination(partial, final string) error {
	if err := os.MkdirAll(filepath.Dir(final), 0o755); err != nil {
		return fmt.Errorf("create archive directory: %w", err)
	}
	if info, err := os.Stat(final); err == nil && info.Size() > 0 {
		// Content already archived under this hash; drop the extra copy.
		_ = os.Remove(partial)
		return nil
	}
	if err := os.Rename(partial, final); err != nil {
		return fmt.Errorf("finalize destination: %w", err)
	}
	return nil
}

// CopyBatch copies files honoring the storage policy's concurrency and
// pacing. Results keep input order. The per-file callback fires as each
// file settles. The first network escalation cancels the remainder.
func (c *Copier) CopyBatch(
	ctx context.Context,
	files []media.HashedFile,
	onFile func(index int, file media.CopiedFile),
) ([]media.CopiedFile, error) {
	results := make([]media.CopiedFile, len(files))

	workers := c.opts.Policy.Concurrency
	if workers < 1 {
		workers = 1
	}

	if workers == 1 {
		return results, c.copySequential(ctx, files, results, onFile)
	}

	batchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		escalation error
	)
	sem := make(chan struct{}, workers)

	for i, file := range files {
		if batchCtx.Err() != nil {
			results[i] = media.CopiedFile{HashedFile: file, Storage: c.opts.Policy.Kind, Cancelled: true}
			if onFile != nil {
				onFile(i, results[i])
			}
			continue
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(i int, file media.HashedFile) {
			defer wg.Done()
			defer func() { <-sem }()
			copied, err := c.Copy(batchCtx, file)
			mu.Lock()
			results[i] = copied
			if err != nil && escalation == nil {
				escalation = err
				cancel()
			}
			if onFile != nil {
				onFile(i, copied)
			}
			mu.Unlock()
		}(i, file)
	}
	wg.Wait()

	if escalation != nil {
		return results, escalation
	}
	return results, ctx.Err()
}

func (c *Copier) copySequential(
	ctx context.Context,
	files []media.HashedFile,
	results []media.CopiedFile,
	onFile func(index int, file media.CopiedFile),
) error {
	for i, file := range files {
		if ctx.Err() != nil {
			results[i] = media.CopiedFile{HashedFile: file, Storage: c.opts.Policy.Kind, Cancelled: true}
			if onFile != nil {
				onFile(i, results[i])
			}
			continue
		}
		if err := c.limiter.Wait(ctx); err != nil {
			results[i] = media.CopiedFile{HashedFile: file, Storage: c.opts.Policy.Kind, Cancelled: true}
			if onFile != nil {
				onFile(i, results[i])
			}
			continue
		}
		copied, err := c.Copy(ctx, file)
		results[i] = copied
		if onFile != nil {
			onFile(i, copied)
		}
		if err != nil {
			// Leave the remainder untouched but identifiable so a resumed
			// session can pick them back up.
			for j := i + 1; j < len(files); j++ {
				results[j] = media.CopiedFile{HashedFile: files[j], Storage: c.opts.Policy.Kind}
				if onFile != nil {
					onFile(j, results[j])
				}
			}
			return err
		}
	}
	return ctx.Err()
}
