package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"darkroom/internal/config"
	"darkroom/internal/errdefs"
	"darkroom/internal/hashing"
	"darkroom/internal/logging"
	"darkroom/internal/media"
	"darkroom/internal/monitoring/metrics"
	"darkroom/internal/monitoring/tracing"
	"darkroom/internal/session"
	"darkroom/internal/storagekind"
	"darkroom/internal/transfer"
)

// Catalog records finalized files and answers cross-batch duplicate
// lookups. The session store provides the default implementation.
type Catalog interface {
	InsertCatalogFile(ctx context.Context, sessionID string, file media.ValidatedFile) (int64, error)
	FindCatalogHash(ctx context.Context, hash string) (string, bool, error)
}

// Options configures one import run. Cancellation travels on the
// context; progress and completion arrive on the callbacks.
type Options struct {
	SourcePaths []string
	ArchiveRoot string
	OnProgress  func(ProgressEvent)
	OnComplete  func(CompletionEvent)
}

// Orchestrator runs import sessions against shared stores.
type Orchestrator struct {
	cfg      *config.Config
	sessions *session.Store
	catalog  Catalog
	scanner  *media.Scanner
	metrics  *metrics.Collector
	tracer   *tracing.Tracer
	logger   *slog.Logger
}

// NewOrchestrator constructs an orchestrator. A nil collector or tracer
// is replaced with a no-op instance so instrumentation never gates the
// pipeline.
func NewOrchestrator(
	logger *slog.Logger,
	cfg *config.Config,
	sessions *session.Store,
	catalog Catalog,
	collector *metrics.Collector,
	tracer *tracing.Tracer,
) *Orchestrator {
	if collector == nil {
		collector = metrics.NewCollector(logging.NewNop())
	}
	if tracer == nil {
		tracer = tracing.NewTracer(logging.NewNop())
	}
	if catalog == nil {
		catalog = sessions
	}
	return &Orchestrator{
		cfg:      cfg,
		sessions: sessions,
		catalog:  catalog,
		scanner:  media.NewScanner(logger),
		metrics:  collector,
		tracer:   tracer,
		logger:   logging.WithComponent(logger, "orchestrator"),
	}
}

// Start creates a session and runs the full pipeline in the calling
// goroutine, returning the final session record. Callers wanting the
// original fire-and-forget shape run it in their own goroutine and read
// the session id from the first progress event.
func (o *Orchestrator) Start(ctx context.Context, opts Options) (*session.Session, error) {
	archiveRoot := opts.ArchiveRoot
	if archiveRoot == "" {
		archiveRoot = o.cfg.Paths.ArchiveRoot
	}

	sess, err := o.sessions.Create(ctx, opts.SourcePaths, archiveRoot)
	if err != nil {
		return nil, err
	}
	return o.run(ctx, sess, opts, nil, nil)
}

// Resume continues a paused session, reprocessing only files without a
// successful outcome. Valid and duplicate files from the earlier run are
// carried forward untouched.
func (o *Orchestrator) Resume(ctx context.Context, sessionID string, opts Options) (*session.Session, error) {
	sess, err := o.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, errdefs.Wrap(errdefs.ErrNotFound, "session", "resume", sessionID, nil)
	}
	if !sess.Resumable() {
		msg := fmt.Sprintf("session %s is %s, only paused sessions can be resumed", sessionID, sess.Status)
		return nil, errdefs.Wrap(errdefs.ErrValidation, "session", "resume", msg, nil)
	}

	snapshot, err := sess.GetSnapshot()
	if err != nil {
		return nil, err
	}

	settled := make(map[string]media.ValidatedFile, len(snapshot.Validated))
	for _, validated := range snapshot.Validated {
		if validated.IsValid {
			settled[validated.ID] = validated
		}
	}

	var carried []media.ValidatedFile
	var pending []media.HashedFile
	for _, hashed := range snapshot.Hashed {
		if validated, ok := settled[hashed.ID]; ok {
			carried = append(carried, validated)
			continue
		}
		if hashed.Duplicate {
			carried = append(carried, media.ValidatedFile{
				CopiedFile: media.CopiedFile{HashedFile: hashed},
			})
			continue
		}
		pending = append(pending, hashed)
	}

	sess.Resumed = true
	sess.LastError = ""
	sess.FilesProcessed = len(carried)
	opts.SourcePaths = sess.SourcePaths
	return o.run(ctx, sess, opts, carried, pending)
}

// batch carries mutable state for one run.
type batch struct {
	o       *Orchestrator
	sess    *session.Session
	opts    Options
	topts   transfer.Options
	start   time.Time
	percent float64
	current string
}

func (o *Orchestrator) run(
	ctx context.Context,
	sess *session.Session,
	opts Options,
	carried []media.ValidatedFile,
	pending []media.HashedFile,
) (*session.Session, error) {
	policy := storagekind.UnionPolicy(sess.SourcePaths...)
	b := &batch{
		o:     o,
		sess:  sess,
		opts:  opts,
		start: time.Now(),
		topts: transfer.Options{
			Policy:         policy,
			FileTimeout:    time.Duration(o.cfg.Import.FileTimeout) * time.Second,
			RetryDelays:    retryDelays(o.cfg.Import.RetryDelays),
			AbortThreshold: o.cfg.Import.NetworkAbortThreshold,
			Rollback:       o.cfg.Import.RollbackOnMismatch,
		},
	}

	o.logger.Info("import session started",
		logging.String(logging.FieldSession, sess.ID),
		logging.String("storage", string(policy.Kind)),
		logging.Bool("resumed", sess.Resumed),
		logging.Int("sources", len(sess.SourcePaths)),
	)

	root := o.tracer.StartSpan("import.session", map[string]string{
		"session": sess.ID,
		"storage": string(policy.Kind),
	})

	snapshot := session.Snapshot{}
	if sess.Resumed {
		snapshot.Hashed = append(pendingHashed(carried), pending...)
	} else {
		scanned, err := b.scan(ctx, root)
		if err != nil {
			return b.stop(ctx, root, err)
		}
		snapshot.Scanned = scanned

		pending, err = b.hash(ctx, root, scanned, policy)
		if err != nil {
			return b.stop(ctx, root, err)
		}
		snapshot.Hashed = pending
	}
	b.saveSnapshot(ctx, snapshot)

	guard := transfer.NewNetGuard(b.topts.AbortThreshold)

	copied, err := b.copy(ctx, root, guard, pending)
	if policy.Kind == storagekind.Network {
		b.flagStreamedDuplicates(ctx, copied)
	}
	syncHashedSnapshot(snapshot.Hashed, copied)
	snapshot.Copied = copied
	b.saveSnapshot(ctx, snapshot)
	if err != nil {
		return b.stop(ctx, root, err)
	}

	validated, err := b.validate(ctx, root, guard, copied)
	snapshot.Validated = append(append([]media.ValidatedFile{}, carried...), validated...)
	b.saveSnapshot(ctx, snapshot)
	if err != nil {
		return b.stop(ctx, root, err)
	}

	finalized, imported, err := b.finalize(ctx, root, snapshot.Validated)
	snapshot.Finalized = finalized
	b.saveSnapshot(ctx, snapshot)
	if err != nil {
		return b.stop(ctx, root, err)
	}

	return b.complete(ctx, root, imported)
}

func (b *batch) scan(ctx context.Context, root *tracing.Span) ([]media.ScannedFile, error) {
	b.setStatus(ctx, session.StatusScanning)

	var scanned []media.ScannedFile
	err := b.o.tracer.TraceChild("import.scan", root, nil, func(span *tracing.Span) error {
		var scanErr error
		scanned, scanErr = b.o.scanner.Scan(ctx, b.sess.SourcePaths)
		if scanErr == nil {
			span.SetTag("files", fmt.Sprintf("%d", len(scanned)))
		}
		return scanErr
	})
	if err != nil {
		return nil, err
	}

	b.sess.FilesTotal = len(scanned)
	b.sess.BytesTotal = 0
	for _, file := range scanned {
		b.sess.BytesTotal += file.Size
		b.o.metrics.Inc("import.files.total", 1, metrics.Tags{"type": string(file.Type)})
	}
	b.emit(StepScan, 1, "")
	return scanned, nil
}

func (b *batch) hash(
	ctx context.Context,
	root *tracing.Span,
	scanned []media.ScannedFile,
	policy storagekind.Policy,
) ([]media.HashedFile, error) {
	b.setStatus(ctx, session.StatusHashing)

	hashed := make([]media.HashedFile, 0, len(scanned))
	firstSeen := make(map[string]string, len(scanned))

	span := b.o.tracer.StartChild("import.hash", root, nil)
	defer span.End(tracing.StatusSuccess, map[string]string{"files": fmt.Sprintf("%d", len(scanned))})

	for i, file := range scanned {
		if err := ctx.Err(); err != nil {
			return hashed, err
		}

		record := media.HashedFile{ScannedFile: file}
		if policy.Kind == storagekind.Network {
			// Deferred: the copy stream is the first read of network
			// sources, so the hash is taken from its tee.
		} else {
			timer := b.o.metrics.Timer("import.hash.duration", nil)
			sum, err := hashing.HashFile(ctx, file.SourcePath, policy.BufferSize)
			timer.End(nil)
			if err != nil {
				if ctx.Err() != nil {
					return hashed, ctx.Err()
				}
				record.HashError = err.Error()
				b.sess.Errors++
				b.o.metrics.Inc("import.errors.total", 1, metrics.Tags{"step": "hash"})
			} else {
				record.Hash = sum
			}
		}

		if record.Hash != "" {
			if prior, ok := firstSeen[record.Hash]; ok {
				record.Duplicate = true
				record.DuplicateOf = prior
			} else if archivePath, found, lookupErr := b.o.catalog.FindCatalogHash(ctx, record.Hash); lookupErr != nil {
				b.o.logger.Warn("catalog lookup failed",
					logging.String(logging.FieldFile, file.Filename),
					logging.Error(lookupErr),
				)
				firstSeen[record.Hash] = file.SourcePath
			} else if found {
				record.Duplicate = true
				record.DuplicateOf = archivePath
			} else {
				firstSeen[record.Hash] = file.SourcePath
			}
			if record.Duplicate {
				b.sess.Duplicates++
				b.o.metrics.Inc("import.duplicates.total", 1, nil)
			}
		}

		hashed = append(hashed, record)
		b.emit(StepHash, float64(i+1)/float64(len(scanned)), file.Filename)
	}
	return hashed, nil
}

func (b *batch) copy(
	ctx context.Context,
	root *tracing.Span,
	guard *transfer.NetGuard,
	pending []media.HashedFile,
) ([]media.CopiedFile, error) {
	b.setStatus(ctx, session.StatusCopying)
	if len(pending) == 0 {
		b.emit(StepCopy, 1, "")
		return nil, nil
	}

	copier := transfer.NewCopier(b.sess.ArchiveRoot, b.topts, guard, b.o.logger)
	span := b.o.tracer.StartChild("import.copy", root, nil)

	var settled int
	copied, err := copier.CopyBatch(ctx, pending, func(i int, file media.CopiedFile) {
		settled++
		if file.Copied() || file.CopyError != "" || file.Duplicate {
			b.sess.FilesProcessed++
		}
		if file.Copied() {
			b.sess.BytesProcessed += file.Size
			b.o.metrics.Inc("import.bytes.total", float64(file.Size), nil)
		} else if file.CopyError != "" {
			b.sess.Errors++
			b.o.metrics.Inc("import.errors.total", 1, metrics.Tags{"step": "copy"})
		}
		b.emit(StepCopy, float64(settled)/float64(len(pending)), file.Filename)
	})
	if err != nil {
		span.End(tracing.StatusError, nil)
	} else {
		span.End(tracing.StatusSuccess, nil)
	}
	return copied, err
}

// flagStreamedDuplicates runs duplicate detection over hashes adopted
// from the copy stream. Network batches defer hashing, so they reach the
// copy step undeduplicated; later occurrences of a hash lose their
// archive claim here and validate/finalize skip them.
func (b *batch) flagStreamedDuplicates(ctx context.Context, copied []media.CopiedFile) {
	firstSeen := make(map[string]media.CopiedFile, len(copied))
	for i := range copied {
		file := &copied[i]
		if file.Hash == "" || file.Duplicate || !file.Copied() {
			continue
		}
		if prior, ok := firstSeen[file.Hash]; ok {
			b.removeRedundantCopy(file, prior.ArchivePath)
			b.flagDuplicate(file, prior.SourcePath)
			continue
		}
		archivePath, found, err := b.o.catalog.FindCatalogHash(ctx, file.Hash)
		if err != nil {
			b.o.logger.Warn("catalog lookup failed",
				logging.String(logging.FieldFile, file.Filename),
				logging.Error(err),
			)
		} else if found {
			b.removeRedundantCopy(file, archivePath)
			b.flagDuplicate(file, archivePath)
			continue
		}
		firstSeen[file.Hash] = *file
	}
}

// removeRedundantCopy deletes a duplicate's archived body when it landed
// somewhere other than the canonical path. Byte-identical files with
// different modification times copy to different year/month directories.
func (b *batch) removeRedundantCopy(file *media.CopiedFile, canonical string) {
	if file.ArchivePath == "" || file.ArchivePath == canonical {
		return
	}
	if err := os.Remove(file.ArchivePath); err != nil && !os.IsNotExist(err) {
		b.o.logger.Warn("redundant copy removal failed",
			logging.String("archive_path", file.ArchivePath),
			logging.Error(err),
		)
	}
}

func (b *batch) flagDuplicate(file *media.CopiedFile, of string) {
	file.Duplicate = true
	file.DuplicateOf = of
	file.ArchivePath = ""
	b.sess.Duplicates++
	b.o.metrics.Inc("import.duplicates.total", 1, nil)
}

// syncHashedSnapshot folds streamed hashes and late duplicate flags back
// into the hashed inventory so a paused session resumes with them.
func syncHashedSnapshot(hashed []media.HashedFile, copied []media.CopiedFile) {
	byID := make(map[string]media.HashedFile, len(copied))
	for _, file := range copied {
		byID[file.ID] = file.HashedFile
	}
	for i := range hashed {
		if updated, ok := byID[hashed[i].ID]; ok {
			hashed[i] = updated
		}
	}
}

func (b *batch) validate(
	ctx context.Context,
	root *tracing.Span,
	guard *transfer.NetGuard,
	copied []media.CopiedFile,
) ([]media.ValidatedFile, error) {
	b.setStatus(ctx, session.StatusValidating)
	if len(copied) == 0 {
		b.emit(StepValidate, 1, "")
		return nil, nil
	}

	validator := transfer.NewValidator(b.topts, guard, b.o.logger)
	span := b.o.tracer.StartChild("import.validate", root, nil)

	result, err := validator.ValidateBatch(ctx, copied, func(i int, file media.ValidatedFile) {
		b.emit(StepValidate, float64(i+1)/float64(len(copied)), file.Filename)
	})
	b.sess.Errors += result.Invalid
	if result.Invalid > 0 {
		b.o.metrics.Inc("import.errors.total", float64(result.Invalid), metrics.Tags{"step": "validate"})
	}
	if err != nil {
		span.End(tracing.StatusError, nil)
	} else {
		span.End(tracing.StatusSuccess, map[string]string{
			"valid":   fmt.Sprintf("%d", result.Valid),
			"invalid": fmt.Sprintf("%d", result.Invalid),
		})
	}
	return result.Files, err
}

func (b *batch) finalize(
	ctx context.Context,
	root *tracing.Span,
	validated []media.ValidatedFile,
) ([]media.FinalizedFile, int, error) {
	b.setStatus(ctx, session.StatusFinalizing)

	span := b.o.tracer.StartChild("import.finalize", root, nil)
	defer span.End(tracing.StatusSuccess, nil)

	var finalized []media.FinalizedFile
	for i, file := range validated {
		if err := ctx.Err(); err != nil {
			return finalized, len(finalized), err
		}
		if !file.IsValid {
			continue
		}
		recordID, err := b.o.catalog.InsertCatalogFile(ctx, b.sess.ID, file)
		if err != nil {
			b.sess.Errors++
			b.o.logger.Error("catalog write failed",
				logging.String(logging.FieldSession, b.sess.ID),
				logging.String(logging.FieldFile, file.Filename),
				logging.Error(err),
			)
			continue
		}
		finalized = append(finalized, media.FinalizedFile{
			ValidatedFile: file,
			RecordID:      recordID,
			ImportedAt:    time.Now().UTC(),
		})
		b.emit(StepFinalize, float64(i+1)/float64(len(validated)), file.Filename)
	}
	b.sess.FilesProcessed = b.sess.FilesTotal
	return finalized, len(finalized), nil
}

// stop classifies the error that ended the run: a network escalation
// pauses the session (resumable), cancellation cancels it, anything else
// fails it.
func (b *batch) stop(ctx context.Context, root *tracing.Span, cause error) (*session.Session, error) {
	switch {
	case transfer.IsNetworkFailure(cause):
		b.sess.Status = session.StatusPaused
		b.sess.LastError = "network unavailable, resumable: " + cause.Error()
		root.End(tracing.StatusError, map[string]string{"outcome": "paused"})
		b.o.logger.Warn("session paused on sustained network failure",
			logging.String(logging.FieldSession, b.sess.ID),
			logging.Error(cause),
		)
	case errors.Is(cause, context.Canceled):
		b.sess.Status = session.StatusCancelled
		b.markCompleted()
		root.End(tracing.StatusError, map[string]string{"outcome": "cancelled"})
		b.o.logger.Info("session cancelled", logging.String(logging.FieldSession, b.sess.ID))
	default:
		b.sess.Status = session.StatusFailed
		b.sess.LastError = cause.Error()
		b.markCompleted()
		root.End(tracing.StatusError, map[string]string{"outcome": "failed"})
		b.o.logger.Error("session failed",
			logging.String(logging.FieldSession, b.sess.ID),
			logging.Error(cause),
		)
	}

	b.persist(ctx)
	b.sendCompletion(0)
	if b.sess.Status == session.StatusPaused || b.sess.Status == session.StatusCancelled {
		return b.sess, nil
	}
	return b.sess, cause
}

func (b *batch) complete(ctx context.Context, root *tracing.Span, imported int) (*session.Session, error) {
	b.sess.Status = session.StatusCompleted
	b.markCompleted()
	b.persist(ctx)
	b.emit(StepFinalize, 1, "")

	root.End(tracing.StatusSuccess, map[string]string{"imported": fmt.Sprintf("%d", imported)})
	b.o.logger.Info("import session completed",
		logging.String(logging.FieldSession, b.sess.ID),
		logging.Int("imported", imported),
		logging.Int("duplicates", b.sess.Duplicates),
		logging.Int("errors", b.sess.Errors),
		logging.Duration("elapsed", time.Since(b.start)),
	)

	b.sendCompletion(imported)
	return b.sess, nil
}

func (b *batch) setStatus(ctx context.Context, status session.Status) {
	b.sess.Status = status
	b.persist(ctx)
}

func (b *batch) saveSnapshot(ctx context.Context, snapshot session.Snapshot) {
	if err := b.sess.SetSnapshot(snapshot); err != nil {
		b.o.logger.Error("snapshot serialization failed",
			logging.String(logging.FieldSession, b.sess.ID),
			logging.Error(err),
		)
		return
	}
	b.persist(ctx)
}

// persist writes session state without letting a storage hiccup abort
// the pipeline. Uses a background context so a cancelled run still
// records its final state.
func (b *batch) persist(ctx context.Context) {
	if err := b.o.sessions.Update(context.WithoutCancel(ctx), b.sess); err != nil {
		b.o.logger.Error("session update failed",
			logging.String(logging.FieldSession, b.sess.ID),
			logging.Error(err),
		)
	}
}

func (b *batch) markCompleted() {
	now := time.Now().UTC()
	b.sess.CompletedAt = &now
}

func (b *batch) emit(step Step, fraction float64, currentFile string) {
	percent := overallPercent(step, fraction)
	if percent < b.percent {
		percent = b.percent
	}
	b.percent = percent
	if currentFile != "" {
		b.current = currentFile
	}

	if b.opts.OnProgress == nil {
		return
	}
	elapsed := time.Since(b.start)
	b.opts.OnProgress(ProgressEvent{
		SessionID:            b.sess.ID,
		Status:               b.sess.Status,
		Step:                 step,
		TotalSteps:           TotalSteps,
		Percent:              percent,
		CurrentFile:          b.current,
		FilesProcessed:       b.sess.FilesProcessed,
		FilesTotal:           b.sess.FilesTotal,
		BytesProcessed:       b.sess.BytesProcessed,
		BytesTotal:           b.sess.BytesTotal,
		DuplicatesFound:      b.sess.Duplicates,
		ErrorsFound:          b.sess.Errors,
		EstimatedRemainingMs: estimateRemaining(elapsed, percent),
	})
}

func (b *batch) sendCompletion(imported int) {
	if b.opts.OnComplete == nil {
		return
	}
	b.opts.OnComplete(CompletionEvent{
		SessionID:       b.sess.ID,
		Status:          b.sess.Status,
		TotalImported:   imported,
		TotalDuplicates: b.sess.Duplicates,
		TotalErrors:     b.sess.Errors,
		TotalDurationMs: time.Since(b.start).Milliseconds(),
	})
}

// pendingHashed strips carried validated records back to their hashed
// identity so the resumed snapshot keeps the full batch inventory.
func pendingHashed(carried []media.ValidatedFile) []media.HashedFile {
	out := make([]media.HashedFile, 0, len(carried))
	for _, file := range carried {
		out = append(out, file.HashedFile)
	}
	return out
}

func retryDelays(seconds []int) []time.Duration {
	out := make([]time.Duration, 0, len(seconds))
	for _, s := range seconds {
		out = append(out, time.Duration(s)*time.Second)
	}
	return out
}
