package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"darkroom/internal/config"
	"darkroom/internal/importer"
	"darkroom/internal/logging"
	"darkroom/internal/monitoring"
	"darkroom/internal/monitoring/alerts"
	"darkroom/internal/preflight"
	"darkroom/internal/session"
)

// Daemon coordinates the background services and enforces
// single-instance execution via a lock file.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	sessions *session.Store
	orch     *importer.Orchestrator
	monitor  *monitoring.Service

	lockPath string
	lock     *flock.Flock

	requests  chan importRequest
	watcher   *inboxWatcher
	removable *removableMonitor

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu            sync.Mutex
	activeSession string
}

type importRequest struct {
	sourcePaths []string
	resumeID    string
}

// Status reports daemon runtime information.
type Status struct {
	Running        bool
	ActiveSession  string
	QueuedRequests int
	LockFilePath   string
	DatabasePath   string
	WatchingInbox  bool
}

// New constructs a daemon. The monitoring service may be nil; imports
// then run uninstrumented.
func New(cfg *config.Config, logger *slog.Logger, sessions *session.Store, monitor *monitoring.Service) (*Daemon, error) {
	if cfg == nil || logger == nil || sessions == nil {
		return nil, errors.New("daemon requires config, logger, and session store")
	}

	d := &Daemon{
		cfg:      cfg,
		logger:   logging.WithComponent(logger, "daemon"),
		sessions: sessions,
		monitor:  monitor,
		lockPath: cfg.LockPath(),
		lock:     flock.New(cfg.LockPath()),
		requests: make(chan importRequest, 16),
	}

	if monitor != nil {
		d.orch = importer.NewOrchestrator(logger, cfg, sessions, sessions, monitor.Metrics, monitor.Tracer)
	} else {
		d.orch = importer.NewOrchestrator(logger, cfg, sessions, sessions, nil, nil)
	}

	d.watcher = newInboxWatcher(cfg.Paths.InboxDir, d.logger, func(paths []string) {
		d.enqueue(importRequest{sourcePaths: paths})
	})
	d.removable = newRemovableMonitor(d.logger)
	return d, nil
}

// Start acquires the daemon lock and launches the background loops.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another darkroom daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	if d.monitor != nil {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.monitor.Run(runCtx)
		}()
	}
	if err := d.watcher.Start(runCtx); err != nil {
		d.logger.Warn("inbox watcher unavailable, imports must be started manually",
			logging.Error(err),
		)
	}
	d.removable.Start(runCtx)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.workLoop(runCtx)
	}()

	d.running.Store(true)
	d.logger.Info("darkroom daemon started",
		logging.String("lock", d.lockPath),
		logging.String("inbox", d.cfg.Paths.InboxDir),
	)
	return nil
}

// Stop halts background processing and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.watcher.Stop()
	d.removable.Stop()
	d.wg.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("darkroom daemon stopped")
}

// Close stops the daemon and the underlying store.
func (d *Daemon) Close() error {
	d.Stop()
	return d.sessions.Close()
}

// EnqueueImport queues an import of the given source paths.
func (d *Daemon) EnqueueImport(sourcePaths []string) error {
	if !d.running.Load() {
		return errors.New("daemon is not running")
	}
	if len(sourcePaths) == 0 {
		return errors.New("at least one source path is required")
	}
	d.enqueue(importRequest{sourcePaths: sourcePaths})
	return nil
}

// EnqueueResume queues resumption of a paused session.
func (d *Daemon) EnqueueResume(sessionID string) error {
	if !d.running.Load() {
		return errors.New("daemon is not running")
	}
	if sessionID == "" {
		return errors.New("session id is required")
	}
	d.enqueue(importRequest{resumeID: sessionID})
	return nil
}

func (d *Daemon) enqueue(req importRequest) {
	select {
	case d.requests <- req:
	default:
		d.logger.Warn("import queue full, dropping request",
			logging.Int("sources", len(req.sourcePaths)),
		)
	}
}

// workLoop runs queued imports strictly one at a time.
func (d *Daemon) workLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-d.requests:
			d.process(ctx, req)
		}
	}
}

func (d *Daemon) process(ctx context.Context, req importRequest) {
	opts := importer.Options{
		SourcePaths: req.sourcePaths,
		OnProgress: func(event importer.ProgressEvent) {
			d.mu.Lock()
			d.activeSession = event.SessionID
			d.mu.Unlock()
		},
	}

	var (
		sess *session.Session
		err  error
	)
	if req.resumeID != "" {
		sess, err = d.orch.Resume(ctx, req.resumeID, opts)
	} else {
		sess, err = d.orch.Start(ctx, opts)
	}

	d.mu.Lock()
	d.activeSession = ""
	d.mu.Unlock()

	if err != nil {
		d.logger.Error("queued import failed", logging.Error(err))
		return
	}
	if sess.Status == session.StatusPaused {
		// Resumed on explicit request only; retrying immediately would
		// just hammer the dead mount.
		d.logger.Warn("import paused, awaiting resume",
			logging.String(logging.FieldSession, sess.ID),
		)
	}
}

// Status returns current daemon state.
func (d *Daemon) Status() Status {
	d.mu.Lock()
	active := d.activeSession
	d.mu.Unlock()
	return Status{
		Running:        d.running.Load(),
		ActiveSession:  active,
		QueuedRequests: len(d.requests),
		LockFilePath:   d.lockPath,
		DatabasePath:   d.sessions.Path(),
		WatchingInbox:  d.watcher.Running(),
	}
}

// HealthSnapshot samples pipeline health for the alert rules.
func (d *Daemon) HealthSnapshot(ctx context.Context) (alerts.Snapshot, error) {
	snapshot := alerts.Snapshot{Timestamp: time.Now().UTC()}

	usage, err := preflight.Disk(d.cfg.Paths.ArchiveRoot)
	if err == nil {
		snapshot.DiskFreePercent = usage.FreePercent
	}

	sessions, err := d.sessions.List(ctx)
	if err != nil {
		return snapshot, err
	}
	now := time.Now().UTC()
	for _, sess := range sessions {
		switch sess.Status {
		case session.StatusPending, session.StatusPaused:
			snapshot.QueueDepth++
			if age := now.Sub(sess.UpdatedAt); age > snapshot.OldestPendingAge {
				snapshot.OldestPendingAge = age
			}
		case session.StatusFailed:
			snapshot.DeadLetterCount++
		}
		snapshot.ProcessedCount += sess.FilesProcessed
		snapshot.ErrorCount += sess.Errors
	}

	d.mu.Lock()
	importing := d.activeSession != ""
	d.mu.Unlock()
	if importing {
		snapshot.ActiveWorkers = 1
	} else {
		snapshot.IdleWorkers = 1
	}
	snapshot.QueueDepth += len(d.requests)
	return snapshot, nil
}
