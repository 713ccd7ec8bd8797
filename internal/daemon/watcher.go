package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"darkroom/internal/logging"
)

// settleDelay is how long the inbox must stay quiet after the last
// write before an import is triggered. Camera offloads arrive as bursts
// of files; importing mid-burst would split one offload into several
// sessions.
const settleDelay = 2 * time.Second

// inboxWatcher triggers imports when new files land in the inbox.
type inboxWatcher struct {
	dir     string
	logger  *slog.Logger
	trigger func(paths []string)

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	running bool
}

func newInboxWatcher(dir string, logger *slog.Logger, trigger func(paths []string)) *inboxWatcher {
	return &inboxWatcher{
		dir:     dir,
		logger:  logging.WithComponent(logger, "inbox-watcher"),
		trigger: trigger,
	}
}

// Start begins watching the inbox directory.
func (w *inboxWatcher) Start(ctx context.Context) error {
	if w.dir == "" {
		return fmt.Errorf("no inbox directory configured")
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("create inbox directory: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(w.dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}

	w.watcher = watcher
	w.running = true
	go w.loop(ctx, watcher)

	w.logger.Info("watching inbox", logging.String("dir", w.dir))
	return nil
}

// Stop shuts the watcher down.
func (w *inboxWatcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	if w.watcher != nil {
		_ = w.watcher.Close()
		w.watcher = nil
	}
	w.running = false
}

// Running reports whether the watcher is active.
func (w *inboxWatcher) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// loop debounces filesystem events and fires one trigger per quiet
// period.
func (w *inboxWatcher) loop(ctx context.Context, watcher *fsnotify.Watcher) {
	var settle *time.Timer
	var settleC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			w.logger.Debug("inbox activity", logging.String(logging.FieldFile, event.Name))
			if settle == nil {
				settle = time.NewTimer(settleDelay)
				settleC = settle.C
			} else {
				if !settle.Stop() {
					select {
					case <-settle.C:
					default:
					}
				}
				settle.Reset(settleDelay)
			}
		case <-settleC:
			settle = nil
			settleC = nil
			w.logger.Info("inbox settled, starting import", logging.String("dir", w.dir))
			w.trigger([]string{w.dir})
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("inbox watcher error", logging.Error(err))
		}
	}
}
