package syncer

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dl4rce/flaiwheel/internal/docs"
)

// DefaultDebounce coalesces bursts of filesystem events into one trigger
const DefaultDebounce = 2 * time.Second

// NotifyFunc receives debounced triggers, usually Loop.Notify
type NotifyFunc func(Trigger) bool

// Watcher turns filesystem events under a docs root into debounced index
// triggers. It is an optional fast path next to the polling Loop.
type Watcher struct {
	root     string
	exts     []string
	debounce time.Duration
	notify   NotifyFunc
	logger   *slog.Logger

	fsw    *fsnotify.Watcher
	stopCh chan struct{}
	wg     sync.WaitGroup

	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer
	stopped bool
}

// NewWatcher creates a watcher over root. Start must be called to begin
// watching.
func NewWatcher(root string, exts []string, debounce time.Duration, notify NotifyFunc, logger *slog.Logger) (*Watcher, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve docs root: %w", err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if len(exts) == 0 {
		exts = docs.DefaultExtensions
	}
	if logger == nil {
		logger = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	return &Watcher{
		root:     abs,
		exts:     exts,
		debounce: debounce,
		notify:   notify,
		logger:   logger,
		fsw:      fsw,
		stopCh:   make(chan struct{}),
		pending:  make(map[string]struct{}),
	}, nil
}

// Start registers every directory under the root and begins forwarding
// events. It returns once the watches are in place.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.addRecursive(w.root); err != nil {
		_ = w.fsw.Close()
		return fmt.Errorf("watch %s: %w", w.root, err)
	}

	w.wg.Add(1)
	go w.run(ctx)
	return nil
}

// Stop ends watching and drops events not yet flushed
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	if w.timer != nil {
		w.timer.Stop()
	}
	close(w.stopCh)
	w.mu.Unlock()

	err := w.fsw.Close()
	w.wg.Wait()
	return err
}

func (w *Watcher) run(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", slog.Any("error", err))
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if event.Op == fsnotify.Chmod {
		return
	}
	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return
	}
	rel = filepath.ToSlash(rel)
	if hidden(rel) {
		return
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(event.Name); err != nil {
				w.logger.Warn("failed to watch new directory", slog.String("path", rel), slog.Any("error", err))
			}
			// files created before the watch was in place
			w.queue(rel)
			return
		}
	}

	if !docs.HasExtension(rel, w.exts) {
		// a removed or renamed directory takes its documents with it
		if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
			w.queue(rel)
		}
		return
	}
	w.queue(rel)
}

// queue records a path and restarts the debounce timer
func (w *Watcher) queue(rel string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}

	w.pending[rel] = struct{}{}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.flush)
}

func (w *Watcher) flush() {
	w.mu.Lock()
	if w.stopped || len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	w.pending = make(map[string]struct{})
	w.timer = nil
	w.mu.Unlock()

	sort.Strings(paths)
	if !w.notify(Trigger{Reason: "watch", Paths: paths}) {
		w.logger.Debug("watch trigger dropped", slog.Int("paths", len(paths)))
	}
}

func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

func hidden(rel string) bool {
	for _, seg := range strings.Split(rel, "/") {
		if strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return false
}
