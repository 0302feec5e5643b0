// Package syncer keeps a project's index in step with its docs tree. A Loop
// polls a ChangeSource on an interval and feeds index triggers through a
// queue to a single consumer; a Watcher feeds the same queue from
// filesystem events.
package syncer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dl4rce/flaiwheel/internal/indexer"
	"github.com/dl4rce/flaiwheel/internal/quality"
	"github.com/dl4rce/flaiwheel/pkg/types"
)

// DefaultQueueSize bounds the pending triggers of a Loop
const DefaultQueueSize = 8

// Trigger asks for an index pass
type Trigger struct {
	Reason string
	Paths  []string
	Full   bool
}

// Target is the project a Loop keeps in sync
type Target interface {
	Name() string
	Index(ctx context.Context, mode indexer.Mode) (*indexer.Summary, error)
	QualityReport(ctx context.Context, filter types.Category) (*quality.Report, error)
	RecordSync(ctx context.Context, changes int, err error)
}

// Config wires a Loop
type Config struct {
	Target    Target
	Source    ChangeSource  // nil disables polling; Notify still works
	Interval  time.Duration // zero or negative disables polling
	QueueSize int
	Logger    *slog.Logger
}

// Loop is a cancellable background sync task for one project
type Loop struct {
	target   Target
	source   ChangeSource
	interval time.Duration
	logger   *slog.Logger

	triggers chan Trigger
	retry    atomic.Pointer[Trigger]

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// New creates a stopped Loop
func New(cfg Config) *Loop {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		target:   cfg.Target,
		source:   cfg.Source,
		interval: cfg.Interval,
		logger:   logger.With(slog.String("project", cfg.Target.Name())),
		triggers: make(chan Trigger, cfg.QueueSize),
	}
}

// Start launches the poller and the consumer. It returns immediately;
// starting a running Loop is a no-op.
func (l *Loop) Start(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return
	}
	l.running = true
	l.stopCh = make(chan struct{})

	l.wg.Add(1)
	go l.consume(ctx, l.stopCh)

	if l.source != nil && l.interval > 0 {
		l.wg.Add(1)
		go l.poll(ctx, l.stopCh)
	}
}

// Stop stops both goroutines and waits for an in-flight pass to finish
func (l *Loop) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	l.running = false
	close(l.stopCh)
	l.mu.Unlock()

	l.wg.Wait()
}

// Notify enqueues a trigger without blocking. It reports false when the
// queue is full; the queued triggers already cover the change.
func (l *Loop) Notify(t Trigger) bool {
	select {
	case l.triggers <- t:
		return true
	default:
		l.logger.Debug("sync trigger dropped, queue full", slog.String("reason", t.Reason))
		return false
	}
}

func (l *Loop) poll(ctx context.Context, stop <-chan struct{}) {
	defer l.wg.Done()

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			l.tick(ctx)
		}
	}
}

// tick polls the source once
func (l *Loop) tick(ctx context.Context) {
	if t := l.retry.Swap(nil); t != nil {
		l.Notify(*t)
	}

	changes, err := l.source.Poll(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		l.logger.Warn("sync poll failed", slog.Any("error", err))
		l.target.RecordSync(ctx, 0, err)
		return
	}
	if len(changes) == 0 {
		l.target.RecordSync(ctx, 0, nil)
		return
	}

	l.logger.Info("changes detected", slog.Int("paths", len(changes)))
	l.Notify(Trigger{Reason: "poll", Paths: changes})
}

func (l *Loop) consume(ctx context.Context, stop <-chan struct{}) {
	defer l.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case t := <-l.triggers:
			l.run(ctx, t)
		}
	}
}

// run executes one trigger. A pass rejected because another is in flight is
// kept for the next tick, and a pass with failed files queues a diff retry.
func (l *Loop) run(ctx context.Context, t Trigger) {
	mode := indexer.ModeDiff
	if t.Full {
		mode = indexer.ModeFull
	}

	summary, err := l.target.Index(ctx, mode)
	if errors.Is(err, types.ErrIndexInProgress) {
		l.logger.Info("index pass in progress, sync retried next tick", slog.String("reason", t.Reason))
		l.retry.Store(&t)
		return
	}
	if err != nil && ctx.Err() != nil {
		return
	}

	changes := len(t.Paths)
	if summary != nil {
		changes = summary.FilesChanged + summary.FilesExcluded + summary.FilesRemoved
	}
	l.target.RecordSync(ctx, changes, err)

	if err != nil {
		l.logger.Warn("sync index pass failed", slog.String("reason", t.Reason), slog.Any("error", err))
		return
	}
	l.logger.Info("sync index pass complete",
		slog.String("reason", t.Reason),
		slog.String("mode", string(mode)),
		slog.Int("changed", summary.FilesChanged),
		slog.Int("removed", summary.FilesRemoved))

	// Failed files keep their old fingerprints, so a diff pass picks them up again
	if summary.FilesFailed > 0 {
		l.logger.Warn("sync index pass had failures, retried next tick",
			slog.String("reason", t.Reason),
			slog.Int("failed", summary.FilesFailed))
		l.retry.Store(&Trigger{Reason: "retry"})
	}

	if changes == 0 {
		return
	}
	report, err := l.target.QualityReport(ctx, "")
	if err != nil {
		l.logger.Warn("quality check after sync failed", slog.Any("error", err))
		return
	}
	l.logger.Info("quality check after sync",
		slog.Int("score", report.Score),
		slog.Int("issues", report.TotalIssues))
}
