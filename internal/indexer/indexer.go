package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dl4rce/flaiwheel/internal/category"
	"github.com/dl4rce/flaiwheel/internal/chunker"
	"github.com/dl4rce/flaiwheel/internal/docs"
	"github.com/dl4rce/flaiwheel/internal/fingerprint"
	"github.com/dl4rce/flaiwheel/internal/quality"
	"github.com/dl4rce/flaiwheel/internal/vectorstore"
	"github.com/dl4rce/flaiwheel/pkg/types"
)

// Mode selects which documents a pass re-embeds
type Mode string

const (
	// ModeDiff re-embeds only documents whose content hash changed
	ModeDiff Mode = "diff"
	// ModeFull re-embeds every document regardless of its fingerprint
	ModeFull Mode = "full"
)

// ParseMode validates a mode name; empty selects ModeDiff
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeDiff:
		return ModeDiff, nil
	case ModeFull:
		return ModeFull, nil
	default:
		return "", fmt.Errorf("invalid index mode %q", s)
	}
}

// Indexer coordinates the indexing pipeline: fingerprint -> chunk -> gate -> embed -> store
type Indexer struct {
	chunker    *chunker.Chunker
	gate       *quality.Gate
	extensions []string
	logger     *slog.Logger

	// Worker pool configuration
	workers int
}

// Config contains configuration for the indexer
type Config struct {
	Workers    int             // Number of concurrent workers (default: runtime.NumCPU())
	Extensions []string        // Indexed file extensions (default: docs.DefaultExtensions)
	Chunking   chunker.Options // Chunking strategy and sizes
}

// Progress reports one processed document
type Progress struct {
	Done   int
	Total  int
	Path   string
	Chunks int // chunks written for Path
}

// Options tune a single pass
type Options struct {
	// OnProgress is called after every document. It may be called from
	// several goroutines at once.
	OnProgress func(Progress)
	// FailFast aborts the pass on the first failed write, such as an
	// embedding provider error. Unreadable documents are still skipped.
	FailFast bool
}

// Summary contains statistics about one indexing pass
type Summary struct {
	Mode           Mode              `json:"mode"`
	FilesScanned   int               `json:"files_scanned"`
	FilesChanged   int               `json:"files_changed"`
	FilesSkipped   int               `json:"files_skipped"`
	FilesExcluded  int               `json:"files_excluded"`
	FilesFailed    int               `json:"files_failed"`
	FilesRemoved   int               `json:"files_removed"`
	ChunksUpserted int               `json:"chunks_upserted"`
	ChunksRemoved  int               `json:"chunks_removed"`
	Quality        types.IssueCounts `json:"quality"`
	RemovalSkipped bool              `json:"removal_skipped,omitempty"`
	Duration       time.Duration     `json:"-"`
	DurationMS     int64             `json:"duration_ms"`
	Errors         []string          `json:"errors,omitempty"`
}

// New creates a new Indexer instance
func New(cfg Config, logger *slog.Logger) (*Indexer, error) {
	opts := cfg.Chunking
	if opts == (chunker.Options{}) {
		opts = chunker.DefaultOptions()
	}
	ch, err := chunker.New(opts)
	if err != nil {
		return nil, err
	}

	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if len(cfg.Extensions) == 0 {
		cfg.Extensions = docs.DefaultExtensions
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Indexer{
		chunker:    ch,
		gate:       quality.NewGate(cfg.Extensions, logger),
		extensions: cfg.Extensions,
		logger:     logger,
		workers:    cfg.Workers,
	}, nil
}

// Discover lists the indexable documents under root
func (idx *Indexer) Discover(root string) ([]docs.File, error) {
	return docs.Discover(root, idx.extensions)
}

// Gate returns the quality gate the indexer applies
func (idx *Indexer) Gate() *quality.Gate {
	return idx.gate
}

// Index scans root and indexes its documents into coll
func (idx *Indexer) Index(ctx context.Context, root string, coll *vectorstore.Collection, mode Mode, opts Options) (*Summary, error) {
	files, err := idx.Discover(root)
	if err != nil {
		return nil, fmt.Errorf("failed to discover documents: %w", err)
	}
	return idx.IndexFiles(ctx, coll, files, mode, opts)
}

// IndexFiles indexes an explicit document snapshot into coll. Tracked
// documents missing from the snapshot are removed from the collection, unless
// the snapshot is empty: an empty scan over a populated collection is treated
// as a transient mount or clone failure and leaves the collection alone.
//
// Cancellation is observed between documents. A document whose embedding has
// started is always written out, so a cancelled pass never leaves a
// half-replaced document behind.
func (idx *Indexer) IndexFiles(ctx context.Context, coll *vectorstore.Collection, files []docs.File, mode Mode, opts Options) (*Summary, error) {
	startTime := time.Now()
	summary := &Summary{Mode: mode, FilesScanned: len(files)}

	known, err := coll.Sources(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load fingerprints: %w", err)
	}

	p := &pass{
		idx:   idx,
		coll:  coll,
		mode:  mode,
		known: known,
		total: len(files),
		opts:  opts,
	}

	err = p.run(ctx, files)
	p.fill(summary)

	if err == nil {
		err = idx.removeMissing(ctx, coll, files, known, summary)
	}

	sort.Strings(summary.Errors)
	summary.Duration = time.Since(startTime)
	summary.DurationMS = summary.Duration.Milliseconds()

	idx.logger.Info("index pass finished",
		slog.String("collection", coll.Name),
		slog.String("mode", string(mode)),
		slog.Int("scanned", summary.FilesScanned),
		slog.Int("changed", summary.FilesChanged),
		slog.Int("excluded", summary.FilesExcluded),
		slog.Int("failed", summary.FilesFailed),
		slog.Int("removed", summary.FilesRemoved),
		slog.Duration("duration", summary.Duration))

	return summary, err
}

// removeMissing propagates deletions of tracked documents absent from files
func (idx *Indexer) removeMissing(ctx context.Context, coll *vectorstore.Collection, files []docs.File, known map[string]*fingerprint.Entry, summary *Summary) error {
	if len(files) == 0 && len(known) > 0 {
		idx.logger.Warn("scan found no documents, keeping existing index",
			slog.String("collection", coll.Name),
			slog.Int("tracked", len(known)))
		summary.RemovalSkipped = true
		return nil
	}

	present := make(map[string]struct{}, len(files))
	for _, f := range files {
		present[f.Path] = struct{}{}
	}

	for path := range known {
		if _, ok := present[path]; ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		removed, err := coll.RemoveSource(ctx, path)
		if err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %v", path, err))
			continue
		}
		summary.FilesRemoved++
		summary.ChunksRemoved += removed
	}
	return nil
}

// pass holds the shared state of one run over a snapshot
type pass struct {
	idx   *Indexer
	coll  *vectorstore.Collection
	mode  Mode
	known map[string]*fingerprint.Entry
	total int
	opts  Options
	abort context.CancelCauseFunc

	// Track progress with atomic counters
	done     atomic.Int32
	changed  atomic.Int32
	skipped  atomic.Int32
	excluded atomic.Int32
	failed   atomic.Int32
	upserted atomic.Int32
	removed  atomic.Int32

	mu      sync.Mutex // Protects quality and errors
	quality types.IssueCounts
	errors  []string
}

func (p *pass) run(ctx context.Context, files []docs.File) error {
	ctx, abort := context.WithCancelCause(ctx)
	defer abort(nil)
	p.abort = abort

	// Create worker pool with semaphore
	semaphore := make(chan struct{}, p.idx.workers)

	g, gctx := errgroup.WithContext(ctx)

dispatch:
	for _, f := range files {
		select {
		case <-gctx.Done():
			break dispatch
		case semaphore <- struct{}{}:
			// Acquire semaphore
		}

		g.Go(func() error {
			defer func() { <-semaphore }() // Release semaphore

			if err := gctx.Err(); err != nil {
				return err
			}
			p.processFile(gctx, f)
			return nil
		})
	}

	err := g.Wait()
	if ctx.Err() != nil {
		// The cause is either the caller's cancellation or a FailFast abort
		return context.Cause(ctx)
	}
	return err
}

// processFile indexes a single document. Failures are recorded, never returned.
func (p *pass) processFile(ctx context.Context, f docs.File) {
	var written int
	defer func() { p.report(f.Path, written) }()

	content, err := docs.Read(f.AbsPath)
	if err != nil {
		p.fail(f.Path, err)
		return
	}

	hash := fingerprint.Hash(content)
	if p.mode == ModeDiff {
		if prev, ok := p.known[f.Path]; ok && prev.ContentHash == hash {
			p.skipped.Add(1)
			return
		}
	}

	text := string(content)
	cat := category.Detect(f.Path)
	doc := vectorstore.Document{Path: f.Path, ContentHash: hash, Category: cat}

	issues := p.idx.gate.Evaluate(text, cat, f.Path)
	p.mu.Lock()
	p.quality.Merge(types.CountIssues(issues))
	p.mu.Unlock()

	// The write itself must not be interrupted once embedding starts
	wctx := context.WithoutCancel(ctx)

	if types.HasCritical(issues) {
		removed, err := p.coll.ExcludeSource(wctx, doc)
		if err != nil {
			p.failWrite(f.Path, err)
			return
		}
		p.excluded.Add(1)
		p.removed.Add(int32(removed))
		p.idx.logger.Info("document excluded by quality gate",
			slog.String("collection", p.coll.Name),
			slog.String("path", f.Path))
		return
	}

	chunks := p.idx.chunker.Chunk(text, f.Path)
	res, err := p.coll.ReplaceSource(wctx, doc, chunks)
	if err != nil {
		p.failWrite(f.Path, err)
		return
	}

	written = res.Upserted
	p.changed.Add(1)
	p.upserted.Add(int32(res.Upserted))
	p.removed.Add(int32(res.Removed))
}

func (p *pass) fail(path string, err error) {
	p.failed.Add(1)
	p.idx.logger.Warn("failed to index document",
		slog.String("collection", p.coll.Name),
		slog.String("path", path),
		slog.Any("error", err))

	p.mu.Lock()
	p.errors = append(p.errors, fmt.Sprintf("%s: %v", path, err))
	p.mu.Unlock()
}

// failWrite records a failed embed or store and aborts the pass under FailFast
func (p *pass) failWrite(path string, err error) {
	p.fail(path, err)
	if p.opts.FailFast {
		p.abort(fmt.Errorf("%s: %w", path, err))
	}
}

func (p *pass) report(path string, chunks int) {
	done := p.done.Add(1)
	if p.opts.OnProgress != nil {
		p.opts.OnProgress(Progress{Done: int(done), Total: p.total, Path: path, Chunks: chunks})
	}
}

func (p *pass) fill(s *Summary) {
	s.FilesChanged = int(p.changed.Load())
	s.FilesSkipped = int(p.skipped.Load())
	s.FilesExcluded = int(p.excluded.Load())
	s.FilesFailed = int(p.failed.Load())
	s.ChunksUpserted = int(p.upserted.Load())
	s.ChunksRemoved = int(p.removed.Load())

	p.mu.Lock()
	defer p.mu.Unlock()
	s.Quality = p.quality
	s.Errors = append(s.Errors, p.errors...)
}
