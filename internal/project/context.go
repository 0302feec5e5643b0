package project

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dl4rce/flaiwheel/internal/classifier"
	"github.com/dl4rce/flaiwheel/internal/embedder"
	"github.com/dl4rce/flaiwheel/internal/indexer"
	"github.com/dl4rce/flaiwheel/internal/migration"
	"github.com/dl4rce/flaiwheel/internal/quality"
	"github.com/dl4rce/flaiwheel/internal/searcher"
	"github.com/dl4rce/flaiwheel/internal/storage"
	"github.com/dl4rce/flaiwheel/internal/vectorstore"
	"github.com/dl4rce/flaiwheel/pkg/types"
)

// closeTimeout bounds how long Close waits for a cancelled migration
const closeTimeout = 10 * time.Second

// Options are the components shared by every project of a Registry
type Options struct {
	Store      storage.Storage
	Embedders  *embedder.Pool
	Embedding  embedder.Config // embedder for newly created collections
	Indexer    *indexer.Indexer
	Classifier *classifier.Classifier
	Search     searcher.Config
	LockDir    string // empty keeps index locks in-process
	Logger     *slog.Logger
}

// Context is one project: its live collection, index lock, search cache,
// migration coordinator and health counters. Contexts share nothing but the
// store and the pooled embedders.
type Context struct {
	id       int64
	name     string
	docsRoot string

	store      storage.Storage
	embedders  *embedder.Pool
	embedding  embedder.Config
	indexer    *indexer.Indexer
	classifier *classifier.Classifier
	searcher   *searcher.Searcher
	migrations *migration.Coordinator
	lock       *indexer.PassLock
	health     *healthTracker
	logger     *slog.Logger

	live atomic.Pointer[vectorstore.Collection]
	// readers holds a read lock for every search against the live
	// collection; Promote takes the write lock after the swap to wait for
	// searches still reading the replaced generation.
	readers sync.RWMutex
}

// Status is a point-in-time view of a project
type Status struct {
	Name            string              `json:"project"`
	DocsPath        string              `json:"docs_path"`
	Collection      string              `json:"collection"`
	Provider        string              `json:"provider"`
	Model           string              `json:"model"`
	Dimension       int                 `json:"dimension"`
	Chunks          int                 `json:"chunks"`
	Sources         int                 `json:"sources"`
	Excluded        int                 `json:"excluded"`
	IndexSizeMB     float64             `json:"index_size_mb"`
	LastIndexedAt   *time.Time          `json:"last_indexed_at,omitempty"`
	IndexInProgress bool                `json:"index_in_progress"`
	Migration       *migration.Progress `json:"migration,omitempty"`
	Health          Health              `json:"health"`
}

// MigrationStatus is the current job, if any, and the recent history
type MigrationStatus struct {
	Current *migration.Progress        `json:"current,omitempty"`
	History []*storage.MigrationRecord `json:"history"`
}

// LiveName is the name of a project's live collection
func LiveName(project string) string {
	return "proj_" + project
}

// open binds a stored project to its live collection
func open(ctx context.Context, opts Options, proj *storage.Project) (*Context, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("project", proj.Name))

	s, err := searcher.New(opts.Search)
	if err != nil {
		return nil, err
	}

	lockPath := ""
	if opts.LockDir != "" {
		lockPath = filepath.Join(opts.LockDir, proj.Name+".lock")
	}

	c := &Context{
		id:         proj.ID,
		name:       proj.Name,
		docsRoot:   proj.DocsPath,
		store:      opts.Store,
		embedders:  opts.Embedders,
		embedding:  opts.Embedding,
		indexer:    opts.Indexer,
		classifier: opts.Classifier,
		searcher:   s,
		lock:       indexer.NewPassLock(lockPath),
		health:     newHealthTracker(time.Now),
		logger:     logger,
	}

	if dropped, err := migration.CleanupShadows(ctx, c.store, c.id, proj.CollectionName); err != nil {
		return nil, err
	} else if len(dropped) > 0 {
		logger.Warn("dropped orphaned shadow collections", slog.Any("collections", dropped))
	}

	live, err := c.openLive(ctx, proj.CollectionName)
	if err != nil {
		return nil, err
	}
	c.live.Store(live)

	if err := c.health.load(ctx, c.store, c.id); err != nil {
		logger.Warn("health counters reset", slog.Any("error", err))
	}

	c.migrations = migration.NewCoordinator(migration.Config{
		Store:     c.store,
		ProjectID: c.id,
		DocsRoot:  c.docsRoot,
		Indexer:   c.indexer,
		Target:    c,
		Logger:    logger,
	})
	return c, nil
}

// openLive binds the stored live collection to the embedder of its own
// model, so a completed migration survives restarts regardless of the
// configured default. A collection whose model cannot be served any more is
// recreated empty under the configured embedder.
func (c *Context) openLive(ctx context.Context, name string) (*vectorstore.Collection, error) {
	rec, err := c.store.GetCollection(ctx, name)
	if errors.Is(err, storage.ErrNotFound) {
		emb, err := c.embedders.Get(c.embedding)
		if err != nil {
			return nil, err
		}
		return vectorstore.Create(ctx, c.store, c.id, name, emb)
	}
	if err != nil {
		return nil, fmt.Errorf("load collection %s: %w", name, err)
	}

	cfg := c.embedding
	cfg.Provider, cfg.Model, cfg.Dimension = rec.Provider, rec.Model, rec.Dimension
	emb, err := c.embedders.Get(cfg)
	if err == nil {
		var coll *vectorstore.Collection
		coll, err = vectorstore.Open(c.store, rec, emb)
		if err == nil {
			if configured := c.embedding.Key(); configured != cfg.Key() {
				c.logger.Info("collection model differs from configuration, run a migration to switch",
					slog.String("collection_model", cfg.Key()),
					slog.String("configured_model", configured))
			}
			return coll, nil
		}
	}
	return c.heal(ctx, rec, err)
}

// heal drops an unusable collection with its fingerprints and recreates it
// under the configured embedder. The next pass re-embeds every document.
func (c *Context) heal(ctx context.Context, rec *storage.Collection, cause error) (*vectorstore.Collection, error) {
	emb, err := c.embedders.Get(c.embedding)
	if err != nil {
		return nil, err
	}
	c.logger.Warn("recreating collection",
		slog.String("collection", rec.Name),
		slog.String("stored_model", rec.Provider+"/"+rec.Model),
		slog.Int("stored_dimension", rec.Dimension),
		slog.Int("dimension", emb.Dimension()),
		slog.Any("error", cause))

	if err := c.store.DropCollection(ctx, rec.ID); err != nil {
		return nil, fmt.Errorf("drop collection %s: %w", rec.Name, err)
	}
	return vectorstore.Create(ctx, c.store, c.id, rec.Name, emb)
}

// Name returns the project name
func (c *Context) Name() string {
	return c.name
}

// DocsRoot returns the project's docs directory
func (c *Context) DocsRoot() string {
	return c.docsRoot
}

// Live returns the collection currently serving search
func (c *Context) Live() *vectorstore.Collection {
	return c.live.Load()
}

// Indexing reports whether a pass of this process is running
func (c *Context) Indexing() bool {
	return c.lock.Held()
}

// Index runs one pass over the docs root. A pass already in flight makes it
// fail immediately with types.ErrIndexInProgress.
func (c *Context) Index(ctx context.Context, mode indexer.Mode) (*indexer.Summary, error) {
	if err := c.lock.TryAcquire(); err != nil {
		return nil, err
	}
	defer func() {
		if err := c.lock.Release(); err != nil {
			c.logger.Warn("failed to release index lock", slog.Any("error", err))
		}
	}()

	summary, err := c.indexer.Index(ctx, c.docsRoot, c.Live(), mode, indexer.Options{})
	c.searcher.InvalidateCache()
	c.health.recordIndex(summary, err)
	c.saveHealth(ctx)
	return summary, err
}

// Search queries the live collection captured at call time, so a concurrent
// migration swap never mixes two model generations in one response.
func (c *Context) Search(ctx context.Context, req searcher.Request) (*searcher.Response, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, types.ErrEmptyQuery
	}
	c.readers.RLock()
	defer c.readers.RUnlock()

	coll := c.Live()
	if c.health.snapshot().LastIndexAt == nil {
		n, err := coll.Count(ctx)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, types.ErrNotIndexed
		}
	}

	resp, err := c.searcher.Search(ctx, coll, req)
	if err != nil {
		return nil, err
	}
	c.health.recordSearch(resp.Hit())
	return resp, nil
}

// QualityReport checks the docs tree, optionally for one category
func (c *Context) QualityReport(ctx context.Context, filter types.Category) (*quality.Report, error) {
	report, err := c.indexer.Gate().Report(ctx, c.docsRoot, filter)
	if err != nil {
		return nil, err
	}
	if filter == "" {
		c.health.recordQuality(report.Score)
		c.saveHealth(ctx)
	}
	return report, nil
}

// CheckContent validates unsaved content against the rules of cat
func (c *Context) CheckContent(text string, cat types.Category) []types.Issue {
	return c.indexer.Gate().CheckContent(text, cat)
}

// Classify routes documents into categories with the live embedder
func (c *Context) Classify(ctx context.Context, batch []classifier.Input) ([]types.Verdict, error) {
	return c.classifier.Classify(ctx, c.Live().Embedder(), batch)
}

// Bootstrap proposes how to organise the docs tree. Nothing is modified.
func (c *Context) Bootstrap(ctx context.Context) (*classifier.Plan, error) {
	return c.classifier.Bootstrap(ctx, c.Live().Embedder(), c.docsRoot)
}

// BeginMigration starts re-embedding the project under cfg. Unset fields of
// cfg are taken from the configured embedding.
func (c *Context) BeginMigration(ctx context.Context, cfg embedder.Config) (*migration.Job, error) {
	if cfg.APIKey == "" {
		cfg.APIKey = c.embedding.APIKey
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = c.embedding.BaseURL
	}
	if cfg.CacheSize == 0 {
		cfg.CacheSize = c.embedding.CacheSize
	}
	if cfg.RequestsPerSecond == 0 {
		cfg.RequestsPerSecond = c.embedding.RequestsPerSecond
	}

	emb, err := c.embedders.Get(cfg)
	if err != nil {
		return nil, fmt.Errorf("create embedder %s: %w", cfg.Key(), err)
	}
	return c.migrations.Begin(ctx, emb)
}

// MigrationStatus returns the current job and the persisted history
func (c *Context) MigrationStatus(ctx context.Context, limit int) (*MigrationStatus, error) {
	history, err := c.migrations.History(ctx, limit)
	if err != nil {
		return nil, err
	}
	status := &MigrationStatus{History: history}
	if job, ok := c.migrations.Current(); ok {
		p := job.Progress()
		status.Current = &p
	}
	return status, nil
}

// CancelMigration cancels the running job; an empty id matches any job
func (c *Context) CancelMigration(jobID string) (migration.Progress, error) {
	return c.migrations.Cancel(jobID)
}

// Promote makes a finished shadow collection live. It waits for an
// in-flight index pass and swaps the pointer under the index lock. The
// replaced collection is dropped only after every search that captured it
// has returned.
func (c *Context) Promote(ctx context.Context, shadow *vectorstore.Collection) error {
	if err := c.lock.Acquire(ctx); err != nil {
		return err
	}
	defer func() {
		if err := c.lock.Release(); err != nil {
			c.logger.Warn("failed to release index lock", slog.Any("error", err))
		}
	}()

	rec, err := c.store.PromoteCollection(ctx, c.id, shadow.ID)
	if err != nil {
		return err
	}
	old := c.live.Swap(shadow.Rebind(rec))
	c.searcher.InvalidateCache()

	// Searches that captured old hold read locks until they return
	c.readers.Lock()
	c.readers.Unlock() //nolint:staticcheck
	if old != nil && old.ID != rec.ID {
		if err := old.Retire(context.WithoutCancel(ctx)); err != nil {
			// Dropped on the next open with the other leftovers
			c.logger.Warn("failed to drop retired collection",
				slog.Int64("collection_id", old.ID), slog.Any("error", err))
		}
	}
	c.health.recordMigration()
	c.saveHealth(ctx)

	c.logger.Info("collection promoted",
		slog.String("collection", rec.Name),
		slog.String("model", rec.Provider+"/"+rec.Model),
		slog.Int("dimension", rec.Dimension))
	return nil
}

// RecordSync notes a background sync attempt
func (c *Context) RecordSync(ctx context.Context, changes int, err error) {
	c.health.recordSync(changes, err)
	c.saveHealth(ctx)
}

// Health returns a copy of the health counters
func (c *Context) Health() Health {
	return c.health.snapshot()
}

// Status reports the live collection and health of the project
func (c *Context) Status(ctx context.Context) (*Status, error) {
	c.readers.RLock()
	defer c.readers.RUnlock()

	coll := c.Live()
	cs, err := coll.Status(ctx)
	if err != nil {
		return nil, err
	}

	st := &Status{
		Name:            c.name,
		DocsPath:        c.docsRoot,
		Collection:      coll.Name,
		Provider:        coll.Provider,
		Model:           coll.Model,
		Dimension:       coll.Dimension,
		Chunks:          cs.ChunksCount,
		Sources:         cs.SourcesCount,
		Excluded:        cs.ExcludedCount,
		IndexSizeMB:     cs.IndexSizeMB,
		IndexInProgress: c.lock.Held(),
		Health:          c.health.snapshot(),
	}
	if !cs.LastIndexedAt.IsZero() {
		t := cs.LastIndexedAt
		st.LastIndexedAt = &t
	}
	if job, ok := c.migrations.Current(); ok {
		p := job.Progress()
		st.Migration = &p
	}
	return st, nil
}

// Close cancels a running migration and flushes the health counters
func (c *Context) Close(ctx context.Context) error {
	if job, ok := c.migrations.Current(); ok {
		if _, err := c.migrations.Cancel(job.ID()); err == nil {
			waitCtx, cancel := context.WithTimeout(ctx, closeTimeout)
			_, _ = job.Wait(waitCtx)
			cancel()
		}
	}
	return c.health.save(context.WithoutCancel(ctx), c.store, c.id)
}

func (c *Context) saveHealth(ctx context.Context) {
	if err := c.health.save(context.WithoutCancel(ctx), c.store, c.id); err != nil {
		c.logger.Warn("failed to persist health counters", slog.Any("error", err))
	}
}
