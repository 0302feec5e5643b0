package project

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dl4rce/flaiwheel/internal/classifier"
	"github.com/dl4rce/flaiwheel/internal/embedder"
	"github.com/dl4rce/flaiwheel/internal/indexer"
	"github.com/dl4rce/flaiwheel/internal/logging"
	"github.com/dl4rce/flaiwheel/internal/migration"
	"github.com/dl4rce/flaiwheel/internal/searcher"
	"github.com/dl4rce/flaiwheel/internal/storage"
	"github.com/dl4rce/flaiwheel/pkg/types"
)

const overviewDoc = `# Architecture Overview

The overview describes how the gateway, the ledger and the notification
service cooperate to process customer orders from checkout to settlement.
`

const brokenDoc = `# Broken login

## Root Cause

The session token expired before the redirect completed on slow networks.

## Lesson Learned

Always test token lifetimes with throttled connections enabled.
`

func setupTestStorage(t *testing.T) storage.Storage {
	t.Helper()
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// localPool builds local embedders; fixedDim overrides the requested
// dimension when positive
func localPool(fixedDim int) *embedder.Pool {
	return embedder.NewPoolWithFactory(func(cfg embedder.Config) (embedder.Embedder, error) {
		dim := cfg.Dimension
		if fixedDim > 0 {
			dim = fixedDim
		}
		return embedder.NewLocalProvider(cfg.Model, dim, nil)
	})
}

func newOptions(t *testing.T, store storage.Storage, pool *embedder.Pool) Options {
	t.Helper()
	logger := logging.Discard()

	idx, err := indexer.New(indexer.Config{Workers: 2}, logger)
	require.NoError(t, err)
	cls, err := classifier.New(classifier.Config{Workers: 2}, logger)
	require.NoError(t, err)

	return Options{
		Store:      store,
		Embedders:  pool,
		Embedding:  embedder.Config{Provider: embedder.ProviderLocal, Model: "test-model", Dimension: 32},
		Indexer:    idx,
		Classifier: cls,
		Search:     searcher.Config{},
		Logger:     logger,
	}
}

func writeDocs(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func newRegistry(t *testing.T) (*Registry, storage.Storage) {
	t.Helper()
	store := setupTestStorage(t)
	r := NewRegistry(newOptions(t, store, localPool(0)))
	t.Cleanup(func() { _ = r.Close(context.Background()) })
	return r, store
}

func addProject(t *testing.T, r *Registry, name string, files map[string]string) *Context {
	t.Helper()
	root := t.TempDir()
	writeDocs(t, root, files)
	c, err := r.Add(context.Background(), name, root)
	require.NoError(t, err)
	return c
}

func TestRegistry_AddGetResolve(t *testing.T) {
	r, store := newRegistry(t)
	ctx := context.Background()

	_, err := r.Resolve("")
	assert.ErrorIs(t, err, types.ErrProjectNotFound)

	acme := addProject(t, r, "acme", nil)
	assert.Equal(t, "acme", acme.Name())
	assert.Equal(t, LiveName("acme"), acme.Live().Name)

	_, err = r.Add(ctx, "acme", t.TempDir())
	assert.ErrorIs(t, err, types.ErrProjectExists)
	_, err = r.Add(ctx, "../escape", t.TempDir())
	assert.ErrorIs(t, err, types.ErrInvalidInput)
	_, err = r.Add(ctx, "nodocs", "")
	assert.ErrorIs(t, err, types.ErrInvalidInput)

	got, err := r.Resolve("")
	require.NoError(t, err)
	assert.Same(t, acme, got)

	_, err = r.Get("missing")
	assert.ErrorIs(t, err, types.ErrProjectNotFound)

	addProject(t, r, "default", nil)
	addProject(t, r, "beta", nil)
	got, err = r.Resolve("")
	require.NoError(t, err)
	assert.Equal(t, "default", got.Name())

	var names []string
	for _, c := range r.List() {
		names = append(names, c.Name())
	}
	assert.Equal(t, []string{"acme", "beta", "default"}, names)

	stored, err := store.ListProjects(ctx)
	require.NoError(t, err)
	assert.Len(t, stored, 3)
}

func TestRegistry_RemoveKeepsDocs(t *testing.T) {
	r, store := newRegistry(t)
	ctx := context.Background()
	c := addProject(t, r, "acme", map[string]string{"architecture/overview.md": overviewDoc})
	_, err := c.Index(ctx, indexer.ModeFull)
	require.NoError(t, err)

	require.NoError(t, r.Remove(ctx, "acme"))
	assert.ErrorIs(t, r.Remove(ctx, "acme"), types.ErrProjectNotFound)

	_, err = store.GetProject(ctx, "acme")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = store.GetCollection(ctx, LiveName("acme"))
	assert.ErrorIs(t, err, storage.ErrNotFound)

	data, err := os.ReadFile(filepath.Join(c.DocsRoot(), "architecture", "overview.md"))
	require.NoError(t, err)
	assert.Equal(t, overviewDoc, string(data))
}

func TestRegistry_LoadAndEnsure(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()
	root := t.TempDir()
	writeDocs(t, root, map[string]string{"architecture/overview.md": overviewDoc})

	first := NewRegistry(newOptions(t, store, localPool(0)))
	c, err := first.Ensure(ctx, "acme", root)
	require.NoError(t, err)
	_, err = c.Index(ctx, indexer.ModeFull)
	require.NoError(t, err)
	require.NoError(t, first.Close(ctx))

	second := NewRegistry(newOptions(t, store, localPool(0)))
	t.Cleanup(func() { _ = second.Close(ctx) })
	require.NoError(t, second.Load(ctx))

	c, err = second.Get("acme")
	require.NoError(t, err)
	assert.Equal(t, root, c.DocsRoot())
	n, err := c.Live().Count(ctx)
	require.NoError(t, err)
	assert.Positive(t, n, "chunks survive a restart")

	same, err := second.Ensure(ctx, "acme", root)
	require.NoError(t, err)
	assert.Same(t, c, same)

	moved := t.TempDir()
	reopened, err := second.Ensure(ctx, "acme", moved)
	require.NoError(t, err)
	assert.Equal(t, moved, reopened.DocsRoot())
	assert.Equal(t, LiveName("acme"), reopened.Live().Name)
}

func TestContext_IndexSearchQuality(t *testing.T) {
	r, _ := newRegistry(t)
	ctx := context.Background()
	c := addProject(t, r, "acme", map[string]string{
		"architecture/overview.md": overviewDoc,
		"bugfix-log/broken.md":     brokenDoc,
	})

	summary, err := c.Index(ctx, indexer.ModeFull)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.FilesScanned)
	assert.Equal(t, 1, summary.FilesExcluded)

	resp, err := c.Search(ctx, searcher.Request{Query: "overview", Limit: 10})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "architecture/overview.md", resp.Results[0].Source)
	for _, res := range resp.Results {
		assert.NotEqual(t, "bugfix-log/broken.md", res.Source)
	}

	report, err := c.QualityReport(ctx, "")
	require.NoError(t, err)
	var critical []types.Issue
	for _, is := range report.Issues {
		if is.Severity == types.SeverityCritical {
			critical = append(critical, is)
		}
	}
	require.Len(t, critical, 1)
	assert.Equal(t, "bugfix-log/broken.md", critical[0].File)

	data, err := os.ReadFile(filepath.Join(c.DocsRoot(), "bugfix-log", "broken.md"))
	require.NoError(t, err)
	assert.Equal(t, brokenDoc, string(data))

	h := c.Health()
	require.NotNil(t, h.LastIndexAt)
	assert.True(t, h.LastIndexOK)
	assert.Equal(t, int64(1), h.SearchHits)
	require.NotNil(t, h.LastQualityScore)
	assert.Equal(t, report.Score, *h.LastQualityScore)
}

func TestContext_IndexRejectsConcurrentPass(t *testing.T) {
	r, _ := newRegistry(t)
	c := addProject(t, r, "acme", nil)

	require.NoError(t, c.lock.TryAcquire())
	_, err := c.Index(context.Background(), indexer.ModeDiff)
	assert.ErrorIs(t, err, types.ErrIndexInProgress)
	assert.True(t, c.Indexing())

	require.NoError(t, c.lock.Release())
	_, err = c.Index(context.Background(), indexer.ModeDiff)
	assert.NoError(t, err)
}

func TestContext_SearchErrors(t *testing.T) {
	r, _ := newRegistry(t)
	ctx := context.Background()
	c := addProject(t, r, "acme", map[string]string{"architecture/overview.md": overviewDoc})

	_, err := c.Search(ctx, searcher.Request{Query: "   "})
	assert.ErrorIs(t, err, types.ErrEmptyQuery)
	_, err = c.Search(ctx, searcher.Request{Query: "gateway"})
	assert.ErrorIs(t, err, types.ErrNotIndexed)

	_, err = c.Index(ctx, indexer.ModeDiff)
	require.NoError(t, err)
	_, err = c.Search(ctx, searcher.Request{Query: "gateway"})
	assert.NoError(t, err)
}

func TestContext_HealthSurvivesRestart(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()
	root := t.TempDir()
	writeDocs(t, root, map[string]string{"architecture/overview.md": overviewDoc})

	first := NewRegistry(newOptions(t, store, localPool(0)))
	c, err := first.Add(ctx, "acme", root)
	require.NoError(t, err)
	_, err = c.Index(ctx, indexer.ModeDiff)
	require.NoError(t, err)

	_, err = c.Search(ctx, searcher.Request{Query: "gateway ledger"})
	require.NoError(t, err)
	_, err = c.Search(ctx, searcher.Request{Query: "gateway ledger", MinRelevance: 100.1})
	require.NoError(t, err)
	c.RecordSync(ctx, 2, nil)
	require.NoError(t, first.Close(ctx))

	second := NewRegistry(newOptions(t, store, localPool(0)))
	t.Cleanup(func() { _ = second.Close(ctx) })
	require.NoError(t, second.Load(ctx))
	c, err = second.Get("acme")
	require.NoError(t, err)

	h := c.Health()
	assert.Equal(t, int64(1), h.SearchHits)
	assert.Equal(t, int64(1), h.SearchMisses)
	assert.True(t, h.LastSyncOK)
	require.NotNil(t, h.LastChangeAt)
	require.NotNil(t, h.LastIndexSummary)
	assert.Equal(t, 1, h.LastIndexSummary.FilesChanged)
}

func TestContext_Migration(t *testing.T) {
	r, store := newRegistry(t)
	ctx := context.Background()
	c := addProject(t, r, "acme", map[string]string{
		"architecture/overview.md": overviewDoc,
		"bugfix-log/broken.md":     brokenDoc,
	})
	_, err := c.Index(ctx, indexer.ModeFull)
	require.NoError(t, err)
	_, err = c.Search(ctx, searcher.Request{Query: "overview"})
	require.NoError(t, err)

	_, err = c.BeginMigration(ctx, embedder.Config{Provider: "local", Model: "test-model", Dimension: 32})
	assert.ErrorIs(t, err, types.ErrSameModel)

	job, err := c.BeginMigration(ctx, embedder.Config{Provider: "local", Model: "new-model", Dimension: 48})
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	p, err := job.Wait(waitCtx)
	require.NoError(t, err)
	require.Equal(t, migration.StatusComplete, p.Status, p.Error)
	assert.Equal(t, 2, p.FilesTotal)

	live := c.Live()
	assert.Equal(t, LiveName("acme"), live.Name)
	assert.Equal(t, "new-model", live.Model)
	assert.Equal(t, 48, live.Dimension)

	resp, err := c.Search(ctx, searcher.Request{Query: "overview"})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "architecture/overview.md", resp.Results[0].Source)
	assert.False(t, resp.CacheHit)

	h := c.Health()
	assert.Equal(t, 1, h.MigrationsCompleted)
	assert.Equal(t, int64(1), h.SearchHits, "counters restart with the new generation")

	status, err := c.MigrationStatus(ctx, 10)
	require.NoError(t, err)
	require.NotNil(t, status.Current)
	assert.Equal(t, job.ID(), status.Current.JobID)
	require.Len(t, status.History, 1)

	_, err = c.CancelMigration("")
	assert.ErrorIs(t, err, types.ErrNoActiveMigration)

	colls, err := store.ListCollections(ctx, c.id)
	require.NoError(t, err)
	assert.Len(t, colls, 1)

	st, err := c.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "new-model", st.Model)
	assert.Equal(t, 2, st.Sources)
	assert.Equal(t, 1, st.Excluded)
}

func TestContext_SearchDuringMigration(t *testing.T) {
	r, store := newRegistry(t)
	ctx := context.Background()
	c := addProject(t, r, "acme", map[string]string{
		"architecture/overview.md": overviewDoc,
	})
	_, err := c.Index(ctx, indexer.ModeFull)
	require.NoError(t, err)
	captured := c.Live()

	const searchers = 8
	var (
		wg       sync.WaitGroup
		once     sync.Once
		stop     = make(chan struct{})
		searches atomic.Int64
		empty    atomic.Int64
		failures = make(chan error, searchers)
	)
	stopSearchers := func() {
		once.Do(func() { close(stop) })
		wg.Wait()
	}
	defer stopSearchers()

	for i := 0; i < searchers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				resp, err := c.Search(ctx, searcher.Request{Query: "customer orders"})
				if err != nil {
					failures <- err
					return
				}
				searches.Add(1)
				if len(resp.Results) == 0 {
					empty.Add(1)
				}
			}
		}()
	}

	for i, model := range []string{"model-a", "model-b", "model-c"} {
		job, err := c.BeginMigration(ctx, embedder.Config{Provider: embedder.ProviderLocal, Model: model, Dimension: 24 + 8*i})
		require.NoError(t, err)

		waitCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
		p, err := job.Wait(waitCtx)
		cancel()
		require.NoError(t, err)
		require.Equal(t, migration.StatusComplete, p.Status, p.Error)
		assert.Equal(t, model, c.Live().Model)
	}

	stopSearchers()
	close(failures)
	for err := range failures {
		assert.NoError(t, err)
	}
	assert.Positive(t, searches.Load())
	assert.Zero(t, empty.Load(), "every search must see a fully populated generation")

	// A handle to a replaced generation fails loudly rather than matching nothing
	_, err = captured.Count(ctx)
	assert.ErrorIs(t, err, types.ErrCollectionNotFound)

	colls, err := store.ListCollections(ctx, c.id)
	require.NoError(t, err)
	require.Len(t, colls, 1)
	assert.Equal(t, LiveName("acme"), colls[0].Name)
}

func TestOpen_HealsDimensionMismatch(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()
	root := t.TempDir()
	writeDocs(t, root, map[string]string{"architecture/overview.md": overviewDoc})

	first := NewRegistry(newOptions(t, store, localPool(0)))
	c, err := first.Add(ctx, "acme", root)
	require.NoError(t, err)
	_, err = c.Index(ctx, indexer.ModeFull)
	require.NoError(t, err)
	require.NoError(t, first.Close(ctx))

	// The embedder can no longer produce the stored 32-dimensional vectors
	second := NewRegistry(newOptions(t, store, localPool(16)))
	t.Cleanup(func() { _ = second.Close(ctx) })
	require.NoError(t, second.Load(ctx))
	c, err = second.Get("acme")
	require.NoError(t, err)

	live := c.Live()
	assert.Equal(t, 16, live.Dimension)
	n, err := live.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	sources, err := live.Sources(ctx)
	require.NoError(t, err)
	assert.Empty(t, sources)

	summary, err := c.Index(ctx, indexer.ModeDiff)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.FilesChanged, "healed collection is re-embedded")
}

func TestOpen_DropsOrphanedShadow(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	proj := &storage.Project{Name: "acme", DocsPath: t.TempDir(), CollectionName: LiveName("acme")}
	require.NoError(t, store.UpsertProject(ctx, proj))
	require.NoError(t, store.CreateCollection(ctx, &storage.Collection{
		ProjectID: proj.ID, Name: migration.ShadowName(LiveName("acme")),
		Provider: "local", Model: "new-model", Dimension: 48,
	}))

	r := NewRegistry(newOptions(t, store, localPool(0)))
	t.Cleanup(func() { _ = r.Close(ctx) })
	require.NoError(t, r.Load(ctx))

	colls, err := store.ListCollections(ctx, proj.ID)
	require.NoError(t, err)
	require.Len(t, colls, 1)
	assert.Equal(t, LiveName("acme"), colls[0].Name)
	assert.Equal(t, "test-model", colls[0].Model)
}

func TestContext_ClassifyAndBootstrap(t *testing.T) {
	r, _ := newRegistry(t)
	ctx := context.Background()
	c := addProject(t, r, "acme", map[string]string{
		"notes/api-endpoints.md": "# Endpoints\n\nThe REST endpoint returns a JSON response for each request.\n",
	})

	verdicts, err := c.Classify(ctx, []classifier.Input{{Path: "bugfix-log/x.md", Preview: "anything"}})
	require.NoError(t, err)
	require.Len(t, verdicts, 1)
	assert.Equal(t, types.CategoryBugfix, verdicts[0].Category)

	plan, err := c.Bootstrap(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, plan.Summary.TotalFiles)
	assert.Len(t, plan.Verdicts, 1)

	issues := c.CheckContent("# Fix\n\n## Root Cause\n\nThe cache was stale for too long.\n", types.CategoryBugfix)
	assert.NotEmpty(t, issues)
}
