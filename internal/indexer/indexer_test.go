package indexer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dl4rce/flaiwheel/internal/docs"
	"github.com/dl4rce/flaiwheel/internal/embedder"
	"github.com/dl4rce/flaiwheel/internal/storage"
	"github.com/dl4rce/flaiwheel/internal/vectorstore"
)

// mockEmbedder wraps the local provider with a call counter and a failure hook
type mockEmbedder struct {
	*embedder.LocalProvider

	mu     sync.Mutex
	texts  int
	failOn func(text string) error
}

func newMockEmbedder(t testing.TB) *mockEmbedder {
	t.Helper()
	local, err := embedder.NewLocalProvider("", 32, nil)
	require.NoError(t, err)
	return &mockEmbedder{LocalProvider: local}
}

func (m *mockEmbedder) GenerateBatch(ctx context.Context, req embedder.BatchEmbeddingRequest) (*embedder.BatchEmbeddingResponse, error) {
	m.mu.Lock()
	failOn := m.failOn
	m.mu.Unlock()

	if failOn != nil {
		for _, text := range req.Texts {
			if err := failOn(text); err != nil {
				return nil, err
			}
		}
	}

	resp, err := m.LocalProvider.GenerateBatch(ctx, req)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.texts += len(req.Texts)
	m.mu.Unlock()
	return resp, nil
}

func (m *mockEmbedder) setFailure(fn func(text string) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failOn = fn
}

func (m *mockEmbedder) getCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.texts
}

// setupTestStorage creates an in-memory SQLite database for testing
func setupTestStorage(t testing.TB) storage.Storage {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err, "Failed to create test storage")
	t.Cleanup(func() { _ = store.Close() })

	return store
}

type fixture struct {
	root string
	emb  *mockEmbedder
	coll *vectorstore.Collection
	idx  *Indexer
}

func setupFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := setupTestStorage(t)

	project := &storage.Project{Name: "acme", DocsPath: "/docs", CollectionName: "proj_acme"}
	require.NoError(t, store.UpsertProject(ctx, project))

	emb := newMockEmbedder(t)
	coll, err := vectorstore.Create(ctx, store, project.ID, "proj_acme", emb)
	require.NoError(t, err)

	idx, err := New(Config{Workers: 2}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	return &fixture{root: t.TempDir(), emb: emb, coll: coll, idx: idx}
}

func (f *fixture) write(t *testing.T, rel, content string) {
	t.Helper()
	path := filepath.Join(f.root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func (f *fixture) remove(t *testing.T, rel string) {
	t.Helper()
	require.NoError(t, os.Remove(filepath.Join(f.root, filepath.FromSlash(rel))))
}

func (f *fixture) index(t *testing.T, mode Mode) *Summary {
	t.Helper()
	summary, err := f.idx.Index(context.Background(), f.root, f.coll, mode, Options{})
	require.NoError(t, err)
	return summary
}

const overviewDoc = `# Overview

The payment service accepts orders and forwards them to the ledger.

## Components

The gateway validates requests and the worker settles payments nightly.
`

const bugfixDoc = `# Login timeout

The login endpoint timed out under load after the pool change.

## Root Cause

The connection pool was capped at two connections by mistake.

## Solution

Raised the pool limit and added a regression alert on wait time.

## Lesson Learned

Review pool settings whenever the deployment topology changes.
`

// brokenDoc is a bugfix entry without a solution section
var brokenDoc = strings.Replace(bugfixDoc,
	"## Solution\n\nRaised the pool limit and added a regression alert on wait time.\n\n", "", 1)

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"", ModeDiff, false},
		{"diff", ModeDiff, false},
		{" FULL ", ModeFull, false},
		{"partial", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIndex_FullPass(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	f.write(t, "architecture/overview.md", overviewDoc)
	f.write(t, "bugfix-log/broken.md", brokenDoc)

	summary := f.index(t, ModeFull)

	assert.Equal(t, ModeFull, summary.Mode)
	assert.Equal(t, 2, summary.FilesScanned)
	assert.Equal(t, 1, summary.FilesChanged)
	assert.Equal(t, 1, summary.FilesExcluded)
	assert.Equal(t, 0, summary.FilesFailed)
	assert.Equal(t, 2, summary.ChunksUpserted)
	assert.Equal(t, 1, summary.Quality.Critical)
	assert.Empty(t, summary.Errors)

	count, err := f.coll.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	results, err := f.coll.QueryText(ctx, "pool", 10, nil)
	require.NoError(t, err)
	assert.Empty(t, results, "excluded documents are not searchable")

	content, err := os.ReadFile(filepath.Join(f.root, "bugfix-log", "broken.md"))
	require.NoError(t, err)
	assert.Equal(t, brokenDoc, string(content), "excluded document must stay untouched on disk")

	sources, err := f.coll.Sources(ctx)
	require.NoError(t, err)
	require.Contains(t, sources, "bugfix-log/broken.md")
	assert.True(t, sources["bugfix-log/broken.md"].Excluded)
	assert.Len(t, sources["architecture/overview.md"].ChunkIDs, 2)
}

func TestIndex_DiffSkipsUnchanged(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	f.write(t, "architecture/overview.md", overviewDoc)
	f.write(t, "bugfix-log/broken.md", brokenDoc)

	f.index(t, ModeDiff)
	calls := f.emb.getCallCount()
	before, err := f.coll.Sources(ctx)
	require.NoError(t, err)

	summary := f.index(t, ModeDiff)
	assert.Equal(t, 2, summary.FilesSkipped)
	assert.Equal(t, 0, summary.FilesChanged)
	assert.Equal(t, 0, summary.ChunksUpserted)
	assert.Equal(t, calls, f.emb.getCallCount(), "unchanged documents must not be embedded")

	after, err := f.coll.Sources(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestIndex_DiffReembedsChanged(t *testing.T) {
	f := setupFixture(t)
	f.write(t, "architecture/overview.md", overviewDoc)
	f.write(t, "architecture/storage.md", strings.ReplaceAll(overviewDoc, "payment", "storage"))
	f.index(t, ModeDiff)
	calls := f.emb.getCallCount()

	f.write(t, "architecture/overview.md", overviewDoc+"\n## Deployment\n\nThe service runs as three replicas behind the regional load balancer.\n")
	summary := f.index(t, ModeDiff)

	assert.Equal(t, 1, summary.FilesChanged)
	assert.Equal(t, 1, summary.FilesSkipped)
	assert.Equal(t, 3, summary.ChunksUpserted)
	assert.Equal(t, calls+3, f.emb.getCallCount())
}

func TestIndex_FullReembedsEverything(t *testing.T) {
	f := setupFixture(t)
	f.write(t, "architecture/overview.md", overviewDoc)
	f.index(t, ModeDiff)
	calls := f.emb.getCallCount()

	summary := f.index(t, ModeFull)
	assert.Equal(t, 1, summary.FilesChanged)
	assert.Equal(t, 0, summary.FilesSkipped)
	assert.Equal(t, 0, summary.ChunksRemoved, "same chunk ids are replaced in place")
	assert.Equal(t, calls+2, f.emb.getCallCount())
}

func TestIndex_DeletionPropagation(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	f.write(t, "architecture/overview.md", overviewDoc)
	f.write(t, "bugfix-log/login.md", bugfixDoc)
	f.index(t, ModeFull)

	results, err := f.coll.QueryText(ctx, "ledger", 10, nil)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	f.remove(t, "architecture/overview.md")
	summary := f.index(t, ModeFull)

	assert.Equal(t, 1, summary.FilesRemoved)
	assert.Equal(t, 2, summary.ChunksRemoved)

	results, err = f.coll.QueryText(ctx, "ledger", 10, nil)
	require.NoError(t, err)
	assert.Empty(t, results)

	sources, err := f.coll.Sources(ctx)
	require.NoError(t, err)
	assert.NotContains(t, sources, "architecture/overview.md")
	assert.Contains(t, sources, "bugfix-log/login.md")
}

func TestIndex_EmptyScanKeepsCollection(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	f.write(t, "architecture/overview.md", overviewDoc)
	f.index(t, ModeDiff)

	f.remove(t, "architecture/overview.md")
	summary := f.index(t, ModeDiff)

	assert.True(t, summary.RemovalSkipped)
	assert.Equal(t, 0, summary.FilesRemoved)

	count, err := f.coll.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestIndex_CriticalRemovesPriorChunks(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	f.write(t, "bugfix-log/login.md", bugfixDoc)
	first := f.index(t, ModeDiff)
	require.Equal(t, 1, first.FilesChanged)

	f.write(t, "bugfix-log/login.md", brokenDoc)
	summary := f.index(t, ModeDiff)

	assert.Equal(t, 1, summary.FilesExcluded)
	assert.Equal(t, first.ChunksUpserted, summary.ChunksRemoved)

	count, err := f.coll.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	// An unchanged excluded document is not evaluated again
	again := f.index(t, ModeDiff)
	assert.Equal(t, 1, again.FilesSkipped)
	assert.Equal(t, 0, again.Quality.Critical)
}

func TestIndex_EmbeddingFailureIsRetried(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	f.write(t, "architecture/overview.md", overviewDoc)
	f.write(t, "bugfix-log/login.md", bugfixDoc)

	f.emb.setFailure(func(text string) error {
		if strings.Contains(text, "gateway") {
			return errors.New("provider unavailable")
		}
		return nil
	})

	summary := f.index(t, ModeDiff)
	assert.Equal(t, 1, summary.FilesFailed)
	assert.Equal(t, 1, summary.FilesChanged)
	require.Len(t, summary.Errors, 1)
	assert.Contains(t, summary.Errors[0], "architecture/overview.md")

	_, ok, err := f.coll.Tracker().Lookup(ctx, "architecture/overview.md")
	require.NoError(t, err)
	assert.False(t, ok, "failed documents keep no fingerprint")

	f.emb.setFailure(nil)
	summary = f.index(t, ModeDiff)
	assert.Equal(t, 1, summary.FilesChanged)
	assert.Equal(t, 1, summary.FilesSkipped)
	assert.Equal(t, 0, summary.FilesFailed)
}

func TestIndex_UnsupportedFilesIgnored(t *testing.T) {
	f := setupFixture(t)
	f.write(t, "architecture/overview.md", overviewDoc)
	f.write(t, "architecture/diagram.png", "not text")
	f.write(t, ".git/HEAD.md", overviewDoc)

	summary := f.index(t, ModeDiff)
	assert.Equal(t, 1, summary.FilesScanned)
}

func TestIndex_MissingRoot(t *testing.T) {
	f := setupFixture(t)
	_, err := f.idx.Index(context.Background(), filepath.Join(f.root, "absent"), f.coll, ModeDiff, Options{})
	assert.ErrorIs(t, err, docs.ErrRootMissing)
}

func TestIndex_Progress(t *testing.T) {
	f := setupFixture(t)
	f.write(t, "architecture/overview.md", overviewDoc)
	f.write(t, "bugfix-log/login.md", bugfixDoc)
	f.write(t, "bugfix-log/broken.md", brokenDoc)

	var (
		mu    sync.Mutex
		seen  []string
		total []int
	)
	_, err := f.idx.Index(context.Background(), f.root, f.coll, ModeFull, Options{
		OnProgress: func(p Progress) {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, p.Path)
			total = append(total, p.Total)
		},
	})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"architecture/overview.md", "bugfix-log/login.md", "bugfix-log/broken.md"}, seen)
	assert.Equal(t, []int{3, 3, 3}, total)
}

func TestIndexFiles_CancelledBetweenFiles(t *testing.T) {
	f := setupFixture(t)
	idx, err := New(Config{Workers: 1}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	f.write(t, "architecture/a.md", overviewDoc)
	f.write(t, "architecture/b.md", overviewDoc)
	f.write(t, "architecture/c.md", overviewDoc)
	files, err := idx.Discover(f.root)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	summary, err := idx.IndexFiles(ctx, f.coll, files, ModeFull, Options{
		OnProgress: func(Progress) { cancel() },
	})
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, summary)
	assert.Equal(t, 1, summary.FilesChanged, "the document in flight is finished, later ones are not started")

	sources, err := f.coll.Sources(context.Background())
	require.NoError(t, err)
	assert.Len(t, sources, 1)
}

func TestIndex_ConcurrentWorkers(t *testing.T) {
	f := setupFixture(t)
	for i := 0; i < 20; i++ {
		f.write(t, filepath.Join("architecture", "doc"+strings.Repeat("x", i)+".md"), overviewDoc)
	}

	summary := f.index(t, ModeFull)
	assert.Equal(t, 20, summary.FilesChanged)
	assert.Equal(t, 40, summary.ChunksUpserted)

	count, err := f.coll.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 40, count)
}

func TestIndexFiles_FailFast(t *testing.T) {
	f := setupFixture(t)
	f.write(t, "architecture/overview.md", overviewDoc)
	f.write(t, "bugfix-log/login.md", bugfixDoc)
	f.emb.setFailure(func(string) error { return errors.New("quota exceeded") })

	summary, err := f.idx.Index(context.Background(), f.root, f.coll, ModeFull, Options{FailFast: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
	assert.NotErrorIs(t, err, context.Canceled)
	require.NotNil(t, summary)
	assert.Zero(t, summary.FilesChanged)
	assert.GreaterOrEqual(t, summary.FilesFailed, 1)
}

func TestIndex_ProgressChunks(t *testing.T) {
	f := setupFixture(t)
	f.write(t, "architecture/overview.md", overviewDoc)

	var got Progress
	_, err := f.idx.Index(context.Background(), f.root, f.coll, ModeFull, Options{
		OnProgress: func(p Progress) { got = p },
	})
	require.NoError(t, err)
	assert.Equal(t, Progress{Done: 1, Total: 1, Path: "architecture/overview.md", Chunks: 2}, got)
}
