package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dl4rce/flaiwheel/internal/classifier"
	"github.com/dl4rce/flaiwheel/internal/embedder"
	"github.com/dl4rce/flaiwheel/internal/indexer"
	"github.com/dl4rce/flaiwheel/internal/logging"
	"github.com/dl4rce/flaiwheel/internal/project"
	"github.com/dl4rce/flaiwheel/internal/searcher"
	"github.com/dl4rce/flaiwheel/internal/storage"
	"github.com/dl4rce/flaiwheel/pkg/types"
)

const architectureDoc = `# Architecture Overview

The overview describes how the gateway, the ledger and the notification
service cooperate to process customer orders from checkout to settlement.
`

const incompleteBugfix = `# Broken login

## Root Cause

The session token expired before the redirect completed on slow networks.

## Lesson Learned

Always test token lifetimes with throttled connections enabled.
`

type toolHandler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error)

func newTestServer(t *testing.T, hooks Hooks) (*Server, *project.Registry) {
	t.Helper()
	logger := logging.Discard()

	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	idx, err := indexer.New(indexer.Config{Workers: 2}, logger)
	require.NoError(t, err)
	cls, err := classifier.New(classifier.Config{Workers: 2}, logger)
	require.NoError(t, err)

	pool := embedder.NewPoolWithFactory(func(cfg embedder.Config) (embedder.Embedder, error) {
		return embedder.NewLocalProvider(cfg.Model, cfg.Dimension, nil)
	})

	registry := project.NewRegistry(project.Options{
		Store:      store,
		Embedders:  pool,
		Embedding:  embedder.Config{Provider: embedder.ProviderLocal, Model: "test-model", Dimension: 32},
		Indexer:    idx,
		Classifier: cls,
		Search:     searcher.Config{},
		Logger:     logger,
	})
	t.Cleanup(func() { _ = registry.Close(context.Background()) })

	return NewServer(registry, Options{Version: "test", Logger: logger, Hooks: hooks}), registry
}

func docsTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"architecture/overview.md": architectureDoc,
		"bugfix-log/broken.md":     incompleteBugfix,
	}
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

func call(t *testing.T, handler toolHandler, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	result, err := handler(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, result)
	return result
}

func decode(t *testing.T, result *mcp.CallToolResult) map[string]interface{} {
	t.Helper()
	require.NotEmpty(t, result.Content)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content")

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(text.Text), &out), text.Text)
	return out
}

func success(t *testing.T, handler toolHandler, args map[string]interface{}) map[string]interface{} {
	t.Helper()
	result := call(t, handler, args)
	body := decode(t, result)
	require.False(t, result.IsError, "unexpected tool error: %v", body)
	return body
}

func failure(t *testing.T, handler toolHandler, args map[string]interface{}) int {
	t.Helper()
	result := call(t, handler, args)
	body := decode(t, result)
	require.True(t, result.IsError, "expected tool error, got %v", body)
	code, ok := body["code"].(float64)
	require.True(t, ok, "error body without code: %v", body)
	return int(code)
}

func TestServer_ListsAllTools(t *testing.T) {
	s, _ := newTestServer(t, Hooks{})

	msg := json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"tools/list","params":{}}`)
	resp := s.MCPServer().HandleMessage(context.Background(), msg)
	raw, err := json.Marshal(resp)
	require.NoError(t, err)

	for _, name := range []string{
		"search_docs", "reindex", "get_index_status", "check_knowledge_quality", "validate_doc",
		"classify_documents", "analyze_knowledge_repo", "begin_migration", "migration_status",
		"cancel_migration", "list_projects", "add_project", "remove_project",
	} {
		assert.Contains(t, string(raw), fmt.Sprintf("%q", name))
	}
}

func TestTools_ProjectLifecycle(t *testing.T) {
	var added, removed []string
	s, registry := newTestServer(t, Hooks{
		ProjectAdded:   func(c *project.Context) { added = append(added, c.Name()) },
		ProjectRemoved: func(name string) { removed = append(removed, name) },
	})
	root := docsTree(t)

	body := success(t, s.handleAddProject, map[string]interface{}{"name": "acme", "docs_path": root})
	assert.Equal(t, "acme", body["project"])
	summary, ok := body["summary"].(map[string]interface{})
	require.True(t, ok, "initial index summary missing: %v", body)
	assert.EqualValues(t, 2, summary["files_scanned"])
	assert.Equal(t, []string{"acme"}, added)

	code := failure(t, s.handleAddProject, map[string]interface{}{"name": "acme", "docs_path": root})
	assert.Equal(t, ErrorCodeInvalidParams, code)

	body = success(t, s.handleListProjects, nil)
	assert.EqualValues(t, 1, body["count"])

	body = success(t, s.handleSearchDocs, map[string]interface{}{"query": "gateway ledger settlement"})
	results, ok := body["results"].([]interface{})
	require.True(t, ok)
	require.NotEmpty(t, results)
	first := results[0].(map[string]interface{})
	assert.Equal(t, "architecture/overview.md", first["source"])
	assert.Contains(t, first, "relevance_percent")

	body = success(t, s.handleGetIndexStatus, map[string]interface{}{"project": "acme"})
	assert.Equal(t, "acme", body["project"])
	assert.Greater(t, body["chunks"], float64(0))

	body = success(t, s.handleReindex, map[string]interface{}{"force": true})
	summary = body["summary"].(map[string]interface{})
	assert.Equal(t, string(indexer.ModeFull), summary["mode"])

	_, err := registry.Get("acme")
	require.NoError(t, err)
	body = success(t, s.handleRemoveProject, map[string]interface{}{"name": "acme"})
	assert.Equal(t, true, body["removed"])
	assert.Equal(t, []string{"acme"}, removed)

	_, err = os.Stat(filepath.Join(root, "architecture", "overview.md"))
	assert.NoError(t, err, "docs must survive project removal")

	code = failure(t, s.handleSearchDocs, map[string]interface{}{"query": "gateway", "project": "acme"})
	assert.Equal(t, ErrorCodeProjectNotFound, code)
	code = failure(t, s.handleRemoveProject, map[string]interface{}{"name": "acme"})
	assert.Equal(t, ErrorCodeProjectNotFound, code)
}

func TestTools_QualityAndClassification(t *testing.T) {
	s, registry := newTestServer(t, Hooks{})
	_, err := registry.Add(context.Background(), "acme", docsTree(t))
	require.NoError(t, err)

	body := success(t, s.handleCheckKnowledgeQuality, nil)
	assert.Equal(t, "acme", body["project"])
	assert.Less(t, body["score"], float64(100))
	issues, ok := body["issues"].([]interface{})
	require.True(t, ok)
	assert.NotEmpty(t, issues)

	body = success(t, s.handleValidateDoc, map[string]interface{}{"content": incompleteBugfix, "category": "bugfix"})
	assert.Equal(t, false, body["valid"])
	assert.NotEmpty(t, body["issues"])

	body = success(t, s.handleClassifyDocuments, map[string]interface{}{
		"files": []interface{}{
			map[string]interface{}{"path": "bugfix-log/login.md", "content": incompleteBugfix},
			map[string]interface{}{"path": "architecture/system.md", "content": architectureDoc},
		},
	})
	verdicts, ok := body["verdicts"].([]interface{})
	require.True(t, ok)
	require.Len(t, verdicts, 2)
	assert.Equal(t, "bugfix", verdicts[0].(map[string]interface{})["category"])
	assert.Equal(t, "architecture", verdicts[1].(map[string]interface{})["category"])

	body = success(t, s.handleAnalyzeKnowledgeRepo, nil)
	assert.Equal(t, "acme", body["project"])
	plan, ok := body["summary"].(map[string]interface{})
	require.True(t, ok)
	assert.EqualValues(t, 2, plan["total_files"])
}

func TestTools_Migration(t *testing.T) {
	s, registry := newTestServer(t, Hooks{})
	c, err := registry.Add(context.Background(), "acme", docsTree(t))
	require.NoError(t, err)
	_, err = c.Index(context.Background(), indexer.ModeDiff)
	require.NoError(t, err)

	code := failure(t, s.handleBeginMigration, map[string]interface{}{"provider": "local", "model": "test-model", "dimension": 32})
	assert.Equal(t, ErrorCodeInvalidParams, code, "same model is rejected")

	code = failure(t, s.handleCancelMigration, nil)
	assert.Equal(t, ErrorCodeNoActiveMigration, code)

	body := success(t, s.handleBeginMigration, map[string]interface{}{"provider": "local", "model": "next-model", "dimension": 48})
	progress := body["migration"].(map[string]interface{})
	jobID, _ := progress["job_id"].(string)
	require.NotEmpty(t, jobID)

	require.Eventually(t, func() bool {
		return c.Live().Model == "next-model"
	}, 5*time.Second, 20*time.Millisecond)

	body = success(t, s.handleMigrationStatus, nil)
	history, ok := body["history"].([]interface{})
	require.True(t, ok)
	require.NotEmpty(t, history)
	assert.Equal(t, jobID, history[0].(map[string]interface{})["job_id"])

	body = success(t, s.handleGetIndexStatus, nil)
	assert.Equal(t, "next-model", body["model"])
	assert.EqualValues(t, 48, body["dimension"])
}

func TestTools_InvalidParams(t *testing.T) {
	s, registry := newTestServer(t, Hooks{})

	code := failure(t, s.handleSearchDocs, map[string]interface{}{"query": "anything"})
	assert.Equal(t, ErrorCodeProjectNotFound, code, "no projects registered")

	_, err := registry.Add(context.Background(), "acme", docsTree(t))
	require.NoError(t, err)

	tests := []struct {
		name    string
		handler toolHandler
		args    map[string]interface{}
		code    int
	}{
		{"empty query", s.handleSearchDocs, map[string]interface{}{"query": "   "}, ErrorCodeEmptyQuery},
		{"missing query", s.handleSearchDocs, nil, ErrorCodeEmptyQuery},
		{"top_k too large", s.handleSearchDocs, map[string]interface{}{"query": "x", "top_k": 500}, ErrorCodeInvalidParams},
		{"unknown category", s.handleSearchDocs, map[string]interface{}{"query": "x", "category": "poetry"}, ErrorCodeInvalidParams},
		{"unknown mode", s.handleSearchDocs, map[string]interface{}{"query": "x", "search_mode": "fuzzy"}, ErrorCodeInvalidParams},
		{"not indexed", s.handleSearchDocs, map[string]interface{}{"query": "gateway"}, ErrorCodeNotIndexed},
		{"unknown project", s.handleGetIndexStatus, map[string]interface{}{"project": "nope"}, ErrorCodeProjectNotFound},
		{"empty content", s.handleValidateDoc, map[string]interface{}{"content": ""}, ErrorCodeInvalidParams},
		{"no files", s.handleClassifyDocuments, map[string]interface{}{"files": []interface{}{}}, ErrorCodeInvalidParams},
		{"file without path", s.handleClassifyDocuments, map[string]interface{}{"files": []interface{}{map[string]interface{}{"content": "x"}}}, ErrorCodeInvalidParams},
		{"missing model", s.handleBeginMigration, map[string]interface{}{"provider": "local"}, ErrorCodeInvalidParams},
		{"relative docs path", s.handleAddProject, map[string]interface{}{"name": "beta", "docs_path": "docs"}, ErrorCodeInvalidParams},
		{"missing docs path", s.handleAddProject, map[string]interface{}{"name": "beta", "docs_path": filepath.Join(t.TempDir(), "missing")}, ErrorCodeInvalidParams},
		{"bad project name", s.handleAddProject, map[string]interface{}{"name": "../beta", "docs_path": t.TempDir()}, ErrorCodeInvalidParams},
		{"missing name", s.handleRemoveProject, nil, ErrorCodeInvalidParams},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, failure(t, tt.handler, tt.args))
		})
	}
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{fmt.Errorf("wrap: %w", types.ErrProjectNotFound), ErrorCodeProjectNotFound},
		{types.ErrIndexInProgress, ErrorCodeIndexingInProgress},
		{types.ErrNotIndexed, ErrorCodeNotIndexed},
		{types.ErrEmptyQuery, ErrorCodeEmptyQuery},
		{types.ErrMigrationInProgress, ErrorCodeMigrationInProgress},
		{types.ErrNoActiveMigration, ErrorCodeNoActiveMigration},
		{types.ErrSameModel, ErrorCodeInvalidParams},
		{types.ErrProjectExists, ErrorCodeInvalidParams},
		{embedder.ErrUnsupportedModel, ErrorCodeInvalidParams},
		{errors.New("disk full"), ErrorCodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.code, errorCode(tt.err))
		})
	}
}

func TestValidateDocsPath(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "file.md")
	require.NoError(t, os.WriteFile(file, []byte("# x"), 0o644))

	assert.ErrorIs(t, validateDocsPath(""), ErrPathRequired)
	assert.ErrorIs(t, validateDocsPath("relative"), ErrPathNotAbsolute)
	assert.ErrorIs(t, validateDocsPath(filepath.Join(dir, "missing")), ErrPathNotFound)
	assert.ErrorIs(t, validateDocsPath(file), ErrNotDirectory)
	assert.NoError(t, validateDocsPath(dir))
}
