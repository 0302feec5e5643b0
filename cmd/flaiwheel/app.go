package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dl4rce/flaiwheel/internal/classifier"
	"github.com/dl4rce/flaiwheel/internal/config"
	"github.com/dl4rce/flaiwheel/internal/embedder"
	"github.com/dl4rce/flaiwheel/internal/indexer"
	"github.com/dl4rce/flaiwheel/internal/project"
	"github.com/dl4rce/flaiwheel/internal/storage"
)

// app is the composition root shared by the commands that need the store
type app struct {
	store    storage.Storage
	pool     *embedder.Pool
	registry *project.Registry
	logger   *slog.Logger
}

// openApp opens the store, loads the stored projects and registers the
// projects declared in cfg
func openApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	store, err := storage.NewSQLiteStorage(cfg.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	idx, err := indexer.New(cfg.IndexerConfig(), logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	cls, err := classifier.New(cfg.ClassifierConfig(), logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	pool := embedder.NewPool()
	registry := project.NewRegistry(project.Options{
		Store:      store,
		Embedders:  pool,
		Embedding:  cfg.EmbedderConfig(),
		Indexer:    idx,
		Classifier: cls,
		Search:     cfg.SearcherConfig(),
		LockDir:    cfg.LockDir(),
		Logger:     logger,
	})

	a := &app{store: store, pool: pool, registry: registry, logger: logger}

	if err := registry.Load(ctx); err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	for _, p := range cfg.Projects {
		if _, err := registry.Ensure(ctx, p.Name, p.DocsPath); err != nil {
			_ = a.Close(ctx)
			return nil, fmt.Errorf("register project %s: %w", p.Name, err)
		}
	}
	return a, nil
}

// Close closes the projects, then the embedders, then the store
func (a *app) Close(ctx context.Context) error {
	return errors.Join(
		a.registry.Close(context.WithoutCancel(ctx)),
		a.pool.Close(),
		a.store.Close(),
	)
}
