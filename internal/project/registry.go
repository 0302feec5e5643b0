// Package project provides multi-tenancy: a Registry of isolated project
// Contexts, each owning one live collection, one index lock and its own
// health counters. Only the store and the pooled embedders are shared.
package project

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"

	"github.com/dl4rce/flaiwheel/internal/config"
	"github.com/dl4rce/flaiwheel/internal/storage"
	"github.com/dl4rce/flaiwheel/pkg/types"
)

// DefaultProject is resolved when no name is given and several projects exist
const DefaultProject = "default"

// Registry owns the open project contexts
type Registry struct {
	opts   Options
	logger *slog.Logger

	mu       sync.RWMutex
	contexts map[string]*Context
}

// NewRegistry creates an empty registry; call Load to open stored projects
func NewRegistry(opts Options) *Registry {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
		opts.Logger = logger
	}
	return &Registry{
		opts:     opts,
		logger:   logger,
		contexts: make(map[string]*Context),
	}
}

// Load opens every stored project. A project that fails to open is logged
// and skipped so one broken tenant cannot take the others down.
func (r *Registry) Load(ctx context.Context) error {
	projects, err := r.opts.Store.ListProjects(ctx)
	if err != nil {
		return fmt.Errorf("list projects: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range projects {
		if _, ok := r.contexts[p.Name]; ok {
			continue
		}
		c, err := open(ctx, r.opts, p)
		if err != nil {
			r.logger.Error("failed to open project", slog.String("project", p.Name), slog.Any("error", err))
			continue
		}
		r.contexts[p.Name] = c
	}
	return nil
}

// Add registers a new project
func (r *Registry) Add(ctx context.Context, name, docsPath string) (*Context, error) {
	if err := config.ValidateProjectName(name); err != nil {
		return nil, err
	}
	if docsPath == "" {
		return nil, fmt.Errorf("%w: docs path is required", types.ErrInvalidInput)
	}
	abs, err := filepath.Abs(docsPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidInput, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.contexts[name]; ok {
		return nil, fmt.Errorf("%w: %s", types.ErrProjectExists, name)
	}
	if _, err := r.opts.Store.GetProject(ctx, name); err == nil {
		return nil, fmt.Errorf("%w: %s", types.ErrProjectExists, name)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	return r.openLocked(ctx, &storage.Project{Name: name, DocsPath: abs, CollectionName: LiveName(name)})
}

// Ensure registers a project declared in configuration, or updates the docs
// path of an existing one. A changed path reopens the project.
func (r *Registry) Ensure(ctx context.Context, name, docsPath string) (*Context, error) {
	if err := config.ValidateProjectName(name); err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(docsPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidInput, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.contexts[name]; ok {
		if c.docsRoot == abs {
			return c, nil
		}
		if err := c.Close(ctx); err != nil {
			r.logger.Warn("failed to close project", slog.String("project", name), slog.Any("error", err))
		}
		delete(r.contexts, name)
	}

	collection := LiveName(name)
	if p, err := r.opts.Store.GetProject(ctx, name); err == nil {
		collection = p.CollectionName
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	return r.openLocked(ctx, &storage.Project{Name: name, DocsPath: abs, CollectionName: collection})
}

func (r *Registry) openLocked(ctx context.Context, p *storage.Project) (*Context, error) {
	if err := r.opts.Store.UpsertProject(ctx, p); err != nil {
		return nil, err
	}
	c, err := open(ctx, r.opts, p)
	if err != nil {
		return nil, err
	}
	r.contexts[p.Name] = c
	r.logger.Info("project registered", slog.String("project", p.Name), slog.String("docs_path", p.DocsPath))
	return c, nil
}

// Remove closes a project and deletes its collections, fingerprints and
// health. The docs directory is left untouched.
func (r *Registry) Remove(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.contexts[name]
	if !ok {
		return fmt.Errorf("%w: %s", types.ErrProjectNotFound, name)
	}
	if err := c.Close(ctx); err != nil {
		r.logger.Warn("failed to close project", slog.String("project", name), slog.Any("error", err))
	}
	delete(r.contexts, name)

	if err := r.opts.Store.DeleteProject(ctx, name); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("delete project %s: %w", name, err)
	}
	r.logger.Info("project removed", slog.String("project", name))
	return nil
}

// Get returns the named project
func (r *Registry) Get(name string) (*Context, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.contexts[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrProjectNotFound, name)
	}
	return c, nil
}

// Resolve returns the named project. An empty name selects the only
// registered project, or DefaultProject when there are several.
func (r *Registry) Resolve(name string) (*Context, error) {
	if name != "" {
		return r.Get(name)
	}

	r.mu.RLock()
	n := len(r.contexts)
	var only *Context
	for _, c := range r.contexts {
		only = c
	}
	r.mu.RUnlock()

	switch n {
	case 0:
		return nil, fmt.Errorf("%w: no projects registered", types.ErrProjectNotFound)
	case 1:
		return only, nil
	default:
		return r.Get(DefaultProject)
	}
}

// List returns the projects sorted by name
func (r *Registry) List() []*Context {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Context, 0, len(r.contexts))
	for _, c := range r.contexts {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// Close closes every project. The store and the embedder pool belong to the
// caller.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for name, c := range r.contexts {
		if err := c.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
		delete(r.contexts, name)
	}
	return errors.Join(errs...)
}
