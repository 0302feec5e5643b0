package syncer

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Project is a sync target rooted at a docs directory
type Project interface {
	Target
	DocsRoot() string
}

// ManagerConfig applies to every project a Manager runs
type ManagerConfig struct {
	Interval   time.Duration
	Watch      bool
	Debounce   time.Duration
	Extensions []string
	Logger     *slog.Logger
}

type entry struct {
	loop    *Loop
	watcher *Watcher
}

// Manager runs one Loop, and optionally one Watcher, per project
type Manager struct {
	cfg    ManagerConfig
	logger *slog.Logger

	mu      sync.Mutex
	entries map[string]*entry
}

// NewManager creates a manager with no running projects
func NewManager(cfg ManagerConfig) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:     cfg,
		logger:  logger,
		entries: make(map[string]*entry),
	}
}

// Start begins syncing p and queues a startup pass that picks up changes
// made while nothing was running. Starting a running project is a no-op.
func (m *Manager) Start(ctx context.Context, p Project) {
	m.mu.Lock()
	defer m.mu.Unlock()

	name := p.Name()
	if _, ok := m.entries[name]; ok {
		return
	}

	loop := New(Config{
		Target:   p,
		Source:   NewScanSource(p.DocsRoot(), m.cfg.Extensions),
		Interval: m.cfg.Interval,
		Logger:   m.logger,
	})
	loop.Start(ctx)
	loop.Notify(Trigger{Reason: "startup"})

	e := &entry{loop: loop}
	if m.cfg.Watch {
		w, err := NewWatcher(p.DocsRoot(), m.cfg.Extensions, m.cfg.Debounce, loop.Notify, m.logger.With(slog.String("project", name)))
		if err == nil {
			err = w.Start(ctx)
		}
		if err != nil {
			m.logger.Warn("file watcher disabled, polling only", slog.String("project", name), slog.Any("error", err))
		} else {
			e.watcher = w
		}
	}
	m.entries[name] = e
}

// Notify queues a trigger for a running project
func (m *Manager) Notify(name string, t Trigger) bool {
	m.mu.Lock()
	e, ok := m.entries[name]
	m.mu.Unlock()
	if !ok {
		return false
	}
	return e.loop.Notify(t)
}

// Stop stops syncing a project and waits for its in-flight pass
func (m *Manager) Stop(name string) {
	m.mu.Lock()
	e, ok := m.entries[name]
	delete(m.entries, name)
	m.mu.Unlock()

	if ok {
		m.stopEntry(name, e)
	}
}

// StopAll stops every project
func (m *Manager) StopAll() {
	m.mu.Lock()
	entries := m.entries
	m.entries = make(map[string]*entry)
	m.mu.Unlock()

	for name, e := range entries {
		m.stopEntry(name, e)
	}
}

// Running lists the synced projects by name
func (m *Manager) Running() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.entries))
	for name := range m.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m *Manager) stopEntry(name string, e *entry) {
	if e.watcher != nil {
		if err := e.watcher.Stop(); err != nil {
			m.logger.Warn("failed to stop file watcher", slog.String("project", name), slog.Any("error", err))
		}
	}
	e.loop.Stop()
}
