package project

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dl4rce/flaiwheel/internal/indexer"
	"github.com/dl4rce/flaiwheel/internal/storage"
)

// Health holds the counters of one project. It is persisted as JSON and
// restored when the project is opened again.
type Health struct {
	LastIndexAt         *time.Time       `json:"last_index_at,omitempty"`
	LastIndexOK         bool             `json:"last_index_ok"`
	LastIndexError      string           `json:"last_index_error,omitempty"`
	LastIndexSummary    *indexer.Summary `json:"last_index_summary,omitempty"`
	LastChangeAt        *time.Time       `json:"last_change_at,omitempty"`
	LastSyncAt          *time.Time       `json:"last_sync_at,omitempty"`
	LastSyncOK          bool             `json:"last_sync_ok"`
	LastSyncError       string           `json:"last_sync_error,omitempty"`
	SearchHits          int64            `json:"search_hits"`
	SearchMisses        int64            `json:"search_misses"`
	LastQualityScore    *int             `json:"last_quality_score,omitempty"`
	LastQualityAt       *time.Time       `json:"last_quality_at,omitempty"`
	MigrationsCompleted int              `json:"migrations_completed"`
}

// healthTracker serializes updates to Health and remembers whether the
// stored copy is stale.
type healthTracker struct {
	mu    sync.Mutex
	h     Health
	dirty bool
	now   func() time.Time
}

func newHealthTracker(now func() time.Time) *healthTracker {
	return &healthTracker{now: now}
}

func (t *healthTracker) snapshot() Health {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.h
}

func (t *healthTracker) update(fn func(h *Health, now time.Time)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(&t.h, t.now().UTC())
	t.dirty = true
}

func (t *healthTracker) recordIndex(summary *indexer.Summary, err error) {
	t.update(func(h *Health, now time.Time) {
		h.LastIndexAt = &now
		h.LastIndexOK = err == nil
		h.LastIndexError = ""
		if err != nil {
			h.LastIndexError = err.Error()
		}
		if summary != nil {
			h.LastIndexSummary = summary
			if summary.FilesChanged > 0 || summary.FilesRemoved > 0 {
				h.LastChangeAt = &now
			}
		}
	})
}

func (t *healthTracker) recordSearch(hit bool) {
	t.update(func(h *Health, _ time.Time) {
		if hit {
			h.SearchHits++
		} else {
			h.SearchMisses++
		}
	})
}

func (t *healthTracker) recordSync(changes int, err error) {
	t.update(func(h *Health, now time.Time) {
		h.LastSyncAt = &now
		h.LastSyncOK = err == nil
		h.LastSyncError = ""
		if err != nil {
			h.LastSyncError = err.Error()
		}
		if changes > 0 {
			h.LastChangeAt = &now
		}
	})
}

func (t *healthTracker) recordQuality(score int) {
	t.update(func(h *Health, now time.Time) {
		h.LastQualityScore = &score
		h.LastQualityAt = &now
	})
}

// recordMigration starts a new collection generation: search counters and
// the last pass belong to the replaced collection.
func (t *healthTracker) recordMigration() {
	t.update(func(h *Health, now time.Time) {
		completed := h.MigrationsCompleted + 1
		*h = Health{
			LastIndexAt:         &now,
			LastIndexOK:         true,
			LastChangeAt:        h.LastChangeAt,
			LastSyncAt:          h.LastSyncAt,
			LastSyncOK:          h.LastSyncOK,
			LastSyncError:       h.LastSyncError,
			LastQualityScore:    h.LastQualityScore,
			LastQualityAt:       h.LastQualityAt,
			MigrationsCompleted: completed,
		}
	})
}

func (t *healthTracker) load(ctx context.Context, store storage.Storage, projectID int64) error {
	payload, err := store.GetHealth(ctx, projectID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load health: %w", err)
	}

	var h Health
	if err := json.Unmarshal(payload, &h); err != nil {
		return fmt.Errorf("decode health: %w", err)
	}

	t.mu.Lock()
	t.h = h
	t.dirty = false
	t.mu.Unlock()
	return nil
}

// save writes the counters if they changed since the last save
func (t *healthTracker) save(ctx context.Context, store storage.Storage, projectID int64) error {
	t.mu.Lock()
	if !t.dirty {
		t.mu.Unlock()
		return nil
	}
	payload, err := json.Marshal(t.h)
	t.dirty = false
	t.mu.Unlock()
	if err != nil {
		return fmt.Errorf("encode health: %w", err)
	}

	if err := store.SaveHealth(ctx, projectID, payload); err != nil {
		t.mu.Lock()
		t.dirty = true
		t.mu.Unlock()
		return err
	}
	return nil
}
