// Package fingerprint tracks a content hash per document path and the chunk
// ids produced from it. The stored entries are the only input diff-aware
// indexing uses to decide whether a document must be re-embedded.
package fingerprint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/dl4rce/flaiwheel/internal/storage"
)

// Hash returns the hex sha256 of document content
func Hash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// Entry is the recorded state of one document
type Entry struct {
	Path        string
	ContentHash string
	ChunkIDs    []string
	Category    string
	Excluded    bool
	UpdatedAt   time.Time
}

// Tracker reads and writes fingerprint entries of one collection. A Tracker
// built over a storage.Tx writes inside that transaction.
type Tracker struct {
	store        storage.Storage
	collectionID int64
}

// NewTracker creates a tracker for a collection
func NewTracker(store storage.Storage, collectionID int64) *Tracker {
	return &Tracker{store: store, collectionID: collectionID}
}

// Lookup returns the entry for path, or ok=false when none is recorded
func (t *Tracker) Lookup(ctx context.Context, path string) (entry *Entry, ok bool, err error) {
	fp, err := t.store.GetFingerprint(ctx, t.collectionID, path)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("lookup fingerprint %s: %w", path, err)
	}
	return fromRecord(fp), true, nil
}

// Unchanged reports whether path is recorded with exactly this hash
func (t *Tracker) Unchanged(ctx context.Context, path, hash string) (bool, error) {
	entry, ok, err := t.Lookup(ctx, path)
	if err != nil || !ok {
		return false, err
	}
	return entry.ContentHash == hash, nil
}

// All returns every recorded entry keyed by path
func (t *Tracker) All(ctx context.Context) (map[string]*Entry, error) {
	fps, err := t.store.ListFingerprints(ctx, t.collectionID)
	if err != nil {
		return nil, fmt.Errorf("list fingerprints: %w", err)
	}
	entries := make(map[string]*Entry, len(fps))
	for _, fp := range fps {
		entries[fp.Path] = fromRecord(fp)
	}
	return entries, nil
}

// Record stores entry, replacing any previous entry for its path
func (t *Tracker) Record(ctx context.Context, entry Entry) error {
	if entry.Path == "" || entry.ContentHash == "" {
		return fmt.Errorf("fingerprint requires path and content hash")
	}
	ids := entry.ChunkIDs
	if ids == nil {
		ids = []string{}
	}
	return t.store.UpsertFingerprint(ctx, &storage.Fingerprint{
		CollectionID: t.collectionID,
		Path:         entry.Path,
		ContentHash:  entry.ContentHash,
		ChunkIDs:     ids,
		Category:     entry.Category,
		Excluded:     entry.Excluded,
	})
}

// Forget drops the entry for path. Forgetting an unknown path is not an error.
func (t *Tracker) Forget(ctx context.Context, path string) error {
	err := t.store.DeleteFingerprint(ctx, t.collectionID, path)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	return err
}

// Reset drops every entry, forcing the next diff pass to re-embed everything
func (t *Tracker) Reset(ctx context.Context) error {
	return t.store.ClearFingerprints(ctx, t.collectionID)
}

func fromRecord(fp *storage.Fingerprint) *Entry {
	return &Entry{
		Path:        fp.Path,
		ContentHash: fp.ContentHash,
		ChunkIDs:    fp.ChunkIDs,
		Category:    fp.Category,
		Excluded:    fp.Excluded,
		UpdatedAt:   fp.UpdatedAt,
	}
}
