// Package vectorstore binds a stored collection of chunks to the embedding
// model that produced its vectors.
//
// All writes for one document go through a single transaction: chunk upserts,
// removal of chunks the document no longer produces, and the fingerprint
// entry. Embedding happens before the transaction opens, so a provider
// failure leaves both the chunks and the fingerprint untouched and the
// document stays eligible for the next diff pass.
package vectorstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/dl4rce/flaiwheel/internal/embedder"
	"github.com/dl4rce/flaiwheel/internal/fingerprint"
	"github.com/dl4rce/flaiwheel/internal/storage"
	"github.com/dl4rce/flaiwheel/pkg/types"
)

// Collection is a persistent set of embedded chunks under one model
type Collection struct {
	ID        int64
	ProjectID int64
	Name      string
	Provider  string
	Model     string
	Dimension int

	store    storage.Storage
	embedder embedder.Embedder
	retired  atomic.Bool
}

// Document identifies the source a set of chunks was produced from
type Document struct {
	Path        string
	ContentHash string
	Category    types.Category
}

// WriteResult counts the chunk changes of one write
type WriteResult struct {
	Upserted int
	Removed  int
}

// Create stores a new collection bound to emb's provider, model and dimension
func Create(ctx context.Context, store storage.Storage, projectID int64, name string, emb embedder.Embedder) (*Collection, error) {
	rec := &storage.Collection{
		ProjectID: projectID,
		Name:      name,
		Provider:  emb.Provider(),
		Model:     emb.Model(),
		Dimension: emb.Dimension(),
	}
	if err := store.CreateCollection(ctx, rec); err != nil {
		return nil, fmt.Errorf("create collection %s: %w", name, err)
	}
	return bind(store, rec, emb), nil
}

// Open binds an existing collection to emb. It fails with
// types.ErrDimensionMismatch when emb cannot produce vectors comparable to the
// stored ones.
func Open(store storage.Storage, rec *storage.Collection, emb embedder.Embedder) (*Collection, error) {
	if rec.Dimension != emb.Dimension() {
		return nil, fmt.Errorf("%w: collection %s has dimension %d, embedder %s/%s produces %d",
			types.ErrDimensionMismatch, rec.Name, rec.Dimension, emb.Provider(), emb.Model(), emb.Dimension())
	}
	return bind(store, rec, emb), nil
}

func bind(store storage.Storage, rec *storage.Collection, emb embedder.Embedder) *Collection {
	return &Collection{
		ID:        rec.ID,
		ProjectID: rec.ProjectID,
		Name:      rec.Name,
		Provider:  rec.Provider,
		Model:     rec.Model,
		Dimension: rec.Dimension,
		store:     store,
		embedder:  emb,
	}
}

// Rebind returns a handle to the same stored collection under a new name,
// used after a shadow collection is promoted.
func (c *Collection) Rebind(rec *storage.Collection) *Collection {
	return bind(c.store, rec, c.embedder)
}

// Embedder returns the embedder bound to the collection
func (c *Collection) Embedder() embedder.Embedder {
	return c.embedder
}

// Tracker returns the fingerprint tracker of the collection
func (c *Collection) Tracker() *fingerprint.Tracker {
	return fingerprint.NewTracker(c.store, c.ID)
}

// SameModel reports whether emb produces this collection's vectors
func (c *Collection) SameModel(emb embedder.Embedder) bool {
	return strings.EqualFold(c.Provider, emb.Provider()) && c.Model == emb.Model() && c.Dimension == emb.Dimension()
}

// ReplaceSource embeds chunks and makes them the complete chunk set of doc.
// Chunks doc produced before but no longer produces are removed.
func (c *Collection) ReplaceSource(ctx context.Context, doc Document, chunks []*types.Chunk) (WriteResult, error) {
	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}

	var vectors [][]float32
	if len(texts) > 0 {
		var err error
		vectors, err = embedder.EmbedAll(ctx, c.embedder, texts)
		if err != nil {
			return WriteResult{}, fmt.Errorf("embed %s: %w", doc.Path, err)
		}
	}

	records := make([]*storage.Chunk, len(chunks))
	ids := make([]string, len(chunks))
	for i, ch := range chunks {
		if len(vectors[i]) != c.Dimension {
			return WriteResult{}, fmt.Errorf("%w: %s produced %d, collection %s expects %d",
				types.ErrDimensionMismatch, doc.Path, len(vectors[i]), c.Name, c.Dimension)
		}
		ids[i] = ch.ID
		records[i] = &storage.Chunk{
			CollectionID: c.ID,
			ChunkID:      ch.ID,
			Source:       doc.Path,
			Heading:      ch.Heading,
			Category:     string(ch.Category),
			Ordinal:      ch.Ordinal,
			Text:         ch.Text,
			CharCount:    ch.CharCount,
			WordCount:    ch.WordCount,
			Vector:       storage.SerializeVector(vectors[i]),
		}
	}

	var result WriteResult
	err := c.inTx(ctx, func(tx storage.Tx) error {
		tracker := fingerprint.NewTracker(tx, c.ID)
		prev, _, err := tracker.Lookup(ctx, doc.Path)
		if err != nil {
			return err
		}

		if err := tx.UpsertChunks(ctx, records); err != nil {
			return err
		}
		result.Upserted = len(records)

		if prev != nil {
			removed, err := tx.DeleteChunks(ctx, c.ID, stale(prev.ChunkIDs, ids))
			if err != nil {
				return err
			}
			result.Removed = removed
		}

		return tracker.Record(ctx, fingerprint.Entry{
			Path:        doc.Path,
			ContentHash: doc.ContentHash,
			ChunkIDs:    ids,
			Category:    string(doc.Category),
		})
	})
	if err != nil {
		return WriteResult{}, fmt.Errorf("replace %s: %w", doc.Path, err)
	}
	return result, nil
}

// ExcludeSource removes every chunk of doc and records it as excluded, so an
// unchanged excluded document is not re-evaluated on the next diff pass.
func (c *Collection) ExcludeSource(ctx context.Context, doc Document) (int, error) {
	var removed int
	err := c.inTx(ctx, func(tx storage.Tx) error {
		tracker := fingerprint.NewTracker(tx, c.ID)
		prev, _, err := tracker.Lookup(ctx, doc.Path)
		if err != nil {
			return err
		}
		if prev != nil {
			if removed, err = tx.DeleteChunks(ctx, c.ID, prev.ChunkIDs); err != nil {
				return err
			}
		}
		return tracker.Record(ctx, fingerprint.Entry{
			Path:        doc.Path,
			ContentHash: doc.ContentHash,
			Category:    string(doc.Category),
			Excluded:    true,
		})
	})
	if err != nil {
		return 0, fmt.Errorf("exclude %s: %w", doc.Path, err)
	}
	return removed, nil
}

// RemoveSource deletes the chunks and fingerprint of a document that no
// longer exists.
func (c *Collection) RemoveSource(ctx context.Context, path string) (int, error) {
	var removed int
	err := c.inTx(ctx, func(tx storage.Tx) error {
		tracker := fingerprint.NewTracker(tx, c.ID)
		prev, ok, err := tracker.Lookup(ctx, path)
		if err != nil || !ok {
			return err
		}
		if removed, err = tx.DeleteChunks(ctx, c.ID, prev.ChunkIDs); err != nil {
			return err
		}
		return tracker.Forget(ctx, path)
	})
	if err != nil {
		return 0, fmt.Errorf("remove %s: %w", path, err)
	}
	return removed, nil
}

// EmbedQuery embeds query text with the collection's model
func (c *Collection) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	emb, err := c.embedder.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: query})
	if err != nil {
		return nil, err
	}
	return emb.Vector, nil
}

// QueryVector returns the chunks most similar to vec
func (c *Collection) QueryVector(ctx context.Context, vec []float32, limit int, filters *storage.SearchFilters) ([]storage.VectorResult, error) {
	if err := c.checkLive(); err != nil {
		return nil, err
	}
	if len(vec) != c.Dimension {
		return nil, fmt.Errorf("%w: query has %d, collection %s expects %d", types.ErrDimensionMismatch, len(vec), c.Name, c.Dimension)
	}
	return c.store.SearchVector(ctx, c.ID, vec, limit, filters)
}

// QueryText returns BM25 keyword matches
func (c *Collection) QueryText(ctx context.Context, query string, limit int, filters *storage.SearchFilters) ([]storage.TextResult, error) {
	if err := c.checkLive(); err != nil {
		return nil, err
	}
	return c.store.SearchText(ctx, c.ID, query, limit, filters)
}

// Count returns the number of stored chunks
func (c *Collection) Count(ctx context.Context) (int, error) {
	if err := c.checkLive(); err != nil {
		return 0, err
	}
	return c.store.CountChunks(ctx, c.ID)
}

// Sources returns the fingerprint entries of every tracked document
func (c *Collection) Sources(ctx context.Context) (map[string]*fingerprint.Entry, error) {
	return c.Tracker().All(ctx)
}

// Status returns storage statistics for the collection
func (c *Collection) Status(ctx context.Context) (*storage.CollectionStatus, error) {
	return c.store.GetStatus(ctx, c.ID)
}

// Drop deletes the collection with its chunks and fingerprints
func (c *Collection) Drop(ctx context.Context) error {
	return c.store.DropCollection(ctx, c.ID)
}

// Retire drops a collection replaced by a migration. Queries through this
// handle fail with types.ErrCollectionNotFound from then on instead of
// silently matching nothing.
func (c *Collection) Retire(ctx context.Context) error {
	c.retired.Store(true)
	return c.Drop(ctx)
}

// Retired reports whether Retire was called
func (c *Collection) Retired() bool {
	return c.retired.Load()
}

func (c *Collection) checkLive() error {
	if c.retired.Load() {
		return fmt.Errorf("%w: %s was replaced by a newer generation", types.ErrCollectionNotFound, c.Name)
	}
	return nil
}

func (c *Collection) inTx(ctx context.Context, fn func(tx storage.Tx) error) (err error) {
	tx, err := c.store.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			err = errors.Join(err, ignoreDone(tx.Rollback()))
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func ignoreDone(err error) error {
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}

// stale returns the ids in prev that are absent from next
func stale(prev, next []string) []string {
	keep := make(map[string]struct{}, len(next))
	for _, id := range next {
		keep[id] = struct{}{}
	}
	var out []string
	for _, id := range prev {
		if _, ok := keep[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}
