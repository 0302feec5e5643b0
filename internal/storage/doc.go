// Package storage provides SQLite-based persistence for the knowledge index.
//
// The storage layer manages:
//   - Projects and the name of their live collection
//   - Collections, each bound to one embedding provider and model
//   - Chunks with their embedding vectors
//   - Content fingerprints used for diff-aware indexing
//   - Per-project health counters and model migration history
//   - An FTS5 index over chunk text
//
// # Database Schema
//
// Tables:
//   - projects: name, docs path, live collection name
//   - collections: provider, model and vector dimension per collection
//   - chunks: deterministic chunk id, source path, heading, category, text, vector
//   - chunks_fts: FTS5 full-text index kept in sync by triggers
//   - fingerprints: path -> content hash -> chunk ids, plus the quality exclusion flag
//   - project_health: JSON health snapshot per project
//   - migration_jobs: model migration history
//
// # Transactions
//
// Every Storage method is also available on a Tx. The pool holds a single
// connection, so code running inside a transaction must use the Tx for reads
// as well as writes:
//
//	tx, err := db.BeginTx(ctx)
//	if err != nil {
//	    return err
//	}
//	defer func() { _ = tx.Rollback() }()
//
//	if err := tx.UpsertChunks(ctx, chunks); err != nil {
//	    return err
//	}
//	if err := tx.UpsertFingerprint(ctx, fp); err != nil {
//	    return err
//	}
//	return tx.Commit()
//
// # Collection Promotion
//
// PromoteCollection swaps a migration's shadow collection in for the live one
// inside a single transaction: the shadow takes over the live name and the old
// collection is renamed with RetiredName, rows intact. Searches still holding
// the old generation keep reading it until the caller drops it with
// DropCollection.
package storage
