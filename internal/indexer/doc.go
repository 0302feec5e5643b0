// Package indexer runs the diff-aware indexing pipeline for a knowledge
// repository.
//
// A pass discovers documents under the docs root, hashes each one and,
// depending on the mode, either skips it (diff mode, unchanged hash) or
// chunks it, runs the quality gate and writes the surviving chunks into a
// vectorstore.Collection together with the new fingerprint.
//
// # Basic Usage
//
//	idx, err := indexer.New(indexer.Config{Workers: 4}, logger)
//	if err != nil {
//	    return err
//	}
//
//	summary, err := idx.Index(ctx, "/srv/docs", collection, indexer.ModeDiff, indexer.Options{})
//	fmt.Printf("%d changed, %d skipped, %d excluded\n",
//	    summary.FilesChanged, summary.FilesSkipped, summary.FilesExcluded)
//
// # Modes
//
// ModeDiff compares each document's SHA-256 with its fingerprint and skips
// unchanged documents without chunking or embedding them. ModeFull re-embeds
// everything, which is what a model change requires: the chunk text is the
// same but its vectors are not.
//
// Documents tracked by the collection but missing from the scan have their
// chunks and fingerprint removed. A scan that finds no documents at all over
// a populated collection removes nothing; Summary.RemovalSkipped reports it.
//
// # Quality Gate
//
// A document with a critical issue is excluded: its previous chunks are
// removed and its fingerprint is recorded as excluded. The file on disk is
// never touched. Warning and info issues only show up in Summary.Quality.
//
// # Failures
//
// Read errors and embedding failures are logged and collected into
// Summary.Errors. The document's fingerprint is left as it was, so the next
// diff pass retries it. Only cancellation ends a pass early; it is checked
// between documents and a document already being embedded is finished.
//
// # Locking
//
// PassLock rejects a second concurrent pass with types.ErrIndexInProgress.
// It combines the atomic IndexLock with an optional gofrs/flock FileLock for
// processes sharing one data directory.
package indexer
