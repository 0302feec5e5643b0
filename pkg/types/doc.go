// Package types provides shared type definitions for the Flaiwheel engine.
//
// This package defines the domain types used across the chunker, indexer,
// quality gate, searcher and classifier.
//
// # Core Types
//
// Chunk is a retrievable span of one document. Its ID is derived from the
// source path, heading label and ordinal, so re-chunking unchanged text
// reproduces the same ids:
//
//	chunk := &types.Chunk{
//	    ID:       "3f2a9c0d4b1e7a55",
//	    Source:   "architecture/overview.md",
//	    Heading:  "Overview",
//	    Category: types.CategoryArchitecture,
//	}
//
// Category is the knowledge taxonomy (architecture, api, bugfix, ...).
// ParseCategory also accepts the directory spellings used on disk
// ("bugfix-log", "best-practices", "tests").
//
// Issue and Severity describe quality gate findings; a critical issue keeps a
// document out of the index without touching the file.
//
// SearchResult carries relevance_percent, the rounded cosine similarity
// between query and chunk as a percentage.
//
// Verdict is the outcome of classifying one document, with per-signal scores,
// ambiguity flag and duplicate reference.
package types
