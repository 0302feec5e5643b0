package types

import "errors"

// Domain errors shared across the engine
var (
	// Chunk and search result validation
	ErrInvalidChunkID        = errors.New("invalid chunk ID")
	ErrInvalidRank           = errors.New("rank must be >= 1")
	ErrInvalidRelevanceScore = errors.New("relevance percent must be between -100 and 100")
	ErrMissingSource         = errors.New("source is required")
	ErrEmptyContent          = errors.New("content cannot be empty")
	ErrInvalidStrategy       = errors.New("invalid chunk strategy")
	ErrInvalidCategory       = errors.New("invalid category")

	// Concurrency conflicts
	ErrIndexInProgress     = errors.New("indexing already in progress")
	ErrMigrationInProgress = errors.New("migration already in progress")
	ErrNoActiveMigration   = errors.New("no active migration to cancel")
	ErrSameModel           = errors.New("same model selected, nothing to do")

	// Projects and collections
	ErrProjectNotFound    = errors.New("project not found")
	ErrProjectExists      = errors.New("project already exists")
	ErrCollectionNotFound = errors.New("collection not found")
	ErrNotIndexed         = errors.New("project has not been indexed")
	ErrDimensionMismatch  = errors.New("embedding dimension does not match collection")

	// Search
	ErrEmptyQuery = errors.New("query cannot be empty")

	// Request validation
	ErrInvalidInput = errors.New("invalid input")
)
