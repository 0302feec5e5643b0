package storage

import (
	"context"
	"time"
)

// Storage defines the interface for persisting projects, their vector
// collections, fingerprints and health state.
type Storage interface {
	// Project operations
	UpsertProject(ctx context.Context, project *Project) error
	GetProject(ctx context.Context, name string) (*Project, error)
	ListProjects(ctx context.Context) ([]*Project, error)
	DeleteProject(ctx context.Context, name string) error

	// Collection operations
	CreateCollection(ctx context.Context, collection *Collection) error
	GetCollection(ctx context.Context, name string) (*Collection, error)
	ListCollections(ctx context.Context, projectID int64) ([]*Collection, error)
	DropCollection(ctx context.Context, collectionID int64) error
	PromoteCollection(ctx context.Context, projectID, shadowID int64) (*Collection, error)

	// Chunk operations
	UpsertChunks(ctx context.Context, chunks []*Chunk) error
	DeleteChunks(ctx context.Context, collectionID int64, chunkIDs []string) (deletedCount int, err error)
	CountChunks(ctx context.Context, collectionID int64) (int, error)

	// Search operations
	SearchVector(ctx context.Context, collectionID int64, vector []float32, limit int, filters *SearchFilters) ([]VectorResult, error)
	SearchText(ctx context.Context, collectionID int64, query string, limit int, filters *SearchFilters) ([]TextResult, error)

	// Fingerprint operations
	GetFingerprint(ctx context.Context, collectionID int64, path string) (*Fingerprint, error)
	ListFingerprints(ctx context.Context, collectionID int64) ([]*Fingerprint, error)
	UpsertFingerprint(ctx context.Context, fp *Fingerprint) error
	DeleteFingerprint(ctx context.Context, collectionID int64, path string) error
	ClearFingerprints(ctx context.Context, collectionID int64) error

	// Health and migration history
	GetHealth(ctx context.Context, projectID int64) ([]byte, error)
	SaveHealth(ctx context.Context, projectID int64, payload []byte) error
	SaveMigrationJob(ctx context.Context, job *MigrationRecord) error
	ListMigrationJobs(ctx context.Context, projectID int64, limit int) ([]*MigrationRecord, error)

	// Status operations
	GetStatus(ctx context.Context, collectionID int64) (*CollectionStatus, error)

	// Database operations
	Close() error
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx represents a database transaction
type Tx interface {
	Commit() error
	Rollback() error
	Storage // Embed Storage interface for transaction operations
}

// Project is a registered knowledge repository.
type Project struct {
	ID             int64
	Name           string
	DocsPath       string
	CollectionName string // name of the live collection
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Collection is a named set of embedded chunks bound to one embedding model.
type Collection struct {
	ID        int64
	ProjectID int64
	Name      string
	Provider  string
	Model     string
	Dimension int
	CreatedAt time.Time
}

// Chunk is one stored, embedded span of a document.
type Chunk struct {
	ID           int64 // row id
	CollectionID int64
	ChunkID      string // deterministic chunk id
	Source       string
	Heading      string
	Category     string
	Ordinal      int
	Text         string
	CharCount    int
	WordCount    int
	Vector       []byte // Serialized float32 array
	UpdatedAt    time.Time
}

// Fingerprint maps a document path to its content hash and the chunk ids
// produced from it.
type Fingerprint struct {
	CollectionID int64
	Path         string
	ContentHash  string
	ChunkIDs     []string
	Category     string
	Excluded     bool // critical quality issues kept the document out of the index
	UpdatedAt    time.Time
}

// MigrationRecord is the persisted history of a model migration job.
type MigrationRecord struct {
	JobID         string     `json:"job_id"`
	ProjectID     int64      `json:"-"`
	OldModel      string     `json:"old_model"`
	NewModel      string     `json:"new_model"`
	Status        string     `json:"status"`
	FilesTotal    int        `json:"files_total"`
	FilesDone     int        `json:"files_done"`
	ChunksCreated int        `json:"chunks_created"`
	Error         string     `json:"error,omitempty"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
}

// SearchFilters contains filters for narrowing search results
type SearchFilters struct {
	Category     string  // Exact category match
	SourcePrefix string  // Restrict to sources under a path prefix
	MinRelevance float64 // Minimum relevance score
}

// VectorResult represents a result from vector similarity search
type VectorResult struct {
	Chunk           *Chunk
	SimilarityScore float64
}

// TextResult represents a result from full-text search
type TextResult struct {
	Chunk     *Chunk
	BM25Score float64
}

// CollectionStatus contains statistics about a collection
type CollectionStatus struct {
	Collection      *Collection
	ChunksCount     int
	SourcesCount    int
	ExcludedCount   int
	IndexSizeMB     float64
	LastIndexedAt   time.Time
	FTSIndexesBuilt bool
}
