package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when trying to create a duplicate entity
	ErrAlreadyExists = errors.New("already exists")
)

// deleteBatchSize bounds the number of bound parameters per DELETE ... IN query.
const deleteBatchSize = 500

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite benefits from single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Apply migrations
	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// BeginTx starts a new transaction
func (s *SQLiteStorage) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqliteTx{tx: tx, storage: s}, nil
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// sqliteTx wraps a SQL transaction
type sqliteTx struct {
	tx      *sql.Tx
	storage *SQLiteStorage
}

func (t *sqliteTx) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTx) Rollback() error {
	return t.tx.Rollback()
}

// querier returns the transaction querier
func (t *sqliteTx) querier() querier {
	return t.tx
}

// querier returns the DB querier
func (s *SQLiteStorage) querier() querier {
	return s.db
}

// Project operations

func (s *SQLiteStorage) upsertProjectWithQuerier(ctx context.Context, q querier, project *Project) error {
	query := `
		INSERT INTO projects (name, docs_path, collection_name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			docs_path = excluded.docs_path,
			collection_name = excluded.collection_name,
			updated_at = excluded.updated_at
		RETURNING id, created_at
	`
	now := time.Now()
	err := q.QueryRowContext(ctx, query,
		project.Name, project.DocsPath, project.CollectionName, now, now,
	).Scan(&project.ID, &project.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert project: %w", err)
	}
	project.UpdatedAt = now
	return nil
}

func (s *SQLiteStorage) UpsertProject(ctx context.Context, project *Project) error {
	return s.upsertProjectWithQuerier(ctx, s.querier(), project)
}

const projectColumns = `id, name, docs_path, collection_name, created_at, updated_at`

func scanProject(row interface{ Scan(...interface{}) error }) (*Project, error) {
	var p Project
	if err := row.Scan(&p.ID, &p.Name, &p.DocsPath, &p.CollectionName, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *SQLiteStorage) getProjectWithQuerier(ctx context.Context, q querier, name string) (*Project, error) {
	row := q.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE name = ?`, name)
	project, err := scanProject(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return project, nil
}

func (s *SQLiteStorage) GetProject(ctx context.Context, name string) (*Project, error) {
	return s.getProjectWithQuerier(ctx, s.querier(), name)
}

func (s *SQLiteStorage) listProjectsWithQuerier(ctx context.Context, q querier) ([]*Project, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	projects := make([]*Project, 0)
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

func (s *SQLiteStorage) ListProjects(ctx context.Context) ([]*Project, error) {
	return s.listProjectsWithQuerier(ctx, s.querier())
}

func (s *SQLiteStorage) deleteProjectWithQuerier(ctx context.Context, q querier, name string) error {
	result, err := q.ExecContext(ctx, `DELETE FROM projects WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStorage) DeleteProject(ctx context.Context, name string) error {
	return s.deleteProjectWithQuerier(ctx, s.querier(), name)
}

// Collection operations

func (s *SQLiteStorage) createCollectionWithQuerier(ctx context.Context, q querier, c *Collection) error {
	query := `
		INSERT INTO collections (project_id, name, provider, model, dimension, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	now := time.Now()
	result, err := q.ExecContext(ctx, query, c.ProjectID, c.Name, c.Provider, c.Model, c.Dimension, now)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("collection %q: %w", c.Name, ErrAlreadyExists)
		}
		return fmt.Errorf("failed to create collection: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	c.ID = id
	c.CreatedAt = now
	return nil
}

func (s *SQLiteStorage) CreateCollection(ctx context.Context, c *Collection) error {
	return s.createCollectionWithQuerier(ctx, s.querier(), c)
}

const collectionColumns = `id, project_id, name, provider, model, dimension, created_at`

func scanCollection(row interface{ Scan(...interface{}) error }) (*Collection, error) {
	var c Collection
	if err := row.Scan(&c.ID, &c.ProjectID, &c.Name, &c.Provider, &c.Model, &c.Dimension, &c.CreatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *SQLiteStorage) getCollectionWithQuerier(ctx context.Context, q querier, name string) (*Collection, error) {
	row := q.QueryRowContext(ctx, `SELECT `+collectionColumns+` FROM collections WHERE name = ?`, name)
	c, err := scanCollection(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *SQLiteStorage) GetCollection(ctx context.Context, name string) (*Collection, error) {
	return s.getCollectionWithQuerier(ctx, s.querier(), name)
}

func (s *SQLiteStorage) listCollectionsWithQuerier(ctx context.Context, q querier, projectID int64) ([]*Collection, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+collectionColumns+` FROM collections WHERE project_id = ? ORDER BY id`, projectID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	collections := make([]*Collection, 0)
	for rows.Next() {
		c, err := scanCollection(rows)
		if err != nil {
			return nil, err
		}
		collections = append(collections, c)
	}
	return collections, rows.Err()
}

func (s *SQLiteStorage) ListCollections(ctx context.Context, projectID int64) ([]*Collection, error) {
	return s.listCollectionsWithQuerier(ctx, s.querier(), projectID)
}

// dropCollectionWithQuerier removes a collection; chunks and fingerprints
// go with it through ON DELETE CASCADE.
func (s *SQLiteStorage) dropCollectionWithQuerier(ctx context.Context, q querier, collectionID int64) error {
	_, err := q.ExecContext(ctx, `DELETE FROM collections WHERE id = ?`, collectionID)
	if err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) DropCollection(ctx context.Context, collectionID int64) error {
	return s.dropCollectionWithQuerier(ctx, s.querier(), collectionID)
}

// RetiredName is the name a replaced live collection keeps until its last
// reader is done with it
func RetiredName(live string, id int64) string {
	return fmt.Sprintf("%s_retired_%d", live, id)
}

// promoteCollectionWithQuerier gives the shadow the project's live name. The
// old live collection is renamed with RetiredName and keeps its rows; the
// caller drops it once no search reads it any more.
func (s *SQLiteStorage) promoteCollectionWithQuerier(ctx context.Context, q querier, projectID, shadowID int64) (*Collection, error) {
	var liveName string
	err := q.QueryRowContext(ctx, `SELECT collection_name FROM projects WHERE id = ?`, projectID).Scan(&liveName)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var shadowProject int64
	err = q.QueryRowContext(ctx, `SELECT project_id FROM collections WHERE id = ?`, shadowID).Scan(&shadowProject)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("shadow collection %d: %w", shadowID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if shadowProject != projectID {
		return nil, fmt.Errorf("collection %d does not belong to project %d", shadowID, projectID)
	}

	var liveID int64
	err = q.QueryRowContext(ctx,
		`SELECT id FROM collections WHERE project_id = ? AND name = ? AND id != ?`,
		projectID, liveName, shadowID).Scan(&liveID)
	switch {
	case err == nil:
		if _, err := q.ExecContext(ctx,
			`UPDATE collections SET name = ? WHERE id = ?`, RetiredName(liveName, liveID), liveID); err != nil {
			return nil, fmt.Errorf("failed to retire live collection: %w", err)
		}
	case err != sql.ErrNoRows:
		return nil, err
	}
	if _, err := q.ExecContext(ctx,
		`UPDATE collections SET name = ? WHERE id = ?`, liveName, shadowID); err != nil {
		return nil, fmt.Errorf("failed to rename shadow collection: %w", err)
	}
	if _, err := q.ExecContext(ctx,
		`UPDATE projects SET updated_at = ? WHERE id = ?`, time.Now(), projectID); err != nil {
		return nil, fmt.Errorf("failed to touch project: %w", err)
	}

	return s.getCollectionWithQuerier(ctx, q, liveName)
}

// PromoteCollection runs the promotion in its own transaction.
func (s *SQLiteStorage) PromoteCollection(ctx context.Context, projectID, shadowID int64) (*Collection, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	promoted, err := s.promoteCollectionWithQuerier(ctx, tx, projectID, shadowID)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit promotion: %w", err)
	}
	return promoted, nil
}

// Chunk operations

func (s *SQLiteStorage) upsertChunksWithQuerier(ctx context.Context, q querier, chunks []*Chunk) error {
	query := `
		INSERT INTO chunks (
			collection_id, chunk_id, source, heading, category, ordinal,
			text, char_count, word_count, vector, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(collection_id, chunk_id) DO UPDATE SET
			source = excluded.source,
			heading = excluded.heading,
			category = excluded.category,
			ordinal = excluded.ordinal,
			text = excluded.text,
			char_count = excluded.char_count,
			word_count = excluded.word_count,
			vector = excluded.vector,
			updated_at = excluded.updated_at
		RETURNING id
	`
	now := time.Now()
	for _, c := range chunks {
		err := q.QueryRowContext(ctx, query,
			c.CollectionID, c.ChunkID, c.Source, c.Heading, c.Category, c.Ordinal,
			c.Text, c.CharCount, c.WordCount, c.Vector, now,
		).Scan(&c.ID)
		if err != nil {
			return fmt.Errorf("failed to upsert chunk %s: %w", c.ChunkID, err)
		}
		c.UpdatedAt = now
	}
	return nil
}

func (s *SQLiteStorage) UpsertChunks(ctx context.Context, chunks []*Chunk) error {
	return s.upsertChunksWithQuerier(ctx, s.querier(), chunks)
}

func (s *SQLiteStorage) deleteChunksWithQuerier(ctx context.Context, q querier, collectionID int64, chunkIDs []string) (int, error) {
	if len(chunkIDs) == 0 {
		return 0, nil
	}

	total := 0
	for start := 0; start < len(chunkIDs); start += deleteBatchSize {
		end := start + deleteBatchSize
		if end > len(chunkIDs) {
			end = len(chunkIDs)
		}
		batch := chunkIDs[start:end]

		// Build parameterized IN clause
		placeholders := make([]string, len(batch))
		args := make([]interface{}, 0, len(batch)+1)
		args = append(args, collectionID)
		for i, id := range batch {
			placeholders[i] = "?"
			args = append(args, id)
		}
		query := fmt.Sprintf(`DELETE FROM chunks WHERE collection_id = ? AND chunk_id IN (%s)`,
			strings.Join(placeholders, ","))

		result, err := q.ExecContext(ctx, query, args...)
		if err != nil {
			return total, fmt.Errorf("failed to delete chunks: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return total, err
		}
		total += int(n)
	}
	return total, nil
}

// DeleteChunks deletes chunks by their deterministic ids
func (s *SQLiteStorage) DeleteChunks(ctx context.Context, collectionID int64, chunkIDs []string) (int, error) {
	return s.deleteChunksWithQuerier(ctx, s.querier(), collectionID, chunkIDs)
}

func (s *SQLiteStorage) countChunksWithQuerier(ctx context.Context, q querier, collectionID int64) (int, error) {
	var n int
	err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks WHERE collection_id = ?`, collectionID).Scan(&n)
	return n, err
}

func (s *SQLiteStorage) CountChunks(ctx context.Context, collectionID int64) (int, error) {
	return s.countChunksWithQuerier(ctx, s.querier(), collectionID)
}

// Search operations

func (s *SQLiteStorage) SearchVector(ctx context.Context, collectionID int64, vector []float32, limit int, filters *SearchFilters) ([]VectorResult, error) {
	return searchVector(ctx, s.querier(), collectionID, vector, limit, filters)
}

func (s *SQLiteStorage) SearchText(ctx context.Context, collectionID int64, query string, limit int, filters *SearchFilters) ([]TextResult, error) {
	return searchText(ctx, s.querier(), collectionID, query, limit, filters)
}

// Fingerprint operations

const fingerprintColumns = `collection_id, path, content_hash, chunk_ids, category, excluded, updated_at`

func scanFingerprint(row interface{ Scan(...interface{}) error }) (*Fingerprint, error) {
	var fp Fingerprint
	var chunkIDs string
	if err := row.Scan(&fp.CollectionID, &fp.Path, &fp.ContentHash, &chunkIDs,
		&fp.Category, &fp.Excluded, &fp.UpdatedAt); err != nil {
		return nil, err
	}
	if chunkIDs != "" {
		if err := json.Unmarshal([]byte(chunkIDs), &fp.ChunkIDs); err != nil {
			return nil, fmt.Errorf("corrupt chunk id list for %s: %w", fp.Path, err)
		}
	}
	return &fp, nil
}

func (s *SQLiteStorage) getFingerprintWithQuerier(ctx context.Context, q querier, collectionID int64, path string) (*Fingerprint, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+fingerprintColumns+` FROM fingerprints WHERE collection_id = ? AND path = ?`,
		collectionID, path)
	fp, err := scanFingerprint(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return fp, nil
}

func (s *SQLiteStorage) GetFingerprint(ctx context.Context, collectionID int64, path string) (*Fingerprint, error) {
	return s.getFingerprintWithQuerier(ctx, s.querier(), collectionID, path)
}

func (s *SQLiteStorage) listFingerprintsWithQuerier(ctx context.Context, q querier, collectionID int64) ([]*Fingerprint, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+fingerprintColumns+` FROM fingerprints WHERE collection_id = ? ORDER BY path`,
		collectionID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	fps := make([]*Fingerprint, 0)
	for rows.Next() {
		fp, err := scanFingerprint(rows)
		if err != nil {
			return nil, err
		}
		fps = append(fps, fp)
	}
	return fps, rows.Err()
}

func (s *SQLiteStorage) ListFingerprints(ctx context.Context, collectionID int64) ([]*Fingerprint, error) {
	return s.listFingerprintsWithQuerier(ctx, s.querier(), collectionID)
}

func (s *SQLiteStorage) upsertFingerprintWithQuerier(ctx context.Context, q querier, fp *Fingerprint) error {
	ids := fp.ChunkIDs
	if ids == nil {
		ids = []string{}
	}
	encoded, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("failed to encode chunk ids: %w", err)
	}

	query := `
		INSERT INTO fingerprints (collection_id, path, content_hash, chunk_ids, category, excluded, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(collection_id, path) DO UPDATE SET
			content_hash = excluded.content_hash,
			chunk_ids = excluded.chunk_ids,
			category = excluded.category,
			excluded = excluded.excluded,
			updated_at = excluded.updated_at
	`
	now := time.Now()
	if _, err := q.ExecContext(ctx, query,
		fp.CollectionID, fp.Path, fp.ContentHash, string(encoded), fp.Category, fp.Excluded, now); err != nil {
		return fmt.Errorf("failed to upsert fingerprint: %w", err)
	}
	fp.UpdatedAt = now
	return nil
}

func (s *SQLiteStorage) UpsertFingerprint(ctx context.Context, fp *Fingerprint) error {
	return s.upsertFingerprintWithQuerier(ctx, s.querier(), fp)
}

func (s *SQLiteStorage) deleteFingerprintWithQuerier(ctx context.Context, q querier, collectionID int64, path string) error {
	_, err := q.ExecContext(ctx, `DELETE FROM fingerprints WHERE collection_id = ? AND path = ?`, collectionID, path)
	return err
}

func (s *SQLiteStorage) DeleteFingerprint(ctx context.Context, collectionID int64, path string) error {
	return s.deleteFingerprintWithQuerier(ctx, s.querier(), collectionID, path)
}

func (s *SQLiteStorage) clearFingerprintsWithQuerier(ctx context.Context, q querier, collectionID int64) error {
	_, err := q.ExecContext(ctx, `DELETE FROM fingerprints WHERE collection_id = ?`, collectionID)
	return err
}

func (s *SQLiteStorage) ClearFingerprints(ctx context.Context, collectionID int64) error {
	return s.clearFingerprintsWithQuerier(ctx, s.querier(), collectionID)
}

// Health and migration history

func (s *SQLiteStorage) getHealthWithQuerier(ctx context.Context, q querier, projectID int64) ([]byte, error) {
	var payload string
	err := q.QueryRowContext(ctx, `SELECT payload FROM project_health WHERE project_id = ?`, projectID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return []byte(payload), nil
}

func (s *SQLiteStorage) GetHealth(ctx context.Context, projectID int64) ([]byte, error) {
	return s.getHealthWithQuerier(ctx, s.querier(), projectID)
}

func (s *SQLiteStorage) saveHealthWithQuerier(ctx context.Context, q querier, projectID int64, payload []byte) error {
	query := `
		INSERT INTO project_health (project_id, payload, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(project_id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at
	`
	if _, err := q.ExecContext(ctx, query, projectID, string(payload), time.Now()); err != nil {
		return fmt.Errorf("failed to save health: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) SaveHealth(ctx context.Context, projectID int64, payload []byte) error {
	return s.saveHealthWithQuerier(ctx, s.querier(), projectID, payload)
}

func (s *SQLiteStorage) saveMigrationJobWithQuerier(ctx context.Context, q querier, job *MigrationRecord) error {
	query := `
		INSERT INTO migration_jobs (
			job_id, project_id, old_model, new_model, status,
			files_total, files_done, chunks_created, error, started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(job_id) DO UPDATE SET
			status = excluded.status,
			files_total = excluded.files_total,
			files_done = excluded.files_done,
			chunks_created = excluded.chunks_created,
			error = excluded.error,
			finished_at = excluded.finished_at
	`
	var finished interface{}
	if job.FinishedAt != nil {
		finished = *job.FinishedAt
	}
	if _, err := q.ExecContext(ctx, query,
		job.JobID, job.ProjectID, job.OldModel, job.NewModel, job.Status,
		job.FilesTotal, job.FilesDone, job.ChunksCreated, job.Error, job.StartedAt, finished); err != nil {
		return fmt.Errorf("failed to save migration job: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) SaveMigrationJob(ctx context.Context, job *MigrationRecord) error {
	return s.saveMigrationJobWithQuerier(ctx, s.querier(), job)
}

func (s *SQLiteStorage) listMigrationJobsWithQuerier(ctx context.Context, q querier, projectID int64, limit int) ([]*MigrationRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT job_id, project_id, old_model, new_model, status,
		       files_total, files_done, chunks_created, error, started_at, finished_at
		FROM migration_jobs
		WHERE project_id = ?
		ORDER BY started_at DESC
		LIMIT ?
	`
	rows, err := q.QueryContext(ctx, query, projectID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	jobs := make([]*MigrationRecord, 0)
	for rows.Next() {
		var job MigrationRecord
		var finished sql.NullTime
		if err := rows.Scan(&job.JobID, &job.ProjectID, &job.OldModel, &job.NewModel, &job.Status,
			&job.FilesTotal, &job.FilesDone, &job.ChunksCreated, &job.Error, &job.StartedAt, &finished); err != nil {
			return nil, err
		}
		if finished.Valid {
			t := finished.Time
			job.FinishedAt = &t
		}
		jobs = append(jobs, &job)
	}
	return jobs, rows.Err()
}

func (s *SQLiteStorage) ListMigrationJobs(ctx context.Context, projectID int64, limit int) ([]*MigrationRecord, error) {
	return s.listMigrationJobsWithQuerier(ctx, s.querier(), projectID, limit)
}

// Status operations

func (s *SQLiteStorage) getStatusWithQuerier(ctx context.Context, q querier, collectionID int64) (*CollectionStatus, error) {
	row := q.QueryRowContext(ctx, `SELECT `+collectionColumns+` FROM collections WHERE id = ?`, collectionID)
	collection, err := scanCollection(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	status := &CollectionStatus{Collection: collection, FTSIndexesBuilt: true}

	if status.ChunksCount, err = s.countChunksWithQuerier(ctx, q, collectionID); err != nil {
		return nil, err
	}

	var lastIndexed sql.NullString
	err = q.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(excluded), 0), MAX(updated_at)
		FROM fingerprints WHERE collection_id = ?
	`, collectionID).Scan(&status.SourcesCount, &status.ExcludedCount, &lastIndexed)
	if err != nil {
		return nil, err
	}
	if lastIndexed.Valid {
		status.LastIndexedAt = parseSQLiteTime(lastIndexed.String)
	}

	// Calculate database size
	var pageCount, pageSize int
	if err := q.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err == nil {
		_ = q.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
		status.IndexSizeMB = float64(pageCount*pageSize) / (1024 * 1024)
	}

	return status, nil
}

func (s *SQLiteStorage) GetStatus(ctx context.Context, collectionID int64) (*CollectionStatus, error) {
	return s.getStatusWithQuerier(ctx, s.querier(), collectionID)
}

// parseSQLiteTime parses the textual timestamp layouts both drivers write.
func parseSQLiteTime(v string) time.Time {
	layouts := []string{
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02T15:04:05.999999999-07:00",
		"2006-01-02 15:04:05.999999999 -0700 MST",
		"2006-01-02 15:04:05",
		time.RFC3339Nano,
	}
	// Go's time.String() appends a monotonic clock reading.
	if i := strings.Index(v, " m="); i > 0 {
		v = v[:i]
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t
		}
	}
	return time.Time{}
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "unique constraint")
}

// Transaction implementations. Every operation runs on the transaction's
// querier; the single pooled connection is held by the transaction.

func (t *sqliteTx) UpsertProject(ctx context.Context, project *Project) error {
	return t.storage.upsertProjectWithQuerier(ctx, t.querier(), project)
}

func (t *sqliteTx) GetProject(ctx context.Context, name string) (*Project, error) {
	return t.storage.getProjectWithQuerier(ctx, t.querier(), name)
}

func (t *sqliteTx) ListProjects(ctx context.Context) ([]*Project, error) {
	return t.storage.listProjectsWithQuerier(ctx, t.querier())
}

func (t *sqliteTx) DeleteProject(ctx context.Context, name string) error {
	return t.storage.deleteProjectWithQuerier(ctx, t.querier(), name)
}

func (t *sqliteTx) CreateCollection(ctx context.Context, c *Collection) error {
	return t.storage.createCollectionWithQuerier(ctx, t.querier(), c)
}

func (t *sqliteTx) GetCollection(ctx context.Context, name string) (*Collection, error) {
	return t.storage.getCollectionWithQuerier(ctx, t.querier(), name)
}

func (t *sqliteTx) ListCollections(ctx context.Context, projectID int64) ([]*Collection, error) {
	return t.storage.listCollectionsWithQuerier(ctx, t.querier(), projectID)
}

func (t *sqliteTx) DropCollection(ctx context.Context, collectionID int64) error {
	return t.storage.dropCollectionWithQuerier(ctx, t.querier(), collectionID)
}

func (t *sqliteTx) PromoteCollection(ctx context.Context, projectID, shadowID int64) (*Collection, error) {
	return t.storage.promoteCollectionWithQuerier(ctx, t.querier(), projectID, shadowID)
}

func (t *sqliteTx) UpsertChunks(ctx context.Context, chunks []*Chunk) error {
	return t.storage.upsertChunksWithQuerier(ctx, t.querier(), chunks)
}

func (t *sqliteTx) DeleteChunks(ctx context.Context, collectionID int64, chunkIDs []string) (int, error) {
	return t.storage.deleteChunksWithQuerier(ctx, t.querier(), collectionID, chunkIDs)
}

func (t *sqliteTx) CountChunks(ctx context.Context, collectionID int64) (int, error) {
	return t.storage.countChunksWithQuerier(ctx, t.querier(), collectionID)
}

func (t *sqliteTx) SearchVector(ctx context.Context, collectionID int64, vector []float32, limit int, filters *SearchFilters) ([]VectorResult, error) {
	return searchVector(ctx, t.querier(), collectionID, vector, limit, filters)
}

func (t *sqliteTx) SearchText(ctx context.Context, collectionID int64, query string, limit int, filters *SearchFilters) ([]TextResult, error) {
	return searchText(ctx, t.querier(), collectionID, query, limit, filters)
}

func (t *sqliteTx) GetFingerprint(ctx context.Context, collectionID int64, path string) (*Fingerprint, error) {
	return t.storage.getFingerprintWithQuerier(ctx, t.querier(), collectionID, path)
}

func (t *sqliteTx) ListFingerprints(ctx context.Context, collectionID int64) ([]*Fingerprint, error) {
	return t.storage.listFingerprintsWithQuerier(ctx, t.querier(), collectionID)
}

func (t *sqliteTx) UpsertFingerprint(ctx context.Context, fp *Fingerprint) error {
	return t.storage.upsertFingerprintWithQuerier(ctx, t.querier(), fp)
}

func (t *sqliteTx) DeleteFingerprint(ctx context.Context, collectionID int64, path string) error {
	return t.storage.deleteFingerprintWithQuerier(ctx, t.querier(), collectionID, path)
}

func (t *sqliteTx) ClearFingerprints(ctx context.Context, collectionID int64) error {
	return t.storage.clearFingerprintsWithQuerier(ctx, t.querier(), collectionID)
}

func (t *sqliteTx) GetHealth(ctx context.Context, projectID int64) ([]byte, error) {
	return t.storage.getHealthWithQuerier(ctx, t.querier(), projectID)
}

func (t *sqliteTx) SaveHealth(ctx context.Context, projectID int64, payload []byte) error {
	return t.storage.saveHealthWithQuerier(ctx, t.querier(), projectID, payload)
}

func (t *sqliteTx) SaveMigrationJob(ctx context.Context, job *MigrationRecord) error {
	return t.storage.saveMigrationJobWithQuerier(ctx, t.querier(), job)
}

func (t *sqliteTx) ListMigrationJobs(ctx context.Context, projectID int64, limit int) ([]*MigrationRecord, error) {
	return t.storage.listMigrationJobsWithQuerier(ctx, t.querier(), projectID, limit)
}

func (t *sqliteTx) GetStatus(ctx context.Context, collectionID int64) (*CollectionStatus, error) {
	return t.storage.getStatusWithQuerier(ctx, t.querier(), collectionID)
}

func (t *sqliteTx) Close() error {
	// Transactions don't close the underlying connection
	return nil
}

func (t *sqliteTx) BeginTx(ctx context.Context) (Tx, error) {
	// SQLite does not support true nested transactions
	return nil, errors.New("nested transactions not supported")
}
