// Package migration re-embeds a project's documents under a new embedding
// model in a shadow collection while the live collection keeps serving
// search, then promotes the shadow in one step.
package migration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dl4rce/flaiwheel/internal/docs"
	"github.com/dl4rce/flaiwheel/internal/embedder"
	"github.com/dl4rce/flaiwheel/internal/indexer"
	"github.com/dl4rce/flaiwheel/internal/storage"
	"github.com/dl4rce/flaiwheel/internal/vectorstore"
	"github.com/dl4rce/flaiwheel/pkg/types"
)

// ShadowSuffix is appended to the live collection name to name its shadow
const ShadowSuffix = "_migration"

// Status is the lifecycle state of a job
type Status string

const (
	StatusRunning   Status = "running"
	StatusComplete  Status = "complete"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the job has finished
func (s Status) Terminal() bool {
	return s != StatusRunning
}

// ShadowName returns the shadow collection name for a live collection
func ShadowName(live string) string {
	return live + ShadowSuffix
}

// NewJobID returns a 12 hex character job id
func NewJobID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// Target is the project whose live collection is being replaced
type Target interface {
	// Live returns the collection currently serving search
	Live() *vectorstore.Collection
	// Promote makes shadow the live collection. It is called at most once
	// per job, after the shadow pass succeeded, and must serialize with
	// indexing passes of the project.
	Promote(ctx context.Context, shadow *vectorstore.Collection) error
}

// Progress is a snapshot of a job
type Progress struct {
	JobID         string     `json:"job_id"`
	Status        Status     `json:"status"`
	OldModel      string     `json:"old_model"`
	NewModel      string     `json:"new_model"`
	Percent       float64    `json:"percent"`
	FilesDone     int        `json:"files_done"`
	FilesTotal    int        `json:"files_total"`
	ChunksCreated int        `json:"chunks_created"`
	Error         string     `json:"error,omitempty"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
}

// Job is one running or finished migration
type Job struct {
	id       string
	oldModel string
	newModel string
	total    int
	started  time.Time
	cancel   context.CancelFunc
	done     chan struct{}

	mu       sync.Mutex
	status   Status
	filesDn  int
	chunks   int
	err      string
	finished *time.Time
}

// ID returns the job id
func (j *Job) ID() string {
	return j.id
}

// Done is closed when the job reaches a terminal status
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Wait blocks until the job finishes or ctx is done
func (j *Job) Wait(ctx context.Context) (Progress, error) {
	select {
	case <-j.done:
		return j.Progress(), nil
	case <-ctx.Done():
		return j.Progress(), ctx.Err()
	}
}

// Progress returns a snapshot of the job
func (j *Job) Progress() Progress {
	j.mu.Lock()
	defer j.mu.Unlock()

	p := Progress{
		JobID:         j.id,
		Status:        j.status,
		OldModel:      j.oldModel,
		NewModel:      j.newModel,
		FilesDone:     j.filesDn,
		FilesTotal:    j.total,
		ChunksCreated: j.chunks,
		Error:         j.err,
		StartedAt:     j.started,
		FinishedAt:    j.finished,
	}
	switch {
	case j.total > 0:
		p.Percent = math.Round(float64(j.filesDn)/float64(j.total)*1000) / 10
	case j.status == StatusComplete:
		p.Percent = 100
	}
	return p
}

func (j *Job) advance(p indexer.Progress) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.filesDn++
	j.chunks += p.Chunks
}

func (j *Job) running() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status == StatusRunning
}

func (j *Job) finish(status Status, errMsg string, at time.Time) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.status = status
	j.err = errMsg
	j.finished = &at
}

func (j *Job) record(projectID int64) *storage.MigrationRecord {
	p := j.Progress()
	return &storage.MigrationRecord{
		JobID:         p.JobID,
		ProjectID:     projectID,
		OldModel:      p.OldModel,
		NewModel:      p.NewModel,
		Status:        string(p.Status),
		FilesTotal:    p.FilesTotal,
		FilesDone:     p.FilesDone,
		ChunksCreated: p.ChunksCreated,
		Error:         p.Error,
		StartedAt:     p.StartedAt,
		FinishedAt:    p.FinishedAt,
	}
}

// Config wires a Coordinator to one project
type Config struct {
	Store     storage.Storage
	ProjectID int64
	DocsRoot  string
	Indexer   *indexer.Indexer
	Target    Target
	Logger    *slog.Logger
}

// Coordinator runs at most one migration at a time for one project
type Coordinator struct {
	store     storage.Storage
	projectID int64
	docsRoot  string
	indexer   *indexer.Indexer
	target    Target
	logger    *slog.Logger
	now       func() time.Time

	mu  sync.Mutex
	job *Job
}

// NewCoordinator creates a coordinator
func NewCoordinator(cfg Config) *Coordinator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		store:     cfg.Store,
		projectID: cfg.ProjectID,
		docsRoot:  cfg.DocsRoot,
		indexer:   cfg.Indexer,
		target:    cfg.Target,
		logger:    logger,
		now:       time.Now,
	}
}

// Begin starts migrating the live collection to emb. The shadow pass runs
// in the background against a snapshot of the current documents; ctx only
// bounds the setup.
func (c *Coordinator) Begin(ctx context.Context, emb embedder.Embedder) (*Job, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.job != nil && c.job.running() {
		return nil, fmt.Errorf("%w: job %s", types.ErrMigrationInProgress, c.job.id)
	}

	live := c.target.Live()
	if live == nil {
		return nil, types.ErrCollectionNotFound
	}
	if live.SameModel(emb) {
		return nil, types.ErrSameModel
	}

	files, err := c.indexer.Discover(c.docsRoot)
	if err != nil && !errors.Is(err, docs.ErrRootMissing) {
		return nil, fmt.Errorf("snapshot documents: %w", err)
	}

	shadowName := ShadowName(live.Name)
	if err := DropCollection(ctx, c.store, shadowName); err != nil {
		return nil, err
	}
	shadow, err := vectorstore.Create(ctx, c.store, c.projectID, shadowName, emb)
	if err != nil {
		return nil, fmt.Errorf("create shadow collection: %w", err)
	}

	jobCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	job := &Job{
		id:       NewJobID(),
		oldModel: live.Provider + "/" + live.Model,
		newModel: emb.Provider() + "/" + emb.Model(),
		total:    len(files),
		started:  c.now().UTC(),
		cancel:   cancel,
		done:     make(chan struct{}),
		status:   StatusRunning,
	}
	c.job = job
	c.persist(job)

	c.logger.Info("migration started",
		slog.String("job_id", job.id),
		slog.String("collection", live.Name),
		slog.String("old_model", job.oldModel),
		slog.String("new_model", job.newModel),
		slog.Int("files", job.total))

	go c.run(jobCtx, job, shadow, files)
	return job, nil
}

func (c *Coordinator) run(ctx context.Context, job *Job, shadow *vectorstore.Collection, files []docs.File) {
	defer close(job.done)
	defer job.cancel()

	status, errMsg := c.migrate(ctx, job, shadow, files)
	if status != StatusComplete {
		if err := shadow.Drop(context.WithoutCancel(ctx)); err != nil {
			c.logger.Warn("failed to drop shadow collection",
				slog.String("job_id", job.id),
				slog.String("collection", shadow.Name),
				slog.Any("error", err))
		}
	}

	job.finish(status, errMsg, c.now().UTC())
	c.persist(job)

	c.logger.Info("migration finished",
		slog.String("job_id", job.id),
		slog.String("status", string(status)),
		slog.String("error", errMsg))
}

func (c *Coordinator) migrate(ctx context.Context, job *Job, shadow *vectorstore.Collection, files []docs.File) (Status, string) {
	_, err := c.indexer.IndexFiles(ctx, shadow, files, indexer.ModeFull, indexer.Options{
		OnProgress: job.advance,
		FailFast:   true,
	})
	if err == nil {
		err = ctx.Err()
	}
	if err == nil {
		err = c.target.Promote(ctx, shadow)
	}

	switch {
	case err == nil:
		return StatusComplete, ""
	case errors.Is(err, context.Canceled):
		return StatusCancelled, ""
	default:
		return StatusFailed, err.Error()
	}
}

// Cancel stops the running job. An empty jobID matches any running job.
func (c *Coordinator) Cancel(jobID string) (Progress, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.job == nil || !c.job.running() || (jobID != "" && jobID != c.job.id) {
		return Progress{}, types.ErrNoActiveMigration
	}
	c.job.cancel()
	c.logger.Info("migration cancel requested", slog.String("job_id", c.job.id))
	return c.job.Progress(), nil
}

// Current returns the latest job, running or finished
func (c *Coordinator) Current() (*Job, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.job, c.job != nil
}

// Running reports whether a job is in progress
func (c *Coordinator) Running() bool {
	job, ok := c.Current()
	return ok && job.running()
}

// History returns persisted jobs, newest first
func (c *Coordinator) History(ctx context.Context, limit int) ([]*storage.MigrationRecord, error) {
	return c.store.ListMigrationJobs(ctx, c.projectID, limit)
}

func (c *Coordinator) persist(job *Job) {
	if err := c.store.SaveMigrationJob(context.Background(), job.record(c.projectID)); err != nil {
		c.logger.Warn("failed to persist migration job",
			slog.String("job_id", job.id),
			slog.Any("error", err))
	}
}

// DropCollection removes a collection by name if it exists
func DropCollection(ctx context.Context, store storage.Storage, name string) error {
	rec, err := store.GetCollection(ctx, name)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup collection %s: %w", name, err)
	}
	if err := store.DropCollection(ctx, rec.ID); err != nil {
		return fmt.Errorf("drop collection %s: %w", name, err)
	}
	return nil
}

// CleanupShadows drops every collection of the project other than live,
// leftovers of a migration interrupted by a restart. It returns the names
// it dropped.
func CleanupShadows(ctx context.Context, store storage.Storage, projectID int64, live string) ([]string, error) {
	colls, err := store.ListCollections(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}

	var dropped []string
	for _, coll := range colls {
		if coll.Name == live {
			continue
		}
		if err := store.DropCollection(ctx, coll.ID); err != nil {
			return dropped, fmt.Errorf("drop collection %s: %w", coll.Name, err)
		}
		dropped = append(dropped, coll.Name)
	}
	return dropped, nil
}
