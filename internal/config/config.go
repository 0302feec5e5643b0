// Package config loads the Flaiwheel configuration: defaults, then an
// optional YAML file, then FLAIWHEEL_* environment variables, then
// validation.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dl4rce/flaiwheel/internal/chunker"
	"github.com/dl4rce/flaiwheel/internal/classifier"
	"github.com/dl4rce/flaiwheel/internal/docs"
	"github.com/dl4rce/flaiwheel/internal/embedder"
	"github.com/dl4rce/flaiwheel/internal/indexer"
	"github.com/dl4rce/flaiwheel/internal/searcher"
	"github.com/dl4rce/flaiwheel/pkg/types"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "FLAIWHEEL_"

// DefaultFileName is looked up in the data directory when no path is given
const DefaultFileName = "flaiwheel.yaml"

var projectNamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]{0,63}$`)

// Config is the complete configuration. It is passed explicitly; there is
// no package-level instance.
type Config struct {
	DataDir        string               `yaml:"data_dir"`
	Projects       []ProjectConfig      `yaml:"projects"`
	Chunking       ChunkingConfig       `yaml:"chunking"`
	Embedding      EmbeddingConfig      `yaml:"embedding"`
	Indexing       IndexingConfig       `yaml:"indexing"`
	Sync           SyncConfig           `yaml:"sync"`
	Search         SearchConfig         `yaml:"search"`
	Classification ClassificationConfig `yaml:"classification"`
	Logging        LoggingConfig        `yaml:"logging"`
}

// ProjectConfig declares a project to register at startup
type ProjectConfig struct {
	Name     string `yaml:"name"`
	DocsPath string `yaml:"docs_path"`
}

// ChunkingConfig selects the chunking strategy and sizes
type ChunkingConfig struct {
	Strategy string `yaml:"strategy"`
	MaxChars int    `yaml:"max_chars"`
	Overlap  int    `yaml:"overlap"`
	MinChars int    `yaml:"min_chars"`
}

// EmbeddingConfig selects the embedding provider
type EmbeddingConfig struct {
	Provider          string  `yaml:"provider"`
	Model             string  `yaml:"model"`
	Dimension         int     `yaml:"dimension"`
	BaseURL           string  `yaml:"base_url"`
	CacheSize         int     `yaml:"cache_size"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// IndexingConfig tunes indexing passes
type IndexingConfig struct {
	Workers    int      `yaml:"workers"`
	Extensions []string `yaml:"extensions"`
}

// SyncConfig tunes the background sync loop
type SyncConfig struct {
	Interval time.Duration `yaml:"interval"`
	Watch    bool          `yaml:"watch"`
	Debounce time.Duration `yaml:"debounce"`
}

// SearchConfig tunes search and its cache
type SearchConfig struct {
	DefaultLimit int           `yaml:"default_limit"`
	Mode         string        `yaml:"mode"`
	CacheSize    int           `yaml:"cache_size"`
	CacheTTL     time.Duration `yaml:"cache_ttl"`
	RRFConstant  float64       `yaml:"rrf_constant"`
}

// ClassificationConfig tunes the consensus classifier
type ClassificationConfig struct {
	PathWeight         float64 `yaml:"path_weight"`
	KeywordWeight      float64 `yaml:"keyword_weight"`
	EmbeddingWeight    float64 `yaml:"embedding_weight"`
	AmbiguityMargin    float64 `yaml:"ambiguity_margin"`
	DuplicateThreshold float64 `yaml:"duplicate_threshold"`
	FallbackThreshold  float64 `yaml:"fallback_threshold"`
	PreviewChars       int     `yaml:"preview_chars"`
}

// LoggingConfig configures log output
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// NewConfig returns the defaults
func NewConfig() *Config {
	return &Config{
		DataDir: defaultDataDir(),
		Chunking: ChunkingConfig{
			Strategy: string(types.StrategyHybrid),
			MaxChars: chunker.DefaultMaxChars,
			Overlap:  chunker.DefaultOverlap,
			MinChars: chunker.MinChunkChars,
		},
		Embedding: EmbeddingConfig{
			Provider:  "auto",
			CacheSize: 10000,
		},
		Indexing: IndexingConfig{
			Workers:    runtime.NumCPU(),
			Extensions: append([]string(nil), docs.DefaultExtensions...),
		},
		Sync: SyncConfig{
			Interval: 5 * time.Minute,
			Debounce: 2 * time.Second,
		},
		Search: SearchConfig{
			DefaultLimit: searcher.DefaultLimit,
			Mode:         string(searcher.SearchModeVector),
			CacheSize:    searcher.DefaultCacheSize,
			CacheTTL:     searcher.DefaultCacheTTL,
			RRFConstant:  searcher.DefaultRRFConstant,
		},
		Classification: ClassificationConfig{
			PathWeight:         classifier.DefaultPathWeight,
			KeywordWeight:      classifier.DefaultKeywordWeight,
			EmbeddingWeight:    classifier.DefaultEmbeddingWeight,
			AmbiguityMargin:    classifier.DefaultAmbiguityMargin,
			DuplicateThreshold: classifier.DefaultDuplicateThreshold,
			FallbackThreshold:  classifier.DefaultFallbackThreshold,
			PreviewChars:       classifier.DefaultPreviewChars,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

func defaultDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "flaiwheel")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".flaiwheel"
	}
	return filepath.Join(home, ".local", "share", "flaiwheel")
}

// Load layers defaults, the YAML file at path, and environment overrides,
// then validates. An empty path tries DefaultFileName in the data directory;
// a missing default file is not an error, a missing explicit file is.
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	explicit := path != ""
	if !explicit {
		dataDir := cfg.DataDir
		if v := os.Getenv(EnvPrefix + "DATA_DIR"); v != "" {
			dataDir = v
		}
		path = filepath.Join(dataDir, DefaultFileName)
	}

	if err := cfg.loadYAML(path); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadYAML decodes the file over the current values, so keys absent from
// the file keep their defaults.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides applies FLAIWHEEL_* variables. Unparseable values are
// errors rather than silently ignored.
func (c *Config) applyEnvOverrides() error {
	var errs []error
	str := func(name string, dst *string) {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	num := func(name string, dst *int) {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok && v != "" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = n
		}
	}
	float := func(name string, dst *float64) {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok && v != "" {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = f
		}
	}
	duration := func(name string, dst *time.Duration) {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok && v != "" {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = d
		}
	}
	boolean := func(name string, dst *bool) {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok && v != "" {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = b
		}
	}

	str("DATA_DIR", &c.DataDir)

	str("CHUNK_STRATEGY", &c.Chunking.Strategy)
	num("CHUNK_MAX_CHARS", &c.Chunking.MaxChars)
	num("CHUNK_OVERLAP", &c.Chunking.Overlap)

	str("EMBEDDING_PROVIDER", &c.Embedding.Provider)
	str("EMBEDDING_MODEL", &c.Embedding.Model)
	num("EMBEDDING_DIMENSION", &c.Embedding.Dimension)
	str("EMBEDDING_BASE_URL", &c.Embedding.BaseURL)
	float("EMBEDDING_RPS", &c.Embedding.RequestsPerSecond)

	num("INDEX_WORKERS", &c.Indexing.Workers)
	if v := os.Getenv(EnvPrefix + "EXTENSIONS"); v != "" {
		c.Indexing.Extensions = splitList(v)
	}

	duration("SYNC_INTERVAL", &c.Sync.Interval)
	boolean("SYNC_WATCH", &c.Sync.Watch)

	str("SEARCH_MODE", &c.Search.Mode)
	num("SEARCH_LIMIT", &c.Search.DefaultLimit)

	str("LOG_LEVEL", &c.Logging.Level)
	str("LOG_FORMAT", &c.Logging.Format)
	str("LOG_FILE", &c.Logging.File)

	// A single project can be declared from the environment alone
	if docsPath := os.Getenv(EnvPrefix + "DOCS_PATH"); docsPath != "" {
		name := os.Getenv(EnvPrefix + "PROJECT")
		if name == "" {
			name = "default"
		}
		c.upsertProject(ProjectConfig{Name: name, DocsPath: docsPath})
	}

	return errors.Join(errs...)
}

func (c *Config) upsertProject(p ProjectConfig) {
	for i := range c.Projects {
		if c.Projects[i].Name == p.Name {
			c.Projects[i] = p
			return
		}
	}
	c.Projects = append(c.Projects, p)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks the configuration
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return errors.New("data_dir must not be empty")
	}

	seen := make(map[string]bool, len(c.Projects))
	for _, p := range c.Projects {
		if err := ValidateProjectName(p.Name); err != nil {
			return err
		}
		if seen[p.Name] {
			return fmt.Errorf("project %q declared twice", p.Name)
		}
		seen[p.Name] = true
		if p.DocsPath == "" {
			return fmt.Errorf("project %q: docs_path must not be empty", p.Name)
		}
	}

	if _, err := types.ParseChunkStrategy(c.Chunking.Strategy); err != nil {
		return fmt.Errorf("chunking.strategy: %w", err)
	}
	if c.Chunking.MaxChars <= 0 {
		return fmt.Errorf("chunking.max_chars must be positive, got %d", c.Chunking.MaxChars)
	}
	if c.Chunking.Overlap < 0 {
		return fmt.Errorf("chunking.overlap must be non-negative, got %d", c.Chunking.Overlap)
	}

	switch strings.ToLower(c.Embedding.Provider) {
	case "", "auto", embedder.ProviderLocal, embedder.ProviderOpenAI, embedder.ProviderJina:
	default:
		return fmt.Errorf("embedding.provider must be auto, local, openai or jina, got %s", c.Embedding.Provider)
	}
	if c.Embedding.Dimension < 0 {
		return fmt.Errorf("embedding.dimension must be non-negative, got %d", c.Embedding.Dimension)
	}
	if c.Embedding.RequestsPerSecond < 0 {
		return fmt.Errorf("embedding.requests_per_second must be non-negative, got %f", c.Embedding.RequestsPerSecond)
	}

	if c.Indexing.Workers < 0 {
		return fmt.Errorf("indexing.workers must be non-negative, got %d", c.Indexing.Workers)
	}
	for _, ext := range c.Indexing.Extensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("indexing.extensions: %q must start with a dot", ext)
		}
	}

	if c.Sync.Interval < 0 {
		return fmt.Errorf("sync.interval must be non-negative, got %s", c.Sync.Interval)
	}

	if _, err := searcher.ParseMode(c.Search.Mode); err != nil {
		return fmt.Errorf("search.mode: %w", err)
	}
	if c.Search.DefaultLimit < 0 || c.Search.DefaultLimit > searcher.MaxLimit {
		return fmt.Errorf("search.default_limit must be between 0 and %d, got %d", searcher.MaxLimit, c.Search.DefaultLimit)
	}

	if err := c.ClassifierConfig().Validate(); err != nil {
		return fmt.Errorf("classification: %w", err)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %s", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "auto", "json", "text":
	default:
		return fmt.Errorf("logging.format must be auto, json or text, got %s", c.Logging.Format)
	}

	return nil
}

// ValidateProjectName checks a project name
func ValidateProjectName(name string) error {
	if !projectNamePattern.MatchString(name) {
		return fmt.Errorf("%w: invalid project name %q", types.ErrInvalidInput, name)
	}
	return nil
}

// DatabasePath is the SQLite file under the data directory
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "flaiwheel.db")
}

// LockDir holds the per-project cross-process index locks
func (c *Config) LockDir() string {
	return filepath.Join(c.DataDir, "locks")
}

// EmbedderConfig converts the embedding section
func (c *Config) EmbedderConfig() embedder.Config {
	return embedder.Config{
		Provider:          c.Embedding.Provider,
		Model:             c.Embedding.Model,
		Dimension:         c.Embedding.Dimension,
		BaseURL:           c.Embedding.BaseURL,
		CacheSize:         c.Embedding.CacheSize,
		RequestsPerSecond: c.Embedding.RequestsPerSecond,
	}
}

// IndexerConfig converts the chunking and indexing sections
func (c *Config) IndexerConfig() indexer.Config {
	return indexer.Config{
		Workers:    c.Indexing.Workers,
		Extensions: c.Indexing.Extensions,
		Chunking: chunker.Options{
			Strategy: types.ChunkStrategy(strings.ToLower(c.Chunking.Strategy)),
			MaxChars: c.Chunking.MaxChars,
			Overlap:  c.Chunking.Overlap,
			MinChars: c.Chunking.MinChars,
		},
	}
}

// SearcherConfig converts the search section
func (c *Config) SearcherConfig() searcher.Config {
	mode, _ := searcher.ParseMode(c.Search.Mode)
	return searcher.Config{
		DefaultLimit: c.Search.DefaultLimit,
		DefaultMode:  mode,
		CacheSize:    c.Search.CacheSize,
		CacheTTL:     c.Search.CacheTTL,
		RRFConstant:  c.Search.RRFConstant,
	}
}

// ClassifierConfig converts the classification section
func (c *Config) ClassifierConfig() classifier.Config {
	return classifier.Config{
		PathWeight:         c.Classification.PathWeight,
		KeywordWeight:      c.Classification.KeywordWeight,
		EmbeddingWeight:    c.Classification.EmbeddingWeight,
		AmbiguityMargin:    c.Classification.AmbiguityMargin,
		DuplicateThreshold: c.Classification.DuplicateThreshold,
		FallbackThreshold:  c.Classification.FallbackThreshold,
		PreviewChars:       c.Classification.PreviewChars,
		Workers:            c.Indexing.Workers,
		Extensions:         c.Indexing.Extensions,
	}
}

// WriteYAML writes the configuration to path
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
