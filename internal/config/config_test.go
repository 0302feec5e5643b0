package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dl4rce/flaiwheel/internal/searcher"
	"github.com/dl4rce/flaiwheel/pkg/types"
)

func TestNewConfig_Defaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, "hybrid", cfg.Chunking.Strategy)
	assert.Equal(t, 2000, cfg.Chunking.MaxChars)
	assert.Equal(t, 200, cfg.Chunking.Overlap)
	assert.Equal(t, "auto", cfg.Embedding.Provider)
	assert.Equal(t, 5*time.Minute, cfg.Sync.Interval)
	assert.Equal(t, 5, cfg.Search.DefaultLimit)
	assert.InDelta(t, 0.45, cfg.Classification.PathWeight, 1e-9)
	assert.InDelta(t, 0.92, cfg.Classification.DuplicateThreshold, 1e-9)
	assert.Equal(t, []string{".md", ".markdown", ".txt"}, cfg.Indexing.Extensions)
	require.NoError(t, cfg.Validate())
}

func TestLoad_YAMLOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "flaiwheel.yaml")
	content := `
data_dir: ` + dir + `
projects:
  - name: acme
    docs_path: /srv/acme-knowledge
chunking:
  strategy: heading
search:
  default_limit: 10
  mode: hybrid
  cache_ttl: 30s
sync:
  interval: 1m
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.DataDir)
	require.Len(t, cfg.Projects, 1)
	assert.Equal(t, "acme", cfg.Projects[0].Name)
	assert.Equal(t, "heading", cfg.Chunking.Strategy)
	assert.Equal(t, 2000, cfg.Chunking.MaxChars, "unset keys keep defaults")
	assert.Equal(t, 10, cfg.Search.DefaultLimit)
	assert.Equal(t, 30*time.Second, cfg.Search.CacheTTL)
	assert.Equal(t, time.Minute, cfg.Sync.Interval)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, searcher.SearchModeHybrid, cfg.SearcherConfig().DefaultMode)
}

func TestLoad_ExplicitMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoad_DefaultFileOptional(t *testing.T) {
	t.Setenv(EnvPrefix+"DATA_DIR", t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Empty(t, cfg.Projects)
}

func TestLoad_EnvOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvPrefix+"DATA_DIR", dir)
	t.Setenv(EnvPrefix+"EMBEDDING_PROVIDER", "local")
	t.Setenv(EnvPrefix+"EMBEDDING_DIMENSION", "128")
	t.Setenv(EnvPrefix+"SYNC_INTERVAL", "90s")
	t.Setenv(EnvPrefix+"SYNC_WATCH", "true")
	t.Setenv(EnvPrefix+"EXTENSIONS", ".md, .rst")
	t.Setenv(EnvPrefix+"DOCS_PATH", "/srv/docs")
	t.Setenv(EnvPrefix+"PROJECT", "acme")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, "local", cfg.Embedding.Provider)
	assert.Equal(t, 128, cfg.Embedding.Dimension)
	assert.Equal(t, 90*time.Second, cfg.Sync.Interval)
	assert.True(t, cfg.Sync.Watch)
	assert.Equal(t, []string{".md", ".rst"}, cfg.Indexing.Extensions)
	assert.Equal(t, []ProjectConfig{{Name: "acme", DocsPath: "/srv/docs"}}, cfg.Projects)
}

func TestLoad_EnvOverridesYAMLProject(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "flaiwheel.yaml")
	content := "projects:\n  - name: acme\n    docs_path: /old\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv(EnvPrefix+"DOCS_PATH", "/new")
	t.Setenv(EnvPrefix+"PROJECT", "acme")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []ProjectConfig{{Name: "acme", DocsPath: "/new"}}, cfg.Projects)
}

func TestLoad_BadEnvValue(t *testing.T) {
	t.Setenv(EnvPrefix+"DATA_DIR", t.TempDir())
	t.Setenv(EnvPrefix+"INDEX_WORKERS", "many")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FLAIWHEEL_INDEX_WORKERS")
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chunking: [unclosed"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid defaults", func(*Config) {}, ""},
		{"empty data dir", func(c *Config) { c.DataDir = "" }, "data_dir"},
		{"bad strategy", func(c *Config) { c.Chunking.Strategy = "sentences" }, "chunking.strategy"},
		{"zero max chars", func(c *Config) { c.Chunking.MaxChars = 0 }, "chunking.max_chars"},
		{"negative overlap", func(c *Config) { c.Chunking.Overlap = -1 }, "chunking.overlap"},
		{"bad provider", func(c *Config) { c.Embedding.Provider = "cohere" }, "embedding.provider"},
		{"negative rps", func(c *Config) { c.Embedding.RequestsPerSecond = -1 }, "requests_per_second"},
		{"extension without dot", func(c *Config) { c.Indexing.Extensions = []string{"md"} }, "must start with a dot"},
		{"bad search mode", func(c *Config) { c.Search.Mode = "fuzzy" }, "search.mode"},
		{"limit too large", func(c *Config) { c.Search.DefaultLimit = 1000 }, "search.default_limit"},
		{"negative weight", func(c *Config) { c.Classification.PathWeight = -0.1 }, "classification"},
		{"bad log level", func(c *Config) { c.Logging.Level = "trace" }, "logging.level"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"bad project name", func(c *Config) {
			c.Projects = []ProjectConfig{{Name: "../etc", DocsPath: "/x"}}
		}, "invalid project name"},
		{"duplicate project", func(c *Config) {
			c.Projects = []ProjectConfig{{Name: "a", DocsPath: "/x"}, {Name: "a", DocsPath: "/y"}}
		}, "declared twice"},
		{"missing docs path", func(c *Config) {
			c.Projects = []ProjectConfig{{Name: "a"}}
		}, "docs_path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateProjectName(t *testing.T) {
	for _, name := range []string{"acme", "my-project", "proj_2", "A1"} {
		assert.NoError(t, ValidateProjectName(name), name)
	}
	for _, name := range []string{"", "-lead", "has space", "a/b", "ünïcode"} {
		assert.ErrorIs(t, ValidateProjectName(name), types.ErrInvalidInput, name)
	}
}

func TestConversions(t *testing.T) {
	cfg := NewConfig()
	cfg.Chunking.Strategy = "FIXED"
	cfg.Indexing.Workers = 3
	cfg.Embedding.Provider = "local"
	cfg.Embedding.Dimension = 64

	ic := cfg.IndexerConfig()
	assert.Equal(t, types.StrategyFixed, ic.Chunking.Strategy)
	assert.Equal(t, 3, ic.Workers)

	ec := cfg.EmbedderConfig()
	assert.Equal(t, "local", ec.Provider)
	assert.Equal(t, 64, ec.Dimension)

	cc := cfg.ClassifierConfig()
	assert.Equal(t, 3, cc.Workers)
	assert.NoError(t, cc.Validate())

	assert.Equal(t, filepath.Join(cfg.DataDir, "flaiwheel.db"), cfg.DatabasePath())
}

func TestWriteYAML_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := NewConfig()
	cfg.DataDir = dir
	cfg.Projects = []ProjectConfig{{Name: "acme", DocsPath: "/srv/acme"}}
	cfg.Sync.Interval = 42 * time.Second

	path := filepath.Join(dir, "nested", "flaiwheel.yaml")
	require.NoError(t, cfg.WriteYAML(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Projects, loaded.Projects)
	assert.Equal(t, 42*time.Second, loaded.Sync.Interval)
}
