package embedder

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
)

// Config holds embedder configuration
type Config struct {
	Provider          string  // jina, openai, local; empty or "auto" detects from the environment
	Model             string  // empty selects the provider default
	Dimension         int     // zero selects the model default
	APIKey            string  // empty falls back to the provider's environment variable
	BaseURL           string  // overrides the provider endpoint
	CacheSize         int     // zero disables caching
	RequestsPerSecond float64 // remote throttle; zero is unlimited
}

// Normalized resolves the provider and model the config would select
func (c Config) Normalized() Config {
	provider := strings.ToLower(strings.TrimSpace(c.Provider))
	if provider == "" || provider == "auto" {
		provider = DetectProvider()
	}
	c.Provider = provider
	if c.Model == "" {
		c.Model = defaultModel(provider)
	}
	return c
}

// Key identifies the embedding generation a config selects: provider/model
func (c Config) Key() string {
	n := c.Normalized()
	return n.Provider + "/" + n.Model
}

// New creates an embedder with explicit configuration
func New(cfg Config) (Embedder, error) {
	cfg = cfg.Normalized()

	var cache *Cache
	if cfg.CacheSize > 0 {
		cache = NewCache(cfg.CacheSize)
	}

	switch cfg.Provider {
	case ProviderJina:
		return NewJinaProvider(cfg, cache)
	case ProviderOpenAI:
		return NewOpenAIProvider(cfg, cache)
	case ProviderLocal:
		return NewLocalProvider(cfg.Model, cfg.Dimension, cache)
	default:
		return nil, fmt.Errorf("%w: unknown provider %s", ErrUnsupportedModel, cfg.Provider)
	}
}

// NewFromEnv creates an embedder based on environment variables
// Priority:
// 1. FLAIWHEEL_EMBEDDING_PROVIDER (jina, openai, local) and FLAIWHEEL_EMBEDDING_MODEL
// 2. Check for API keys: JINA_API_KEY, OPENAI_API_KEY
// 3. Default to local if no API keys found
func NewFromEnv() (Embedder, error) {
	return New(Config{
		Provider:  os.Getenv(EnvProvider),
		Model:     os.Getenv(EnvModel),
		CacheSize: DefaultCacheSize,
	})
}

// DetectProvider returns the provider that would be used based on current environment
func DetectProvider() string {
	provider := os.Getenv(EnvProvider)
	if provider != "" && !strings.EqualFold(provider, "auto") {
		return strings.ToLower(provider)
	}

	if os.Getenv(EnvJinaAPIKey) != "" {
		return ProviderJina
	}
	if os.Getenv(EnvOpenAIAPIKey) != "" {
		return ProviderOpenAI
	}

	return ProviderLocal
}

// Pool shares one embedder instance per provider/model across projects.
// Embedders obtained from a Pool are closed by Pool.Close, never by callers.
type Pool struct {
	mu        sync.Mutex
	embedders map[string]Embedder
	factory   func(Config) (Embedder, error)
}

// NewPool creates an empty pool backed by New
func NewPool() *Pool {
	return NewPoolWithFactory(New)
}

// NewPoolWithFactory creates a pool that builds embedders with factory
func NewPoolWithFactory(factory func(Config) (Embedder, error)) *Pool {
	return &Pool{
		embedders: make(map[string]Embedder),
		factory:   factory,
	}
}

// Get returns the shared embedder for cfg, creating it on first use
func (p *Pool) Get(cfg Config) (Embedder, error) {
	cfg = cfg.Normalized()
	key := cfg.Key()

	p.mu.Lock()
	defer p.mu.Unlock()

	if e, ok := p.embedders[key]; ok {
		return e, nil
	}

	e, err := p.factory(cfg)
	if err != nil {
		return nil, err
	}
	p.embedders[key] = e
	return e, nil
}

// Len returns the number of live embedder instances
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.embedders)
}

// Close closes every pooled embedder
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for key, e := range p.embedders {
		if err := e.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", key, err))
		}
		delete(p.embedders, key)
	}
	return errors.Join(errs...)
}
