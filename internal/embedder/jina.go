package embedder

import (
	"fmt"
	"os"
)

// NewJinaProvider creates a Jina AI embedder. An empty apiKey falls back to
// JINA_API_KEY.
func NewJinaProvider(cfg Config, cache *Cache) (*RemoteProvider, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv(EnvJinaAPIKey)
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: %s not set", ErrNoProviderEnabled, EnvJinaAPIKey)
	}

	endpoint := cfg.BaseURL
	if endpoint == "" {
		endpoint = JinaEndpoint
	}

	return newRemoteProvider(remoteOptions{
		name:              ProviderJina,
		endpoint:          endpoint,
		apiKey:            apiKey,
		model:             cfg.Model,
		dimension:         cfg.Dimension,
		requestsPerSecond: cfg.RequestsPerSecond,
		cache:             cache,
	}), nil
}
