package embedder

import (
	"fmt"
	"os"
)

// NewOpenAIProvider creates an OpenAI embedder. An empty apiKey falls back to
// OPENAI_API_KEY.
func NewOpenAIProvider(cfg Config, cache *Cache) (*RemoteProvider, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv(EnvOpenAIAPIKey)
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: %s not set", ErrNoProviderEnabled, EnvOpenAIAPIKey)
	}

	endpoint := cfg.BaseURL
	if endpoint == "" {
		endpoint = OpenAIEndpoint
	}

	return newRemoteProvider(remoteOptions{
		name:              ProviderOpenAI,
		endpoint:          endpoint,
		apiKey:            apiKey,
		model:             cfg.Model,
		dimension:         cfg.Dimension,
		requestsPerSecond: cfg.RequestsPerSecond,
		cache:             cache,
	}), nil
}
