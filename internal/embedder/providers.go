package embedder

import (
	"math"
)

// Provider configuration
const (
	ProviderJina   = "jina"
	ProviderOpenAI = "openai"
	ProviderLocal  = "local"

	// Default models
	DefaultJinaModel   = "jina-embeddings-v3"
	DefaultOpenAIModel = "text-embedding-3-small"
	DefaultLocalModel  = "flaiwheel-hash-v1"

	// Dimensions
	JinaDimension   = 1024
	OpenAIDimension = 1536
	LocalDimension  = 384

	// Endpoints
	JinaEndpoint   = "https://api.jina.ai/v1/embeddings"
	OpenAIEndpoint = "https://api.openai.com/v1/embeddings"

	// Batch limits
	DefaultBatchSize = 50
	MaxBatchSize     = 100

	// DefaultCacheSize is the number of embeddings kept in memory
	DefaultCacheSize = 10000

	// Retry configuration
	MaxRetries        = 3
	InitialBackoffMs  = 100
	MaxBackoffMs      = 5000
	BackoffMultiplier = 2.0
)

// Environment variables
const (
	EnvProvider     = "FLAIWHEEL_EMBEDDING_PROVIDER"
	EnvModel        = "FLAIWHEEL_EMBEDDING_MODEL"
	EnvJinaAPIKey   = "JINA_API_KEY"
	EnvOpenAIAPIKey = "OPENAI_API_KEY"
)

// defaultModel returns the model used when none is configured
func defaultModel(provider string) string {
	switch provider {
	case ProviderJina:
		return DefaultJinaModel
	case ProviderOpenAI:
		return DefaultOpenAIModel
	default:
		return DefaultLocalModel
	}
}

// defaultDimension returns the vector size of a provider's default model
func defaultDimension(provider string) int {
	switch provider {
	case ProviderJina:
		return JinaDimension
	case ProviderOpenAI:
		return OpenAIDimension
	default:
		return LocalDimension
	}
}

// NormalizeVector normalizes a vector to unit length (for cosine similarity)
func NormalizeVector(v []float32) []float32 {
	var sum float64
	for _, val := range v {
		sum += float64(val) * float64(val)
	}

	if sum == 0 {
		return v
	}

	norm := float32(math.Sqrt(sum))
	result := make([]float32, len(v))
	for i, val := range v {
		result[i] = val / norm
	}

	return result
}
