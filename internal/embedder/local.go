package embedder

import (
	"context"
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"
)

var localTokenPattern = regexp.MustCompile(`[\p{L}\p{N}]+`)

// LocalProvider produces deterministic hashed bag-of-token vectors without any
// network access. Each token and adjacent token pair is hashed into one signed
// bucket; the model name seeds the hash so different local models produce
// unrelated vector spaces.
type LocalProvider struct {
	model     string
	dimension int
	cache     *Cache
}

// NewLocalProvider creates a local embedder. Empty model and non-positive
// dimension fall back to defaults.
func NewLocalProvider(model string, dimension int, cache *Cache) (*LocalProvider, error) {
	if model == "" {
		model = DefaultLocalModel
	}
	if dimension <= 0 {
		dimension = LocalDimension
	}
	return &LocalProvider{
		model:     model,
		dimension: dimension,
		cache:     cache,
	}, nil
}

func (l *LocalProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := CacheKey(l.model, req.Text)
	if l.cache != nil {
		if emb, ok := l.cache.Get(key); ok {
			return emb, nil
		}
	}

	emb := &Embedding{
		Vector:    l.vectorize(req.Text),
		Dimension: l.dimension,
		Provider:  ProviderLocal,
		Model:     l.model,
		Hash:      key,
	}

	if l.cache != nil {
		l.cache.Set(key, emb)
	}

	return emb, nil
}

func (l *LocalProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}

	embeddings := make([]*Embedding, len(req.Texts))
	for i, text := range req.Texts {
		emb, err := l.GenerateEmbedding(ctx, EmbeddingRequest{Text: text})
		if err != nil {
			return nil, fmt.Errorf("embedding text %d: %w", i, err)
		}
		embeddings[i] = emb
	}

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   ProviderLocal,
		Model:      l.model,
	}, nil
}

func (l *LocalProvider) vectorize(text string) []float32 {
	vector := make([]float32, l.dimension)
	tokens := localTokenPattern.FindAllString(strings.ToLower(text), -1)

	for i, tok := range tokens {
		l.accumulate(vector, tok, 1.0)
		if i > 0 {
			l.accumulate(vector, tokens[i-1]+" "+tok, 0.5)
		}
	}

	return NormalizeVector(vector)
}

func (l *LocalProvider) accumulate(vector []float32, feature string, weight float32) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(l.model))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()

	bucket := sum % uint64(len(vector))
	if sum>>63 == 1 {
		weight = -weight
	}
	vector[bucket] += weight
}

func (l *LocalProvider) Dimension() int {
	return l.dimension
}

func (l *LocalProvider) Provider() string {
	return ProviderLocal
}

func (l *LocalProvider) Model() string {
	return l.model
}

func (l *LocalProvider) Close() error {
	return nil
}
