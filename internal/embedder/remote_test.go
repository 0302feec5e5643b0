package embedder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type embeddingsRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions"`
}

// fakeEmbeddingsServer answers with vectors of the given dimension whose first
// component is the input length, listing the data in reverse order.
func fakeEmbeddingsServer(t *testing.T, dimension int, calls *atomic.Int32, inputs chan<- []string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req embeddingsRequest
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			return
		}
		if inputs != nil {
			inputs <- req.Input
		}

		data := make([]map[string]interface{}, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			vec := make([]float32, dimension)
			vec[0] = float32(len(req.Input[i]))
			data = append(data, map[string]interface{}{"index": i, "embedding": vec})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"model": req.Model, "data": data})
	}))
	t.Cleanup(server.Close)
	return server
}

func fastRetry(p *RemoteProvider) {
	p.retry = RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}
}

func TestRemoteProvider_Batch(t *testing.T) {
	var calls atomic.Int32
	server := fakeEmbeddingsServer(t, JinaDimension, &calls, nil)

	p, err := NewJinaProvider(Config{APIKey: "test-key", BaseURL: server.URL}, NewCache(10))
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, ProviderJina, p.Provider())
	assert.Equal(t, DefaultJinaModel, p.Model())
	assert.Equal(t, JinaDimension, p.Dimension())

	resp, err := p.GenerateBatch(context.Background(), BatchEmbeddingRequest{Texts: []string{"a", "bbb"}})
	require.NoError(t, err)
	require.Len(t, resp.Embeddings, 2)
	assert.Equal(t, float32(1), resp.Embeddings[0].Vector[0], "results follow input order")
	assert.Equal(t, float32(3), resp.Embeddings[1].Vector[0])
	assert.Equal(t, ProviderJina, resp.Provider)
	assert.Equal(t, int32(1), calls.Load())

	_, err = p.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "bbb"})
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load(), "cached text is not re-sent")
}

func TestRemoteProvider_OnlyMissesAreSent(t *testing.T) {
	var calls atomic.Int32
	inputs := make(chan []string, 2)
	server := fakeEmbeddingsServer(t, OpenAIDimension, &calls, inputs)

	p, err := NewOpenAIProvider(Config{APIKey: "test-key", BaseURL: server.URL}, NewCache(10))
	require.NoError(t, err)

	_, err = p.GenerateBatch(context.Background(), BatchEmbeddingRequest{Texts: []string{"a", "b"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, <-inputs)

	resp, err := p.GenerateBatch(context.Background(), BatchEmbeddingRequest{Texts: []string{"a", "cc"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"cc"}, <-inputs)
	assert.Equal(t, float32(2), resp.Embeddings[1].Vector[0])
}

func TestRemoteProvider_CustomDimension(t *testing.T) {
	var got embeddingsRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{{"index": 0, "embedding": []float32{1, 0, 0, 0}}},
		})
	}))
	defer server.Close()

	p, err := NewOpenAIProvider(Config{APIKey: "test-key", BaseURL: server.URL, Model: "text-embedding-3-large", Dimension: 4}, nil)
	require.NoError(t, err)

	emb, err := p.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "x"})
	require.NoError(t, err)
	assert.Equal(t, 4, emb.Dimension)
	assert.Equal(t, 4, got.Dimensions)
	assert.Equal(t, "text-embedding-3-large", got.Model)
}

func TestRemoteProvider_Errors(t *testing.T) {
	t.Run("client errors are not retried", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			http.Error(w, "bad key", http.StatusUnauthorized)
		}))
		defer server.Close()

		p, err := NewJinaProvider(Config{APIKey: "test-key", BaseURL: server.URL}, nil)
		require.NoError(t, err)
		fastRetry(p)

		_, err = p.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "x"})
		assert.ErrorIs(t, err, ErrProviderFailed)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("server errors are retried", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) == 1 {
				http.Error(w, "busy", http.StatusServiceUnavailable)
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"data": []map[string]interface{}{{"index": 0, "embedding": make([]float32, JinaDimension)}},
			})
		}))
		defer server.Close()

		p, err := NewJinaProvider(Config{APIKey: "test-key", BaseURL: server.URL}, nil)
		require.NoError(t, err)
		fastRetry(p)

		_, err = p.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "x"})
		require.NoError(t, err)
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("wrong dimension", func(t *testing.T) {
		var calls atomic.Int32
		server := fakeEmbeddingsServer(t, 8, &calls, nil)

		p, err := NewJinaProvider(Config{APIKey: "test-key", BaseURL: server.URL}, nil)
		require.NoError(t, err)
		fastRetry(p)

		_, err = p.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "x"})
		assert.ErrorIs(t, err, ErrProviderFailed)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("batch too large", func(t *testing.T) {
		p, err := NewJinaProvider(Config{APIKey: "test-key"}, nil)
		require.NoError(t, err)

		texts := make([]string, MaxBatchSize+1)
		for i := range texts {
			texts[i] = "x"
		}
		_, err = p.GenerateBatch(context.Background(), BatchEmbeddingRequest{Texts: texts})
		assert.ErrorIs(t, err, ErrBatchTooLarge)
	})

	t.Run("cancelled context", func(t *testing.T) {
		var calls atomic.Int32
		server := fakeEmbeddingsServer(t, JinaDimension, &calls, nil)

		p, err := NewJinaProvider(Config{APIKey: "test-key", BaseURL: server.URL}, nil)
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err = p.GenerateEmbedding(ctx, EmbeddingRequest{Text: "x"})
		assert.Error(t, err)
		assert.Equal(t, int32(0), calls.Load())
	})
}

func TestRetryWithBackoff(t *testing.T) {
	config := RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2}

	t.Run("gives up after max retries", func(t *testing.T) {
		attempts := 0
		_, err := retryWithBackoff(context.Background(), config, func() (int, error) {
			attempts++
			return 0, assert.AnError
		})
		assert.ErrorIs(t, err, assert.AnError)
		assert.Equal(t, 3, attempts)
	})

	t.Run("permanent error stops immediately", func(t *testing.T) {
		attempts := 0
		_, err := retryWithBackoff(context.Background(), config, func() (int, error) {
			attempts++
			return 0, permanent(assert.AnError)
		})
		assert.ErrorIs(t, err, assert.AnError)
		assert.Equal(t, 1, attempts)
	})

	t.Run("succeeds after transient failure", func(t *testing.T) {
		attempts := 0
		v, err := retryWithBackoff(context.Background(), config, func() (int, error) {
			attempts++
			if attempts < 2 {
				return 0, assert.AnError
			}
			return 42, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 42, v)
	})
}
