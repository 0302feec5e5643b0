// Package embedder generates vector embeddings for document chunks.
//
// Three providers are available behind the Embedder interface: Jina AI and
// OpenAI over HTTP, and a local provider that hashes tokens into a fixed
// number of buckets and needs no network. Callers never branch on the
// provider; the indexing pipeline, the classifier and search all work against
// the interface.
//
// # Basic Usage
//
//	emb, err := embedder.New(embedder.Config{Provider: "local", CacheSize: 10000})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer emb.Close()
//
//	result, err := emb.GenerateEmbedding(ctx, embedder.EmbeddingRequest{
//	    Text: "Root cause: the retry loop never backed off",
//	})
//	fmt.Printf("Vector dimension: %d\n", len(result.Vector))
//
// # Batch Processing
//
// GenerateBatch accepts at most MaxBatchSize texts. EmbedAll splits larger
// inputs into batches and returns the vectors in input order:
//
//	vectors, err := embedder.EmbedAll(ctx, emb, texts)
//
// # Caching
//
// Each provider can sit behind an LRU cache keyed by sha256(model, text), so a
// cache shared by two models never returns a vector from the wrong one.
// Cached vectors are copied on read.
//
// # Remote Providers
//
// Remote calls are throttled with a token bucket (RequestsPerSecond) and
// retried with exponential backoff. 4xx responses other than 429 are not
// retried.
//
// # Pooling
//
// A Pool keeps one embedder per provider/model. Every project configured with
// the same model shares one instance and one cache. The Pool owns the
// instances it hands out and closes them in Pool.Close.
//
// # Environment Variables
//
//	FLAIWHEEL_EMBEDDING_PROVIDER  jina, openai, local (default: auto-detect)
//	FLAIWHEEL_EMBEDDING_MODEL     model name (default: provider default)
//	JINA_API_KEY                  enables the Jina provider
//	OPENAI_API_KEY                enables the OpenAI provider
package embedder
