package searcher

import (
	"context"
	"crypto/sha256"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/dl4rce/flaiwheel/internal/storage"
	"github.com/dl4rce/flaiwheel/internal/vectorstore"
	"github.com/dl4rce/flaiwheel/pkg/types"
)

// SearchMode defines how search is performed
type SearchMode string

const (
	SearchModeHybrid  SearchMode = "hybrid"  // Vector + BM25 with RRF
	SearchModeVector  SearchMode = "vector"  // Vector similarity only
	SearchModeKeyword SearchMode = "keyword" // BM25 text search only
)

// ParseMode validates a search mode name; empty selects vector search
func ParseMode(s string) (SearchMode, error) {
	switch SearchMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", SearchModeVector:
		return SearchModeVector, nil
	case SearchModeHybrid:
		return SearchModeHybrid, nil
	case SearchModeKeyword:
		return SearchModeKeyword, nil
	default:
		return "", fmt.Errorf("unsupported search mode: %s", s)
	}
}

const (
	DefaultLimit       = 5
	MaxLimit           = 100
	DefaultCacheSize   = 1000
	DefaultCacheTTL    = 5 * time.Minute
	DefaultRRFConstant = 60
)

// Request contains parameters for a search operation
type Request struct {
	Query        string
	Limit        int
	Category     types.Category // empty searches every category
	Mode         SearchMode
	MinRelevance float64 // results below this relevance percent are dropped
	UseCache     bool    // Whether to use query cache
}

// Response contains search results and metadata
type Response struct {
	Results       []types.SearchResult `json:"results"`
	TotalResults  int                  `json:"total_results"`
	SearchMode    SearchMode           `json:"search_mode"`
	Duration      time.Duration        `json:"-"`
	CacheHit      bool                 `json:"cache_hit"`
	VectorResults int                  `json:"vector_results"`
	TextResults   int                  `json:"text_results"`
}

// Hit reports whether the search produced a usable result
func (r *Response) Hit() bool {
	return len(r.Results) > 0
}

// Config tunes a Searcher
type Config struct {
	DefaultLimit int
	DefaultMode  SearchMode
	CacheSize    int
	CacheTTL     time.Duration
	RRFConstant  float64 // k value for Reciprocal Rank Fusion
}

// cacheEntry represents a cached search response with expiration time
type cacheEntry struct {
	response  *Response
	expiresAt time.Time
}

// Searcher runs queries against whichever collection the caller captured.
// Relevance is always computed from the captured collection's own vectors.
type Searcher struct {
	cfg     Config
	cache   *lru.Cache[[32]byte, *cacheEntry]
	cacheMu sync.RWMutex
	now     func() time.Time
}

// New creates a new Searcher instance
func New(cfg Config) (*Searcher, error) {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = DefaultLimit
	}
	if cfg.DefaultMode == "" {
		cfg.DefaultMode = SearchModeVector
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultCacheSize
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.RRFConstant <= 0 {
		cfg.RRFConstant = DefaultRRFConstant
	}

	cache, err := lru.New[[32]byte, *cacheEntry](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create LRU cache: %w", err)
	}

	return &Searcher{
		cfg:   cfg,
		cache: cache,
		now:   time.Now,
	}, nil
}

// Search performs a search based on the request parameters
func (s *Searcher) Search(ctx context.Context, coll *vectorstore.Collection, req Request) (*Response, error) {
	startTime := time.Now()

	if coll == nil {
		return nil, types.ErrNotIndexed
	}
	if err := s.validateRequest(&req); err != nil {
		return nil, err
	}

	// Check cache if enabled
	if req.UseCache {
		if cached, ok := s.checkCache(coll.ID, req); ok {
			cached.CacheHit = true
			cached.Duration = time.Since(startTime)
			return cached, nil
		}
	}

	queryVector, err := coll.EmbedQuery(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("failed to generate query embedding: %w", err)
	}

	var response *Response
	switch req.Mode {
	case SearchModeHybrid:
		response, err = s.hybridSearch(ctx, coll, req, queryVector)
	case SearchModeVector:
		response, err = s.vectorSearch(ctx, coll, req, queryVector)
	case SearchModeKeyword:
		response, err = s.keywordSearch(ctx, coll, req, queryVector)
	default:
		return nil, fmt.Errorf("unsupported search mode: %s", req.Mode)
	}
	if err != nil {
		return nil, err
	}

	response.Results = filterRelevance(response.Results, req.MinRelevance)
	response.TotalResults = len(response.Results)
	response.Duration = time.Since(startTime)
	response.SearchMode = req.Mode

	if req.UseCache && len(response.Results) > 0 {
		s.storeInCache(coll.ID, req, response)
	}

	return response, nil
}

// hybridSearch combines vector and BM25 search using Reciprocal Rank Fusion
func (s *Searcher) hybridSearch(ctx context.Context, coll *vectorstore.Collection, req Request, queryVector []float32) (*Response, error) {
	filters := requestFilters(req)

	var (
		vectorResults []storage.VectorResult
		textResults   []storage.TextResult
		vectorErr     error
		textErr       error
	)

	// Both searches run concurrently; one of them may fail
	var g errgroup.Group
	g.Go(func() error {
		vectorResults, vectorErr = coll.QueryVector(ctx, queryVector, req.Limit*2, filters)
		return nil
	})
	g.Go(func() error {
		textResults, textErr = coll.QueryText(ctx, req.Query, req.Limit*2, filters)
		return nil
	})
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if vectorErr != nil && textErr != nil {
		return nil, fmt.Errorf("both searches failed: vector=%w, text=%v", vectorErr, textErr)
	}

	ranked := applyRRF(vectorResults, textResults, s.cfg.RRFConstant)
	results := buildResults(ranked, req.Limit, queryVector, true)

	return &Response{
		Results:       results,
		VectorResults: len(vectorResults),
		TextResults:   len(textResults),
	}, nil
}

// vectorSearch performs only vector similarity search
func (s *Searcher) vectorSearch(ctx context.Context, coll *vectorstore.Collection, req Request, queryVector []float32) (*Response, error) {
	vectorResults, err := coll.QueryVector(ctx, queryVector, req.Limit, requestFilters(req))
	if err != nil {
		return nil, err
	}

	// Convert to unified format
	ranked := make([]rankedResult, len(vectorResults))
	for i, vr := range vectorResults {
		ranked[i] = rankedResult{
			chunk:      vr.Chunk,
			similarity: vr.SimilarityScore,
			hasSim:     true,
			rank:       i + 1,
		}
	}

	return &Response{
		Results:       buildResults(ranked, req.Limit, queryVector, false),
		VectorResults: len(vectorResults),
	}, nil
}

// keywordSearch performs only BM25 text search
func (s *Searcher) keywordSearch(ctx context.Context, coll *vectorstore.Collection, req Request, queryVector []float32) (*Response, error) {
	textResults, err := coll.QueryText(ctx, req.Query, req.Limit, requestFilters(req))
	if err != nil {
		return nil, err
	}

	// Convert to unified format
	ranked := make([]rankedResult, len(textResults))
	for i, tr := range textResults {
		ranked[i] = rankedResult{
			chunk: tr.Chunk,
			score: tr.BM25Score,
			rank:  i + 1,
		}
	}

	return &Response{
		Results:     buildResults(ranked, req.Limit, queryVector, false),
		TextResults: len(textResults),
	}, nil
}

// rankedResult represents a chunk with its rank and scores
type rankedResult struct {
	chunk      *storage.Chunk
	score      float64 // fusion or BM25 score
	similarity float64
	hasSim     bool
	rank       int
}

// applyRRF applies Reciprocal Rank Fusion to combine vector and text results
// RRF formula: RRF(d) = Σ 1/(k + rank(d))
func applyRRF(vectorResults []storage.VectorResult, textResults []storage.TextResult, k float64) []rankedResult {
	if k <= 0 {
		k = DefaultRRFConstant
	}

	// Combine scores by chunk ID
	byID := make(map[string]*rankedResult)
	entry := func(c *storage.Chunk) *rankedResult {
		r, ok := byID[c.ChunkID]
		if !ok {
			r = &rankedResult{chunk: c}
			byID[c.ChunkID] = r
		}
		return r
	}

	for rank, vr := range vectorResults {
		r := entry(vr.Chunk)
		r.score += 1.0 / (k + float64(rank+1))
		r.similarity = vr.SimilarityScore
		r.hasSim = true
	}
	for rank, tr := range textResults {
		entry(tr.Chunk).score += 1.0 / (k + float64(rank+1))
	}

	results := make([]rankedResult, 0, len(byID))
	for _, r := range byID {
		results = append(results, *r)
	}

	// Sort by score (descending); chunk id keeps the order deterministic
	sort.Slice(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score > results[j].score
		}
		return results[i].chunk.ChunkID < results[j].chunk.ChunkID
	})

	for i := range results {
		results[i].rank = i + 1
	}
	return results
}

// buildResults converts ranked chunks into search results. Chunks reached
// only through keyword search get their similarity from the stored vector.
func buildResults(ranked []rankedResult, limit int, queryVector []float32, fused bool) []types.SearchResult {
	if limit > len(ranked) {
		limit = len(ranked)
	}

	results := make([]types.SearchResult, 0, limit)
	for _, rr := range ranked[:limit] {
		similarity := rr.similarity
		if !rr.hasSim {
			similarity = storage.CosineSimilarity(queryVector, storage.DeserializeVector(rr.chunk.Vector))
		}

		result := types.SearchResult{
			ChunkID:          rr.chunk.ChunkID,
			Rank:             rr.rank,
			RelevancePercent: RelevancePercent(similarity),
			Text:             rr.chunk.Text,
			Source:           rr.chunk.Source,
			Heading:          rr.chunk.Heading,
			Category:         types.Category(rr.chunk.Category),
		}
		if fused {
			result.FusionScore = rr.score
		}
		results = append(results, result)
	}
	return results
}

// RelevancePercent converts a cosine similarity into round((1 - distance) * 100, 1)
func RelevancePercent(similarity float64) float64 {
	if math.IsNaN(similarity) {
		return 0
	}
	return math.Round(similarity*1000) / 10
}

func filterRelevance(results []types.SearchResult, minRelevance float64) []types.SearchResult {
	if minRelevance <= 0 {
		return results
	}
	kept := results[:0]
	for _, r := range results {
		if r.RelevancePercent >= minRelevance {
			kept = append(kept, r)
		}
	}
	for i := range kept {
		kept[i].Rank = i + 1
	}
	return kept
}

func requestFilters(req Request) *storage.SearchFilters {
	if req.Category == "" {
		return nil
	}
	return &storage.SearchFilters{Category: string(req.Category)}
}

// validateRequest ensures search request is valid
func (s *Searcher) validateRequest(req *Request) error {
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return types.ErrEmptyQuery
	}

	if req.Limit <= 0 {
		req.Limit = s.cfg.DefaultLimit
	}
	if req.Limit > MaxLimit {
		req.Limit = MaxLimit
	}

	if req.Mode == "" {
		req.Mode = s.cfg.DefaultMode
	}

	if req.Category != "" && !req.Category.Valid() {
		return fmt.Errorf("%w: %s", types.ErrInvalidCategory, req.Category)
	}
	return nil
}

// checkCache looks up cached search results
func (s *Searcher) checkCache(collectionID int64, req Request) (*Response, bool) {
	hash := computeQueryHash(collectionID, req)

	s.cacheMu.RLock()
	entry, found := s.cache.Get(hash)
	if !found {
		s.cacheMu.RUnlock()
		return nil, false
	}

	// Check if entry has expired while holding read lock to avoid race condition
	if s.now().After(entry.expiresAt) {
		s.cacheMu.RUnlock()

		s.cacheMu.Lock()
		s.cache.Remove(hash)
		s.cacheMu.Unlock()
		return nil, false
	}

	response := copyResponse(entry.response)
	s.cacheMu.RUnlock()
	return response, true
}

// storeInCache saves search results to cache
func (s *Searcher) storeInCache(collectionID int64, req Request, response *Response) {
	entry := &cacheEntry{
		response:  copyResponse(response),
		expiresAt: s.now().Add(s.cfg.CacheTTL),
	}

	s.cacheMu.Lock()
	s.cache.Add(computeQueryHash(collectionID, req), entry)
	s.cacheMu.Unlock()
}

// copyResponse creates a deep copy of a Response
func copyResponse(src *Response) *Response {
	if src == nil {
		return nil
	}
	dst := *src
	dst.Results = make([]types.SearchResult, len(src.Results))
	copy(dst.Results, src.Results)
	return &dst
}

// computeQueryHash computes a unique hash for a search request. The
// collection id is part of the key, so a promoted collection never serves
// results cached for its predecessor.
func computeQueryHash(collectionID int64, req Request) [32]byte {
	var data strings.Builder
	fmt.Fprintf(&data, "%d|%s|%s|%s|%d|%.2f",
		collectionID, req.Query, req.Mode, req.Category, req.Limit, req.MinRelevance)
	return sha256.Sum256([]byte(data.String()))
}

// InvalidateCache drops every cached query
func (s *Searcher) InvalidateCache() {
	s.cacheMu.Lock()
	s.cache.Purge()
	s.cacheMu.Unlock()
}

// CacheLen returns the number of cached queries
func (s *Searcher) CacheLen() int {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	return s.cache.Len()
}
