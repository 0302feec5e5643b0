// Package searcher answers queries against a project's live collection.
//
// The searcher provides three search modes:
//   - Vector: semantic search using the collection's embedder (default)
//   - Keyword: BM25 full-text search over the chunk FTS5 index
//   - Hybrid: both, merged with Reciprocal Rank Fusion
//
// # Basic Usage
//
//	s, err := searcher.New(searcher.Config{})
//	if err != nil {
//	    return err
//	}
//
//	resp, err := s.Search(ctx, live, searcher.Request{
//	    Query:    "payment retries",
//	    Limit:    5,
//	    Category: types.CategoryBugfix,
//	})
//	for _, r := range resp.Results {
//	    fmt.Printf("[%d] %s (%s) %.1f%%\n", r.Rank, r.Source, r.Heading, r.RelevancePercent)
//	}
//
// # Relevance
//
// Every result carries RelevancePercent = round((1 - cosine distance) * 100, 1)
// between the query and the chunk, computed with the vectors of the
// collection passed to Search. Callers capture the live collection pointer
// once per request, so a result set never mixes two model generations even
// while a migration swaps collections.
//
// Keyword and hybrid results reached only through BM25 get their relevance
// from the chunk's stored vector. Hybrid results also carry the RRF fusion
// score, RRF(d) = Σ 1/(k + rank(d)) with k = 60 by default.
//
// # Caching
//
// Responses with at least one result are cached in an LRU keyed by
// sha256(collection id | query | mode | category | limit | min relevance)
// and expire after Config.CacheTTL. InvalidateCache drops everything; the
// project context calls it after every index pass and migration swap.
package searcher
