package types

// SearchResult represents a single search result with relevance information
type SearchResult struct {
	// Identification
	ChunkID string `json:"chunk_id"`
	Rank    int    `json:"rank"` // Position in result set (1-based)

	// Scoring
	RelevancePercent float64 `json:"relevance_percent"` // round((1 - cosine distance) * 100, 1)
	FusionScore      float64 `json:"fusion_score,omitempty"`

	// Content
	Text     string   `json:"text"`
	Source   string   `json:"source"`
	Heading  string   `json:"heading"`
	Category Category `json:"category"`
}

// Validate checks if the search result is valid
func (sr *SearchResult) Validate() error {
	if sr.ChunkID == "" {
		return ErrInvalidChunkID
	}
	if sr.Rank < 1 {
		return ErrInvalidRank
	}
	if sr.RelevancePercent < -100 || sr.RelevancePercent > 100 {
		return ErrInvalidRelevanceScore
	}
	if sr.Source == "" {
		return ErrMissingSource
	}
	if sr.Text == "" {
		return ErrEmptyContent
	}
	return nil
}
