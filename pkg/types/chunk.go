package types

import (
	"errors"
	"strings"
)

// ChunkStrategy selects how a document is split into chunks
type ChunkStrategy string

const (
	StrategyHeading ChunkStrategy = "heading"
	StrategyFixed   ChunkStrategy = "fixed"
	StrategyHybrid  ChunkStrategy = "hybrid"
)

// ParseChunkStrategy validates a strategy name.
func ParseChunkStrategy(s string) (ChunkStrategy, error) {
	switch ChunkStrategy(strings.ToLower(s)) {
	case StrategyHeading:
		return StrategyHeading, nil
	case StrategyFixed:
		return StrategyFixed, nil
	case StrategyHybrid:
		return StrategyHybrid, nil
	default:
		return "", ErrInvalidStrategy
	}
}

// Chunk is a contiguous, retrievable span of one document
type Chunk struct {
	// Identification
	ID      string // Deterministic: hash of source, label and ordinal
	Source  string // Project-relative document path
	Ordinal int

	// Content
	Heading     string // Most recent heading, window label, or "intro"
	HeadingPath string // Enclosing headings joined with " > "
	Text        string
	CharCount   int
	WordCount   int

	// Metadata
	Category Category
}

// Validate checks the chunk is complete enough to be indexed
func (c *Chunk) Validate() error {
	if c.ID == "" {
		return ErrInvalidChunkID
	}
	if c.Source == "" {
		return ErrMissingSource
	}
	if strings.TrimSpace(c.Text) == "" {
		return ErrEmptyContent
	}
	if c.Ordinal < 0 {
		return errors.New("ordinal must be non-negative")
	}
	return nil
}
