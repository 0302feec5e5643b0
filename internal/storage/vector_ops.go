package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
)

const chunkSelectColumns = `c.id, c.collection_id, c.chunk_id, c.source, c.heading, c.category,
		c.ordinal, c.text, c.char_count, c.word_count, c.vector, c.updated_at`

// scanChunkRow scans chunkSelectColumns followed by any extra destinations.
func scanChunkRow(rows *sql.Rows, extra ...interface{}) (*Chunk, error) {
	var c Chunk
	var heading, category sql.NullString
	var charCount, wordCount sql.NullInt64
	dest := []interface{}{
		&c.ID, &c.CollectionID, &c.ChunkID, &c.Source, &heading, &category,
		&c.Ordinal, &c.Text, &charCount, &wordCount, &c.Vector, &c.UpdatedAt,
	}
	dest = append(dest, extra...)
	if err := rows.Scan(dest...); err != nil {
		return nil, err
	}
	c.Heading = heading.String
	c.Category = category.String
	c.CharCount = int(charCount.Int64)
	c.WordCount = int(wordCount.Int64)
	return &c, nil
}

// searchVector performs vector similarity search using cosine similarity
func searchVector(ctx context.Context, q querier, collectionID int64, queryVector []float32, limit int, filters *SearchFilters) ([]VectorResult, error) {
	// Use optimized SQL-based search when sqlite-vec is available
	if VectorExtensionAvailable {
		return searchVectorOptimized(ctx, q, collectionID, queryVector, limit, filters)
	}
	// Fall back to Go-based computation for purego builds
	return searchVectorFallback(ctx, q, collectionID, queryVector, limit, filters)
}

// searchVectorOptimized uses sqlite-vec extension for SQL-based vector similarity search
func searchVectorOptimized(ctx context.Context, q querier, collectionID int64, queryVector []float32, limit int, filters *SearchFilters) ([]VectorResult, error) {
	if limit <= 0 {
		return []VectorResult{}, nil
	}
	queryVectorBlob := serializeVector(queryVector)

	// vec_distance_cosine returns distance (lower is better); convert to similarity
	query := `
		SELECT ` + chunkSelectColumns + `,
			1.0 - vec_distance_cosine(c.vector, ?) as similarity
		FROM chunks c
		WHERE c.collection_id = ?
	`
	args := []interface{}{queryVectorBlob, collectionID}
	query, args = applyFilters(query, args, filters)

	if filters != nil && filters.MinRelevance > 0 {
		query += " AND (1.0 - vec_distance_cosine(c.vector, ?)) >= ?"
		args = append(args, queryVectorBlob, filters.MinRelevance)
	}

	query += " ORDER BY similarity DESC LIMIT ?"
	args = append(args, limit)

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute vector search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	results := make([]VectorResult, 0, limit)
	for rows.Next() {
		var similarity float64
		chunk, err := scanChunkRow(rows, &similarity)
		if err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		results = append(results, VectorResult{Chunk: chunk, SimilarityScore: similarity})
	}
	return results, rows.Err()
}

// searchVectorFallback performs vector search using Go-based cosine similarity computation
func searchVectorFallback(ctx context.Context, q querier, collectionID int64, queryVector []float32, limit int, filters *SearchFilters) ([]VectorResult, error) {
	query := `
		SELECT ` + chunkSelectColumns + `
		FROM chunks c
		WHERE c.collection_id = ?
	`
	args := []interface{}{collectionID}
	query, args = applyFilters(query, args, filters)

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	candidates, err := computeSimilarityScores(rows, queryVector, filters)
	if err != nil {
		return nil, err
	}

	sortCandidates(candidates)
	return buildVectorResults(candidates, limit), nil
}

// searchText performs BM25 full-text search using FTS5
func searchText(ctx context.Context, q querier, collectionID int64, query string, limit int, filters *SearchFilters) ([]TextResult, error) {
	sanitized := sanitizeFTSQuery(query)
	if sanitized == "" {
		// Nothing but punctuation: no term can match
		return []TextResult{}, nil
	}

	sqlQuery := `
		SELECT ` + chunkSelectColumns + `,
			bm25(chunks_fts) as score
		FROM chunks_fts
		INNER JOIN chunks c ON chunks_fts.rowid = c.id
		WHERE chunks_fts MATCH ?
		AND c.collection_id = ?
	`
	args := []interface{}{sanitized, collectionID}
	sqlQuery, args = applyFilters(sqlQuery, args, filters)

	// Order by BM25 score (lower is better) and limit
	sqlQuery += " ORDER BY score LIMIT ?"
	args = append(args, limit)

	rows, err := q.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute FTS search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectTextResults(rows, filters)
}

// Helper functions

// applyFilters adds WHERE clause filters shared by vector and text search
func applyFilters(query string, args []interface{}, filters *SearchFilters) (string, []interface{}) {
	if filters == nil {
		return query, args
	}
	if filters.Category != "" {
		query += " AND c.category = ?"
		args = append(args, filters.Category)
	}
	if filters.SourcePrefix != "" {
		query += " AND c.source GLOB ?"
		args = append(args, escapeGlob(filters.SourcePrefix)+"*")
	}
	return query, args
}

func escapeGlob(s string) string {
	return strings.NewReplacer("*", "[*]", "?", "[?]", "[", "[[]").Replace(s)
}

// computeSimilarityScores processes rows and computes cosine similarity
func computeSimilarityScores(rows *sql.Rows, queryVector []float32, filters *SearchFilters) ([]candidate, error) {
	candidates := make([]candidate, 0, 256)

	for rows.Next() {
		chunk, err := scanChunkRow(rows)
		if err != nil {
			return nil, err
		}

		vector := deserializeVector(chunk.Vector)
		if len(vector) != len(queryVector) {
			continue // Dimension mismatch, skip
		}

		similarity := cosineSimilarity(queryVector, vector)
		if filters != nil && filters.MinRelevance > 0 && similarity < filters.MinRelevance {
			continue
		}

		candidates = append(candidates, candidate{chunk: chunk, score: similarity})
	}

	return candidates, rows.Err()
}

// buildVectorResults creates VectorResult slice from candidates
func buildVectorResults(candidates []candidate, limit int) []VectorResult {
	// Non-positive limit returns all candidates
	if limit <= 0 || limit > len(candidates) {
		limit = len(candidates)
	}

	results := make([]VectorResult, limit)
	for i := 0; i < limit; i++ {
		results[i] = VectorResult{
			Chunk:           candidates[i].chunk,
			SimilarityScore: candidates[i].score,
		}
	}
	return results
}

// collectTextResults processes text search results and normalizes scores
func collectTextResults(rows *sql.Rows, filters *SearchFilters) ([]TextResult, error) {
	results := make([]TextResult, 0)

	for rows.Next() {
		var bm25 float64
		chunk, err := scanChunkRow(rows, &bm25)
		if err != nil {
			return nil, err
		}

		// BM25 scores are negative (lower is better), typically in [-50, 0]
		normalized := 1.0 / (1.0 + math.Abs(bm25)/50.0)
		if filters != nil && filters.MinRelevance > 0 && normalized < filters.MinRelevance {
			continue
		}

		results = append(results, TextResult{Chunk: chunk, BM25Score: normalized})
	}

	return results, rows.Err()
}

// serializeVector converts a float32 slice to a byte blob (little-endian)
func serializeVector(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// deserializeVector converts a byte blob back to a float32 slice
func deserializeVector(blob []byte) []float32 {
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		vector[i] = math.Float32frombits(bits)
	}
	return vector
}

// cosineSimilarity computes the cosine similarity between two vectors
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// candidate represents a chunk with its similarity score
type candidate struct {
	chunk *Chunk
	score float64
}

// sortCandidates sorts candidates by score descending; equal scores keep a
// stable order by chunk id.
func sortCandidates(candidates []candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].chunk.ChunkID < candidates[j].chunk.ChunkID
	})
}

var ftsTokenPattern = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// sanitizeFTSQuery turns free text into an FTS5 expression of quoted terms
// joined with OR, so operators and punctuation in user input are inert.
func sanitizeFTSQuery(query string) string {
	tokens := ftsTokenPattern.FindAllString(query, -1)
	if len(tokens) == 0 {
		return ""
	}
	quoted := make([]string, 0, len(tokens))
	seen := make(map[string]bool, len(tokens))
	for _, tok := range tokens {
		lower := strings.ToLower(tok)
		if seen[lower] {
			continue
		}
		seen[lower] = true
		quoted = append(quoted, `"`+tok+`"`)
	}
	return strings.Join(quoted, " OR ")
}

// SerializeVector converts a vector into its stored blob form.
func SerializeVector(vector []float32) []byte {
	return serializeVector(vector)
}

// DeserializeVector converts a stored blob back into a vector.
func DeserializeVector(blob []byte) []float32 {
	return deserializeVector(blob)
}

// CosineSimilarity returns the cosine similarity of two vectors, 0 when
// either is zero or their dimensions differ.
func CosineSimilarity(a, b []float32) float64 {
	return cosineSimilarity(a, b)
}
