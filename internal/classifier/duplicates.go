package classifier

import (
	"math"

	"github.com/coder/hnsw"

	"github.com/dl4rce/flaiwheel/internal/storage"
)

// duplicateCandidates is how many neighbours the graph proposes per document
const duplicateCandidates = 8

// duplicate links a document to the earliest document it duplicates
type duplicate struct {
	of         int
	similarity float64
}

// findDuplicates walks vectors in batch order. Each document is checked
// against an HNSW graph of the documents before it; candidates are confirmed
// with the exact cosine similarity. A document that duplicates a duplicate
// points at the root of that cluster. Nil vectors are skipped.
func findDuplicates(vectors [][]float32, threshold float64) map[int]duplicate {
	graph := hnsw.NewGraph[int]()
	graph.Distance = hnsw.CosineDistance

	dups := make(map[int]duplicate)
	for i, vec := range vectors {
		norm := normalized(vec)
		if norm == nil {
			continue
		}

		if graph.Len() > 0 {
			best, bestSim := -1, 0.0
			for _, node := range graph.Search(norm, duplicateCandidates) {
				sim := storage.CosineSimilarity(vec, vectors[node.Key])
				if sim < threshold {
					continue
				}
				root := node.Key
				if d, ok := dups[root]; ok {
					root = d.of
				}
				if best < 0 || root < best || (root == best && sim > bestSim) {
					best, bestSim = root, sim
				}
			}
			if best >= 0 {
				dups[i] = duplicate{of: best, similarity: bestSim}
			}
		}

		graph.Add(hnsw.MakeNode(i, norm))
	}
	return dups
}

// normalized returns a unit-length copy of v, or nil for empty and zero vectors
func normalized(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return nil
	}
	n := float32(math.Sqrt(sum))
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x / n
	}
	return out
}
