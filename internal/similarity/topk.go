package similarity

import (
	"sort"
)

// Match pairs a candidate index with its similarity to a query embedding.
type Match struct {
	Index      int
	Similarity float64
}

// TopK ranks candidates by cosine similarity to the query and returns the k
// best matches at or above the threshold, most similar first.
func TopK(query []float32, candidates [][]float32, k int, threshold float64) []Match {
	if len(candidates) == 0 || k <= 0 {
		return nil
	}

	var matches []Match
	for i, candidate := range candidates {
		sim := CosineSimilarity(query, candidate)
		if sim >= threshold {
			matches = append(matches, Match{Index: i, Similarity: sim})
		}
	}

	sort.Slice(matches, func(a, b int) bool {
		return matches[a].Similarity > matches[b].Similarity
	})

	if len(matches) > k {
		matches = matches[:k]
	}
	return matches
}
