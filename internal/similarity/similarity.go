// Package similarity scores and ranks embedding vectors by cosine
// similarity.
package similarity

import (
	"math"
	"sort"
)

// DefaultLimit is the result cap used when the caller supplies none.
const DefaultLimit = 10

// Cosine computes the cosine similarity of two vectors.
//
// Returns 0 when either vector is empty or has zero norm; it never
// divides by zero and never panics. Both vectors must have the same
// dimensionality; mismatched inputs are a caller contract violation.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Match pairs a ranked item with its similarity score.
type Match[T any] struct {
	Item  T
	Score float64
}

// Rank scores candidates against the query vector, drops those below
// minSimilarity (inclusive threshold: a score equal to minSimilarity is
// kept), sorts the rest by score descending with ties kept in input
// order, and truncates to limit after filtering and sorting.
//
// Candidates with a nil or empty vector score 0. A non-positive limit
// falls back to DefaultLimit.
func Rank[T any](query []float32, candidates []T, vector func(T) []float32, minSimilarity float64, limit int) []Match[T] {
	if limit <= 0 {
		limit = DefaultLimit
	}

	matches := make([]Match[T], 0, len(candidates))
	for _, c := range candidates {
		score := Cosine(query, vector(c))
		if score >= minSimilarity {
			matches = append(matches, Match[T]{Item: c, Score: score})
		}
	}

	// Stable: equal scores keep candidate input order.
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})

	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}
