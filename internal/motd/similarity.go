package motd

import (
	"math"

	"github.com/edgard/motdbot/internal/database"
)

// CosineSimilarity returns the cosine similarity of two vectors: their dot
// product divided by the product of their magnitudes. It returns 0 when the
// vectors have different lengths (dimension mismatch is excluded from
// comparison, never an error) or when either has zero magnitude.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}

// MaxSimilarity scores a candidate vector against a set of historical
// embeddings and returns the worst-case (maximum) similarity together with
// the index of the matching entry. An empty history yields (0, -1): no prior
// message means the candidate is trivially unique.
func MaxSimilarity(candidate []float32, history []database.EmbeddedMessage) (float64, int) {
	maxScore := 0.0
	matched := -1
	for i, entry := range history {
		if score := CosineSimilarity(candidate, entry.Embedding); score > maxScore {
			maxScore = score
			matched = i
		}
	}
	return maxScore, matched
}
