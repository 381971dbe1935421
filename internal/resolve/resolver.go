// Package resolve decides which enrolled identity, if any, a face embedding
// belongs to. Absence of a match is a valid outcome, never an error.
package resolve

import (
	"math"

	"github.com/your-org/facewatch/internal/models"
)

// ThresholdProvider supplies the applicable decision threshold for a given
// identity: a per-person threshold once enough feedback has accrued, the
// global adaptive threshold otherwise.
type ThresholdProvider interface {
	Threshold(name string) float64
}

// Resolver compares detection embeddings against enrolled identities.
type Resolver struct {
	thresholds ThresholdProvider
}

func NewResolver(thresholds ThresholdProvider) *Resolver {
	return &Resolver{thresholds: thresholds}
}

// Resolve scores the embedding against every enrolled identity's reference
// embeddings (max across references per identity) and applies the best
// match's threshold. With no enrolled identities the decision is Unknown
// with zero similarity.
func (r *Resolver) Resolve(embedding []float32, enrolled map[string][][]float32) models.Decision {
	bestName := ""
	var bestScore float32

	for name, refs := range enrolled {
		score := maxSimilarity(embedding, refs)
		if bestName == "" || score > bestScore {
			bestName = name
			bestScore = score
		}
	}

	if bestName == "" {
		return models.Decision{Name: models.Unknown}
	}

	if float64(bestScore) >= r.thresholds.Threshold(bestName) {
		return models.Decision{Name: bestName, Similarity: bestScore}
	}
	// Below threshold: report the best similarity for diagnostics.
	return models.Decision{Name: models.Unknown, Similarity: bestScore}
}

func maxSimilarity(embedding []float32, refs [][]float32) float32 {
	var best float32 = -1
	for _, ref := range refs {
		if s := CosineSimilarity(embedding, ref); s > best {
			best = s
		}
	}
	return best
}

// CosineSimilarity computes cosine similarity between two L2-normalized
// vectors, clamped to [-1, 1]. Mismatched lengths score 0.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return float32(math.Min(1.0, math.Max(-1.0, dot)))
}
