package plancache

import (
	"math"

	"queryforge/internal/models"
)

// Bands holds the similarity thresholds that drive reuse policy. The
// values are empirically chosen in the original system; they are plumbed
// through configuration rather than fixed here.
type Bands struct {
	Floor    float64 // below this, matches are not even reported
	Moderate float64 // at or above: usable as a worked example
	High     float64 // at or above: safe to reuse verbatim
}

// DefaultBands are the thresholds used when none are configured.
func DefaultBands() Bands {
	return Bands{Floor: 0.5, Moderate: 0.65, High: 0.85}
}

// Classify maps a similarity score to its band.
func (b Bands) Classify(similarity float64) models.SimilarityBand {
	switch {
	case similarity >= b.High:
		return models.BandHigh
	case similarity >= b.Moderate:
		return models.BandModerate
	default:
		return models.BandLow
	}
}

// cosineSimilarity computes cosine similarity between two vectors.
// Mismatched or zero-length vectors score 0.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
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
