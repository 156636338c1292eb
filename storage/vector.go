package storage

import (
	"math"

	"github.com/viterin/vek/vek32"
)

// Cosine scores two vectors by cosine similarity. Mismatched or zero-norm
// vectors score 0 so degraded embeddings sort last instead of erroring.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	dot := float64(vek32.Dot(a, b))
	na := math.Sqrt(float64(vek32.Dot(a, a)))
	nb := math.Sqrt(float64(vek32.Dot(b, b)))
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (na * nb)
}
