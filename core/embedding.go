package core

import "context"

// Embedder turns content into a fixed-length vector. Implementations must be
// deterministic for identical input and are expected to degrade gracefully
// (return a zero vector) rather than fail, so memory operations stay
// available when the backing model is unreachable; the embedding.Graceful
// wrapper enforces that contract for providers that do return errors.
type Embedder interface {
	Embed(ctx context.Context, content string) ([]float32, error)
	// Dims returns the fixed vector length this embedder produces.
	Dims() int
}
