package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
)

// DefaultDims is the vector length produced when none is configured.
const DefaultDims = 512

// HashOptions configure the hash embedder.
type HashOptions struct {
	// Dims is the produced vector length.
	Dims int
}

// Hash is a deterministic core.Embedder. It expands a SHA-256 digest of the
// content into a unit vector: equal content always embeds identically, and
// similar-length unrelated content lands far apart. It carries no semantic
// signal and exists for tests and for running without a real embedding
// backend.
type Hash struct {
	opts HashOptions
}

// NewHash creates a hash embedder.
func NewHash(optFns ...func(o *HashOptions)) *Hash {
	opts := HashOptions{Dims: DefaultDims}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Dims <= 0 {
		opts.Dims = DefaultDims
	}
	return &Hash{opts: opts}
}

// Embed implements core.Embedder.
func (h *Hash) Embed(_ context.Context, content string) ([]float32, error) {
	vec := make([]float32, h.opts.Dims)
	digest := sha256.Sum256([]byte(content))
	block := digest[:]
	var counter uint64
	for i := 0; i < h.opts.Dims; i++ {
		off := (i * 4) % len(block)
		if i > 0 && off == 0 {
			// Exhausted this block; derive the next one from the previous.
			counter++
			var seed [40]byte
			copy(seed[:32], block)
			binary.LittleEndian.PutUint64(seed[32:], counter)
			next := sha256.Sum256(seed[:])
			block = next[:]
		}
		u := binary.LittleEndian.Uint32(block[off : off+4])
		// Map to [-1, 1).
		vec[i] = float32(int32(u)) / float32(math.MaxInt32)
	}
	normalize(vec)
	return vec, nil
}

// Dims implements core.Embedder.
func (h *Hash) Dims() int { return h.opts.Dims }

func normalize(v []float32) {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	n := math.Sqrt(sum)
	if n == 0 {
		return
	}
	for i := range v {
		v[i] = float32(float64(v[i]) / n)
	}
}
