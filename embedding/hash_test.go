package embedding

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/hupe1980/cogmesh/core"
)

// Interface compliance (compile-time assertions)
var (
	_ core.Embedder = (*Hash)(nil)
	_ core.Embedder = (*Graceful)(nil)
)

func TestHash_Deterministic(t *testing.T) {
	ctx := context.Background()
	h := NewHash()

	a, err := h.Embed(ctx, "the same content")
	if err != nil {
		t.Fatalf("embed failed: %v", err)
	}
	b, _ := h.Embed(ctx, "the same content")
	if len(a) != DefaultDims || len(b) != DefaultDims {
		t.Fatalf("expected %d dims, got %d and %d", DefaultDims, len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("vectors differ at %d", i)
		}
	}

	c, _ := h.Embed(ctx, "different content")
	same := true
	for i := range a {
		if a[i] != c[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatal("distinct content produced identical vectors")
	}
}

func TestHash_UnitNorm(t *testing.T) {
	h := NewHash(func(o *HashOptions) { o.Dims = 64 })
	vec, err := h.Embed(context.Background(), "normalize me")
	if err != nil {
		t.Fatalf("embed failed: %v", err)
	}
	if len(vec) != 64 || h.Dims() != 64 {
		t.Fatalf("unexpected dims: %d", len(vec))
	}
	var sum float64
	for _, f := range vec {
		sum += float64(f) * float64(f)
	}
	if math.Abs(math.Sqrt(sum)-1) > 1e-4 {
		t.Fatalf("expected unit norm, got %v", math.Sqrt(sum))
	}
}

type failingEmbedder struct{ dims int }

func (f *failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("backend down")
}

func (f *failingEmbedder) Dims() int { return f.dims }

func TestGraceful_ZeroVectorOnFailure(t *testing.T) {
	g := NewGraceful(&failingEmbedder{dims: 8}, nil)

	vec, err := g.Embed(context.Background(), "anything")
	if err != nil {
		t.Fatalf("expected degraded success, got %v", err)
	}
	if len(vec) != 8 || g.Dims() != 8 {
		t.Fatalf("unexpected dims: %d", len(vec))
	}
	for i, f := range vec {
		if f != 0 {
			t.Fatalf("expected zero vector, got %v at %d", f, i)
		}
	}
}

func TestGraceful_PassThrough(t *testing.T) {
	g := NewGraceful(NewHash(func(o *HashOptions) { o.Dims = 16 }), nil)
	vec, err := g.Embed(context.Background(), "ok")
	if err != nil {
		t.Fatalf("embed failed: %v", err)
	}
	zero := true
	for _, f := range vec {
		if f != 0 {
			zero = false
			break
		}
	}
	if zero {
		t.Fatal("expected pass-through vector, got zeros")
	}
}
