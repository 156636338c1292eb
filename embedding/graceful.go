package embedding

import (
	"context"

	"github.com/hupe1980/cogmesh/core"
	"github.com/hupe1980/cogmesh/logging"
)

// Graceful wraps another embedder and degrades instead of failing: when the
// inner embedder errors, it logs a warning and returns a zero vector of the
// inner dimensionality. Zero vectors score zero against every query, so
// degraded records are stored and retrievable by id but sort last in
// similarity search.
type Graceful struct {
	inner  core.Embedder
	logger logging.Logger
}

// NewGraceful wraps an embedder. A nil logger discards the warnings.
func NewGraceful(inner core.Embedder, logger logging.Logger) *Graceful {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Graceful{inner: inner, logger: logger}
}

// Embed implements core.Embedder. It never returns an error.
func (g *Graceful) Embed(ctx context.Context, content string) ([]float32, error) {
	vec, err := g.inner.Embed(ctx, content)
	if err != nil {
		g.logger.Warn("embedding degraded to zero vector", "error", err.Error(), "content_len", len(content))
		return make([]float32, g.inner.Dims()), nil
	}
	return vec, nil
}

// Dims implements core.Embedder.
func (g *Graceful) Dims() int { return g.inner.Dims() }
