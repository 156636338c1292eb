// Package openai implements core.Embedder using the OpenAI embeddings API.
package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
)

// Options configure the OpenAI embedder.
type Options struct {
	// Model selects the embedding model.
	Model openai.EmbeddingModel
	// Dims requests a specific output dimensionality where the model
	// supports it.
	Dims int
}

// Embedder calls the OpenAI embeddings endpoint. Wrap it in
// embedding.Graceful when availability matters more than semantic recall.
type Embedder struct {
	client *openai.Client
	opts   Options
}

// New creates an OpenAI embedder using the default client, which reads
// OPENAI_API_KEY from the environment.
func New(optFns ...func(o *Options)) *Embedder {
	client := openai.NewClient()
	return NewFromClient(&client, optFns...)
}

// NewFromClient creates an OpenAI embedder from an existing client.
func NewFromClient(client *openai.Client, optFns ...func(o *Options)) *Embedder {
	opts := Options{Model: openai.EmbeddingModelTextEmbedding3Small, Dims: 512}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Embedder{client: client, opts: opts}
}

// Embed implements core.Embedder.
func (e *Embedder) Embed(ctx context.Context, content string) ([]float32, error) {
	params := openai.EmbeddingNewParams{
		Model: e.opts.Model,
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(content)},
	}
	if e.opts.Dims > 0 {
		params.Dimensions = openai.Int(int64(e.opts.Dims))
	}
	resp, err := e.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("openai embeddings: empty response")
	}
	raw := resp.Data[0].Embedding
	vec := make([]float32, len(raw))
	for i, f := range raw {
		vec[i] = float32(f)
	}
	return vec, nil
}

// Dims implements core.Embedder.
func (e *Embedder) Dims() int { return e.opts.Dims }
