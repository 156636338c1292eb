// Package embedding provides core.Embedder implementations:
//   - Hash: deterministic, dependency-free vectors derived from a content
//     digest, suitable for tests and air-gapped deployments
//   - Graceful: a wrapper that turns embedder failures into zero vectors so
//     storage and retrieval keep working in degraded mode
//
// A remote implementation backed by the OpenAI embeddings API lives in the
// openai sub-package.
package embedding
