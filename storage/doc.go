// Package storage provides the default in-memory implementation of the
// core.Storage aggregate: a tiered vector store with cosine similarity
// search, a relationship graph, and a TTL key/value facility. It is the
// zero-configuration backend used by tests and single-process deployments;
// durable alternatives live in sub-packages.
package storage
