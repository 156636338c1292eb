// Package core provides the foundational domain types and collaborator
// contracts used by cogmesh. It defines the core abstractions for:
//
//   - Events (prioritized, correlated, lifecycle-tracked bus records)
//   - Tasks (typed units of work routed to subsystem handlers)
//   - Memory records (tiered short-term / long-term entries with embeddings)
//   - Plans and inferences (reasoning engine outputs)
//   - Pluggable collaborators for storage, embeddings and transport
//
// The package intentionally keeps implementation concerns (persistence,
// delivery loops, concrete subsystems) out of scope, exposing small
// interfaces so backends can be swapped. All exported identifiers include
// concise documentation to aid discoverability and external consumption.
package core
