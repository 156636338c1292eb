// Package reasoning implements inference and planning over stored memories.
//
// Infer answers a query by retrieving the most similar memories, producing a
// response through a pluggable language model (with a deterministic built-in
// fallback), and storing a short-term trace of which memories informed the
// answer.
//
// Plan decomposes a goal into subgoals and actions. Plans are validated
// against explicit constraints; a plan that fails validation is replaced by
// a conservative single-action fallback rather than an error, so callers
// always receive something executable.
package reasoning
