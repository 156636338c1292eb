// Package model defines the minimal language model contract the reasoning
// and knowledge subsystems depend on, plus a deterministic mock for tests.
// Provider adapters live in sub-packages.
package model

import "context"

// Request is a single non-streaming completion request.
type Request struct {
	// System primes the model with role and constraints. Optional.
	System string
	// Prompt is the user-visible request body.
	Prompt string
}

// Response carries the completed text.
type Response struct {
	Text string
}

// Model produces one completion per request. Implementations must be safe
// for concurrent use.
type Model interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// Mock is a canned-response Model for tests. It records every request it
// sees.
type Mock struct {
	// Response is returned verbatim for every call.
	Response string
	// Err, when set, is returned instead.
	Err error

	// Requests collects the calls in order. Not synchronized; use from one
	// goroutine in tests.
	Requests []Request
}

// Complete implements Model.
func (m *Mock) Complete(_ context.Context, req Request) (Response, error) {
	m.Requests = append(m.Requests, req)
	if m.Err != nil {
		return Response{}, m.Err
	}
	return Response{Text: m.Response}, nil
}
