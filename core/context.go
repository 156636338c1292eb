package core

import (
	"fmt"
	"time"
)

// Context is the per-call bundle of caller identifiers threaded through every
// operation for traceability. It travels inside tasks and event payloads and
// is never persisted standalone.
type Context struct {
	UserID    string            `json:"user_id"`
	SessionID string            `json:"session_id"`
	RequestID string            `json:"request_id"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// NewContext builds a context for a caller-initiated operation, generating a
// fresh request id.
func NewContext(userID, sessionID string) Context {
	return Context{
		UserID:    userID,
		SessionID: sessionID,
		RequestID: NewID(),
		Metadata:  map[string]string{},
	}
}

// SystemContext builds a context for autonomous work (consolidation passes,
// scheduler ticks) where no user is involved. The operation name is stamped
// into the session and request identifiers.
func SystemContext(operation string) Context {
	now := time.Now().UTC().UnixNano()
	return Context{
		UserID:    "system",
		SessionID: fmt.Sprintf("%s_%d", operation, now),
		RequestID: fmt.Sprintf("%s_req_%d", operation, now),
		Metadata:  map[string]string{"operation": operation},
	}
}

// WithMetadata returns a copy of the context with one extra metadata entry.
func (c Context) WithMetadata(key, value string) Context {
	md := make(map[string]string, len(c.Metadata)+1)
	for k, v := range c.Metadata {
		md[k] = v
	}
	md[key] = value
	c.Metadata = md
	return c
}
