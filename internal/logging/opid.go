// Package logging carries per-operation ids through context so log lines from
// the token manager and request executor can be tied back to one facade call.
package logging

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

type contextKey string

const opIDKey contextKey = "opId"

// NewOpID returns a short operation id (first 8 hex chars of a random UUID).
func NewOpID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// WithOpID stores id in ctx.
func WithOpID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, opIDKey, id)
}

// EnsureOpID returns ctx unchanged when it already has an id, otherwise a
// child context with a fresh one.
func EnsureOpID(ctx context.Context) context.Context {
	if OpID(ctx) != "" {
		return ctx
	}
	return WithOpID(ctx, NewOpID())
}

// OpID returns the id stored in ctx, or "".
func OpID(ctx context.Context) string {
	if id, ok := ctx.Value(opIDKey).(string); ok {
		return id
	}
	return ""
}

// Tag formats the id as a log prefix ("[op=1a2b3c4d] "), or "" without one.
func Tag(ctx context.Context) string {
	id := OpID(ctx)
	if id == "" {
		return ""
	}
	return "[op=" + id + "] "
}
