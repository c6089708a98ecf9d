// Package auditctx carries the request origin that ledger entries record when the
// caller does not pass it explicitly.
package auditctx

import (
	"context"
	"strings"
)

// Actor describes who issued a request and from where.
type Actor struct {
	UserID    string
	IPAddress string
	UserAgent string
	RequestID string
}

type actorContextKey struct{}

// WithActor returns a derived context carrying actor. Empty fields inherit the
// values of an actor already present in ctx.
func WithActor(ctx context.Context, actor Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if existing, ok := FromContext(ctx); ok {
		actor = existing.merge(actor)
	}
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// FromContext extracts previously stored actor metadata from the context.
func FromContext(ctx context.Context) (Actor, bool) {
	if ctx == nil {
		return Actor{}, false
	}
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	return actor, ok
}

func (a Actor) merge(override Actor) Actor {
	if v := strings.TrimSpace(override.UserID); v != "" {
		a.UserID = v
	}
	if v := strings.TrimSpace(override.IPAddress); v != "" {
		a.IPAddress = v
	}
	if v := strings.TrimSpace(override.UserAgent); v != "" {
		a.UserAgent = v
	}
	if v := strings.TrimSpace(override.RequestID); v != "" {
		a.RequestID = v
	}
	return a
}
