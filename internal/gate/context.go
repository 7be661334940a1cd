// ABOUTME: Request-context propagation of verified identity for in-process handlers
// ABOUTME: Provides WithIdentity/FromContext mirroring the trusted identity headers

package gate

import (
	"context"

	"github.com/loomworks/gatehouse/internal/token"
)

// identityContextKey is the key type for storing the identity in context.
type identityContextKey struct{}

// WithIdentity returns a new context with the verified identity attached.
func WithIdentity(ctx context.Context, id token.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// FromContext retrieves the verified identity from the context. The second
// return is false when the request was not authenticated by the gate;
// callers must treat that as unauthenticated, never fall back to headers
// the client could have supplied.
func FromContext(ctx context.Context) (token.Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(token.Identity)
	return id, ok
}
