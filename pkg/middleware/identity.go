// Package middleware provides request-context helpers shared by the LogLens
// gateway and anything embedding its router.
package middleware

import (
	"context"

	"github.com/loglens/loglens/pkg/contracts"
)

type contextKey string

const identityKey contextKey = "identity"

// SetIdentity stores the authenticated Identity in the context.
// Called by the API key middleware after successful authentication.
func SetIdentity(ctx context.Context, identity *contracts.Identity) context.Context {
	if identity == nil {
		return ctx
	}
	return context.WithValue(ctx, identityKey, identity)
}

// GetIdentity retrieves the authenticated Identity from the context.
// Returns nil on public routes.
func GetIdentity(ctx context.Context) *contracts.Identity {
	if v, ok := ctx.Value(identityKey).(*contracts.Identity); ok {
		return v
	}
	return nil
}

// Subject returns the identity subject, or "anonymous".
func Subject(ctx context.Context) string {
	if id := GetIdentity(ctx); id != nil {
		return id.Subject
	}
	return "anonymous"
}
