// Package identity verifies bearer tokens via JWKS and exposes the
// authenticated user to request handlers.
package identity

import (
	"context"
	"time"
)

type ctxKey int

const identityKey ctxKey = iota

// Identity contains the verified token details we care about.
type Identity struct {
	UserID    string
	Email     string
	Issuer    string
	Audience  []string
	ExpiresAt time.Time
	Raw       map[string]any
}

// WithIdentity stores the authenticated identity in a context.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// FromContext returns the identity from a context.
func FromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityKey).(*Identity)
	return id, ok
}
