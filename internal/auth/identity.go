package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/google/uuid"
)

// Identity is the authenticated caller resolved from a bearer API key.
type Identity struct {
	UserID   uuid.UUID
	Email    string
	APIKeyID uuid.UUID
}

type contextKey string

const identityKey contextKey = "identity"

// NewContext stores the identity on the request context.
func NewContext(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// FromContext returns the authenticated identity, or nil if the request
// was not authenticated.
func FromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey).(*Identity)
	return id
}

// AccountKey returns the identity to scope rate limiting and spend tracking
// by: the user ID when authenticated, or "anon" otherwise. Unauthenticated
// callers share a single bucket, which is intentionally easy to exhaust.
func AccountKey(ctx context.Context) string {
	if id := FromContext(ctx); id != nil {
		return id.UserID.String()
	}
	return "anon"
}

// HashAPIKey returns the hex-encoded SHA-256 digest of a raw API key.
// Only the hash is ever persisted or compared against.
func HashAPIKey(rawKey string) string {
	sum := sha256.Sum256([]byte(rawKey))
	return hex.EncodeToString(sum[:])
}
