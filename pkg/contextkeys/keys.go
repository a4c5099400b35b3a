// Package contextkeys centralizes the context keys shared between middleware
// and handlers so every producer and consumer agrees on one definition.
package contextkeys

import (
	"context"

	"github.com/traceloft/traceloft/pkg/apikeys"
)

// Key is the private type for context keys to prevent collisions.
type Key string

const (
	// IdentityKey carries the *apikeys.Identity resolved by the auth
	// middleware.
	IdentityKey Key = "identity"

	// UserIDKey carries the acting user ID string.
	UserIDKey Key = "user_id"

	// RequestIDKey carries the request ID string.
	RequestIDKey Key = "request_id"
)

// WithIdentity attaches the authenticated identity to the context.
func WithIdentity(ctx context.Context, identity *apikeys.Identity) context.Context {
	return context.WithValue(ctx, IdentityKey, identity)
}

// GetIdentity retrieves the authenticated identity, or nil.
func GetIdentity(ctx context.Context) *apikeys.Identity {
	identity, _ := ctx.Value(IdentityKey).(*apikeys.Identity)
	return identity
}

// WithUserID attaches the acting user ID to the context.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// GetUserID retrieves the acting user ID, or "".
func GetUserID(ctx context.Context) string {
	userID, _ := ctx.Value(UserIDKey).(string)
	return userID
}

// WithRequestID attaches the request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves the request ID, or "".
func GetRequestID(ctx context.Context) string {
	requestID, _ := ctx.Value(RequestIDKey).(string)
	return requestID
}
