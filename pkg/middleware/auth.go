// Package middleware provides the HTTP middleware chain: API key
// authentication, request IDs, request logging with metrics, and panic
// recovery.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/traceloft/traceloft/pkg/apikeys"
	"github.com/traceloft/traceloft/pkg/contextkeys"
	"github.com/traceloft/traceloft/pkg/httputil"
)

// KeyVerifier authenticates a plaintext API key.
type KeyVerifier interface {
	Verify(ctx context.Context, plaintext string) (*apikeys.Identity, error)
}

// AuthMiddleware authenticates requests by API key. The verified identity
// and its owner become the acting principal for everything downstream.
type AuthMiddleware struct {
	verifier KeyVerifier
}

// NewAuthMiddleware creates an authentication middleware.
func NewAuthMiddleware(verifier KeyVerifier) *AuthMiddleware {
	return &AuthMiddleware{verifier: verifier}
}

// Handler wraps next with Bearer-token authentication. Invalid keys get a
// uniform 401 regardless of why verification failed.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			httputil.WriteUnauthorized(w, "missing authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			httputil.WriteUnauthorized(w, "invalid authorization header format")
			return
		}

		identity, err := m.verifier.Verify(r.Context(), parts[1])
		if err != nil {
			httputil.WriteUnauthorized(w, "invalid API key")
			return
		}

		ctx := contextkeys.WithIdentity(r.Context(), identity)
		ctx = contextkeys.WithUserID(ctx, identity.OwnerID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireEnvironmentKey rejects requests whose key is not environment
// scoped. Ingestion endpoints take their target environment from the key.
func RequireEnvironmentKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity := contextkeys.GetIdentity(r.Context())
		if identity == nil || identity.EnvironmentID == "" {
			httputil.WriteErrorMessage(w, http.StatusForbidden,
				"an environment-scoped API key is required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
