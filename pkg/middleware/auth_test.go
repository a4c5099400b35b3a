package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/traceloft/traceloft/pkg/apikeys"
	"github.com/traceloft/traceloft/pkg/apperrors"
	"github.com/traceloft/traceloft/pkg/contextkeys"
)

type fakeVerifier struct {
	identity *apikeys.Identity
	err      error
}

func (f *fakeVerifier) Verify(context.Context, string) (*apikeys.Identity, error) {
	return f.identity, f.err
}

func TestAuthMiddleware(t *testing.T) {
	identity := &apikeys.Identity{
		APIKeyID:       "key-1",
		OwnerID:        "user-1",
		OrganizationID: "org-1",
		EnvironmentID:  "env-1",
	}

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, identity, contextkeys.GetIdentity(r.Context()))
		assert.Equal(t, "user-1", contextkeys.GetUserID(r.Context()))
		w.WriteHeader(http.StatusOK)
	})

	t.Run("valid bearer key passes identity through", func(t *testing.T) {
		mw := NewAuthMiddleware(&fakeVerifier{identity: identity})
		req := httptest.NewRequest(http.MethodGet, "/v1/organizations/org-1", nil)
		req.Header.Set("Authorization", "Bearer tl-env-abc")
		rec := httptest.NewRecorder()

		mw.Handler(next).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("missing header is 401", func(t *testing.T) {
		mw := NewAuthMiddleware(&fakeVerifier{identity: identity})
		rec := httptest.NewRecorder()

		mw.Handler(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("malformed header is 401", func(t *testing.T) {
		mw := NewAuthMiddleware(&fakeVerifier{identity: identity})
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
		rec := httptest.NewRecorder()

		mw.Handler(next).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("rejected key is 401 without detail", func(t *testing.T) {
		mw := NewAuthMiddleware(&fakeVerifier{err: apperrors.NotFound("invalid API key")})
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer tl-env-bogus")
		rec := httptest.NewRecorder()

		mw.Handler(next).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "invalid API key")
	})
}

func TestRequireEnvironmentKey(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	t.Run("environment key passes", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/traces", nil)
		ctx := contextkeys.WithIdentity(req.Context(), &apikeys.Identity{
			OrganizationID: "org-1",
			ProjectID:      "proj-1",
			EnvironmentID:  "env-1",
		})
		rec := httptest.NewRecorder()

		RequireEnvironmentKey(next).ServeHTTP(rec, req.WithContext(ctx))
		assert.Equal(t, http.StatusAccepted, rec.Code)
	})

	t.Run("org key is forbidden", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/traces", nil)
		ctx := contextkeys.WithIdentity(req.Context(), &apikeys.Identity{
			OrganizationID: "org-1",
		})
		rec := httptest.NewRecorder()

		RequireEnvironmentKey(next).ServeHTTP(rec, req.WithContext(ctx))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}
