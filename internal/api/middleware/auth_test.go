package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cortexops/dispatch/internal/config"
	"github.com/cortexops/dispatch/internal/service/auth"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuthFixture(t *testing.T) (auth.JWTService, http.Handler, *uuid.UUID) {
	t.Helper()

	jwtService, err := auth.NewJWTService(config.AuthConfig{
		JWTSecret: "0123456789abcdef0123456789abcdef",
	})
	require.NoError(t, err)

	var seenTenant uuid.UUID
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := GetTenantID(r)
		require.True(t, ok)
		seenTenant = tenantID
		w.WriteHeader(http.StatusOK)
	})

	return jwtService, NewAuthMiddleware(jwtService).Authenticate(inner), &seenTenant
}

func TestAuthenticate(t *testing.T) {
	t.Parallel()

	t.Run("passes a valid bearer token through", func(t *testing.T) {
		t.Parallel()
		jwtService, handler, seenTenant := newAuthFixture(t)

		tenantID := uuid.New()
		token, err := jwtService.GenerateToken(context.Background(), tenantID)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/queue/stats", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, tenantID, *seenTenant)
	})

	t.Run("rejects a missing header", func(t *testing.T) {
		t.Parallel()
		_, handler, _ := newAuthFixture(t)

		req := httptest.NewRequest(http.MethodGet, "/queue/stats", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("rejects a malformed header", func(t *testing.T) {
		t.Parallel()
		_, handler, _ := newAuthFixture(t)

		req := httptest.NewRequest(http.MethodGet, "/queue/stats", nil)
		req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("rejects an invalid token", func(t *testing.T) {
		t.Parallel()
		_, handler, _ := newAuthFixture(t)

		req := httptest.NewRequest(http.MethodGet, "/queue/stats", nil)
		req.Header.Set("Authorization", "Bearer not.a.token")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
