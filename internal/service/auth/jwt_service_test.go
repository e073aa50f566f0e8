package auth

import (
	"context"
	"testing"
	"time"

	"github.com/cortexops/dispatch/internal/config"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestService(t *testing.T) JWTService {
	t.Helper()

	svc, err := NewJWTService(config.AuthConfig{JWTSecret: testSecret})
	require.NoError(t, err)
	return svc
}

func TestNewJWTService(t *testing.T) {
	t.Parallel()

	_, err := NewJWTService(config.AuthConfig{JWTSecret: "too-short"})
	assert.Error(t, err)

	_, err = NewJWTService(config.AuthConfig{JWTSecret: testSecret})
	assert.NoError(t, err)
}

func TestTokenRoundTrip(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	tenantID := uuid.New()

	token, err := svc.GenerateToken(context.Background(), tenantID)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.ValidateToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, tenantID, claims.TenantID)
	assert.Equal(t, "access", claims.TokenType)
	assert.Equal(t, tenantID.String(), claims.Subject)
}

func TestValidateTokenFailures(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)

	t.Run("rejects garbage", func(t *testing.T) {
		t.Parallel()
		_, err := svc.ValidateToken(context.Background(), "not-a-token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("rejects a token signed with a different key", func(t *testing.T) {
		t.Parallel()
		other, err := NewJWTService(config.AuthConfig{
			JWTSecret: "ffffffffffffffffffffffffffffffff",
		})
		require.NoError(t, err)

		token, err := other.GenerateToken(context.Background(), uuid.New())
		require.NoError(t, err)

		_, err = svc.ValidateToken(context.Background(), token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("rejects an expired token", func(t *testing.T) {
		t.Parallel()

		impl := &hmacJWTService{
			signingKey:    []byte(testSecret),
			tokenLifetime: time.Hour,
			timeFunc:      func() time.Time { return time.Now().Add(-2 * time.Hour) },
		}

		token, err := impl.GenerateToken(context.Background(), uuid.New())
		require.NoError(t, err)

		// Validate with real time: the token expired an hour ago.
		_, err = svc.ValidateToken(context.Background(), token)
		assert.ErrorIs(t, err, ErrExpiredToken)
	})
}
