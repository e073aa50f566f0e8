// Package auth provides JWT-based authentication for the admin API.
// Tokens are tenant-scoped: every claim carries the tenant the caller may
// operate on, and handlers never trust a tenant ID from the request body.
package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// JWTService defines operations for issuing and validating admin API tokens.
type JWTService interface {
	// GenerateToken creates a signed access token scoped to the tenant.
	GenerateToken(ctx context.Context, tenantID uuid.UUID) (string, error)

	// ValidateToken validates an access token and extracts its claims.
	// Returns ErrInvalidToken, ErrExpiredToken, or ErrWrongTokenType on
	// failure.
	ValidateToken(ctx context.Context, tokenString string) (*Claims, error)
}

// Claims is the validated content of an admin API token.
type Claims struct {
	// TenantID is the tenant the token grants access to.
	TenantID uuid.UUID `json:"tid,omitempty"`

	// TokenType is always "access" for tokens this service issues.
	TokenType string `json:"type,omitempty"`

	Subject   string    `json:"sub,omitempty"`
	IssuedAt  time.Time `json:"iat,omitempty"`
	ExpiresAt time.Time `json:"exp,omitempty"`
}
