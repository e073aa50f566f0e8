package auth

import "errors"

// Common authentication errors
var (
	// ErrInvalidToken indicates the token is malformed or its signature
	// does not verify.
	ErrInvalidToken = errors.New("invalid token")

	// ErrExpiredToken indicates the token is past its expiry.
	ErrExpiredToken = errors.New("token expired")

	// ErrWrongTokenType indicates a token was presented in the wrong
	// context, such as a refresh token on an API call.
	ErrWrongTokenType = errors.New("wrong token type")
)
