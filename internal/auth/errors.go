package auth

import "errors"

var (
	// ErrUnauthenticated means no usable credentials were presented.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrInvalidToken covers bad signature, expiry, wrong type, and revoked sessions.
	ErrInvalidToken = errors.New("invalid token")
)
