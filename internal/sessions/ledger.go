// Package sessions is the server-side ledger of issued refresh tokens.
//
// A refresh token is usable only while its row exists here and has not
// expired. Rows are keyed by the SHA-256 digest of the token string, so the
// ledger never stores a usable bearer credential.
package sessions

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

var (
	// ErrDuplicateSession means the same token was recorded twice. It indicates a bug.
	ErrDuplicateSession = errors.New("sessions: duplicate refresh token")
	// ErrSessionNotLive means the token is unknown, revoked, expired or already rotated.
	ErrSessionNotLive  = errors.New("sessions: refresh token not live")
	ErrInvalidArgument = errors.New("sessions: invalid argument")
)

// Session is one ledger row.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	TokenHash string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Ledger is the persistence contract for refresh sessions.
type Ledger interface {
	Record(ctx context.Context, userID, token string, expiresAt time.Time) error
	// RevokeByToken deletes the row if present. Revoking an unknown token is not an error.
	RevokeByToken(ctx context.Context, token string) error
	IsLive(ctx context.Context, token string, now time.Time) (bool, error)
	// Rotate atomically consumes oldToken and records newToken for the same user.
	// Of two concurrent rotations of one token exactly one succeeds; the other
	// gets ErrSessionNotLive.
	Rotate(ctx context.Context, userID, oldToken, newToken string, newExpiresAt, now time.Time) error
	// RevokeAllForUser deletes every session of userID and returns how many were removed.
	RevokeAllForUser(ctx context.Context, userID string) (int64, error)
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// HashToken returns the ledger key for token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func validateRecord(userID, token string, expiresAt time.Time) error {
	if userID == "" || token == "" || expiresAt.IsZero() {
		return ErrInvalidArgument
	}
	return nil
}
