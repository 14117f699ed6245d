package sessions

import (
	"context"
	"database/sql"
	"time"

	"github.com/AdolfoEscobar473/hospital/pkg/utils"

	"github.com/google/uuid"
)

// NOTE: This repository assumes the refresh_sessions table exists with a
// UNIQUE constraint on token_hash (see internal/migrate/sql).
const tokenHashConstraint = "refresh_sessions_token_hash_key"

// PGLedger is the Postgres Ledger.
type PGLedger struct {
	db    *sql.DB
	clock func() time.Time
}

func NewPGLedger(db *sql.DB) *PGLedger {
	return &PGLedger{db: db, clock: time.Now}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (l *PGLedger) Record(ctx context.Context, userID, token string, expiresAt time.Time) error {
	if err := validateRecord(userID, token, expiresAt); err != nil {
		return err
	}
	return l.insert(ctx, l.db, userID, HashToken(token), expiresAt)
}

func (l *PGLedger) insert(ctx context.Context, ex execer, userID, hash string, expiresAt time.Time) error {
	const q = `
INSERT INTO refresh_sessions (id, user_id, token_hash, expires_at, created_at)
VALUES ($1, $2, $3, $4, $5)
`
	_, err := ex.ExecContext(ctx, q, uuid.NewString(), userID, hash, expiresAt.UTC(), l.clock().UTC())
	if err != nil {
		if utils.IsUniqueViolation(err, tokenHashConstraint) {
			return ErrDuplicateSession
		}
		return err
	}
	return nil
}

func (l *PGLedger) RevokeByToken(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	const q = `DELETE FROM refresh_sessions WHERE token_hash = $1`
	_, err := l.db.ExecContext(ctx, q, HashToken(token))
	return err
}

func (l *PGLedger) IsLive(ctx context.Context, token string, now time.Time) (bool, error) {
	if token == "" {
		return false, nil
	}
	const q = `SELECT EXISTS (SELECT 1 FROM refresh_sessions WHERE token_hash = $1 AND expires_at > $2)`
	var live bool
	if err := l.db.QueryRowContext(ctx, q, HashToken(token), now.UTC()).Scan(&live); err != nil {
		return false, err
	}
	return live, nil
}

func (l *PGLedger) Rotate(ctx context.Context, userID, oldToken, newToken string, newExpiresAt, now time.Time) error {
	if oldToken == "" {
		return ErrSessionNotLive
	}
	if err := validateRecord(userID, newToken, newExpiresAt); err != nil {
		return err
	}

	return utils.WithTx(ctx, l.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		// Compare-and-delete: the row lock taken by DELETE serializes concurrent
		// rotations of the same token, and the loser sees zero rows.
		const del = `
DELETE FROM refresh_sessions
WHERE token_hash = $1 AND user_id = $2 AND expires_at > $3
`
		res, err := tx.ExecContext(ctx, del, HashToken(oldToken), userID, now.UTC())
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrSessionNotLive
		}
		return l.insert(ctx, tx, userID, HashToken(newToken), newExpiresAt)
	})
}

func (l *PGLedger) RevokeAllForUser(ctx context.Context, userID string) (int64, error) {
	const q = `DELETE FROM refresh_sessions WHERE user_id = $1`
	res, err := l.db.ExecContext(ctx, q, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (l *PGLedger) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	const q = `DELETE FROM refresh_sessions WHERE expires_at <= $1`
	res, err := l.db.ExecContext(ctx, q, now.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
