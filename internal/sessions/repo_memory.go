package sessions

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryLedger is an in-memory Ledger for tests and local development.
type MemoryLedger struct {
	mu   sync.Mutex
	rows map[string]Session
	// clock is injectable for deterministic tests.
	clock func() time.Time
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{rows: map[string]Session{}, clock: time.Now}
}

func (l *MemoryLedger) Record(ctx context.Context, userID, token string, expiresAt time.Time) error {
	if err := validateRecord(userID, token, expiresAt); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.insertLocked(userID, HashToken(token), expiresAt)
}

func (l *MemoryLedger) insertLocked(userID, hash string, expiresAt time.Time) error {
	if _, ok := l.rows[hash]; ok {
		return ErrDuplicateSession
	}
	l.rows[hash] = Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		TokenHash: hash,
		ExpiresAt: expiresAt.UTC(),
		CreatedAt: l.clock().UTC(),
	}
	return nil
}

func (l *MemoryLedger) RevokeByToken(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.rows, HashToken(token))
	return nil
}

func (l *MemoryLedger) IsLive(ctx context.Context, token string, now time.Time) (bool, error) {
	if token == "" {
		return false, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.rows[HashToken(token)]
	return ok && s.ExpiresAt.After(now), nil
}

func (l *MemoryLedger) Rotate(ctx context.Context, userID, oldToken, newToken string, newExpiresAt, now time.Time) error {
	if oldToken == "" {
		return ErrSessionNotLive
	}
	if err := validateRecord(userID, newToken, newExpiresAt); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	oldHash := HashToken(oldToken)
	s, ok := l.rows[oldHash]
	if !ok || s.UserID != userID || !s.ExpiresAt.After(now) {
		return ErrSessionNotLive
	}
	newHash := HashToken(newToken)
	if _, dup := l.rows[newHash]; dup {
		return ErrDuplicateSession
	}
	delete(l.rows, oldHash)
	return l.insertLocked(userID, newHash, newExpiresAt)
}

func (l *MemoryLedger) RevokeAllForUser(ctx context.Context, userID string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var n int64
	for k, s := range l.rows {
		if s.UserID == userID {
			delete(l.rows, k)
			n++
		}
	}
	return n, nil
}

func (l *MemoryLedger) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var n int64
	for k, s := range l.rows {
		if !s.ExpiresAt.After(now) {
			delete(l.rows, k)
			n++
		}
	}
	return n, nil
}

// Sessions returns a snapshot of the rows for userID.
func (l *MemoryLedger) Sessions(userID string) []Session {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Session, 0)
	for _, s := range l.rows {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	return out
}
