package audit

import (
	"context"
	"database/sql"
	"strings"
)

// PGRepo appends events to the audit_events table.
type PGRepo struct {
	db *sql.DB
}

func NewPGRepo(db *sql.DB) *PGRepo { return &PGRepo{db: db} }

func (r *PGRepo) Append(ctx context.Context, e Event) error {
	const q = `
INSERT INTO audit_events (
  id, type, status, actor_user_id, target_user_id, entity_type, entity_id,
  ip_address, user_agent, message, metadata, created_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
)
`
	_, err := r.db.ExecContext(ctx, q,
		e.ID,
		string(e.Type),
		e.Status,
		nullIfEmpty(e.ActorUserID),
		nullIfEmpty(e.TargetUserID),
		e.EntityType,
		e.EntityID,
		e.IPAddress,
		e.UserAgent,
		e.Message,
		nullIfEmpty(e.Metadata),
		e.CreatedAt,
	)
	return err
}

func nullIfEmpty(s string) sql.NullString {
	s = strings.TrimSpace(s)
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
