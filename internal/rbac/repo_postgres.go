package rbac

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/AdolfoEscobar473/hospital/pkg/utils"
)

// NOTE: This repository assumes the following tables exist:
// - role_permissions (UNIQUE (role, module))
// - role_policy_version (single row, id = 1)

// PGPolicyStore is the Postgres PolicyStore.
type PGPolicyStore struct {
	db    *sql.DB
	clock func() time.Time
}

func NewPGPolicyStore(db *sql.DB) *PGPolicyStore {
	return &PGPolicyStore{db: db, clock: time.Now}
}

func (s *PGPolicyStore) Version(ctx context.Context) (int64, error) {
	const q = `SELECT version FROM role_policy_version WHERE id = 1`
	var v int64
	if err := s.db.QueryRowContext(ctx, q).Scan(&v); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return v, nil
}

func (s *PGPolicyStore) Load(ctx context.Context) ([]Permission, int64, error) {
	var (
		out     []Permission
		version int64
	)
	// Repeatable read so the rows and the version come from the same snapshot.
	opts := &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
	err := utils.WithTx(ctx, s.db, opts, func(ctx context.Context, tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, `SELECT version FROM role_policy_version WHERE id = 1`).Scan(&version); err != nil {
			if !errors.Is(err, sql.ErrNoRows) {
				return err
			}
		}

		const q = `
SELECT role, module, can_read, can_edit, can_approve, can_delete
FROM role_permissions
`
		rows, err := tx.QueryContext(ctx, q)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var p Permission
			if err := rows.Scan(&p.Role, &p.Module, &p.CanRead, &p.CanEdit, &p.CanApprove, &p.CanDelete); err != nil {
				return err
			}
			out = append(out, p)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, 0, err
	}
	return out, version, nil
}

func (s *PGPolicyStore) Save(ctx context.Context, perms []Permission) (int64, error) {
	var version int64
	now := s.clock().UTC()
	err := utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		const upsert = `
INSERT INTO role_permissions (role, module, can_read, can_edit, can_approve, can_delete, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (role, module) DO UPDATE SET
  can_read = EXCLUDED.can_read,
  can_edit = EXCLUDED.can_edit,
  can_approve = EXCLUDED.can_approve,
  can_delete = EXCLUDED.can_delete,
  updated_at = EXCLUDED.updated_at
`
		for _, p := range perms {
			if _, err := tx.ExecContext(ctx, upsert, p.Role, p.Module, p.CanRead, p.CanEdit, p.CanApprove, p.CanDelete, now); err != nil {
				return err
			}
		}

		const bump = `
INSERT INTO role_policy_version (id, version) VALUES (1, 1)
ON CONFLICT (id) DO UPDATE SET version = role_policy_version.version + 1
RETURNING version
`
		return tx.QueryRowContext(ctx, bump).Scan(&version)
	})
	if err != nil {
		return 0, err
	}
	return version, nil
}
