package accounts

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/AdolfoEscobar473/hospital/pkg/utils"
)

// NOTE: This repository assumes the following tables exist:
// - users (UNIQUE username, UNIQUE email where not null)
// - user_roles (PRIMARY KEY (user_id, role), ON DELETE CASCADE)
// - refresh_sessions (ON DELETE CASCADE from users)

// PGStore is the Postgres Store.
type PGStore struct {
	db    *sql.DB
	clock func() time.Time
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db, clock: time.Now}
}

const accountColumns = `id, username, name, COALESCE(email, ''), password_hash, is_active, must_change_password, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (Account, error) {
	var a Account
	if err := row.Scan(
		&a.ID,
		&a.Username,
		&a.Name,
		&a.Email,
		&a.PasswordHash,
		&a.IsActive,
		&a.MustChangePassword,
		&a.CreatedAt,
		&a.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Account{}, ErrNotFound
		}
		return Account{}, err
	}
	return a, nil
}

func mapWriteErr(err error) error {
	if utils.IsUniqueViolation(err, "") {
		return ErrConflict
	}
	return err
}

func (s *PGStore) Create(ctx context.Context, a Account, roles []string) error {
	return utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		const q = `
INSERT INTO users (id, username, name, email, password_hash, is_active, must_change_password, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
`
		if _, err := tx.ExecContext(ctx, q,
			a.ID,
			a.Username,
			a.Name,
			nullIfEmpty(a.Email),
			a.PasswordHash,
			a.IsActive,
			a.MustChangePassword,
			a.CreatedAt,
			a.UpdatedAt,
		); err != nil {
			return mapWriteErr(err)
		}
		return insertRoles(ctx, tx, a.ID, roles)
	})
}

func insertRoles(ctx context.Context, tx *sql.Tx, id string, roles []string) error {
	const q = `INSERT INTO user_roles (user_id, role) VALUES ($1, $2) ON CONFLICT DO NOTHING`
	for _, r := range roles {
		if _, err := tx.ExecContext(ctx, q, id, r); err != nil {
			return err
		}
	}
	return nil
}

func (s *PGStore) Get(ctx context.Context, id string) (Account, error) {
	q := `SELECT ` + accountColumns + ` FROM users WHERE id = $1`
	return scanAccount(s.db.QueryRowContext(ctx, q, id))
}

func (s *PGStore) FindByUsername(ctx context.Context, username string) (Account, error) {
	q := `SELECT ` + accountColumns + ` FROM users WHERE username = $1`
	return scanAccount(s.db.QueryRowContext(ctx, q, username))
}

func (s *PGStore) FindByLoginOrEmail(ctx context.Context, identifier string) (Account, error) {
	a, err := s.FindByUsername(ctx, identifier)
	if err == nil || !errors.Is(err, ErrNotFound) {
		return a, err
	}
	q := `SELECT ` + accountColumns + ` FROM users WHERE lower(email) = lower($1) LIMIT 1`
	return scanAccount(s.db.QueryRowContext(ctx, q, identifier))
}

func (s *PGStore) List(ctx context.Context) ([]Account, error) {
	q := `SELECT ` + accountColumns + ` FROM users ORDER BY username`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *PGStore) Update(ctx context.Context, u AccountUpdate) error {
	a := u.Account
	now := s.clock().UTC()
	return utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		const q = `
UPDATE users SET name = $2, email = $3, is_active = $4, updated_at = $5
WHERE id = $1
`
		res, err := tx.ExecContext(ctx, q, a.ID, a.Name, nullIfEmpty(a.Email), a.IsActive, now)
		if err != nil {
			return mapWriteErr(err)
		}
		if err := expectOne(res); err != nil {
			return err
		}
		if u.Roles != nil {
			if err := swapRoles(ctx, tx, a.ID, u.Roles); err != nil {
				return err
			}
		}
		if u.PasswordHash != "" {
			const pq = `UPDATE users SET password_hash = $2, must_change_password = true WHERE id = $1`
			if _, err := tx.ExecContext(ctx, pq, a.ID, u.PasswordHash); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *PGStore) SetActive(ctx context.Context, id string, active bool) error {
	const q = `UPDATE users SET is_active = $2, updated_at = $3 WHERE id = $1`
	res, err := s.db.ExecContext(ctx, q, id, active, s.clock().UTC())
	if err != nil {
		return err
	}
	return expectOne(res)
}

func (s *PGStore) SetPassword(ctx context.Context, id, hash string, mustChange bool) error {
	const q = `UPDATE users SET password_hash = $2, must_change_password = $3, updated_at = $4 WHERE id = $1`
	res, err := s.db.ExecContext(ctx, q, id, hash, mustChange, s.clock().UTC())
	if err != nil {
		return err
	}
	return expectOne(res)
}

func (s *PGStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return expectOne(res)
}

func (s *PGStore) ReplaceRoles(ctx context.Context, id string, roles []string) error {
	return utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		// Lock the account row so concurrent replacements serialize.
		var locked string
		if err := tx.QueryRowContext(ctx, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, id).Scan(&locked); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		return swapRoles(ctx, tx, id, roles)
	})
}

func swapRoles(ctx context.Context, tx *sql.Tx, id string, roles []string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM user_roles WHERE user_id = $1`, id); err != nil {
		return err
	}
	return insertRoles(ctx, tx, id, roles)
}

func (s *PGStore) Roles(ctx context.Context, id string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT role FROM user_roles WHERE user_id = $1 ORDER BY role`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var r string
		if err := rows.Scan(&r); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PGStore) RolesFor(ctx context.Context, ids []string) (map[string][]string, error) {
	out := make(map[string][]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT user_id, role FROM user_roles WHERE user_id = ANY($1) ORDER BY role`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id, r string
		if err := rows.Scan(&id, &r); err != nil {
			return nil, err
		}
		out[id] = append(out[id], r)
	}
	return out, rows.Err()
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullIfEmpty(s string) sql.NullString {
	s = strings.TrimSpace(s)
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
