package records

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// NOTE: This repository assumes the module_records table exists with
// data stored as JSONB and an index on (module, created_at DESC).

// PGRepo is the Postgres Repository.
type PGRepo struct {
	db *sql.DB
}

func NewPGRepo(db *sql.DB) *PGRepo { return &PGRepo{db: db} }

const recordColumns = `id, module, title, status, COALESCE(data, '{}'::jsonb), COALESCE(created_by::text, ''), COALESCE(approved_by::text, ''), approved_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var (
		r          Record
		data       []byte
		approvedAt sql.NullTime
	)
	if err := row.Scan(&r.ID, &r.Module, &r.Title, &r.Status, &data, &r.CreatedBy, &r.ApprovedBy, &approvedAt, &r.CreatedAt, &r.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	r.Data = data
	if approvedAt.Valid {
		t := approvedAt.Time
		r.ApprovedAt = &t
	}
	return r, nil
}

func jsonbArg(d []byte) any {
	if len(d) == 0 {
		return nil
	}
	return string(d)
}

func nullUUID(id string) sql.NullString {
	return sql.NullString{String: id, Valid: id != ""}
}

func (p *PGRepo) Create(ctx context.Context, r Record) error {
	const q = `
INSERT INTO module_records (id, module, title, status, data, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,COALESCE($5::jsonb, '{}'::jsonb),$6,$7,$8)
`
	_, err := p.db.ExecContext(ctx, q, r.ID, r.Module, r.Title, r.Status, jsonbArg(r.Data), nullUUID(r.CreatedBy), r.CreatedAt, r.UpdatedAt)
	return err
}

func (p *PGRepo) Get(ctx context.Context, module, id string) (Record, error) {
	q := `SELECT ` + recordColumns + ` FROM module_records WHERE module = $1 AND id = $2`
	return scanRecord(p.db.QueryRowContext(ctx, q, module, id))
}

func (p *PGRepo) List(ctx context.Context, module string, f ListFilter) ([]Record, error) {
	q := `SELECT ` + recordColumns + ` FROM module_records
WHERE module = $1 AND ($2 = '' OR status = $2)
ORDER BY created_at DESC, id
LIMIT $3 OFFSET $4`
	rows, err := p.db.QueryContext(ctx, q, module, f.Status, f.Limit, f.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]Record, 0)
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *PGRepo) Update(ctx context.Context, r Record) error {
	const q = `
UPDATE module_records SET title = $3, status = $4, data = COALESCE($5::jsonb, '{}'::jsonb), updated_at = $6
WHERE module = $1 AND id = $2
`
	res, err := p.db.ExecContext(ctx, q, r.Module, r.ID, r.Title, r.Status, jsonbArg(r.Data), r.UpdatedAt)
	if err != nil {
		return err
	}
	return expectOne(res)
}

func (p *PGRepo) Delete(ctx context.Context, module, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM module_records WHERE module = $1 AND id = $2`, module, id)
	if err != nil {
		return err
	}
	return expectOne(res)
}

func (p *PGRepo) Approve(ctx context.Context, module, id, by string, at time.Time) (Record, error) {
	q := `
UPDATE module_records SET status = $3, approved_by = $4, approved_at = $5, updated_at = $5
WHERE module = $1 AND id = $2
RETURNING ` + recordColumns
	return scanRecord(p.db.QueryRowContext(ctx, q, module, id, StatusApproved, nullUUID(by), at))
}

func (p *PGRepo) Counts(ctx context.Context, module string, since time.Time) (Counts, error) {
	const q = `
SELECT status, COUNT(*), COUNT(*) FILTER (WHERE created_at >= $2)
FROM module_records
WHERE module = $1
GROUP BY status
`
	rows, err := p.db.QueryContext(ctx, q, module, since)
	if err != nil {
		return Counts{}, err
	}
	defer rows.Close()

	c := Counts{ByStatus: map[string]int{}}
	for rows.Next() {
		var (
			status        string
			total, recent int
		)
		if err := rows.Scan(&status, &total, &recent); err != nil {
			return Counts{}, err
		}
		c.ByStatus[status] = total
		c.Total += total
		c.Recent += recent
		if !IsClosedStatus(status) {
			c.Open += total
		}
	}
	return c, rows.Err()
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
