package records

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Repository for tests and local development.
type MemoryRepo struct {
	mu   sync.Mutex
	rows map[string]Record
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{rows: map[string]Record{}} }

func (m *MemoryRepo) Create(ctx context.Context, r Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[r.ID] = r
	return nil
}

func (m *MemoryRepo) Get(ctx context.Context, module, id string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok || r.Module != module {
		return Record{}, ErrNotFound
	}
	return r, nil
}

func (m *MemoryRepo) List(ctx context.Context, module string, f ListFilter) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, 0)
	for _, r := range m.rows {
		if r.Module != module {
			continue
		}
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if f.Offset >= len(out) {
		return []Record{}, nil
	}
	out = out[f.Offset:]
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *MemoryRepo) Update(ctx context.Context, r Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.rows[r.ID]
	if !ok || cur.Module != r.Module {
		return ErrNotFound
	}
	m.rows[r.ID] = r
	return nil
}

func (m *MemoryRepo) Delete(ctx context.Context, module, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok || r.Module != module {
		return ErrNotFound
	}
	delete(m.rows, id)
	return nil
}

func (m *MemoryRepo) Approve(ctx context.Context, module, id, by string, at time.Time) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok || r.Module != module {
		return Record{}, ErrNotFound
	}
	r.Status = StatusApproved
	r.ApprovedBy = by
	r.ApprovedAt = &at
	r.UpdatedAt = at
	m.rows[id] = r
	return r, nil
}

func (m *MemoryRepo) Counts(ctx context.Context, module string, since time.Time) (Counts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := Counts{ByStatus: map[string]int{}}
	for _, r := range m.rows {
		if r.Module != module {
			continue
		}
		c.Total++
		c.ByStatus[r.Status]++
		if !IsClosedStatus(r.Status) {
			c.Open++
		}
		if !r.CreatedAt.Before(since) {
			c.Recent++
		}
	}
	return c, nil
}
