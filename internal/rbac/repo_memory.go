package rbac

import (
	"context"
	"sync"
)

// MemoryPolicyStore is an in-memory PolicyStore for tests and local development.
type MemoryPolicyStore struct {
	mu      sync.Mutex
	version int64
	rows    map[policyKey]Permission
}

// NewMemoryPolicyStore returns a store seeded with perms at version 1.
func NewMemoryPolicyStore(perms []Permission) *MemoryPolicyStore {
	s := &MemoryPolicyStore{version: 1, rows: map[policyKey]Permission{}}
	for _, p := range perms {
		s.rows[policyKey{p.Role, p.Module}] = p
	}
	return s
}

func (s *MemoryPolicyStore) Version(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version, nil
}

func (s *MemoryPolicyStore) Load(ctx context.Context) ([]Permission, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Permission, 0, len(s.rows))
	for _, p := range s.rows {
		out = append(out, p)
	}
	return out, s.version, nil
}

func (s *MemoryPolicyStore) Save(ctx context.Context, perms []Permission) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range perms {
		s.rows[policyKey{p.Role, p.Module}] = p
	}
	s.version++
	return s.version, nil
}
