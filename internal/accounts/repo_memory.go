package accounts

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests and local development.
// It enforces the same uniqueness rules as the Postgres schema.
type MemoryStore struct {
	mu       sync.Mutex
	accounts map[string]Account
	roles    map[string][]string
	clock    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: map[string]Account{},
		roles:    map[string][]string{},
		clock:    time.Now,
	}
}

func (s *MemoryStore) conflictLocked(a Account) bool {
	for id, other := range s.accounts {
		if id == a.ID {
			continue
		}
		if other.Username == a.Username {
			return true
		}
		if a.Email != "" && strings.EqualFold(other.Email, a.Email) {
			return true
		}
	}
	return false
}

func (s *MemoryStore) Create(ctx context.Context, a Account, roles []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[a.ID]; ok || s.conflictLocked(a) {
		return ErrConflict
	}
	s.accounts[a.ID] = a
	s.roles[a.ID] = append([]string(nil), roles...)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return Account{}, ErrNotFound
	}
	return a, nil
}

func (s *MemoryStore) FindByUsername(ctx context.Context, username string) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.Username == username {
			return a, nil
		}
	}
	return Account{}, ErrNotFound
}

func (s *MemoryStore) FindByLoginOrEmail(ctx context.Context, identifier string) (Account, error) {
	if a, err := s.FindByUsername(ctx, identifier); err == nil {
		return a, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.Email != "" && strings.EqualFold(a.Email, identifier) {
			return a, nil
		}
	}
	return Account{}, ErrNotFound
}

func (s *MemoryStore) List(ctx context.Context) ([]Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (s *MemoryStore) Update(ctx context.Context, u AccountUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := u.Account
	cur, ok := s.accounts[a.ID]
	if !ok {
		return ErrNotFound
	}
	if s.conflictLocked(a) {
		return ErrConflict
	}
	cur.Name = a.Name
	cur.Email = a.Email
	cur.IsActive = a.IsActive
	if u.PasswordHash != "" {
		cur.PasswordHash = u.PasswordHash
		cur.MustChangePassword = true
	}
	cur.UpdatedAt = s.clock().UTC()
	s.accounts[a.ID] = cur
	if u.Roles != nil {
		s.roles[a.ID] = append([]string(nil), u.Roles...)
	}
	return nil
}

func (s *MemoryStore) SetActive(ctx context.Context, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return ErrNotFound
	}
	a.IsActive = active
	a.UpdatedAt = s.clock().UTC()
	s.accounts[id] = a
	return nil
}

func (s *MemoryStore) SetPassword(ctx context.Context, id, hash string, mustChange bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return ErrNotFound
	}
	a.PasswordHash = hash
	a.MustChangePassword = mustChange
	a.UpdatedAt = s.clock().UTC()
	s.accounts[id] = a
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[id]; !ok {
		return ErrNotFound
	}
	delete(s.accounts, id)
	delete(s.roles, id)
	return nil
}

func (s *MemoryStore) ReplaceRoles(ctx context.Context, id string, roles []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[id]; !ok {
		return ErrNotFound
	}
	s.roles[id] = append([]string(nil), roles...)
	return nil
}

func (s *MemoryStore) Roles(ctx context.Context, id string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.roles[id]...), nil
}

func (s *MemoryStore) RolesFor(ctx context.Context, ids []string) (map[string][]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string][]string, len(ids))
	for _, id := range ids {
		out[id] = append([]string(nil), s.roles[id]...)
	}
	return out, nil
}
