package rbac

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Module identifiers of the contributor-tier resources.
const (
	ModuleProcesses      = "processes"
	ModuleRisks          = "risks"
	ModuleActions        = "actions"
	ModuleDocuments      = "documents"
	ModuleIndicators     = "indicators"
	ModuleCommittees     = "committees"
	ModuleAdverseEvents  = "adverse-events"
	ModuleEcosystem      = "ecosystem"
	ModuleSupportTickets = "support-tickets"
	ModuleClientLogs     = "client-logs"
)

// Modules lists every gated module in display order.
var Modules = []string{
	ModuleProcesses,
	ModuleRisks,
	ModuleActions,
	ModuleDocuments,
	ModuleIndicators,
	ModuleCommittees,
	ModuleAdverseEvents,
	ModuleEcosystem,
	ModuleSupportTickets,
	ModuleClientLogs,
}

func IsValidModule(module string) bool {
	for _, m := range Modules {
		if m == module {
			return true
		}
	}
	return false
}

type Action string

const (
	ActionRead    Action = "read"
	ActionEdit    Action = "edit"
	ActionApprove Action = "approve"
	ActionDelete  Action = "delete"
)

// Permission is one row of the Role→Permission matrix.
type Permission struct {
	Role       string `json:"role"`
	Module     string `json:"module"`
	CanRead    bool   `json:"can_read"`
	CanEdit    bool   `json:"can_edit"`
	CanApprove bool   `json:"can_approve"`
	CanDelete  bool   `json:"can_delete"`
}

func (p Permission) Allows(a Action) bool {
	switch a {
	case ActionRead:
		return p.CanRead
	case ActionEdit:
		return p.CanEdit
	case ActionApprove:
		return p.CanApprove
	case ActionDelete:
		return p.CanDelete
	default:
		return false
	}
}

var ErrInvalidPermission = errors.New("rbac: invalid permission row")

// DefaultPermissions is the seeded matrix: every contributor role may edit,
// approve and delete; readers may only read.
func DefaultPermissions() []Permission {
	contributors := []string{RoleAdmin, RoleLeader, RoleCollaborator}
	out := make([]Permission, 0, len(Modules)*(len(contributors)+1))
	for _, m := range Modules {
		for _, r := range contributors {
			out = append(out, Permission{Role: r, Module: m, CanRead: true, CanEdit: true, CanApprove: true, CanDelete: true})
		}
		out = append(out, Permission{Role: RoleReader, Module: m, CanRead: true})
	}
	return out
}

// PolicyStore persists the matrix together with a version that every write bumps.
type PolicyStore interface {
	Version(ctx context.Context) (int64, error)
	// Load returns all rows and the version they belong to.
	Load(ctx context.Context) ([]Permission, int64, error)
	// Save upserts rows and bumps the version atomically, returning the new version.
	Save(ctx context.Context, perms []Permission) (int64, error)
}

type policyKey struct {
	role   string
	module string
}

// PolicyTable answers permission questions from an in-process copy of the
// matrix. Every read compares the stored version and reloads when it moved,
// so a write made by any process is visible to the next decision.
type PolicyTable struct {
	store PolicyStore

	mu      sync.RWMutex
	loaded  bool
	version int64
	rows    map[policyKey]Permission
}

func NewPolicyTable(store PolicyStore) *PolicyTable {
	return &PolicyTable{store: store, rows: map[policyKey]Permission{}}
}

func (t *PolicyTable) refresh(ctx context.Context) error {
	v, err := t.store.Version(ctx)
	if err != nil {
		return fmt.Errorf("policy version: %w", err)
	}

	t.mu.RLock()
	fresh := t.loaded && t.version == v
	t.mu.RUnlock()
	if fresh {
		return nil
	}

	perms, loadedVersion, err := t.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("policy load: %w", err)
	}
	rows := make(map[policyKey]Permission, len(perms))
	for _, p := range perms {
		rows[policyKey{p.Role, p.Module}] = p
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.loaded && loadedVersion < t.version {
		// A concurrent refresh already installed something newer.
		return nil
	}
	t.rows = rows
	t.version = loadedVersion
	t.loaded = true
	return nil
}

// Allowed reports whether any of roles grants action on module.
func (t *PolicyTable) Allowed(ctx context.Context, roles []string, module string, action Action) (bool, error) {
	if len(roles) == 0 {
		return false, nil
	}
	if err := t.refresh(ctx); err != nil {
		return false, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, r := range roles {
		if p, ok := t.rows[policyKey{r, module}]; ok && p.Allows(action) {
			return true, nil
		}
	}
	return false, nil
}

// Snapshot returns the current matrix sorted by module then role.
func (t *PolicyTable) Snapshot(ctx context.Context) ([]Permission, int64, error) {
	if err := t.refresh(ctx); err != nil {
		return nil, 0, err
	}
	t.mu.RLock()
	out := make([]Permission, 0, len(t.rows))
	for _, p := range t.rows {
		out = append(out, p)
	}
	v := t.version
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Module != out[j].Module {
			return out[i].Module < out[j].Module
		}
		return out[i].Role < out[j].Role
	})
	return out, v, nil
}

// Save validates and persists rows. The next decision in any process sees them.
func (t *PolicyTable) Save(ctx context.Context, perms []Permission) (int64, error) {
	if len(perms) == 0 {
		return 0, ErrInvalidPermission
	}
	for _, p := range perms {
		if !IsValidRole(p.Role) || !IsValidModule(p.Module) {
			return 0, fmt.Errorf("%w: %s/%s", ErrInvalidPermission, p.Role, p.Module)
		}
	}
	v, err := t.store.Save(ctx, perms)
	if err != nil {
		return 0, err
	}
	if err := t.refresh(ctx); err != nil {
		return v, err
	}
	return v, nil
}
