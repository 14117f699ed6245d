package rbac

import (
	"context"
	"errors"
)

var ErrForbidden = errors.New("forbidden")

// RoleProvider returns the roles currently assigned to an account.
// It is consulted on every request; implementations must not cache.
type RoleProvider interface {
	Roles(ctx context.Context, userID string) ([]string, error)
}

// RoleProviderFunc adapts a function to RoleProvider.
type RoleProviderFunc func(ctx context.Context, userID string) ([]string, error)

func (f RoleProviderFunc) Roles(ctx context.Context, userID string) ([]string, error) {
	return f(ctx, userID)
}

// Decide reports whether held and allowed intersect.
// One matching role is enough; an empty role set is never allowed.
func Decide(held []string, allowed ...string) bool {
	if len(held) == 0 || len(allowed) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(allowed))
	for _, r := range allowed {
		set[r] = struct{}{}
	}
	for _, r := range held {
		if _, ok := set[r]; ok {
			return true
		}
	}
	return false
}

// HasRole is Decide for a single role.
func HasRole(held []string, role string) bool {
	for _, r := range held {
		if r == role {
			return true
		}
	}
	return false
}
