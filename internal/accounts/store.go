package accounts

import "context"

// Store is the Credential Store: accounts plus their role assignments.
// Every mutation is a single atomic write; ReplaceRoles swaps the whole set.
type Store interface {
	Create(ctx context.Context, a Account, roles []string) error
	Get(ctx context.Context, id string) (Account, error)
	FindByUsername(ctx context.Context, username string) (Account, error)
	// FindByLoginOrEmail matches the username first, then the email address.
	FindByLoginOrEmail(ctx context.Context, identifier string) (Account, error)
	List(ctx context.Context) ([]Account, error)
	// Update applies u in one transaction: all of it lands or none of it does.
	Update(ctx context.Context, u AccountUpdate) error
	SetActive(ctx context.Context, id string, active bool) error
	SetPassword(ctx context.Context, id, hash string, mustChange bool) error
	Delete(ctx context.Context, id string) error

	ReplaceRoles(ctx context.Context, id string, roles []string) error
	// Roles returns the current role set. Unknown accounts have no roles.
	Roles(ctx context.Context, id string) ([]string, error)
	RolesFor(ctx context.Context, ids []string) (map[string][]string, error)
}

// AccountUpdate is one administrative edit of an account.
type AccountUpdate struct {
	// Account carries the profile fields written: name, email and active flag.
	Account Account
	// Roles replaces the role set when non-nil.
	Roles []string
	// PasswordHash, when set, replaces the password and forces a change on next login.
	PasswordHash string
}
