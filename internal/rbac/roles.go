package rbac

// Role names. Keep these stable; they are part of auth/RBAC contracts and
// are stored verbatim in user_roles and role_permissions.
const (
	RoleAdmin        = "admin"
	RoleLeader       = "leader"
	RoleCollaborator = "collaborator"
	RoleReader       = "reader"
)

// RoleInfo is a row of the role catalog.
type RoleInfo struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Catalog lists every known role with its display name.
var Catalog = []RoleInfo{
	{Code: RoleAdmin, Name: "Administrador", Description: "Full access, including user administration"},
	{Code: RoleLeader, Name: "Lider", Description: "Manages quality modules and reviews users"},
	{Code: RoleCollaborator, Name: "Colaborador", Description: "Creates and edits quality records"},
	{Code: RoleReader, Name: "Consulta", Description: "Read-only access"},
}

// DefaultRole is assigned to accounts created without explicit roles.
const DefaultRole = RoleCollaborator

func IsValidRole(role string) bool {
	switch role {
	case RoleAdmin, RoleLeader, RoleCollaborator, RoleReader:
		return true
	default:
		return false
	}
}

// NormalizeRoles validates roles and removes duplicates, keeping first-seen order.
// ok is false if any role is unknown.
func NormalizeRoles(roles []string) (out []string, ok bool) {
	seen := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		if !IsValidRole(r) {
			return nil, false
		}
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out, true
}
