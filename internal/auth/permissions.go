package auth

import "slices"

// Role is an authorisation tier.
type Role string

// Roles, least to most privileged.
const (
	RoleViewer   Role = "viewer"
	RoleOperator Role = "operator"
	RoleAdmin    Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	_, ok := rolePermissions[r]
	return ok
}

// Permission represents a named capability.
type Permission string

// Permission constants.
const (
	PermPlayoutRead    Permission = "playout:read"
	PermPlayoutOperate Permission = "playout:operate"
	PermPlayoutAdmin   Permission = "playout:admin"
)

// rolePermissions is the single source of truth for the authorisation model.
var rolePermissions = map[Role][]Permission{
	RoleViewer:   {PermPlayoutRead},
	RoleOperator: {PermPlayoutRead, PermPlayoutOperate},
	RoleAdmin:    {PermPlayoutRead, PermPlayoutOperate, PermPlayoutAdmin},
}

// HasPermission returns true if the given role has the specified permission.
func HasPermission(role Role, perm Permission) bool {
	return slices.Contains(rolePermissions[role], perm)
}

// PermissionsForRole returns the permissions granted to a role, nil for
// unknown roles.
func PermissionsForRole(role Role) []Permission {
	return slices.Clone(rolePermissions[role])
}
