package auth

// Role describes an operator role in the console auth model.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

// Permission describes a capability granted to a console principal.
type Permission string

const (
	// PermAll grants everything, including admin account management.
	PermAll Permission = "*"

	PermOrdersRead   Permission = "orders:read"
	PermOrdersWrite  Permission = "orders:write"
	PermRidersRead   Permission = "riders:read"
	PermRidersWrite  Permission = "riders:write"
	PermItemsRead    Permission = "items:read"
	PermItemsWrite   Permission = "items:write"
	PermPaymentsRead Permission = "payments:read"
	PermAuditRead    Permission = "audit:read"
	PermAdminsManage Permission = "admins:manage"
)

// RolePermissions returns permissions granted to a role.
func RolePermissions(role Role) []Permission {
	switch role {
	case RoleSuperAdmin:
		return []Permission{PermAll}
	case RoleAdmin:
		return []Permission{
			PermOrdersRead,
			PermOrdersWrite,
			PermRidersRead,
			PermRidersWrite,
			PermItemsRead,
			PermItemsWrite,
			PermPaymentsRead,
			PermAuditRead,
		}
	default:
		return []Permission{}
	}
}

// ValidRole returns true when role is one of the supported console roles.
func ValidRole(role string) bool {
	switch Role(role) {
	case RoleAdmin, RoleSuperAdmin:
		return true
	default:
		return false
	}
}

// HasPermission checks whether a principal's permission set covers perm.
func HasPermission(p *Principal, perm Permission) bool {
	if p == nil {
		return false
	}
	for _, granted := range p.Permissions {
		if granted == PermAll || granted == perm {
			return true
		}
	}
	return false
}
