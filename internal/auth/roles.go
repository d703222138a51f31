package auth

// Role is the closed set of principal roles. Authorization is an explicit
// per-route allow-list over these values; there is no role hierarchy.
type Role string

const (
	RoleUser       Role = "USER"
	RoleVendor     Role = "VENDOR"
	RoleAdmin      Role = "ADMIN"
	RoleSuperAdmin Role = "SUPERADMIN"
)

// ParseRole maps a claim string to a known Role.
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleUser, RoleVendor, RoleAdmin, RoleSuperAdmin:
		return Role(s), true
	}
	return "", false
}
