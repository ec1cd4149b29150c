package auth

import "strings"

// Role is the coarse permission level of a TaskFlow user.
type Role string

const (
	// RoleAdmin manages the whole workspace.
	RoleAdmin Role = "ADMIN"
	// RoleManager manages projects and teams.
	RoleManager Role = "MANAGER"
	// RoleMember is the default role for new accounts.
	RoleMember Role = "MEMBER"
)

// DefaultRole is assigned to every provisioned account.
const DefaultRole = RoleMember

var roleHierarchy = map[Role]int{
	RoleMember:  1,
	RoleManager: 2,
	RoleAdmin:   3,
}

// Roles returns the closed set of roles, lowest first.
func Roles() []Role {
	return []Role{RoleMember, RoleManager, RoleAdmin}
}

// IsValid checks if the role is one of the predefined roles
func (r Role) IsValid() bool {
	_, ok := roleHierarchy[r]
	return ok
}

// IsAtLeast checks if this role meets the minimum required level
func (r Role) IsAtLeast(min Role) bool {
	level, ok := roleHierarchy[r]
	if !ok {
		return false
	}
	required, ok := roleHierarchy[min]
	if !ok {
		return false
	}
	return level >= required
}

func (r Role) String() string {
	return string(r)
}

// ParseRole accepts only the exact upper-case role names.
func ParseRole(s string) (Role, bool) {
	r := Role(s)
	return r, r.IsValid()
}

// NormalizeRole is used at the store boundary: it tolerates surrounding
// whitespace and case differences in persisted values and rejects anything
// outside the closed set.
func NormalizeRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if !r.IsValid() {
		return "", wrapSentinel(ErrInvalidRole, nil, map[string]any{"role": s})
	}
	return r, nil
}
