package domain

import "strings"

// Role is a membership role inside an organization. Roles are ranked:
// owner outranks admin, admin outranks member.
type Role string

const (
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
	RoleOwner  Role = "owner"
)

var roleRanks = map[Role]int{
	RoleMember: 1,
	RoleAdmin:  2,
	RoleOwner:  3,
}

// ParseRole normalizes raw into a known role. The second return is false
// for anything outside the member/admin/owner set.
func ParseRole(raw string) (Role, bool) {
	role := Role(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := roleRanks[role]; !ok {
		return "", false
	}
	return role, true
}

// Rank returns the ordering value of the role. Unknown roles rank zero,
// below every valid role.
func (r Role) Rank() int {
	return roleRanks[r]
}

// Valid reports whether the role is one of the known roles.
func (r Role) Valid() bool {
	return r.Rank() > 0
}

// Satisfies reports whether the role meets or exceeds required.
// An unknown required role is never satisfied.
func (r Role) Satisfies(required Role) bool {
	requiredRank := required.Rank()
	if requiredRank == 0 {
		return false
	}
	return r.Rank() >= requiredRank
}

func (r Role) String() string { return string(r) }
