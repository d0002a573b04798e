package middlewares

import (
	"slices"
	"strings"
)

// RoleSet is a route's authorization policy. The zero value is "undeclared"
// and Require refuses it, so every protected route states its roles.
type RoleSet struct {
	roles    []string
	declared bool
}

// Roles restricts a route to identities holding one of roles.
func Roles(roles ...string) RoleSet {
	if len(roles) == 0 {
		panic("middlewares.Roles needs at least one role; use AnyRole for open routes")
	}
	return RoleSet{roles: slices.Clone(roles), declared: true}
}

// AnyRole admits any authenticated identity.
func AnyRole() RoleSet {
	return RoleSet{declared: true}
}

func (s RoleSet) Allows(role string) bool {
	if len(s.roles) == 0 {
		return true
	}
	return slices.Contains(s.roles, role)
}

func (s RoleSet) String() string {
	if len(s.roles) == 0 {
		return "any"
	}
	return strings.Join(s.roles, ",")
}
