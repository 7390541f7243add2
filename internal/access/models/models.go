// Package models holds the access-control vocabulary: roles, role sets and
// the resolved principal.
package models

import (
	"fmt"
	"slices"
	"strings"

	dErrors "medorder/pkg/domain-errors"
)

// Role is one of the fixed roles. Admin is a superset of every other role.
type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
	RoleAdmin  Role = "admin"
)

// DefaultRole is the least-privileged role, used whenever a principal's role
// cannot be established.
const DefaultRole = RoleBuyer

// ParseRole accepts exactly the known role names, trimmed and case-insensitive.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.IsValid() {
		return "", dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unknown role %q", s))
	}
	return r, nil
}

func (r Role) IsValid() bool {
	switch r {
	case RoleBuyer, RoleSeller, RoleAdmin:
		return true
	}
	return false
}

func (r Role) String() string { return string(r) }

func (r Role) IsAdmin() bool { return r == RoleAdmin }

func (r Role) IsSeller() bool { return r == RoleSeller }

func (r Role) IsSellerOrAdmin() bool { return r == RoleSeller || r == RoleAdmin }

// DisplayName is the label shown next to the user's name. Unknown roles
// render as the buyer label, matching the default role.
func (r Role) DisplayName() string {
	switch r {
	case RoleAdmin:
		return "Administrator"
	case RoleSeller:
		return "Seller"
	default:
		return "Buyer"
	}
}

// RoleSet is an ordered set of roles. Declared order is kept for display.
type RoleSet []Role

// ParseRoleSet parses role names, dropping duplicates. Empty input and
// unknown names are errors.
func ParseRoleSet(names []string) (RoleSet, error) {
	set := make(RoleSet, 0, len(names))
	for _, name := range names {
		r, err := ParseRole(name)
		if err != nil {
			return nil, err
		}
		if !set.Contains(r) {
			set = append(set, r)
		}
	}
	if len(set) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "role set must not be empty")
	}
	return set, nil
}

func (s RoleSet) Contains(r Role) bool {
	return slices.Contains(s, r)
}

func (s RoleSet) Clone() RoleSet {
	return slices.Clone(s)
}

func (s RoleSet) Strings() []string {
	out := make([]string, len(s))
	for i, r := range s {
		out[i] = string(r)
	}
	return out
}

// Principal is the authenticated actor of one request. It is recomputed per
// request; Role always comes from the directory, never from the caller.
type Principal struct {
	ID   string
	Role Role
}
