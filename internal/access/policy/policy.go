// Package policy maps protected path patterns to the roles allowed to reach
// them. A Policy is built once at start and is read-only afterwards, so it is
// safe for concurrent use without locking.
package policy

import (
	"fmt"
	"strings"

	"medorder/internal/access/models"
	dErrors "medorder/pkg/domain-errors"
)

// Entry is one row of the policy table.
type Entry struct {
	Pattern string
	Roles   models.RoleSet
}

// Policy is an ordered, immutable route policy table.
type Policy struct {
	entries []Entry
	exact   map[string]int
}

// Decision is the outcome of evaluating one role against one path.
type Decision struct {
	Path       string
	Restricted bool
	Required   models.RoleSet
	Permitted  bool
}

// New validates entries and builds a policy. Patterns must start with "/",
// be unique, and carry a non-empty set of known roles.
func New(entries []Entry) (*Policy, error) {
	p := &Policy{
		entries: make([]Entry, 0, len(entries)),
		exact:   make(map[string]int, len(entries)),
	}
	for _, e := range entries {
		pattern := strings.TrimSpace(e.Pattern)
		if pattern == "" || !strings.HasPrefix(pattern, "/") {
			return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("invalid policy pattern %q", e.Pattern))
		}
		if _, dup := p.exact[pattern]; dup {
			return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("duplicate policy pattern %q", pattern))
		}
		if len(e.Roles) == 0 {
			return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("policy pattern %q has no roles", pattern))
		}
		for _, r := range e.Roles {
			if !r.IsValid() {
				return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("policy pattern %q names unknown role %q", pattern, r))
			}
		}
		p.exact[pattern] = len(p.entries)
		p.entries = append(p.entries, Entry{Pattern: pattern, Roles: e.Roles.Clone()})
	}
	return p, nil
}

// MustNew is New for tables known at compile time.
func MustNew(entries []Entry) *Policy {
	p, err := New(entries)
	if err != nil {
		panic(err)
	}
	return p
}

// RequiredRoles returns the roles permitted on path. An exact entry wins over
// any prefix entry; otherwise the first declared pattern that prefixes path
// applies. ok is false when no entry matches, meaning this policy does not
// restrict the path and the decision is left to the caller.
func (p *Policy) RequiredRoles(path string) (roles models.RoleSet, ok bool) {
	if i, found := p.exact[path]; found {
		return p.entries[i].Roles.Clone(), true
	}
	for _, e := range p.entries {
		if strings.HasPrefix(path, e.Pattern) {
			return e.Roles.Clone(), true
		}
	}
	return nil, false
}

// IsPermitted reports whether role satisfies required. An absent or unknown
// role is never permitted; admin is always permitted, even for an empty set.
func IsPermitted(role models.Role, required models.RoleSet) bool {
	if !role.IsValid() {
		return false
	}
	if role.IsAdmin() {
		return true
	}
	return required.Contains(role)
}

// Decide evaluates role against path. Unrestricted paths are permitted.
func (p *Policy) Decide(role models.Role, path string) Decision {
	required, restricted := p.RequiredRoles(path)
	if !restricted {
		return Decision{Path: path, Permitted: true}
	}
	return Decision{
		Path:       path,
		Restricted: true,
		Required:   required,
		Permitted:  IsPermitted(role, required),
	}
}

// Entries returns a copy of the table in declared order.
func (p *Policy) Entries() []Entry {
	out := make([]Entry, len(p.entries))
	for i, e := range p.entries {
		out[i] = Entry{Pattern: e.Pattern, Roles: e.Roles.Clone()}
	}
	return out
}
