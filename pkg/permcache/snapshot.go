package permcache

import (
	"time"

	"github.com/platinummonkey/opsboard/pkg/rbac"
)

// Snapshot is the resolved role and permission rows of one identity. A
// snapshot is never mutated after it is published; patches produce a copy.
type Snapshot struct {
	Email     string
	RoleCode  string
	FetchedAt time.Time

	resources map[string]rbac.ResourcePermission
	pages     map[string]rbac.PagePermission
}

// EmptySnapshot returns the fail-closed snapshot for email: no role, no rows
func EmptySnapshot(email string) *Snapshot {
	return &Snapshot{
		Email:     email,
		resources: map[string]rbac.ResourcePermission{},
		pages:     map[string]rbac.PagePermission{},
	}
}

// NewSnapshot builds a snapshot from permission rows
func NewSnapshot(email, roleCode string, resources []rbac.ResourcePermission, pages []rbac.PagePermission) *Snapshot {
	s := EmptySnapshot(email)
	s.RoleCode = roleCode
	for _, r := range resources {
		s.resources[r.ResourceCode] = r
	}
	for _, p := range pages {
		s.pages[p.PageCode] = p
	}
	return s
}

// HasRole reports whether a role was resolved for the identity
func (s *Snapshot) HasRole() bool {
	return s != nil && s.RoleCode != ""
}

// Resource returns the resource permission row for code
func (s *Snapshot) Resource(code string) (rbac.ResourcePermission, bool) {
	if s == nil {
		return rbac.ResourcePermission{}, false
	}
	p, ok := s.resources[code]
	return p, ok
}

// Page returns the page permission row for code
func (s *Snapshot) Page(code string) (rbac.PagePermission, bool) {
	if s == nil {
		return rbac.PagePermission{}, false
	}
	p, ok := s.pages[code]
	return p, ok
}

// Flags returns the flags of the row matching code. Resource rows take
// precedence over page rows with the same code.
func (s *Snapshot) Flags(code string) (rbac.Flags, bool) {
	if r, ok := s.Resource(code); ok {
		return r.Flags, true
	}
	if p, ok := s.Page(code); ok {
		return p.Flags, true
	}
	return rbac.Flags{}, false
}

// Len returns the number of permission rows
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.resources) + len(s.pages)
}

func (s *Snapshot) clone() *Snapshot {
	c := &Snapshot{
		Email:     s.Email,
		RoleCode:  s.RoleCode,
		FetchedAt: s.FetchedAt,
		resources: make(map[string]rbac.ResourcePermission, len(s.resources)),
		pages:     make(map[string]rbac.PagePermission, len(s.pages)),
	}
	for k, v := range s.resources {
		c.resources[k] = v
	}
	for k, v := range s.pages {
		c.pages[k] = v
	}
	return c
}
