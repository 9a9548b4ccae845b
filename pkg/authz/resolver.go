package authz

import (
	"context"

	"github.com/platinummonkey/opsboard/pkg/observability"
	"github.com/platinummonkey/opsboard/pkg/permcache"
	"github.com/platinummonkey/opsboard/pkg/rbac"
)

// Resolver answers authorization questions for one identity from the
// permission cache. Decision methods never perform I/O and never fail; the
// caller loads the snapshot with Load or Refresh first.
type Resolver struct {
	cache    *permcache.Cache
	identity rbac.Identity
	bypass   rbac.BypassChain
	metrics  *observability.Metrics
}

// Option configures a Resolver
type Option func(*Resolver)

// WithBypassChain replaces the default bypass chain
func WithBypassChain(chain rbac.BypassChain) Option {
	return func(r *Resolver) { r.bypass = chain }
}

// WithMetrics records decisions in m
func WithMetrics(m *observability.Metrics) Option {
	return func(r *Resolver) { r.metrics = m }
}

// NewResolver creates a resolver for identity. Without options the bypass
// chain is the ADMIN role followed by the legacy superuser flag.
func NewResolver(cache *permcache.Cache, identity rbac.Identity, opts ...Option) *Resolver {
	r := &Resolver{
		cache:    cache,
		identity: identity,
		bypass:   rbac.DefaultBypassChain(rbac.DefaultAdminRoleCode, true),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Identity returns the identity this resolver decides for
func (r *Resolver) Identity() rbac.Identity {
	return r.identity
}

// Load ensures a snapshot for the identity is cached, fetching it if needed
func (r *Resolver) Load(ctx context.Context) {
	r.cache.Load(ctx, r.identity.Email)
}

// Refresh invalidates the identity's snapshot and reloads it
func (r *Resolver) Refresh(ctx context.Context) {
	r.cache.Refresh(ctx, r.identity.Email)
}

// Role returns the resolved role code, or "" when none is cached
func (r *Resolver) Role() string {
	snap, _ := r.cache.Snapshot(r.identity.Email)
	if !snap.HasRole() {
		return ""
	}
	return snap.RoleCode
}

// IsBypassed reports whether the identity skips every permission lookup
func (r *Resolver) IsBypassed() bool {
	return r.bypass.Grants(r.identity, r.Role()) != ""
}

func (r *Resolver) CanView(code string) bool {
	return r.can(code, rbac.ActionView)
}

func (r *Resolver) CanEdit(code string) bool {
	return r.can(code, rbac.ActionEdit)
}

func (r *Resolver) CanDelete(code string) bool {
	return r.can(code, rbac.ActionDelete)
}

// Can reports whether action is allowed on code
func (r *Resolver) Can(code string, action rbac.Action) bool {
	return r.can(code, action)
}

func (r *Resolver) can(code string, action rbac.Action) bool {
	snap, _ := r.cache.Snapshot(r.identity.Email)

	if r.bypass.Grants(r.identity, roleOf(snap)) != "" {
		r.metrics.Decision(string(action), "bypass")
		return true
	}

	flags, ok := snap.Flags(code)
	allowed := ok && flags.Get(action)
	r.metrics.Decision(string(action), outcome(allowed))
	return allowed
}

// AllowedColumns returns the column selection for resource code. Bypass
// yields Wildcard; a missing row yields the empty selection.
func (r *Resolver) AllowedColumns(code string) rbac.ColumnSelection {
	snap, _ := r.cache.Snapshot(r.identity.Email)

	if r.bypass.Grants(r.identity, roleOf(snap)) != "" {
		return rbac.AllColumns()
	}

	perm, ok := snap.Resource(code)
	if !ok {
		return rbac.NoColumns()
	}
	return perm.Columns()
}

// IsColumnAllowed reports whether column of resource code is visible
func (r *Resolver) IsColumnAllowed(code, column string) bool {
	return r.AllowedColumns(code).Allows(column)
}

func roleOf(snap *permcache.Snapshot) string {
	if !snap.HasRole() {
		return ""
	}
	return snap.RoleCode
}

func outcome(allowed bool) string {
	if allowed {
		return "allow"
	}
	return "deny"
}
