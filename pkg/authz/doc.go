// Package authz is the decision layer UI code calls before rendering or
// mutating protected data.
//
// A Resolver is bound to one identity and reads that identity's snapshot from
// a permcache.Cache:
//
//	resolver := authz.NewResolver(cache, rbac.Identity{Email: "ops@example.com"})
//	resolver.Load(ctx)
//	if resolver.CanEdit("orders") {
//		// render the edit button
//	}
//	cols := resolver.AllowedColumns("orders")
//
// Decisions are fail-closed: a code with no permission row is denied and has
// no visible columns. Identities granted by the bypass chain (the ADMIN role
// or the legacy superuser flag) are allowed everything and see every column.
package authz
