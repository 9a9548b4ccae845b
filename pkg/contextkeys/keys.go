// Package contextkeys provides centralized context key definitions
//
// IMPORTANT: All context keys used across the application must be defined here.
// This prevents typos, documents dependencies, and makes key usage discoverable.
//
// USAGE PATTERN:
//
//	import "github.com/platinummonkey/opsboard/pkg/contextkeys"
//	ctx = contextkeys.WithResolver(ctx, resolver)
//	resolver, _ := ctx.Value(contextkeys.ResolverKey).(*authz.Resolver)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// IdentityKey contains rbac.Identity
	// Set by: authz.Middleware.Authenticate (pkg/authz/middleware.go)
	// Required by: authz.Middleware.Require, admin handlers, audit.NewEvent
	// Type: rbac.Identity
	IdentityKey Key = "identity"

	// ResolverKey contains *authz.Resolver loaded for the request identity
	// Set by: authz.Middleware.Authenticate (pkg/authz/middleware.go)
	// Used by: Handlers that filter columns of protected data
	// Type: *authz.Resolver
	ResolverKey Key = "authz_resolver"

	// RequestIDKey contains request ID string
	// Set by: httputil.LoggingMiddleware
	// Used by: Logger, audit.NewEvent
	// Type: string
	RequestIDKey Key = "request_id"
)

// Helper functions for type-safe context operations

// WithIdentity adds the authenticated identity to the context
func WithIdentity(ctx context.Context, identity interface{}) context.Context {
	return context.WithValue(ctx, IdentityKey, identity)
}

// WithResolver adds the request's resolver to the context
func WithResolver(ctx context.Context, resolver interface{}) context.Context {
	return context.WithValue(ctx, ResolverKey, resolver)
}

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}
