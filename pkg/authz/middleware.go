package authz

import (
	"context"
	"net/http"
	"strings"

	"github.com/platinummonkey/opsboard/pkg/contextkeys"
	"github.com/platinummonkey/opsboard/pkg/httputil"
	"github.com/platinummonkey/opsboard/pkg/permcache"
	"github.com/platinummonkey/opsboard/pkg/rbac"
)

// DefaultIdentityHeader is set by the authenticating proxy in front of the
// admin API
const DefaultIdentityHeader = "X-Forwarded-Email"

// IdentityFunc extracts the authenticated identity from a request. It
// returns false when the request carries none.
type IdentityFunc func(r *http.Request) (rbac.Identity, bool)

// HeaderIdentity reads the identity email from header. Emails listed in
// legacySuperusers get the legacy superuser flag.
func HeaderIdentity(header string, legacySuperusers ...string) IdentityFunc {
	if header == "" {
		header = DefaultIdentityHeader
	}
	superusers := make(map[string]bool, len(legacySuperusers))
	for _, email := range legacySuperusers {
		superusers[strings.ToLower(strings.TrimSpace(email))] = true
	}

	return func(r *http.Request) (rbac.Identity, bool) {
		email := strings.ToLower(strings.TrimSpace(r.Header.Get(header)))
		if email == "" {
			return rbac.Identity{}, false
		}
		return rbac.Identity{Email: email, LegacySuperuser: superusers[email]}, true
	}
}

// Middleware attaches a loaded Resolver to every authenticated request and
// guards handlers with permission requirements
type Middleware struct {
	cache    *permcache.Cache
	identify IdentityFunc
	opts     []Option
}

// NewMiddleware creates a middleware. A nil identify reads
// DefaultIdentityHeader.
func NewMiddleware(cache *permcache.Cache, identify IdentityFunc, opts ...Option) *Middleware {
	if identify == nil {
		identify = HeaderIdentity(DefaultIdentityHeader)
	}
	return &Middleware{
		cache:    cache,
		identify: identify,
		opts:     opts,
	}
}

// Authenticate loads the caller's permissions and stores the identity and
// its resolver in the request context. Anonymous requests pass through
// without a resolver.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := m.identify(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		resolver := NewResolver(m.cache, identity, m.opts...)
		resolver.Load(r.Context())

		ctx := contextkeys.WithIdentity(r.Context(), identity)
		ctx = contextkeys.WithResolver(ctx, resolver)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Require creates middleware that requires action on code
func (m *Middleware) Require(code string, action rbac.Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			resolver, ok := FromContext(r.Context())
			if !ok {
				httputil.WriteUnauthorized(w, "Authentication required")
				return
			}

			if !resolver.Can(code, action) {
				httputil.WriteForbidden(w, "Insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// FromContext returns the resolver stored by Authenticate
func FromContext(ctx context.Context) (*Resolver, bool) {
	resolver, ok := ctx.Value(contextkeys.ResolverKey).(*Resolver)
	return resolver, ok && resolver != nil
}

// IdentityFromContext returns the identity stored by Authenticate
func IdentityFromContext(ctx context.Context) (rbac.Identity, bool) {
	identity, ok := ctx.Value(contextkeys.IdentityKey).(rbac.Identity)
	return identity, ok
}
