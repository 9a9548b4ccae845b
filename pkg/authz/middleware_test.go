package authz

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/opsboard/pkg/rbac"
)

func TestHeaderIdentity(t *testing.T) {
	identify := HeaderIdentity("", "Boss@Example.com")

	req := httptest.NewRequest("GET", "/", nil)
	_, ok := identify(req)
	assert.False(t, ok)

	req.Header.Set(DefaultIdentityHeader, " Sales@Example.com ")
	id, ok := identify(req)
	require.True(t, ok)
	assert.Equal(t, rbac.Identity{Email: "sales@example.com"}, id)

	req.Header.Set(DefaultIdentityHeader, "boss@example.com")
	id, ok = identify(req)
	require.True(t, ok)
	assert.True(t, id.LegacySuperuser)
}

func serve(m *Middleware, h http.Handler, email string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", "/orders", nil)
	if email != "" {
		req.Header.Set(DefaultIdentityHeader, email)
	}
	w := httptest.NewRecorder()
	m.Authenticate(h).ServeHTTP(w, req)
	return w
}

func TestMiddleware_AuthenticateStoresResolver(t *testing.T) {
	m := NewMiddleware(newCache(t, newReader()), nil)

	var resolver *Resolver
	var identity rbac.Identity
	w := serve(m, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resolver, _ = FromContext(r.Context())
		identity, _ = IdentityFromContext(r.Context())
	}), "sales@example.com")

	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, resolver)
	assert.Equal(t, "sales@example.com", identity.Email)
	assert.Equal(t, "SALES", resolver.Role(), "resolver is loaded before the handler runs")
}

func TestMiddleware_Require(t *testing.T) {
	m := NewMiddleware(newCache(t, newReader()), nil)
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name   string
		email  string
		code   string
		action rbac.Action
		status int
	}{
		{"anonymous", "", "orders", rbac.ActionView, http.StatusUnauthorized},
		{"allowed", "sales@example.com", "orders", rbac.ActionEdit, http.StatusNoContent},
		{"denied", "sales@example.com", "orders", rbac.ActionDelete, http.StatusForbidden},
		{"no row", "sales@example.com", "admin.roles", rbac.ActionView, http.StatusForbidden},
		{"no role", "stranger@example.com", "orders", rbac.ActionView, http.StatusForbidden},
		{"admin bypass", "admin@example.com", "admin.roles", rbac.ActionDelete, http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(m, m.Require(tt.code, tt.action)(ok), tt.email)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestFromContext_Missing(t *testing.T) {
	_, ok := FromContext(httptest.NewRequest("GET", "/", nil).Context())
	assert.False(t, ok)
}
