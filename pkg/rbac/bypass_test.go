package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBypassChain(t *testing.T) {
	admin := Identity{Email: "root@example.com"}
	legacy := Identity{Email: "old@example.com", LegacySuperuser: true}
	plain := Identity{Email: "jane@example.com"}

	tests := []struct {
		name   string
		chain  BypassChain
		id     Identity
		role   string
		expect string
	}{
		{"admin role", DefaultBypassChain("", false), admin, DefaultAdminRoleCode, "admin-role"},
		{"custom admin role", DefaultBypassChain("ROOT", false), admin, "ROOT", "admin-role"},
		{"default admin code not reserved when overridden", DefaultBypassChain("ROOT", false), admin, DefaultAdminRoleCode, ""},
		{"legacy flag ignored without strategy", DefaultBypassChain("", false), legacy, "", ""},
		{"legacy flag honoured", DefaultBypassChain("", true), legacy, "", "legacy-superuser"},
		{"admin wins over legacy", DefaultBypassChain("", true), Identity{LegacySuperuser: true}, DefaultAdminRoleCode, "admin-role"},
		{"ordinary role", DefaultBypassChain("", true), plain, "SALES", ""},
		{"empty chain", nil, legacy, DefaultAdminRoleCode, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, tt.chain.Grants(tt.id, tt.role))
		})
	}
}
