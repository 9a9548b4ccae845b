package rbac

// BypassStrategy decides whether an identity short-circuits every permission
// lookup. roleCode is the resolved role, empty when none could be resolved.
type BypassStrategy interface {
	Name() string
	Grants(id Identity, roleCode string) bool
}

// AdminRoleBypass grants everything to identities holding RoleCode
type AdminRoleBypass struct {
	RoleCode string
}

func (b AdminRoleBypass) Name() string { return "admin-role" }

func (b AdminRoleBypass) Grants(_ Identity, roleCode string) bool {
	return roleCode != "" && roleCode == b.RoleCode
}

// LegacySuperuserBypass honours the old superuser flag on the identity
type LegacySuperuserBypass struct{}

func (LegacySuperuserBypass) Name() string { return "legacy-superuser" }

func (LegacySuperuserBypass) Grants(id Identity, _ string) bool {
	return id.LegacySuperuser
}

// BypassChain evaluates strategies in order
type BypassChain []BypassStrategy

// DefaultBypassChain returns the admin role bypass and, if legacy is set, the
// legacy superuser bypass
func DefaultBypassChain(adminRoleCode string, legacy bool) BypassChain {
	if adminRoleCode == "" {
		adminRoleCode = DefaultAdminRoleCode
	}
	chain := BypassChain{AdminRoleBypass{RoleCode: adminRoleCode}}
	if legacy {
		chain = append(chain, LegacySuperuserBypass{})
	}
	return chain
}

// Grants returns the name of the first strategy granting bypass, or "" if none does
func (c BypassChain) Grants(id Identity, roleCode string) string {
	for _, s := range c {
		if s.Grants(id, roleCode) {
			return s.Name()
		}
	}
	return ""
}
