package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeRoles(t *testing.T) {
	got := NormalizeRoles([]UserRole{" Tenant_Admin ", "tenant_admin", "OWNER", "", "owner"})
	assert.Equal(t, []UserRole{RoleTenantAdmin, RoleOwner}, got)
}

func TestEnsureDefaultRole(t *testing.T) {
	assert.Equal(t, []UserRole{RoleTenantMember}, EnsureDefaultRole(nil))
	assert.Equal(t,
		[]UserRole{RoleTenantAdmin, RoleTenantMember},
		EnsureDefaultRole([]UserRole{RoleTenantAdmin}))

	already := []UserRole{RoleTenantMember, RoleOwner}
	assert.Equal(t, already, EnsureDefaultRole(already))
}

func TestHasAtLeast(t *testing.T) {
	assert.True(t, HasAtLeast([]UserRole{RoleOwner}, RoleTenantAdmin))
	assert.True(t, HasAtLeast([]UserRole{RoleTenantAdmin}, RoleTenantAdmin))
	assert.False(t, HasAtLeast([]UserRole{RoleTenantMember}, RoleTenantAdmin))
	assert.False(t, HasAtLeast(nil, RoleTenantMember))
	assert.False(t, HasAtLeast([]UserRole{RoleOwner}, UserRole("made_up")))
}

func TestIsValidRoleList(t *testing.T) {
	assert.False(t, IsValidRoleList(nil))
	assert.False(t, IsValidRoleList([]UserRole{RoleOwner, UserRole("bogus")}))
	assert.True(t, IsValidRoleList([]UserRole{RoleOwner, RoleTenantMember}))
}

func TestHighestRole(t *testing.T) {
	assert.Equal(t, RoleOwner, HighestRole([]UserRole{RoleTenantMember, RoleOwner, RoleTenantAdmin}))
	assert.Equal(t, RoleTenantMember, HighestRole(nil))
}
