package models

import "strings"

type UserRole string

const (
	// RoleAdmin is the platform operator role. It is only meaningful on
	// tokens carrying the platform-admin audience.
	RoleAdmin UserRole = "admin"

	RoleOwner        UserRole = "owner"
	RoleTenantAdmin  UserRole = "tenant_admin"
	RoleTenantMember UserRole = "tenant_member"

	// RoleService marks machine-to-machine credentials.
	RoleService UserRole = "service"
)

var roleTier = map[UserRole]int{
	RoleAdmin:        4,
	RoleOwner:        3,
	RoleTenantAdmin:  2,
	RoleTenantMember: 1,
	RoleService:      0,
}

func IsValidRole(role UserRole) bool {
	_, ok := roleTier[role]
	return ok
}

func IsValidRoleList(roles []UserRole) bool {
	if len(roles) == 0 {
		return false
	}
	for _, role := range roles {
		if !IsValidRole(role) {
			return false
		}
	}
	return true
}

// NormalizeRoles lowercases, trims, and de-duplicates a role list while
// preserving order of first appearance.
func NormalizeRoles(roles []UserRole) []UserRole {
	seen := make(map[UserRole]struct{}, len(roles))
	normalized := make([]UserRole, 0, len(roles))
	for _, role := range roles {
		r := UserRole(strings.ToLower(strings.TrimSpace(string(role))))
		if r == "" {
			continue
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		normalized = append(normalized, r)
	}
	return normalized
}

// EnsureDefaultRole guarantees every user carries at least tenant_member.
func EnsureDefaultRole(roles []UserRole) []UserRole {
	for _, role := range roles {
		if role == RoleTenantMember {
			return roles
		}
	}
	return append(roles, RoleTenantMember)
}

// HasAtLeast reports whether any role in the list reaches the required tier.
// Tiers only order roles within a single audience; cross-audience authority
// is decided by the token's audience, never by role strings.
func HasAtLeast(roles []UserRole, required UserRole) bool {
	want, ok := roleTier[required]
	if !ok {
		return false
	}
	for _, role := range roles {
		if tier, ok := roleTier[role]; ok && tier >= want {
			return true
		}
	}
	return false
}

func HighestRole(roles []UserRole) UserRole {
	highest := RoleTenantMember
	best := -1
	for _, role := range roles {
		if tier, ok := roleTier[role]; ok && tier > best {
			best = tier
			highest = role
		}
	}
	return highest
}
