package authz

import (
	"context"
	"net/http"

	"github.com/clipforge/highlights-api/internal/models"
	"github.com/clipforge/highlights-api/internal/token"
)

type contextKey string

const identityKey contextKey = "identity"

// Identity is the verified caller attached to a request context after the
// bearer token or session cookie has been checked.
type Identity struct {
	Subject  string
	Audience token.Audience
	TenantID string
	Email    string
	Roles    []models.UserRole
}

func (id Identity) IsService() bool {
	return id.Audience == token.AudienceService
}

func (id Identity) IsPlatformAdmin() bool {
	return id.Audience == token.AudiencePlatformAdmin
}

// WithIdentity stores the verified caller on the context.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromRequest returns the verified caller, if any.
func IdentityFromRequest(r *http.Request) (Identity, bool) {
	id, ok := r.Context().Value(identityKey).(Identity)
	if !ok || id.Subject == "" {
		return Identity{}, false
	}
	return id, true
}

// TenantIDFromRequest returns the caller's own tenant binding. Handlers on
// tenant-scoped routes must use this, never a client-supplied identifier,
// when resolving which tenant's data to touch.
func TenantIDFromRequest(r *http.Request) (string, bool) {
	id, ok := IdentityFromRequest(r)
	if !ok || id.TenantID == "" {
		return "", false
	}
	return id.TenantID, true
}

func RolesFromRequest(r *http.Request) ([]models.UserRole, bool) {
	id, ok := IdentityFromRequest(r)
	if !ok || len(id.Roles) == 0 {
		return nil, false
	}
	return id.Roles, true
}
