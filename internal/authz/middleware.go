package authz

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/clipforge/highlights-api/internal/models"
	"github.com/clipforge/highlights-api/internal/monitoring"
	"github.com/clipforge/highlights-api/internal/token"
)

// Machine-readable deny reasons. They appear in the audit log only; the
// HTTP response is always a bare 401/403/429.
const (
	ReasonRoleMismatch   = "role_mismatch"
	ReasonTenantMismatch = "tenant_mismatch"
	ReasonAudMismatch    = "aud_mismatch"
	ReasonExpired        = "expired"
	ReasonMalformed      = "malformed"
	ReasonRevoked        = "revoked"
	ReasonRateLimited    = "rate_limited"
)

// Middleware gates routes on verified token claims. Authorization decisions
// are pure: no tenant or token state is mutated, and each decision is
// independent of any other.
type Middleware struct {
	tokens     *token.Service
	limiter    *IPLimiter
	cookieName string
	logger     zerolog.Logger
}

func NewMiddleware(tokens *token.Service, limiter *IPLimiter, cookieName string, logger zerolog.Logger) *Middleware {
	return &Middleware{
		tokens:     tokens,
		limiter:    limiter,
		cookieName: cookieName,
		logger:     logger.With().Str("component", "authz").Logger(),
	}
}

// Authenticate extracts the bearer token (or the session cookie set by the
// magic-link flow), verifies it, and attaches the identity to the context.
// Routes without a valid credential fail closed.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.limiter != nil && !m.limiter.Allow(sourceAddr(r)) {
			// Over-limit callers are denied before the token is even read.
			m.deny(w, r, http.StatusTooManyRequests, Identity{}, "", ReasonRateLimited)
			return
		}

		raw, ok := m.extractToken(r)
		if !ok {
			m.deny(w, r, http.StatusUnauthorized, Identity{}, "", ReasonMalformed)
			return
		}

		claims, err := m.tokens.Verify(raw)
		if err != nil {
			reason := ReasonMalformed
			if errors.Is(err, token.ErrExpired) {
				reason = ReasonExpired
			}
			m.deny(w, r, http.StatusUnauthorized, Identity{}, "", reason)
			return
		}

		id := Identity{
			Subject:  claims.Subject,
			Audience: claims.Audience,
			TenantID: claims.TenantID,
			Email:    claims.Email,
			Roles:    claims.Roles,
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

// RequirePlatformAdmin admits only platform-admin audience tokens carrying
// the admin role. Tenant-scoped tokens are rejected outright even when
// their role list contains "admin": role strings confer no authority
// outside their own audience.
func (m *Middleware) RequirePlatformAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFromRequest(r)
		if !ok {
			m.deny(w, r, http.StatusUnauthorized, id, "", ReasonMalformed)
			return
		}
		if !id.IsPlatformAdmin() {
			m.deny(w, r, http.StatusForbidden, id, "", ReasonAudMismatch)
			return
		}
		if !models.HasAtLeast(id.Roles, models.RoleAdmin) {
			m.deny(w, r, http.StatusForbidden, id, "", ReasonRoleMismatch)
			return
		}
		m.allow(r, id, "")
		next.ServeHTTP(w, r)
	})
}

// RequireService admits only internal-service audience tokens.
func (m *Middleware) RequireService(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFromRequest(r)
		if !ok {
			m.deny(w, r, http.StatusUnauthorized, id, "", ReasonMalformed)
			return
		}
		if !id.IsService() {
			m.deny(w, r, http.StatusForbidden, id, "", ReasonAudMismatch)
			return
		}
		m.allow(r, id, "")
		next.ServeHTTP(w, r)
	})
}

// RequireTenant admits tenant-scoped tokens whose tenant binding equals the
// tenant named by the route's path variable. The path variable is the only
// client-controlled input consulted, and only to compare against the
// token's own claim; a cross-tenant match is always denied. Additional
// audiences (service, platform admin) may be admitted for read-style routes
// via alsoAllow.
func (m *Middleware) RequireTenant(pathVar string, alsoAllow ...token.Audience) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFromRequest(r)
			if !ok {
				m.deny(w, r, http.StatusUnauthorized, id, "", ReasonMalformed)
				return
			}
			target := mux.Vars(r)[pathVar]
			if target == "" {
				m.deny(w, r, http.StatusForbidden, id, target, ReasonTenantMismatch)
				return
			}
			for _, aud := range alsoAllow {
				if id.Audience == aud && aud != token.AudienceTenant {
					m.allow(r, id, target)
					next.ServeHTTP(w, r)
					return
				}
			}
			if id.Audience != token.AudienceTenant {
				m.deny(w, r, http.StatusForbidden, id, target, ReasonAudMismatch)
				return
			}
			if id.TenantID != target {
				m.deny(w, r, http.StatusForbidden, id, target, ReasonTenantMismatch)
				return
			}
			m.allow(r, id, target)
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole ensures the caller has at least the required role tier within
// an already tenant-gated route.
func (m *Middleware) RequireRole(required models.UserRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFromRequest(r)
			if !ok || !models.HasAtLeast(id.Roles, required) {
				m.deny(w, r, http.StatusForbidden, id, id.TenantID, ReasonRoleMismatch)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (m *Middleware) extractToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	if auth != "" {
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			return "", false
		}
		return parts[1], true
	}
	if m.cookieName != "" {
		if cookie, err := r.Cookie(m.cookieName); err == nil && cookie.Value != "" {
			return cookie.Value, true
		}
	}
	return "", false
}

func (m *Middleware) allow(r *http.Request, id Identity, target string) {
	monitoring.AuthDecisions.WithLabelValues("allow", "").Inc()
	m.logger.Debug().
		Str("route", r.URL.Path).
		Str("subject", id.Subject).
		Str("audience", string(id.Audience)).
		Interface("roles", id.Roles).
		Str("target_tenant", target).
		Msg("authorization allowed")
}

// deny writes a bare status with no body; the reason lives in the audit log
// only so callers cannot probe why verification failed.
func (m *Middleware) deny(w http.ResponseWriter, r *http.Request, status int, id Identity, target, reason string) {
	monitoring.AuthDecisions.WithLabelValues("deny", reason).Inc()
	m.logger.Warn().
		Str("route", r.URL.Path).
		Str("subject", id.Subject).
		Str("audience", string(id.Audience)).
		Interface("roles", id.Roles).
		Str("target_tenant", target).
		Str("reason", reason).
		Msg("authorization denied")
	w.WriteHeader(status)
}

func sourceAddr(r *http.Request) string {
	addr := r.RemoteAddr
	if i := strings.LastIndex(addr, ":"); i > 0 {
		return addr[:i]
	}
	return addr
}
