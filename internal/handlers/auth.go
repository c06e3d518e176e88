package handlers

import (
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/clipforge/highlights-api/internal/config"
	"github.com/clipforge/highlights-api/internal/models"
	"github.com/clipforge/highlights-api/internal/notification"
	"github.com/clipforge/highlights-api/internal/repository"
	"github.com/clipforge/highlights-api/internal/token"
)

const magicLinkTTL = 15 * time.Minute

type AuthHandler struct {
	userRepo      repository.UserRepository
	tenantRepo    repository.TenantRepository
	magicLinkRepo repository.MagicLinkRepository
	tokens        *token.Service
	mailer        notification.MagicLinkMailer
	magicURLTmpl  string
	cookieName    string
	cookieSecure  bool
	logger        zerolog.Logger
}

func NewAuthHandler(
	userRepo repository.UserRepository,
	tenantRepo repository.TenantRepository,
	magicLinkRepo repository.MagicLinkRepository,
	tokens *token.Service,
	mailer notification.MagicLinkMailer,
	cfg *config.Config,
	logger zerolog.Logger,
) *AuthHandler {
	return &AuthHandler{
		userRepo:      userRepo,
		tenantRepo:    tenantRepo,
		magicLinkRepo: magicLinkRepo,
		tokens:        tokens,
		mailer:        mailer,
		magicURLTmpl:  cfg.Email.MagicURLTemplate,
		cookieName:    cfg.Session.CookieName,
		cookieSecure:  cfg.Session.CookieSecure,
		logger:        logger.With().Str("component", "auth_handler").Logger(),
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeValidationError(w, "invalid request body")
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	var issues []string
	if req.Email == "" {
		issues = append(issues, "email is required")
	}
	if req.Password == "" {
		issues = append(issues, "password is required")
	}
	if len(issues) > 0 {
		writeValidationError(w, "missing credentials", issues...)
		return
	}

	user, err := h.userRepo.AuthenticateUser(req.Email, req.Password)
	if err != nil {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	tokenString, err := h.issueForUser(user)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", user.ID).Msg("failed to issue token")
		writeError(w, http.StatusInternalServerError, "token_issue_failed", "failed to generate token")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"token": tokenString})
}

type magicStartRequest struct {
	TenantID string `json:"tenant_id"`
	Email    string `json:"email"`
}

// MagicStart always acknowledges with 202 regardless of whether the email
// maps to a user, so the endpoint cannot be used to probe membership.
func (h *AuthHandler) MagicStart(w http.ResponseWriter, r *http.Request) {
	var req magicStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeValidationError(w, "invalid request body")
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	req.TenantID = strings.TrimSpace(req.TenantID)
	if req.Email == "" || req.TenantID == "" {
		writeValidationError(w, "missing fields", "tenant_id and email are required")
		return
	}

	// Work happens before the response, but the outcome never changes it.
	if err := h.startMagicLink(req.TenantID, req.Email); err != nil {
		h.logger.Warn().Err(err).Str("tenant_id", req.TenantID).Msg("magic link not sent")
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (h *AuthHandler) startMagicLink(tenantID, email string) error {
	user, err := h.userRepo.GetUserByEmailAndTenant(email, tenantID)
	if err != nil {
		return err
	}
	tenant, err := h.tenantRepo.GetTenantByID(tenantID)
	if err != nil {
		return err
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return err
	}
	plain := hex.EncodeToString(raw)
	digest := sha256.Sum256([]byte(plain))

	_, err = h.magicLinkRepo.CreateMagicLink(models.MagicLink{
		TenantID:  tenantID,
		Email:     user.Email,
		TokenHash: hex.EncodeToString(digest[:]),
		ExpiresAt: time.Now().Add(magicLinkTTL),
	})
	if err != nil {
		return err
	}

	linkURL := fmt.Sprintf(h.magicURLTmpl, plain)
	if h.mailer == nil {
		h.logger.Info().Str("tenant_id", tenantID).Msg("no mailer configured, magic link not delivered")
		return nil
	}
	return h.mailer.SendMagicLink(user.Email, tenant.Name, linkURL)
}

// MagicVerify consumes a link exactly once. Unknown, expired, and already
// consumed tokens are indistinguishable to the caller.
func (h *AuthHandler) MagicVerify(w http.ResponseWriter, r *http.Request) {
	plain := strings.TrimSpace(r.URL.Query().Get("token"))
	if plain == "" {
		writeValidationError(w, "missing fields", "token query parameter is required")
		return
	}

	digest := sha256.Sum256([]byte(plain))
	link, err := h.magicLinkRepo.ConsumeMagicLink(hex.EncodeToString(digest[:]))
	if err != nil {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	user, err := h.userRepo.GetUserByEmailAndTenant(link.Email, link.TenantID)
	if err != nil {
		if err == sql.ErrNoRows {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeError(w, http.StatusInternalServerError, "lookup_failed", "failed to load user")
		return
	}

	tokenString, err := h.issueForUser(user)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", user.ID).Msg("failed to issue token")
		writeError(w, http.StatusInternalServerError, "token_issue_failed", "failed to generate token")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.cookieName,
		Value:    tokenString,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"tenantId": link.TenantID,
	})
}

func (h *AuthHandler) issueForUser(user models.User) (string, error) {
	claims := token.Claims{
		Subject: user.ID,
		Email:   user.Email,
		Roles:   user.Roles,
	}
	if models.HasAtLeast(user.Roles, models.RoleAdmin) {
		return h.tokens.Issue(token.ClassPlatformAdmin, claims, 0)
	}
	claims.TenantID = user.TenantID
	class := token.ClassTenantMember
	if models.HasAtLeast(user.Roles, models.RoleTenantAdmin) {
		class = token.ClassTenantAdmin
	}
	return h.tokens.Issue(class, claims, 0)
}
