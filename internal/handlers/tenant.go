package handlers

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/clipforge/highlights-api/internal/authz"
	"github.com/clipforge/highlights-api/internal/models"
	"github.com/clipforge/highlights-api/internal/provision"
	"github.com/clipforge/highlights-api/internal/repository"
)

type TenantHandler struct {
	tenantRepo   repository.TenantRepository
	userRepo     repository.UserRepository
	orchestrator *provision.Orchestrator
	logger       zerolog.Logger
}

func NewTenantHandler(
	tenantRepo repository.TenantRepository,
	userRepo repository.UserRepository,
	orchestrator *provision.Orchestrator,
	logger zerolog.Logger,
) *TenantHandler {
	return &TenantHandler{
		tenantRepo:   tenantRepo,
		userRepo:     userRepo,
		orchestrator: orchestrator,
		logger:       logger.With().Str("component", "tenant_handler").Logger(),
	}
}

type createTenantRequest struct {
	Name        string                 `json:"name"`
	Tier        string                 `json:"tier"`
	Brand       models.BrandAttributes `json:"brand"`
	CallbackURL string                 `json:"callback_url"`
}

// CreateTenant registers a tenant and kicks off provisioning. Starter-tier
// tenants are provisioned synchronously so the response reflects the final
// state; larger tiers go through the async queue.
func (h *TenantHandler) CreateTenant(w http.ResponseWriter, r *http.Request) {
	var req createTenantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeValidationError(w, "invalid request body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	tier := models.PlanTier(strings.ToLower(strings.TrimSpace(req.Tier)))
	if tier == "" {
		tier = models.TierStarter
	}

	var issues []string
	if req.Name == "" {
		issues = append(issues, "name is required")
	}
	if !models.IsValidTier(tier) {
		issues = append(issues, "tier must be one of starter, pro, studio")
	}
	if len(issues) > 0 {
		writeValidationError(w, "invalid tenant", issues...)
		return
	}

	tenant, err := h.tenantRepo.CreateTenant(req.Name, tier, req.Brand)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate") {
			writeError(w, http.StatusConflict, "tenant_exists", "tenant name already exists")
			return
		}
		writeError(w, http.StatusInternalServerError, "create_failed", "failed to create tenant")
		return
	}

	if callback := strings.TrimSpace(req.CallbackURL); callback != "" {
		tenant, err = h.tenantRepo.UpdateWebhook(tenant.ID, models.WebhookConfig{CallbackURL: callback})
		if err != nil {
			writeError(w, http.StatusInternalServerError, "create_failed", "failed to store callback url")
			return
		}
	}

	if tier == models.TierStarter {
		state, err := h.orchestrator.Run(r.Context(), tenant.ID)
		if err != nil {
			var uerr *provision.UpstreamError
			if errors.As(err, &uerr) {
				writeUpstreamError(w, uerr.Error())
				return
			}
			h.logger.Error().Err(err).Str("tenant_id", tenant.ID).Msg("synchronous provisioning failed")
			writeError(w, http.StatusInternalServerError, "provision_failed", "provisioning failed")
			return
		}
		tenant, _ = h.tenantRepo.GetTenantByID(tenant.ID)
		writeJSON(w, http.StatusCreated, map[string]interface{}{
			"tenant":    tenant,
			"provision": state,
		})
		return
	}

	if err := h.orchestrator.Queue(r.Context(), tenant.ID); err != nil {
		h.logger.Error().Err(err).Str("tenant_id", tenant.ID).Msg("failed to queue provisioning")
		writeError(w, http.StatusInternalServerError, "queue_failed", "failed to queue provisioning")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"tenant": tenant})
}

func (h *TenantHandler) GetTenant(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["tenantID"]
	tenant, err := h.tenantRepo.GetTenantByID(tenantID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "tenant_not_found", "tenant not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "load_failed", "failed to load tenant")
		return
	}
	writeJSON(w, http.StatusOK, tenant)
}

func (h *TenantHandler) ListTenants(w http.ResponseWriter, r *http.Request) {
	tenants, err := h.tenantRepo.ListTenants()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "load_failed", "failed to list tenants")
		return
	}
	writeJSON(w, http.StatusOK, tenants)
}

// Overview is the tenant-facing summary: the tenant record plus its user
// roster. Reachable only with a matching tenant-scope token.
func (h *TenantHandler) Overview(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["tenantID"]
	tenant, err := h.tenantRepo.GetTenantByID(tenantID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "tenant_not_found", "tenant not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "load_failed", "failed to load tenant")
		return
	}
	users, err := h.userRepo.ListUsersByTenant(tenantID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "load_failed", "failed to list users")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"tenant": tenant,
		"users":  users,
	})
}

// UpdateBrand replaces the tenant's brand attributes; clips and
// spreadsheets rendered after the change pick up the new branding.
func (h *TenantHandler) UpdateBrand(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["tenantID"]

	var brand models.BrandAttributes
	if err := json.NewDecoder(r.Body).Decode(&brand); err != nil {
		writeValidationError(w, "invalid request body")
		return
	}

	tenant, err := h.tenantRepo.UpdateBrand(tenantID, brand)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "tenant_not_found", "tenant not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "update_failed", "failed to update brand")
		return
	}
	writeJSON(w, http.StatusOK, tenant)
}

func (h *TenantHandler) SuspendTenant(w http.ResponseWriter, r *http.Request) {
	h.updateStatus(w, r, models.TenantStatusSuspended)
}

func (h *TenantHandler) ReactivateTenant(w http.ResponseWriter, r *http.Request) {
	h.updateStatus(w, r, models.TenantStatusActive)
}

func (h *TenantHandler) updateStatus(w http.ResponseWriter, r *http.Request, status models.TenantStatus) {
	tenantID := mux.Vars(r)["tenantID"]
	tenant, err := h.tenantRepo.UpdateStatus(tenantID, status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "tenant_not_found", "tenant not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "update_failed", "failed to update tenant status")
		return
	}
	writeJSON(w, http.StatusOK, tenant)
}

type addUserRequest struct {
	Email     string   `json:"email"`
	Password  string   `json:"password"`
	FirstName string   `json:"first_name"`
	LastName  string   `json:"last_name"`
	Roles     []string `json:"roles"`
}

func (h *TenantHandler) AddUser(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["tenantID"]
	if _, err := h.tenantRepo.GetTenantByID(tenantID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "tenant_not_found", "tenant not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "load_failed", "failed to load tenant")
		return
	}

	var req addUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeValidationError(w, "invalid request body")
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		writeValidationError(w, "missing fields", "email and password are required")
		return
	}

	roles := make([]models.UserRole, 0, len(req.Roles))
	for _, roleStr := range req.Roles {
		roles = append(roles, models.UserRole(roleStr))
	}
	roles = models.EnsureDefaultRole(models.NormalizeRoles(roles))
	if !models.IsValidRoleList(roles) {
		writeValidationError(w, "invalid roles")
		return
	}

	// Only a platform admin may hand out the platform operator role, and it
	// never rides on a tenant-scoped account anyway.
	id, _ := authz.IdentityFromRequest(r)
	if models.HasAtLeast(roles, models.RoleAdmin) && !id.IsPlatformAdmin() {
		w.WriteHeader(http.StatusForbidden)
		return
	}

	user, err := h.userRepo.CreateUser(tenantID, req.Email, req.Password, req.FirstName, req.LastName, roles)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate") {
			writeError(w, http.StatusConflict, "user_exists", "user already exists")
			return
		}
		writeError(w, http.StatusInternalServerError, "create_failed", "failed to create user")
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (h *TenantHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["tenantID"]
	users, err := h.userRepo.ListUsersByTenant(tenantID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "load_failed", "failed to list users")
		return
	}
	writeJSON(w, http.StatusOK, users)
}
