package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/clipforge/highlights-api/internal/provision"
)

type ProvisionHandler struct {
	orchestrator *provision.Orchestrator
	logger       zerolog.Logger
}

func NewProvisionHandler(orchestrator *provision.Orchestrator, logger zerolog.Logger) *ProvisionHandler {
	return &ProvisionHandler{
		orchestrator: orchestrator,
		logger:       logger.With().Str("component", "provision_handler").Logger(),
	}
}

type queueRequest struct {
	TenantID string `json:"tenant_id"`
}

// QueueProvisioning is the internal trigger. Repeated calls for the same
// tenant all get 200; only a run against an unknown tenant is rejected.
func (h *ProvisionHandler) QueueProvisioning(w http.ResponseWriter, r *http.Request) {
	var req queueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeValidationError(w, "invalid request body")
		return
	}
	req.TenantID = strings.TrimSpace(req.TenantID)
	if req.TenantID == "" {
		writeValidationError(w, "missing fields", "tenant_id is required")
		return
	}

	if err := h.orchestrator.Queue(r.Context(), req.TenantID); err != nil {
		if errors.Is(err, provision.ErrTenantNotFound) {
			writeError(w, http.StatusConflict, "unknown_tenant", "tenant does not exist")
			return
		}
		var uerr *provision.UpstreamError
		if errors.As(err, &uerr) {
			writeUpstreamError(w, uerr.Error())
			return
		}
		h.logger.Error().Err(err).Str("tenant_id", req.TenantID).Msg("failed to queue provisioning")
		writeError(w, http.StatusInternalServerError, "queue_failed", "failed to queue provisioning")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"tenantId": req.TenantID,
	})
}

func (h *ProvisionHandler) ProvisionStatus(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["tenantID"]
	state, err := h.orchestrator.Status(r.Context(), tenantID)
	if err != nil {
		if errors.Is(err, provision.ErrTenantNotFound) {
			writeError(w, http.StatusNotFound, "tenant_not_found", "no provisioning state for tenant")
			return
		}
		writeError(w, http.StatusInternalServerError, "load_failed", "failed to load provisioning state")
		return
	}
	writeJSON(w, http.StatusOK, state)
}
