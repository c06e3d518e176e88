package handlers

import (
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/clipforge/highlights-api/internal/authz"
	"github.com/clipforge/highlights-api/internal/notification"
)

type NotificationHandler struct {
	service notification.Service
	logger  zerolog.Logger
}

func NewNotificationHandler(service notification.Service, logger zerolog.Logger) *NotificationHandler {
	return &NotificationHandler{
		service: service,
		logger:  logger.With().Str("handler", "notification").Logger(),
	}
}

func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := authz.TenantIDFromRequest(r)
	if !ok {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	limit := queryInt(r, "limit", 25)

	notifications, err := h.service.ListRecent(r.Context(), tenantID, limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list notifications")
		writeError(w, http.StatusInternalServerError, "load_failed", "failed to list notifications")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"notifications": notifications,
	})
}

func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := authz.TenantIDFromRequest(r)
	if !ok {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	notifID := strings.TrimSpace(mux.Vars(r)["notificationID"])
	if notifID == "" {
		writeValidationError(w, "missing fields", "notification id is required")
		return
	}

	notif, err := h.service.MarkRead(r.Context(), tenantID, notifID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "notification_not_found", "notification not found")
			return
		}
		h.logger.Error().Err(err).Str("notification_id", notifID).Msg("failed to mark notification as read")
		writeError(w, http.StatusInternalServerError, "update_failed", "failed to update notification")
		return
	}

	writeJSON(w, http.StatusOK, notif)
}
