package handlers

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/clipforge/highlights-api/internal/models"
	"github.com/clipforge/highlights-api/internal/notification"
	"github.com/clipforge/highlights-api/internal/repository"
)

type JobHandler struct {
	jobRepo  repository.ClipJobRepository
	notifier notification.Service
	logger   zerolog.Logger
}

func NewJobHandler(jobRepo repository.ClipJobRepository, notifier notification.Service, logger zerolog.Logger) *JobHandler {
	return &JobHandler{
		jobRepo:  jobRepo,
		notifier: notifier,
		logger:   logger.With().Str("component", "job_handler").Logger(),
	}
}

type createJobRequest struct {
	MatchVideo  string `json:"match_video"`
	EventsFile  string `json:"events_file"`
	CallbackURL string `json:"callback_url"`
}

func (h *JobHandler) CreateJob(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["tenantID"]

	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeValidationError(w, "invalid request body")
		return
	}
	var issues []string
	if strings.TrimSpace(req.MatchVideo) == "" {
		issues = append(issues, "match_video is required")
	}
	if strings.TrimSpace(req.EventsFile) == "" {
		issues = append(issues, "events_file is required")
	}
	if len(issues) > 0 {
		writeValidationError(w, "invalid job", issues...)
		return
	}

	job, err := h.jobRepo.CreateJob(models.ClipJob{
		TenantID:    tenantID,
		MatchVideo:  strings.TrimSpace(req.MatchVideo),
		EventsFile:  strings.TrimSpace(req.EventsFile),
		CallbackURL: strings.TrimSpace(req.CallbackURL),
		Status:      models.ClipJobStatusPending,
	})
	if err != nil {
		h.logger.Error().Err(err).Str("tenant_id", tenantID).Msg("failed to create clip job")
		writeError(w, http.StatusInternalServerError, "create_failed", "failed to create job")
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

func (h *JobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	job, err := h.jobRepo.GetJob(vars["tenantID"], vars["jobID"])
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "job_not_found", "job not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "load_failed", "failed to load job")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (h *JobHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["tenantID"]
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	jobs, err := h.jobRepo.ListJobsByTenant(tenantID, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "load_failed", "failed to list jobs")
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

type completeJobRequest struct {
	Manifest json.RawMessage `json:"manifest"`
	Logs     string          `json:"logs"`
	Error    string          `json:"error"`
}

// CompleteJob is the engine callback. Only internal-service tokens reach
// it; the engine reports either a manifest or an error, never both.
func (h *JobHandler) CompleteJob(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	tenantID, jobID := vars["tenantID"], vars["jobID"]

	var req completeJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeValidationError(w, "invalid request body")
		return
	}

	if req.Error != "" {
		if err := h.jobRepo.FailJob(tenantID, jobID, req.Error, req.Logs); err != nil {
			h.failComplete(w, err, tenantID, jobID)
			return
		}
		if h.notifier != nil {
			h.notifier.ClipJobFailed(r.Context(), tenantID, jobID, req.Error)
		}
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
		return
	}

	if len(req.Manifest) == 0 {
		writeValidationError(w, "invalid completion", "manifest or error is required")
		return
	}
	if err := h.jobRepo.CompleteJob(tenantID, jobID, req.Manifest, req.Logs); err != nil {
		h.failComplete(w, err, tenantID, jobID)
		return
	}
	if h.notifier != nil {
		h.notifier.ClipJobSucceeded(r.Context(), tenantID, jobID)
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *JobHandler) failComplete(w http.ResponseWriter, err error, tenantID, jobID string) {
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "job_not_found", "job not found")
		return
	}
	h.logger.Error().Err(err).Str("tenant_id", tenantID).Str("job_id", jobID).Msg("failed to settle clip job")
	writeError(w, http.StatusInternalServerError, "update_failed", "failed to update job")
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}
