package handlers

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipforge/highlights-api/internal/models"
	"github.com/clipforge/highlights-api/internal/notification"
)

type fakeJobRepo struct {
	mu   sync.Mutex
	seq  int
	jobs map[string]models.ClipJob
}

func newFakeJobRepo() *fakeJobRepo {
	return &fakeJobRepo{jobs: make(map[string]models.ClipJob)}
}

func jobKey(tenantID, jobID string) string { return tenantID + "/" + jobID }

func (f *fakeJobRepo) CreateJob(job models.ClipJob) (models.ClipJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	job.ID = "job-" + strconv.Itoa(f.seq)
	f.jobs[jobKey(job.TenantID, job.ID)] = job
	return job, nil
}

func (f *fakeJobRepo) GetJob(tenantID, jobID string) (models.ClipJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[jobKey(tenantID, jobID)]
	if !ok {
		return models.ClipJob{}, sql.ErrNoRows
	}
	return job, nil
}

func (f *fakeJobRepo) ListJobsByTenant(tenantID string, limit, offset int) ([]models.ClipJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.ClipJob
	for _, job := range f.jobs {
		if job.TenantID == tenantID {
			out = append(out, job)
		}
	}
	return out, nil
}

func (f *fakeJobRepo) ClaimNextPending(_ context.Context) (models.ClipJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for key, job := range f.jobs {
		if job.Status == models.ClipJobStatusPending {
			job.Status = models.ClipJobStatusRunning
			f.jobs[key] = job
			return job, nil
		}
	}
	return models.ClipJob{}, sql.ErrNoRows
}

func (f *fakeJobRepo) CompleteJob(tenantID, jobID string, manifest json.RawMessage, logs string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[jobKey(tenantID, jobID)]
	if !ok {
		return sql.ErrNoRows
	}
	job.Status = models.ClipJobStatusSucceeded
	job.Manifest = manifest
	f.jobs[jobKey(tenantID, jobID)] = job
	return nil
}

func (f *fakeJobRepo) FailJob(tenantID, jobID, errorMessage, logs string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[jobKey(tenantID, jobID)]
	if !ok {
		return sql.ErrNoRows
	}
	job.Status = models.ClipJobStatusFailed
	job.ErrorMessage = &errorMessage
	f.jobs[jobKey(tenantID, jobID)] = job
	return nil
}

// recordingNotifications stubs the notification service; only the clip job
// hooks record anything.
type recordingNotifications struct {
	mu        sync.Mutex
	succeeded []string
	failed    []string
}

func (n *recordingNotifications) Publish(_ context.Context, _ notification.Event) (models.Notification, error) {
	return models.Notification{}, nil
}
func (n *recordingNotifications) ProvisionCompleted(_ context.Context, _ string)            {}
func (n *recordingNotifications) ProvisionFailed(_ context.Context, _, _, _ string)         {}
func (n *recordingNotifications) CheckpointCorrupted(_ context.Context, _, _ string)        {}
func (n *recordingNotifications) ClipJobSucceeded(_ context.Context, tenantID, jobID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.succeeded = append(n.succeeded, jobKey(tenantID, jobID))
}
func (n *recordingNotifications) ClipJobFailed(_ context.Context, tenantID, jobID, _ string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failed = append(n.failed, jobKey(tenantID, jobID))
}
func (n *recordingNotifications) ListRecent(_ context.Context, _ string, _ int) ([]models.Notification, error) {
	return nil, nil
}
func (n *recordingNotifications) MarkRead(_ context.Context, _, _ string) (models.Notification, error) {
	return models.Notification{}, nil
}

func jobTestRouter(h *JobHandler) *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/tenants/{tenantID}/jobs", h.CreateJob).Methods(http.MethodPost)
	router.HandleFunc("/tenants/{tenantID}/jobs", h.ListJobs).Methods(http.MethodGet)
	router.HandleFunc("/tenants/{tenantID}/jobs/{jobID}", h.GetJob).Methods(http.MethodGet)
	router.HandleFunc("/internal/jobs/{tenantID}/{jobID}/complete", h.CompleteJob).Methods(http.MethodPost)
	return router
}

func TestCreateJobValidation(t *testing.T) {
	repo := newFakeJobRepo()
	h := NewJobHandler(repo, nil, zerolog.Nop())
	router := jobTestRouter(h)

	body := `{"match_video": "", "events_file": "s3://bucket/events.json"}`
	req := httptest.NewRequest(http.MethodPost, "/tenants/t1/jobs", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var resp struct {
		Success bool `json:"success"`
		Error   struct {
			Code   string   `json:"code"`
			Issues []string `json:"issues"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "validation_failed", resp.Error.Code)
	assert.Contains(t, resp.Error.Issues, "match_video is required")
}

func TestCreateAndGetJob(t *testing.T) {
	repo := newFakeJobRepo()
	h := NewJobHandler(repo, nil, zerolog.Nop())
	router := jobTestRouter(h)

	body := `{"match_video": "s3://bucket/match.mp4", "events_file": "s3://bucket/events.json"}`
	req := httptest.NewRequest(http.MethodPost, "/tenants/t1/jobs", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created models.ClipJob
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "t1", created.TenantID)
	assert.Equal(t, models.ClipJobStatusPending, created.Status)

	req = httptest.NewRequest(http.MethodGet, "/tenants/t1/jobs/"+created.ID, nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/tenants/t1/jobs/nope", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCompleteJobWithManifest(t *testing.T) {
	repo := newFakeJobRepo()
	notifier := &recordingNotifications{}
	h := NewJobHandler(repo, notifier, zerolog.Nop())
	router := jobTestRouter(h)

	job, err := repo.CreateJob(models.ClipJob{TenantID: "t1", MatchVideo: "m", EventsFile: "e", Status: models.ClipJobStatusRunning})
	require.NoError(t, err)

	body := `{"manifest": {"clips": [{"start": 10, "end": 25}]}, "logs": "ok"}`
	req := httptest.NewRequest(http.MethodPost, "/internal/jobs/t1/"+job.ID+"/complete", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	stored, err := repo.GetJob("t1", job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ClipJobStatusSucceeded, stored.Status)
	assert.JSONEq(t, `{"clips": [{"start": 10, "end": 25}]}`, string(stored.Manifest))
	assert.Equal(t, []string{jobKey("t1", job.ID)}, notifier.succeeded)
}

func TestCompleteJobWithError(t *testing.T) {
	repo := newFakeJobRepo()
	notifier := &recordingNotifications{}
	h := NewJobHandler(repo, notifier, zerolog.Nop())
	router := jobTestRouter(h)

	job, err := repo.CreateJob(models.ClipJob{TenantID: "t1", MatchVideo: "m", EventsFile: "e", Status: models.ClipJobStatusRunning})
	require.NoError(t, err)

	body := `{"error": "ffmpeg exited 1", "logs": "stderr dump"}`
	req := httptest.NewRequest(http.MethodPost, "/internal/jobs/t1/"+job.ID+"/complete", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	stored, err := repo.GetJob("t1", job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ClipJobStatusFailed, stored.Status)
	require.NotNil(t, stored.ErrorMessage)
	assert.Equal(t, "ffmpeg exited 1", *stored.ErrorMessage)
	assert.Equal(t, []string{jobKey("t1", job.ID)}, notifier.failed)
}

func TestCompleteJobRequiresManifestOrError(t *testing.T) {
	repo := newFakeJobRepo()
	h := NewJobHandler(repo, nil, zerolog.Nop())
	router := jobTestRouter(h)

	job, err := repo.CreateJob(models.ClipJob{TenantID: "t1", MatchVideo: "m", EventsFile: "e", Status: models.ClipJobStatusRunning})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/internal/jobs/t1/"+job.ID+"/complete", bytes.NewBufferString(`{"logs": "nothing"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCompleteJobUnknownJob(t *testing.T) {
	repo := newFakeJobRepo()
	h := NewJobHandler(repo, nil, zerolog.Nop())
	router := jobTestRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/internal/jobs/t1/ghost/complete", bytes.NewBufferString(`{"manifest": {}}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
