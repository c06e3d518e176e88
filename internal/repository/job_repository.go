package repository

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/clipforge/highlights-api/internal/models"
)

type ClipJobRepository interface {
	CreateJob(job models.ClipJob) (models.ClipJob, error)
	GetJob(tenantID, jobID string) (models.ClipJob, error)
	ListJobsByTenant(tenantID string, limit, offset int) ([]models.ClipJob, error)

	// ClaimNextPending atomically moves the oldest pending job to running
	// and returns it. sql.ErrNoRows means the queue is empty. The claim
	// uses FOR UPDATE SKIP LOCKED so concurrent workers never double-claim.
	ClaimNextPending(ctx context.Context) (models.ClipJob, error)

	CompleteJob(tenantID, jobID string, manifest json.RawMessage, logs string) error
	FailJob(tenantID, jobID, errorMessage, logs string) error
}

type clipJobRepository struct {
	db *sql.DB
}

func NewClipJobRepository(db *sql.DB) ClipJobRepository {
	return &clipJobRepository{db: db}
}

const clipJobColumns = `id, tenant_id, match_video, events_file, callback_url, status, manifest, error_message, logs, created_at, updated_at, started_at, completed_at`

func (r *clipJobRepository) CreateJob(job models.ClipJob) (models.ClipJob, error) {
	const query = `
		INSERT INTO tenant.clip_jobs (tenant_id, match_video, events_file, callback_url, status)
		VALUES ($1, $2, $3, $4, 'pending')
		RETURNING ` + clipJobColumns + `;
	`
	return scanClipJob(r.db.QueryRow(query, job.TenantID, job.MatchVideo, job.EventsFile, job.CallbackURL))
}

func (r *clipJobRepository) GetJob(tenantID, jobID string) (models.ClipJob, error) {
	const query = `
		SELECT ` + clipJobColumns + `
		FROM tenant.clip_jobs
		WHERE id = $1 AND tenant_id = $2;
	`
	return scanClipJob(r.db.QueryRow(query, jobID, tenantID))
}

func (r *clipJobRepository) ListJobsByTenant(tenantID string, limit, offset int) ([]models.ClipJob, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	const query = `
		SELECT ` + clipJobColumns + `
		FROM tenant.clip_jobs
		WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3;
	`
	rows, err := r.db.Query(query, tenantID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []models.ClipJob
	for rows.Next() {
		job, err := scanClipJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (r *clipJobRepository) ClaimNextPending(ctx context.Context) (models.ClipJob, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return models.ClipJob{}, err
	}
	defer tx.Rollback()

	const claim = `
		SELECT id FROM tenant.clip_jobs
		WHERE status = 'pending'
		ORDER BY created_at
		LIMIT 1
		FOR UPDATE SKIP LOCKED;
	`
	var jobID string
	if err := tx.QueryRowContext(ctx, claim).Scan(&jobID); err != nil {
		return models.ClipJob{}, err
	}

	const mark = `
		UPDATE tenant.clip_jobs
		SET status = 'running', started_at = now(), updated_at = now()
		WHERE id = $1
		RETURNING ` + clipJobColumns + `;
	`
	job, err := scanClipJob(tx.QueryRowContext(ctx, mark, jobID))
	if err != nil {
		return models.ClipJob{}, err
	}
	if err := tx.Commit(); err != nil {
		return models.ClipJob{}, err
	}
	return job, nil
}

func (r *clipJobRepository) CompleteJob(tenantID, jobID string, manifest json.RawMessage, logs string) error {
	const query = `
		UPDATE tenant.clip_jobs
		SET status = 'succeeded', manifest = $3, logs = $4, completed_at = now(), updated_at = now()
		WHERE id = $1 AND tenant_id = $2;
	`
	return execExpectingRow(r.db, query, jobID, tenantID, []byte(manifest), logs)
}

func (r *clipJobRepository) FailJob(tenantID, jobID, errorMessage, logs string) error {
	const query = `
		UPDATE tenant.clip_jobs
		SET status = 'failed', error_message = $3, logs = $4, completed_at = now(), updated_at = now()
		WHERE id = $1 AND tenant_id = $2;
	`
	return execExpectingRow(r.db, query, jobID, tenantID, errorMessage, logs)
}

func execExpectingRow(db *sql.DB, query string, args ...interface{}) error {
	res, err := db.Exec(query, args...)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func scanClipJob(row rowScanner) (models.ClipJob, error) {
	var (
		job          models.ClipJob
		callbackURL  sql.NullString
		manifest     []byte
		errorMessage sql.NullString
		logs         sql.NullString
	)
	err := row.Scan(
		&job.ID,
		&job.TenantID,
		&job.MatchVideo,
		&job.EventsFile,
		&callbackURL,
		&job.Status,
		&manifest,
		&errorMessage,
		&logs,
		&job.CreatedAt,
		&job.UpdatedAt,
		&job.StartedAt,
		&job.CompletedAt,
	)
	if err != nil {
		return models.ClipJob{}, err
	}
	job.CallbackURL = callbackURL.String
	if len(manifest) > 0 {
		job.Manifest = json.RawMessage(manifest)
	}
	if errorMessage.Valid {
		job.ErrorMessage = &errorMessage.String
	}
	if logs.Valid {
		job.Logs = &logs.String
	}
	return job, nil
}
