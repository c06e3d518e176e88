package repository

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/clipforge/highlights-api/internal/models"
)

// ProvisionRepository persists per-tenant provisioning state. Rows are
// written only by the owning tenant's orchestrator and read by status
// queries; they are kept forever for audit.
type ProvisionRepository interface {
	GetState(ctx context.Context, tenantID string) (models.ProvisionState, error)
	CreateState(ctx context.Context, tenantID string) (models.ProvisionState, error)
	UpdateStatus(ctx context.Context, tenantID string, status models.ProvisionStatus, currentStep, lastError *string) error
	SaveCheckpoint(ctx context.Context, tenantID, step string, data json.RawMessage) error
}

type provisionRepository struct {
	db *sql.DB
}

func NewProvisionRepository(db *sql.DB) ProvisionRepository {
	return &provisionRepository{db: db}
}

const provisionColumns = `tenant_id, status, current_step, checkpoints, last_error, created_at, updated_at`

func (r *provisionRepository) GetState(ctx context.Context, tenantID string) (models.ProvisionState, error) {
	const query = `
		SELECT ` + provisionColumns + `
		FROM tenant.provision_states
		WHERE tenant_id = $1;
	`
	return scanProvisionState(r.db.QueryRowContext(ctx, query, tenantID))
}

func (r *provisionRepository) CreateState(ctx context.Context, tenantID string) (models.ProvisionState, error) {
	// ON CONFLICT keeps creation idempotent under concurrent first requests.
	const query = `
		INSERT INTO tenant.provision_states (tenant_id, status, checkpoints)
		VALUES ($1, 'pending', '{}'::jsonb)
		ON CONFLICT (tenant_id) DO UPDATE SET tenant_id = EXCLUDED.tenant_id
		RETURNING ` + provisionColumns + `;
	`
	return scanProvisionState(r.db.QueryRowContext(ctx, query, tenantID))
}

func (r *provisionRepository) UpdateStatus(ctx context.Context, tenantID string, status models.ProvisionStatus, currentStep, lastError *string) error {
	const query = `
		UPDATE tenant.provision_states
		SET status = $2, current_step = $3, last_error = $4, updated_at = now()
		WHERE tenant_id = $1;
	`
	res, err := r.db.ExecContext(ctx, query, tenantID, status, currentStep, lastError)
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

func (r *provisionRepository) SaveCheckpoint(ctx context.Context, tenantID, step string, data json.RawMessage) error {
	if len(data) == 0 {
		data = json.RawMessage(`{}`)
	}
	const query = `
		UPDATE tenant.provision_states
		SET checkpoints = checkpoints || jsonb_build_object($2::text, $3::jsonb), updated_at = now()
		WHERE tenant_id = $1;
	`
	res, err := r.db.ExecContext(ctx, query, tenantID, step, []byte(data))
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

func scanProvisionState(row rowScanner) (models.ProvisionState, error) {
	var (
		state       models.ProvisionState
		currentStep sql.NullString
		lastError   sql.NullString
		checkpoints []byte
	)
	err := row.Scan(
		&state.TenantID,
		&state.Status,
		&currentStep,
		&checkpoints,
		&lastError,
		&state.CreatedAt,
		&state.UpdatedAt,
	)
	if err != nil {
		return models.ProvisionState{}, err
	}
	if currentStep.Valid {
		state.CurrentStep = &currentStep.String
	}
	if lastError.Valid {
		state.LastError = &lastError.String
	}
	state.Checkpoints = make(map[string]json.RawMessage)
	if len(checkpoints) > 0 {
		if err := json.Unmarshal(checkpoints, &state.Checkpoints); err != nil {
			return models.ProvisionState{}, err
		}
	}
	return state, nil
}
