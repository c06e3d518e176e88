package repository

import (
	"database/sql"
	"encoding/json"

	"github.com/clipforge/highlights-api/internal/models"
	"github.com/clipforge/highlights-api/internal/utils"
)

type TenantRepository interface {
	CreateTenant(name string, tier models.PlanTier, brand models.BrandAttributes) (models.Tenant, error)
	GetTenantByID(id string) (models.Tenant, error)
	ListTenants() ([]models.Tenant, error)
	UpdateStatus(id string, status models.TenantStatus) (models.Tenant, error)
	UpdateBrand(id string, brand models.BrandAttributes) (models.Tenant, error)
	UpdateWebhook(id string, webhook models.WebhookConfig) (models.Tenant, error)
}

type tenantRepository struct {
	db *sql.DB
}

func NewTenantRepository(db *sql.DB) TenantRepository {
	return &tenantRepository{db: db}
}

const tenantColumns = `id, name, tier, status, brand, webhook, created_at, updated_at`

func (r *tenantRepository) CreateTenant(name string, tier models.PlanTier, brand models.BrandAttributes) (models.Tenant, error) {
	const query = `
		INSERT INTO tenant.tenants (name, tier, status, brand)
		VALUES ($1, $2, 'pending', $3)
		RETURNING ` + tenantColumns + `;
	`
	brandJSON, err := json.Marshal(brand)
	if err != nil {
		return models.Tenant{}, err
	}
	return scanTenant(r.db.QueryRow(query, name, tier, brandJSON))
}

func (r *tenantRepository) GetTenantByID(id string) (models.Tenant, error) {
	const query = `
		SELECT ` + tenantColumns + `
		FROM tenant.tenants
		WHERE id = $1;
	`
	return scanTenant(r.db.QueryRow(query, id))
}

func (r *tenantRepository) ListTenants() ([]models.Tenant, error) {
	const query = `
		SELECT ` + tenantColumns + `
		FROM tenant.tenants
		ORDER BY created_at DESC;
	`
	rows, err := r.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tenants []models.Tenant
	for rows.Next() {
		tenant, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		tenants = append(tenants, tenant)
	}
	return tenants, rows.Err()
}

func (r *tenantRepository) UpdateStatus(id string, status models.TenantStatus) (models.Tenant, error) {
	const query = `
		UPDATE tenant.tenants
		SET status = $2, updated_at = now()
		WHERE id = $1
		RETURNING ` + tenantColumns + `;
	`
	return scanTenant(r.db.QueryRow(query, id, status))
}

func (r *tenantRepository) UpdateBrand(id string, brand models.BrandAttributes) (models.Tenant, error) {
	const query = `
		UPDATE tenant.tenants
		SET brand = $2, updated_at = now()
		WHERE id = $1
		RETURNING ` + tenantColumns + `;
	`
	brandJSON, err := json.Marshal(brand)
	if err != nil {
		return models.Tenant{}, err
	}
	return scanTenant(r.db.QueryRow(query, id, brandJSON))
}

func (r *tenantRepository) UpdateWebhook(id string, webhook models.WebhookConfig) (models.Tenant, error) {
	const query = `
		UPDATE tenant.tenants
		SET webhook = $2, updated_at = now()
		WHERE id = $1
		RETURNING ` + tenantColumns + `;
	`
	// Webhook secrets are encrypted at rest when a key is configured.
	if webhook.Secret != "" && utils.EncryptionEnabled() {
		encrypted, err := utils.EncryptSecret(webhook.Secret)
		if err != nil {
			return models.Tenant{}, err
		}
		webhook.Secret = encrypted
	}
	webhookJSON, err := json.Marshal(webhook)
	if err != nil {
		return models.Tenant{}, err
	}
	return scanTenant(r.db.QueryRow(query, id, webhookJSON))
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTenant(row rowScanner) (models.Tenant, error) {
	var (
		tenant      models.Tenant
		brandJSON   []byte
		webhookJSON []byte
	)
	err := row.Scan(
		&tenant.ID,
		&tenant.Name,
		&tenant.Tier,
		&tenant.Status,
		&brandJSON,
		&webhookJSON,
		&tenant.CreatedAt,
		&tenant.UpdatedAt,
	)
	if err != nil {
		return models.Tenant{}, err
	}
	if len(brandJSON) > 0 {
		if err := json.Unmarshal(brandJSON, &tenant.Brand); err != nil {
			return models.Tenant{}, err
		}
	}
	if len(webhookJSON) > 0 {
		if err := json.Unmarshal(webhookJSON, &tenant.Webhook); err != nil {
			return models.Tenant{}, err
		}
		if tenant.Webhook.Secret != "" && utils.EncryptionEnabled() {
			plain, err := utils.DecryptSecret(tenant.Webhook.Secret)
			if err == nil {
				tenant.Webhook.Secret = plain
			}
		}
	}
	return tenant, nil
}
