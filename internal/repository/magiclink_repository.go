package repository

import (
	"database/sql"

	"github.com/clipforge/highlights-api/internal/models"
)

type MagicLinkRepository interface {
	CreateMagicLink(link models.MagicLink) (models.MagicLink, error)
	// ConsumeMagicLink atomically spends an unconsumed, unexpired link.
	// It returns sql.ErrNoRows when the link is unknown, already spent, or
	// past its expiry; a spent link can never be consumed twice.
	ConsumeMagicLink(tokenHash string) (models.MagicLink, error)
}

type magicLinkRepository struct {
	db *sql.DB
}

func NewMagicLinkRepository(db *sql.DB) MagicLinkRepository {
	return &magicLinkRepository{db: db}
}

const magicLinkColumns = `id, tenant_id, email, token_hash, expires_at, consumed_at, created_at`

func (r *magicLinkRepository) CreateMagicLink(link models.MagicLink) (models.MagicLink, error) {
	const query = `
		INSERT INTO tenant.magic_links (tenant_id, email, token_hash, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + magicLinkColumns + `;
	`
	err := r.db.QueryRow(query,
		link.TenantID,
		link.Email,
		link.TokenHash,
		link.ExpiresAt,
	).Scan(
		&link.ID,
		&link.TenantID,
		&link.Email,
		&link.TokenHash,
		&link.ExpiresAt,
		&link.ConsumedAt,
		&link.CreatedAt,
	)
	return link, err
}

func (r *magicLinkRepository) ConsumeMagicLink(tokenHash string) (models.MagicLink, error) {
	// Single UPDATE with the spent/expiry predicates in the WHERE clause:
	// concurrent presentations of the same token race on this row and
	// exactly one wins.
	const query = `
		UPDATE tenant.magic_links
		SET consumed_at = now()
		WHERE token_hash = $1 AND consumed_at IS NULL AND expires_at > now()
		RETURNING ` + magicLinkColumns + `;
	`
	var link models.MagicLink
	err := r.db.QueryRow(query, tokenHash).Scan(
		&link.ID,
		&link.TenantID,
		&link.Email,
		&link.TokenHash,
		&link.ExpiresAt,
		&link.ConsumedAt,
		&link.CreatedAt,
	)
	return link, err
}
