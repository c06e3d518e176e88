package models

import "time"

type PlanTier string

const (
	TierStarter PlanTier = "starter"
	TierPro     PlanTier = "pro"
	TierStudio  PlanTier = "studio"
)

func IsValidTier(tier PlanTier) bool {
	switch tier {
	case TierStarter, TierPro, TierStudio:
		return true
	}
	return false
}

type TenantStatus string

const (
	TenantStatusPending   TenantStatus = "pending"
	TenantStatusActive    TenantStatus = "active"
	TenantStatusSuspended TenantStatus = "suspended"
)

// BrandAttributes customize the rendered clips and spreadsheets per club.
type BrandAttributes struct {
	ClubName       string `json:"club_name,omitempty"`
	PrimaryColor   string `json:"primary_color,omitempty"`
	SecondaryColor string `json:"secondary_color,omitempty"`
	LogoURL        string `json:"logo_url,omitempty"`
}

// WebhookConfig holds the automation-platform webhook wired in during
// provisioning. HookID is assigned by the registrar; Secret signs callbacks.
type WebhookConfig struct {
	CallbackURL string `json:"callback_url,omitempty"`
	HookID      string `json:"hook_id,omitempty"`
	Secret      string `json:"secret,omitempty"`
}

// Tenant rows are never deleted; a retired tenant is moved to suspended.
type Tenant struct {
	ID        string          `json:"id" db:"id"`
	Name      string          `json:"name" db:"name"`
	Tier      PlanTier        `json:"tier" db:"tier"`
	Status    TenantStatus    `json:"status" db:"status"`
	Brand     BrandAttributes `json:"brand" db:"brand"`
	Webhook   WebhookConfig   `json:"webhook" db:"webhook"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}
