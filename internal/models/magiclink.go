package models

import "time"

// MagicLink represents a pending passwordless login token. Only the sha256
// hash of the token is stored; the raw token leaves the system in the email.
type MagicLink struct {
	ID         string     `json:"id"`
	TenantID   string     `json:"tenant_id"`
	Email      string     `json:"email"`
	TokenHash  string     `json:"-"`
	ExpiresAt  time.Time  `json:"expires_at"`
	ConsumedAt *time.Time `json:"consumed_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// IsExpired determines whether the link has expired.
func (m MagicLink) IsExpired(now time.Time) bool {
	return now.After(m.ExpiresAt)
}

// IsConsumed indicates whether the link has already been exchanged for a
// session. A consumed link can never be exchanged again.
func (m MagicLink) IsConsumed() bool {
	return m.ConsumedAt != nil
}
