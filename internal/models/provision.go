package models

import (
	"encoding/json"
	"time"
)

type ProvisionStatus string

const (
	ProvisionStatusPending    ProvisionStatus = "pending"
	ProvisionStatusProcessing ProvisionStatus = "processing"
	ProvisionStatusCompleted  ProvisionStatus = "completed"
	ProvisionStatusFailed     ProvisionStatus = "failed"
)

// ProvisionState is the durable checkpoint record for one tenant's setup
// run. It is created on the first provisioning request and retained
// indefinitely for audit and status queries. Writes go through the tenant's
// orchestrator only.
type ProvisionState struct {
	TenantID    string                     `json:"tenant_id" db:"tenant_id"`
	Status      ProvisionStatus            `json:"status" db:"status"`
	CurrentStep *string                    `json:"current_step" db:"current_step"`
	Checkpoints map[string]json.RawMessage `json:"checkpoints" db:"checkpoints"`
	LastError   *string                    `json:"last_error,omitempty" db:"last_error"`
	CreatedAt   time.Time                  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time                  `json:"updated_at" db:"updated_at"`
}

// HasCheckpoint reports whether a step's external side effect is already on
// record, meaning the step must never run again.
func (s ProvisionState) HasCheckpoint(step string) bool {
	_, ok := s.Checkpoints[step]
	return ok
}
