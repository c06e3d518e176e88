package models

import (
	"encoding/json"
	"time"
)

type ClipJobStatus string

const (
	ClipJobStatusPending   ClipJobStatus = "pending"
	ClipJobStatusRunning   ClipJobStatus = "running"
	ClipJobStatusSucceeded ClipJobStatus = "succeeded"
	ClipJobStatusFailed    ClipJobStatus = "failed"
)

// ClipJob is one clip-extraction request: a match recording plus its event
// timeline, handed to the highlights engine. The manifest is reported back
// by the engine through the completion callback.
type ClipJob struct {
	ID           string          `json:"id" db:"id"`
	TenantID     string          `json:"tenant_id" db:"tenant_id"`
	MatchVideo   string          `json:"match_video" db:"match_video"`
	EventsFile   string          `json:"events_file" db:"events_file"`
	CallbackURL  string          `json:"callback_url,omitempty" db:"callback_url"`
	Status       ClipJobStatus   `json:"status" db:"status"`
	Manifest     json.RawMessage `json:"manifest,omitempty" db:"manifest"`
	ErrorMessage *string         `json:"error_message,omitempty" db:"error_message"`
	Logs         *string         `json:"-" db:"logs"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at" db:"updated_at"`
	StartedAt    *time.Time      `json:"started_at,omitempty" db:"started_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty" db:"completed_at"`
}
