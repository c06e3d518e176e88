package models

import (
	"encoding/json"
	"time"
)

type NotificationSeverity string

const (
	NotificationSeverityInfo    NotificationSeverity = "info"
	NotificationSeverityWarning NotificationSeverity = "warning"
	NotificationSeverityError   NotificationSeverity = "error"
	NotificationSeverityFatal   NotificationSeverity = "fatal"
)

type NotificationEvent string

const (
	NotificationEventProvisionCompleted  NotificationEvent = "provision_completed"
	NotificationEventProvisionFailed     NotificationEvent = "provision_failed"
	NotificationEventCheckpointCorrupted NotificationEvent = "checkpoint_corrupted"
	NotificationEventClipJobSucceeded    NotificationEvent = "clip_job_succeeded"
	NotificationEventClipJobFailed       NotificationEvent = "clip_job_failed"
)

type Notification struct {
	ID        string               `json:"id" db:"id"`
	TenantID  *string              `json:"tenant_id,omitempty" db:"tenant_id"`
	EventType NotificationEvent    `json:"event_type" db:"event_type"`
	Severity  NotificationSeverity `json:"severity" db:"severity"`
	Title     string               `json:"title" db:"title"`
	Message   string               `json:"message" db:"message"`
	Metadata  json.RawMessage      `json:"metadata,omitempty" db:"metadata"`
	CreatedAt time.Time            `json:"created_at" db:"created_at"`
	ReadAt    *time.Time           `json:"read_at,omitempty" db:"read_at"`
}
