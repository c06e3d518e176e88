package notification

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/clipforge/highlights-api/internal/models"
	"github.com/clipforge/highlights-api/internal/repository"
)

type Event struct {
	TenantID string
	Event    models.NotificationEvent
	Severity models.NotificationSeverity
	Title    string
	Message  string
	Metadata map[string]interface{}
}

// Service persists notifications and fans them out to the configured
// channels. Delivery failures are logged, never propagated: a broken SMTP
// server must not fail a provisioning run.
type Service interface {
	Publish(ctx context.Context, evt Event) (models.Notification, error)
	ProvisionCompleted(ctx context.Context, tenantID string)
	ProvisionFailed(ctx context.Context, tenantID, step, reason string)
	CheckpointCorrupted(ctx context.Context, tenantID, detail string)
	ClipJobSucceeded(ctx context.Context, tenantID, jobID string)
	ClipJobFailed(ctx context.Context, tenantID, jobID, reason string)
	ListRecent(ctx context.Context, tenantID string, limit int) ([]models.Notification, error)
	MarkRead(ctx context.Context, tenantID, notificationID string) (models.Notification, error)
}

type service struct {
	repo      repository.NotificationRepository
	logger    zerolog.Logger
	notifiers []Notifier
}

func NewService(repo repository.NotificationRepository, logger zerolog.Logger, notifiers ...Notifier) Service {
	active := make([]Notifier, 0, len(notifiers))
	for _, notifier := range notifiers {
		if notifier != nil {
			active = append(active, notifier)
		}
	}
	return &service{
		repo:      repo,
		logger:    logger.With().Str("component", "notification_service").Logger(),
		notifiers: active,
	}
}

func (s *service) Publish(ctx context.Context, evt Event) (models.Notification, error) {
	if evt.Event == "" {
		return models.Notification{}, fmt.Errorf("event type is required")
	}
	if evt.Severity == "" {
		evt.Severity = models.NotificationSeverityInfo
	}
	title := strings.TrimSpace(evt.Title)
	if title == "" {
		title = string(evt.Event)
	}
	params := repository.CreateNotificationParams{
		Event:    evt.Event,
		Severity: evt.Severity,
		Title:    title,
		Message:  strings.TrimSpace(evt.Message),
		Metadata: evt.Metadata,
	}
	if tid := strings.TrimSpace(evt.TenantID); tid != "" {
		params.TenantID = &tid
	}

	notif, err := s.repo.Create(ctx, params)
	if err != nil {
		s.logger.Error().Err(err).Str("event_type", string(evt.Event)).Msg("failed to persist notification")
		return models.Notification{}, err
	}
	for _, notifier := range s.notifiers {
		if err := notifier.Notify(ctx, notif); err != nil {
			logNotifyError(s.logger, err, notifierChannelName(notifier), notif)
		}
	}
	return notif, nil
}

func (s *service) ProvisionCompleted(ctx context.Context, tenantID string) {
	s.publishQuiet(ctx, Event{
		TenantID: tenantID,
		Event:    models.NotificationEventProvisionCompleted,
		Severity: models.NotificationSeverityInfo,
		Title:    "Tenant provisioning completed",
		Message:  fmt.Sprintf("Tenant %s is fully provisioned and active.", tenantID),
	})
}

func (s *service) ProvisionFailed(ctx context.Context, tenantID, step, reason string) {
	s.publishQuiet(ctx, Event{
		TenantID: tenantID,
		Event:    models.NotificationEventProvisionFailed,
		Severity: models.NotificationSeverityError,
		Title:    "Tenant provisioning failed",
		Message:  fmt.Sprintf("Provisioning for tenant %s failed at step %s: %s", tenantID, step, reason),
		Metadata: map[string]interface{}{"step": step, "reason": reason},
	})
}

// CheckpointCorrupted is the operator-visible fatal path: the stored state
// violated an internal invariant and no automatic retry will happen.
func (s *service) CheckpointCorrupted(ctx context.Context, tenantID, detail string) {
	s.publishQuiet(ctx, Event{
		TenantID: tenantID,
		Event:    models.NotificationEventCheckpointCorrupted,
		Severity: models.NotificationSeverityFatal,
		Title:    "Provisioning checkpoint corrupted",
		Message:  fmt.Sprintf("Tenant %s has a corrupted provisioning checkpoint and requires operator intervention: %s", tenantID, detail),
		Metadata: map[string]interface{}{"detail": detail},
	})
}

func (s *service) ClipJobSucceeded(ctx context.Context, tenantID, jobID string) {
	s.publishQuiet(ctx, Event{
		TenantID: tenantID,
		Event:    models.NotificationEventClipJobSucceeded,
		Severity: models.NotificationSeverityInfo,
		Title:    "Highlight clips ready",
		Message:  fmt.Sprintf("Clip job %s finished; the manifest is available.", jobID),
		Metadata: map[string]interface{}{"job_id": jobID},
	})
}

func (s *service) ClipJobFailed(ctx context.Context, tenantID, jobID, reason string) {
	if strings.TrimSpace(reason) == "" {
		reason = "unknown error"
	}
	s.publishQuiet(ctx, Event{
		TenantID: tenantID,
		Event:    models.NotificationEventClipJobFailed,
		Severity: models.NotificationSeverityError,
		Title:    "Clip job failed",
		Message:  fmt.Sprintf("Clip job %s failed: %s", jobID, reason),
		Metadata: map[string]interface{}{"job_id": jobID, "reason": reason},
	})
}

func (s *service) ListRecent(ctx context.Context, tenantID string, limit int) ([]models.Notification, error) {
	return s.repo.ListRecent(ctx, tenantID, limit)
}

func (s *service) MarkRead(ctx context.Context, tenantID, notificationID string) (models.Notification, error) {
	return s.repo.MarkRead(ctx, tenantID, notificationID)
}

func (s *service) publishQuiet(ctx context.Context, evt Event) {
	if _, err := s.Publish(ctx, evt); err != nil {
		s.logger.Error().Err(err).Str("event_type", string(evt.Event)).Msg("failed to publish notification")
	}
}

func notifierChannelName(n Notifier) string {
	type named interface {
		String() string
	}
	if v, ok := n.(named); ok {
		return v.String()
	}
	return fmt.Sprintf("%T", n)
}
