package notification

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/clipforge/highlights-api/internal/models"
	"github.com/clipforge/highlights-api/internal/repository"
)

// WebhookNotifier forwards tenant-scoped notifications to the callback URL
// registered during provisioning. The payload is signed with the tenant's
// webhook secret so receivers can verify origin.
type WebhookNotifier struct {
	tenants repository.TenantRepository
	client  *http.Client
	logger  zerolog.Logger
}

func NewWebhookNotifier(tenants repository.TenantRepository, logger zerolog.Logger) *WebhookNotifier {
	return &WebhookNotifier{
		tenants: tenants,
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  logger.With().Str("notifier", "webhook").Logger(),
	}
}

type webhookPayload struct {
	ID        string          `json:"id"`
	EventType string          `json:"event_type"`
	Severity  string          `json:"severity"`
	Title     string          `json:"title"`
	Message   string          `json:"message"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

func (n *WebhookNotifier) Notify(ctx context.Context, notif models.Notification) error {
	if notif.TenantID == nil {
		return nil
	}
	tenant, err := n.tenants.GetTenantByID(*notif.TenantID)
	if err != nil {
		return fmt.Errorf("lookup tenant %s: %w", *notif.TenantID, err)
	}
	if tenant.Webhook.CallbackURL == "" {
		return nil
	}

	payload, err := json.Marshal(webhookPayload{
		ID:        notif.ID,
		EventType: string(notif.EventType),
		Severity:  string(notif.Severity),
		Title:     notif.Title,
		Message:   notif.Message,
		Metadata:  notif.Metadata,
		CreatedAt: notif.CreatedAt,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tenant.Webhook.CallbackURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if tenant.Webhook.Secret != "" {
		req.Header.Set("X-ClipForge-Signature", signPayload(tenant.Webhook.Secret, payload))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook delivery to %s returned status %d", tenant.Webhook.CallbackURL, resp.StatusCode)
	}

	n.logger.Info().
		Str("notification_id", notif.ID).
		Str("tenant_id", *notif.TenantID).
		Str("event_type", string(notif.EventType)).
		Msg("webhook notification delivered")
	return nil
}

func (n *WebhookNotifier) String() string {
	return "WebhookNotifier"
}

func signPayload(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
