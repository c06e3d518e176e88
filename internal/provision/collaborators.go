package provision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/clipforge/highlights-api/internal/models"
)

// WorkspaceResult is the checkpoint payload of the create_workspace step:
// the identifiers of the spreadsheet workspace created for the tenant.
type WorkspaceResult struct {
	SpreadsheetID string `json:"spreadsheet_id"`
	SheetURL      string `json:"sheet_url"`
	FolderID      string `json:"folder_id,omitempty"`
}

// WebhookResult is the checkpoint payload of the configure_webhook step.
type WebhookResult struct {
	HookID  string `json:"hook_id"`
	HookURL string `json:"hook_url"`
	Secret  string `json:"secret,omitempty"`
}

// WorkspaceProvisioner creates the per-tenant spreadsheet workspace. The
// underlying call is not idempotent; the orchestrator's checkpoint is what
// keeps it from running twice.
type WorkspaceProvisioner interface {
	CreateWorkspace(ctx context.Context, tenant models.Tenant) (WorkspaceResult, error)
}

// WebhookRegistrar registers the automation-platform webhook that feeds
// match events into the tenant's workspace.
type WebhookRegistrar interface {
	RegisterWebhook(ctx context.Context, tenant models.Tenant, workspace WorkspaceResult) (WebhookResult, error)
}

// HTTPWorkspaceProvisioner talks to the sheet-service endpoint.
type HTTPWorkspaceProvisioner struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

func NewHTTPWorkspaceProvisioner(endpoint, apiKey string, timeout time.Duration) *HTTPWorkspaceProvisioner {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPWorkspaceProvisioner{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: timeout},
	}
}

func (p *HTTPWorkspaceProvisioner) CreateWorkspace(ctx context.Context, tenant models.Tenant) (WorkspaceResult, error) {
	payload := map[string]interface{}{
		"tenant_id": tenant.ID,
		"name":      tenant.Name,
		"tier":      tenant.Tier,
		"brand":     tenant.Brand,
	}
	var result WorkspaceResult
	if err := postJSON(ctx, p.client, p.endpoint, p.apiKey, payload, &result); err != nil {
		return WorkspaceResult{}, errors.Wrap(err, "create workspace")
	}
	if result.SpreadsheetID == "" {
		return WorkspaceResult{}, errors.New("create workspace: upstream returned no spreadsheet id")
	}
	return result, nil
}

// HTTPWebhookRegistrar talks to the automation-platform registrar endpoint.
type HTTPWebhookRegistrar struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

func NewHTTPWebhookRegistrar(endpoint, apiKey string, timeout time.Duration) *HTTPWebhookRegistrar {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPWebhookRegistrar{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: timeout},
	}
}

func (r *HTTPWebhookRegistrar) RegisterWebhook(ctx context.Context, tenant models.Tenant, workspace WorkspaceResult) (WebhookResult, error) {
	payload := map[string]interface{}{
		"tenant_id":      tenant.ID,
		"spreadsheet_id": workspace.SpreadsheetID,
	}
	if tenant.Webhook.CallbackURL != "" {
		payload["callback_url"] = tenant.Webhook.CallbackURL
	}
	var result WebhookResult
	if err := postJSON(ctx, r.client, r.endpoint, r.apiKey, payload, &result); err != nil {
		return WebhookResult{}, errors.Wrap(err, "register webhook")
	}
	if result.HookID == "" {
		return WebhookResult{}, errors.New("register webhook: upstream returned no hook id")
	}
	return result, nil
}

func postJSON(ctx context.Context, client *http.Client, endpoint, apiKey string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("X-Api-Key", apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("upstream returned %d: %s", resp.StatusCode, respBody)
	}
	return json.Unmarshal(respBody, out)
}
