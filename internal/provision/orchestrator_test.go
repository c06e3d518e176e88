package provision

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipforge/highlights-api/internal/idempotency"
	"github.com/clipforge/highlights-api/internal/models"
)

type fakeTenants struct {
	mu      sync.Mutex
	tenants map[string]models.Tenant
}

func newFakeTenants(tenants ...models.Tenant) *fakeTenants {
	f := &fakeTenants{tenants: make(map[string]models.Tenant)}
	for _, t := range tenants {
		f.tenants[t.ID] = t
	}
	return f
}

func (f *fakeTenants) CreateTenant(name string, tier models.PlanTier, brand models.BrandAttributes) (models.Tenant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := models.Tenant{ID: name, Name: name, Tier: tier, Brand: brand, Status: models.TenantStatusPending}
	f.tenants[t.ID] = t
	return t, nil
}

func (f *fakeTenants) GetTenantByID(id string) (models.Tenant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tenants[id]
	if !ok {
		return models.Tenant{}, sql.ErrNoRows
	}
	return t, nil
}

func (f *fakeTenants) ListTenants() ([]models.Tenant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Tenant, 0, len(f.tenants))
	for _, t := range f.tenants {
		out = append(out, t)
	}
	return out, nil
}

func (f *fakeTenants) UpdateStatus(id string, status models.TenantStatus) (models.Tenant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tenants[id]
	if !ok {
		return models.Tenant{}, sql.ErrNoRows
	}
	t.Status = status
	f.tenants[id] = t
	return t, nil
}

func (f *fakeTenants) UpdateBrand(id string, brand models.BrandAttributes) (models.Tenant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tenants[id]
	if !ok {
		return models.Tenant{}, sql.ErrNoRows
	}
	t.Brand = brand
	f.tenants[id] = t
	return t, nil
}

func (f *fakeTenants) UpdateWebhook(id string, webhook models.WebhookConfig) (models.Tenant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tenants[id]
	if !ok {
		return models.Tenant{}, sql.ErrNoRows
	}
	t.Webhook = webhook
	f.tenants[id] = t
	return t, nil
}

type fakeStates struct {
	mu     sync.Mutex
	states map[string]models.ProvisionState
}

func newFakeStates() *fakeStates {
	return &fakeStates{states: make(map[string]models.ProvisionState)}
}

func (f *fakeStates) GetState(_ context.Context, tenantID string) (models.ProvisionState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.states[tenantID]
	if !ok {
		return models.ProvisionState{}, sql.ErrNoRows
	}
	return s, nil
}

func (f *fakeStates) CreateState(_ context.Context, tenantID string) (models.ProvisionState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := models.ProvisionState{
		TenantID:    tenantID,
		Status:      models.ProvisionStatusPending,
		Checkpoints: make(map[string]json.RawMessage),
	}
	f.states[tenantID] = s
	return s, nil
}

func (f *fakeStates) UpdateStatus(_ context.Context, tenantID string, status models.ProvisionStatus, currentStep, lastError *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.states[tenantID]
	s.TenantID = tenantID
	s.Status = status
	s.CurrentStep = currentStep
	s.LastError = lastError
	f.states[tenantID] = s
	return nil
}

func (f *fakeStates) SaveCheckpoint(_ context.Context, tenantID, step string, data json.RawMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.states[tenantID]
	if s.Checkpoints == nil {
		s.Checkpoints = make(map[string]json.RawMessage)
	}
	s.Checkpoints[step] = data
	f.states[tenantID] = s
	return nil
}

// seed installs a pre-existing state row, bypassing the orchestrator.
func (f *fakeStates) seed(state models.ProvisionState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[state.TenantID] = state
}

type fakeWorkspaces struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeWorkspaces) CreateWorkspace(_ context.Context, tenant models.Tenant) (WorkspaceResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return WorkspaceResult{}, f.err
	}
	return WorkspaceResult{SpreadsheetID: "sheet-" + tenant.ID, SheetURL: "https://sheets.example/" + tenant.ID}, nil
}

type fakeRegistrar struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeRegistrar) RegisterWebhook(_ context.Context, tenant models.Tenant, _ WorkspaceResult) (WebhookResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return WebhookResult{}, f.err
	}
	return WebhookResult{HookID: "hook-" + tenant.ID, HookURL: "https://hooks.example/" + tenant.ID, Secret: "s3cret"}, nil
}

type recordingAlerter struct {
	mu        sync.Mutex
	completed []string
	failed    []string
	corrupted []string
}

func (a *recordingAlerter) ProvisionCompleted(_ context.Context, tenantID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.completed = append(a.completed, tenantID)
}

func (a *recordingAlerter) ProvisionFailed(_ context.Context, tenantID, step, reason string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failed = append(a.failed, tenantID+"/"+step)
}

func (a *recordingAlerter) CheckpointCorrupted(_ context.Context, tenantID, detail string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.corrupted = append(a.corrupted, tenantID)
}

type harness struct {
	orch       *Orchestrator
	tenants    *fakeTenants
	states     *fakeStates
	workspaces *fakeWorkspaces
	webhooks   *fakeRegistrar
	alerts     *recordingAlerter
}

func newHarness(t *testing.T, seedTenants ...models.Tenant) *harness {
	t.Helper()
	h := &harness{
		tenants:    newFakeTenants(seedTenants...),
		states:     newFakeStates(),
		workspaces: &fakeWorkspaces{},
		webhooks:   &fakeRegistrar{},
		alerts:     &recordingAlerter{},
	}
	h.orch = NewOrchestrator(
		h.tenants,
		h.states,
		idempotency.NewMemoryStore(),
		h.workspaces,
		h.webhooks,
		h.alerts,
		zerolog.Nop(),
	)
	return h
}

func pendingTenant(id string) models.Tenant {
	return models.Tenant{ID: id, Name: "Club " + id, Tier: models.TierPro, Status: models.TenantStatusPending}
}

func TestRunCompletesAllSteps(t *testing.T) {
	h := newHarness(t, pendingTenant("t1"))

	state, err := h.orch.Run(context.Background(), "t1")
	require.NoError(t, err)

	assert.Equal(t, models.ProvisionStatusCompleted, state.Status)
	assert.Len(t, state.Checkpoints, len(Steps))
	for _, step := range Steps {
		assert.True(t, state.HasCheckpoint(step), step)
	}
	assert.Equal(t, 1, h.workspaces.calls)
	assert.Equal(t, 1, h.webhooks.calls)

	tenant, err := h.tenants.GetTenantByID("t1")
	require.NoError(t, err)
	assert.Equal(t, models.TenantStatusActive, tenant.Status)
	assert.Equal(t, "hook-t1", tenant.Webhook.HookID)
	assert.Equal(t, "https://hooks.example/t1", tenant.Webhook.CallbackURL)

	assert.Equal(t, []string{"t1"}, h.alerts.completed)
	assert.Empty(t, h.alerts.failed)
}

func TestRunPreservesExplicitCallbackURL(t *testing.T) {
	tenant := pendingTenant("t1")
	tenant.Webhook.CallbackURL = "https://club.example/hook"
	h := newHarness(t, tenant)

	_, err := h.orch.Run(context.Background(), "t1")
	require.NoError(t, err)

	got, err := h.tenants.GetTenantByID("t1")
	require.NoError(t, err)
	assert.Equal(t, "https://club.example/hook", got.Webhook.CallbackURL)
}

func TestRunResumesAfterStepFailure(t *testing.T) {
	h := newHarness(t, pendingTenant("t1"))
	h.webhooks.err = errors.New("automation platform unavailable")

	state, err := h.orch.Run(context.Background(), "t1")
	require.Error(t, err)

	var uerr *UpstreamError
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, StepConfigureWebhook, uerr.Step)
	assert.Equal(t, models.ProvisionStatusFailed, state.Status)
	assert.True(t, state.HasCheckpoint(StepCreateWorkspace))
	assert.False(t, state.HasCheckpoint(StepConfigureWebhook))
	assert.Equal(t, []string{"t1/" + StepConfigureWebhook}, h.alerts.failed)

	// The retry picks up at configure_webhook; the workspace side effect
	// must not repeat.
	h.webhooks.err = nil
	state, err = h.orch.Run(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, models.ProvisionStatusCompleted, state.Status)
	assert.Equal(t, 1, h.workspaces.calls)
	assert.Equal(t, 2, h.webhooks.calls)
}

func TestRunCompletedIsNoOp(t *testing.T) {
	h := newHarness(t, pendingTenant("t1"))

	_, err := h.orch.Run(context.Background(), "t1")
	require.NoError(t, err)

	state, err := h.orch.Run(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, models.ProvisionStatusCompleted, state.Status)
	assert.Equal(t, 1, h.workspaces.calls)
	assert.Equal(t, 1, h.webhooks.calls)
	assert.Equal(t, []string{"t1"}, h.alerts.completed)
}

func TestRunUnknownTenant(t *testing.T) {
	h := newHarness(t)

	_, err := h.orch.Run(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrTenantNotFound)
}

func TestRunCorruptCheckpointIsFatal(t *testing.T) {
	h := newHarness(t, pendingTenant("t1"))
	h.states.seed(models.ProvisionState{
		TenantID: "t1",
		Status:   models.ProvisionStatusFailed,
		Checkpoints: map[string]json.RawMessage{
			"bogus_step": json.RawMessage(`{}`),
		},
	})

	_, err := h.orch.Run(context.Background(), "t1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCorruptCheckpoint)

	var uerr *UpstreamError
	assert.False(t, errors.As(err, &uerr), "corruption is not an upstream failure")
	assert.Equal(t, []string{"t1"}, h.alerts.corrupted)
	assert.Empty(t, h.alerts.failed)
	assert.Equal(t, 0, h.workspaces.calls, "no step may run over corrupted state")
}

func TestQueueDeduplicatesConcurrentRequests(t *testing.T) {
	h := newHarness(t, pendingTenant("t1"))

	var mu sync.Mutex
	enqueued := 0
	h.orch.SetEnqueuer(func(ctx context.Context, tenantID string) error {
		mu.Lock()
		defer mu.Unlock()
		enqueued++
		return nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, h.orch.Queue(context.Background(), "t1"))
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, enqueued)
}

func TestQueueTwiceRunsWorkspaceCreationOnce(t *testing.T) {
	h := newHarness(t, pendingTenant("t1"))
	h.orch.SetEnqueuer(func(ctx context.Context, tenantID string) error {
		_, err := h.orch.Run(ctx, tenantID)
		return err
	})

	require.NoError(t, h.orch.Queue(context.Background(), "t1"))
	require.NoError(t, h.orch.Queue(context.Background(), "t1"))

	assert.Equal(t, 1, h.workspaces.calls)
}

func TestQueueReopensAfterFailedRun(t *testing.T) {
	h := newHarness(t, pendingTenant("t1"))
	h.orch.SetEnqueuer(func(ctx context.Context, tenantID string) error { return nil })

	require.NoError(t, h.orch.Queue(context.Background(), "t1"))

	// A failed run settles the dedupe key as retryable, so the next Queue
	// claims it again.
	h.workspaces.err = errors.New("sheets api down")
	_, err := h.orch.Run(context.Background(), "t1")
	require.Error(t, err)

	require.NoError(t, h.orch.Queue(context.Background(), "t1"))
}

func TestQueueUnknownTenant(t *testing.T) {
	h := newHarness(t)
	h.orch.SetEnqueuer(func(ctx context.Context, tenantID string) error { return nil })

	err := h.orch.Queue(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrTenantNotFound)
}

func TestStatusReportsStoredState(t *testing.T) {
	h := newHarness(t, pendingTenant("t1"))

	_, err := h.orch.Status(context.Background(), "t1")
	assert.ErrorIs(t, err, ErrTenantNotFound)

	_, err = h.orch.Run(context.Background(), "t1")
	require.NoError(t, err)

	state, err := h.orch.Status(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, models.ProvisionStatusCompleted, state.Status)
}
