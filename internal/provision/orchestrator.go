// Package provision drives the multi-step tenant setup workflow to
// completion exactly once per tenant. All state transitions for a tenant
// are serialized through a per-tenant lock, every completed step is
// checkpointed durably, and retries resume at the first uncheckpointed
// step, so external side effects never repeat even though the upstream
// calls themselves are not idempotent.
package provision

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/clipforge/highlights-api/internal/idempotency"
	"github.com/clipforge/highlights-api/internal/models"
	"github.com/clipforge/highlights-api/internal/monitoring"
	"github.com/clipforge/highlights-api/internal/repository"
)

const (
	StepCreateWorkspace  = "create_workspace"
	StepConfigureWebhook = "configure_webhook"
	StepActivate         = "activate"
)

// Steps is the fixed, ordered sequence every tenant goes through.
var Steps = []string{StepCreateWorkspace, StepConfigureWebhook, StepActivate}

const queueOperation = "provision:queue"

var (
	ErrTenantNotFound = errors.New("tenant not found")

	// ErrCorruptCheckpoint signals an internal invariant violation in the
	// stored state. It is the one provisioning failure that must not be
	// retried automatically; an operator alert is raised instead.
	ErrCorruptCheckpoint = errors.New("provisioning checkpoint is corrupted")
)

// UpstreamError marks a failure of an external provisioning dependency.
// These surface as 502 to the immediate caller and are always retryable by
// re-invoking provisioning.
type UpstreamError struct {
	Step  string
	Cause error
}

func (e *UpstreamError) Error() string {
	return "provisioning step " + e.Step + " failed: " + e.Cause.Error()
}

func (e *UpstreamError) Unwrap() error { return e.Cause }

// Alerter receives provisioning lifecycle events.
type Alerter interface {
	ProvisionCompleted(ctx context.Context, tenantID string)
	ProvisionFailed(ctx context.Context, tenantID, step, reason string)
	CheckpointCorrupted(ctx context.Context, tenantID, detail string)
}

// Enqueuer hands a tenant to the asynchronous execution vehicle (the
// Temporal workflow in production, a stub in tests).
type Enqueuer func(ctx context.Context, tenantID string) error

// Orchestrator owns all provisioning state transitions. One logical actor
// per tenant: Run serializes on a per-tenant lock, so two overlapping step
// sequences for the same tenant cannot happen.
type Orchestrator struct {
	tenants    repository.TenantRepository
	states     repository.ProvisionRepository
	idem       idempotency.Store
	workspaces WorkspaceProvisioner
	webhooks   WebhookRegistrar
	alerts     Alerter
	enqueue    Enqueuer
	logger     zerolog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewOrchestrator(
	tenants repository.TenantRepository,
	states repository.ProvisionRepository,
	idem idempotency.Store,
	workspaces WorkspaceProvisioner,
	webhooks WebhookRegistrar,
	alerts Alerter,
	logger zerolog.Logger,
) *Orchestrator {
	return &Orchestrator{
		tenants:    tenants,
		states:     states,
		idem:       idem,
		workspaces: workspaces,
		webhooks:   webhooks,
		alerts:     alerts,
		logger:     logger.With().Str("component", "provision").Logger(),
		locks:      make(map[string]*sync.Mutex),
	}
}

// SetEnqueuer wires the async execution vehicle. Separated from the
// constructor because the Temporal client is built after the orchestrator
// (its activities need the orchestrator).
func (o *Orchestrator) SetEnqueuer(enqueue Enqueuer) {
	o.enqueue = enqueue
}

// Queue requests an asynchronous run if none is active. Safe to call any
// number of times concurrently for the same tenant: the idempotency claim
// admits exactly one enqueue per open window, everyone else piggybacks on
// the in-flight or stored outcome.
func (o *Orchestrator) Queue(ctx context.Context, tenantID string) error {
	if _, err := o.tenants.GetTenantByID(tenantID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrTenantNotFound
		}
		return err
	}

	key := idempotency.Key(queueOperation, tenantID, "")
	outcome, err := o.idem.BeginOrGet(ctx, key)
	if err != nil {
		return err
	}
	switch outcome.State {
	case idempotency.StateInProgress, idempotency.StateDone:
		// Someone already triggered this run (or it finished); the caller
		// gets the same acknowledgment either way.
		return nil
	case idempotency.StateFailed:
		return errors.New(outcome.Cause)
	}

	if o.enqueue == nil {
		return errors.New("no enqueuer configured")
	}
	if err := o.enqueue(ctx, tenantID); err != nil {
		// Release the claim so a later Queue can try again.
		if ferr := o.idem.Fail(ctx, key, err, idempotency.Retryable); ferr != nil {
			o.logger.Error().Err(ferr).Str("tenant_id", tenantID).Msg("failed to release queue claim")
		}
		return errors.Wrap(err, "enqueue provisioning run")
	}

	o.logger.Info().Str("tenant_id", tenantID).Msg("provisioning run queued")
	return nil
}

// Run executes the outstanding steps synchronously. It is the only writer
// of the tenant's provisioning state. Completed runs are no-ops; failed
// runs are re-enterable and resume at the first uncheckpointed step.
func (o *Orchestrator) Run(ctx context.Context, tenantID string) (models.ProvisionState, error) {
	lock := o.tenantLock(tenantID)
	lock.Lock()
	defer lock.Unlock()

	state, err := o.runLocked(ctx, tenantID)

	// Settle the queue dedupe key so later Queue calls see the outcome.
	key := idempotency.Key(queueOperation, tenantID, "")
	if err != nil {
		if ferr := o.idem.Fail(ctx, key, err, idempotency.Retryable); ferr != nil {
			o.logger.Error().Err(ferr).Str("tenant_id", tenantID).Msg("failed to release queue claim")
		}
		return state, err
	}
	result, merr := json.Marshal(state)
	if merr != nil {
		result = nil
	}
	if cerr := o.idem.Complete(ctx, key, result); cerr != nil {
		o.logger.Error().Err(cerr).Str("tenant_id", tenantID).Msg("failed to settle queue claim")
	}
	return state, nil
}

// runLocked is Run without the lock or the idempotency settlement; it must
// only be called with the tenant's lock held.
func (o *Orchestrator) runLocked(ctx context.Context, tenantID string) (models.ProvisionState, error) {
	tenant, err := o.tenants.GetTenantByID(tenantID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.ProvisionState{}, ErrTenantNotFound
		}
		return models.ProvisionState{}, err
	}

	state, err := o.loadOrCreateState(ctx, tenantID)
	if err != nil {
		return models.ProvisionState{}, err
	}
	if state.Status == models.ProvisionStatusCompleted {
		return state, nil
	}
	if err := o.verifyCheckpoints(ctx, state); err != nil {
		return state, err
	}

	logger := o.logger.With().Str("tenant_id", tenantID).Logger()
	logger.Info().Str("status", string(state.Status)).Msg("provisioning run started")

	for _, step := range Steps {
		if state.HasCheckpoint(step) {
			continue
		}

		stepName := step
		if err := o.states.UpdateStatus(ctx, tenantID, models.ProvisionStatusProcessing, &stepName, nil); err != nil {
			return state, err
		}
		state.Status = models.ProvisionStatusProcessing
		state.CurrentStep = &stepName

		started := time.Now()
		checkpoint, err := o.executeStep(ctx, tenant, state, step)
		monitoring.ProvisionStepDuration.WithLabelValues(step).Observe(time.Since(started).Seconds())
		if err != nil {
			reason := err.Error()
			if uerr := o.states.UpdateStatus(ctx, tenantID, models.ProvisionStatusFailed, &stepName, &reason); uerr != nil {
				logger.Error().Err(uerr).Msg("failed to persist provisioning failure")
			}
			state.Status = models.ProvisionStatusFailed
			state.LastError = &reason
			monitoring.ProvisionRuns.WithLabelValues("failed").Inc()
			logger.Error().Err(err).Str("step", step).Msg("provisioning step failed")
			if errors.Is(err, ErrCorruptCheckpoint) {
				// Not retryable; the fatal alert was already raised.
				return state, err
			}
			if o.alerts != nil {
				o.alerts.ProvisionFailed(ctx, tenantID, step, reason)
			}
			return state, &UpstreamError{Step: step, Cause: err}
		}

		if err := o.states.SaveCheckpoint(ctx, tenantID, step, checkpoint); err != nil {
			return state, errors.Wrap(err, "save checkpoint")
		}
		if state.Checkpoints == nil {
			state.Checkpoints = make(map[string]json.RawMessage)
		}
		state.Checkpoints[step] = checkpoint
		logger.Info().Str("step", step).Msg("provisioning step checkpointed")
	}

	if err := o.states.UpdateStatus(ctx, tenantID, models.ProvisionStatusCompleted, nil, nil); err != nil {
		return state, err
	}
	state.Status = models.ProvisionStatusCompleted
	state.CurrentStep = nil
	state.LastError = nil
	monitoring.ProvisionRuns.WithLabelValues("completed").Inc()
	if o.alerts != nil {
		o.alerts.ProvisionCompleted(ctx, tenantID)
	}
	logger.Info().Msg("provisioning completed")
	return state, nil
}

// Status is the read-only snapshot. Any authorized caller may read it; a
// caller seeing processing must poll rather than blindly re-queue.
func (o *Orchestrator) Status(ctx context.Context, tenantID string) (models.ProvisionState, error) {
	state, err := o.states.GetState(ctx, tenantID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.ProvisionState{}, ErrTenantNotFound
		}
		return models.ProvisionState{}, err
	}
	return state, nil
}

func (o *Orchestrator) loadOrCreateState(ctx context.Context, tenantID string) (models.ProvisionState, error) {
	state, err := o.states.GetState(ctx, tenantID)
	if err == nil {
		return state, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.ProvisionState{}, err
	}
	return o.states.CreateState(ctx, tenantID)
}

// verifyCheckpoints guards the internal invariant that every stored
// checkpoint names a known step. A violation means the state row was
// corrupted out-of-band; continuing could repeat side effects.
func (o *Orchestrator) verifyCheckpoints(ctx context.Context, state models.ProvisionState) error {
	known := make(map[string]struct{}, len(Steps))
	for _, step := range Steps {
		known[step] = struct{}{}
	}
	for step := range state.Checkpoints {
		if _, ok := known[step]; !ok {
			detail := "unknown checkpoint step " + step
			if o.alerts != nil {
				o.alerts.CheckpointCorrupted(ctx, state.TenantID, detail)
			}
			return errors.Wrap(ErrCorruptCheckpoint, detail)
		}
	}
	return nil
}

func (o *Orchestrator) executeStep(ctx context.Context, tenant models.Tenant, state models.ProvisionState, step string) (json.RawMessage, error) {
	switch step {
	case StepCreateWorkspace:
		result, err := o.workspaces.CreateWorkspace(ctx, tenant)
		if err != nil {
			return nil, err
		}
		return json.Marshal(result)

	case StepConfigureWebhook:
		var workspace WorkspaceResult
		raw, ok := state.Checkpoints[StepCreateWorkspace]
		if !ok {
			return nil, errors.Wrap(ErrCorruptCheckpoint, "configure_webhook before create_workspace")
		}
		if err := json.Unmarshal(raw, &workspace); err != nil {
			if o.alerts != nil {
				o.alerts.CheckpointCorrupted(ctx, tenant.ID, "unreadable create_workspace checkpoint")
			}
			return nil, errors.Wrap(ErrCorruptCheckpoint, "unreadable create_workspace checkpoint")
		}
		result, err := o.webhooks.RegisterWebhook(ctx, tenant, workspace)
		if err != nil {
			return nil, err
		}
		webhook := models.WebhookConfig{
			HookID:      result.HookID,
			Secret:      result.Secret,
			CallbackURL: tenant.Webhook.CallbackURL,
		}
		if webhook.CallbackURL == "" {
			webhook.CallbackURL = result.HookURL
		}
		if _, err := o.tenants.UpdateWebhook(tenant.ID, webhook); err != nil {
			return nil, errors.Wrap(err, "persist webhook config")
		}
		return json.Marshal(result)

	case StepActivate:
		if _, err := o.tenants.UpdateStatus(tenant.ID, models.TenantStatusActive); err != nil {
			return nil, errors.Wrap(err, "activate tenant")
		}
		return json.Marshal(map[string]string{"activated_at": time.Now().UTC().Format(time.RFC3339)})

	default:
		return nil, errors.Wrap(ErrCorruptCheckpoint, "unknown step "+step)
	}
}

func (o *Orchestrator) tenantLock(tenantID string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	lock, ok := o.locks[tenantID]
	if !ok {
		lock = &sync.Mutex{}
		o.locks[tenantID] = lock
	}
	return lock
}
