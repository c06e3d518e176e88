package activities

import (
	"context"

	"go.temporal.io/sdk/activity"

	"github.com/clipforge/highlights-api/internal/provision"
	"github.com/clipforge/highlights-api/internal/temporal"
)

type Activities struct {
	Orchestrator *provision.Orchestrator
}

// RunProvisioningActivity executes the outstanding provisioning steps for
// a tenant. The orchestrator serializes per tenant and skips checkpointed
// steps, so a Temporal retry of this activity is always safe.
func (a *Activities) RunProvisioningActivity(ctx context.Context, params temporal.ProvisionParams) (temporal.ProvisionResult, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("Running provisioning steps", "tenantID", params.TenantID)

	state, err := a.Orchestrator.Run(ctx, params.TenantID)
	if err != nil {
		logger.Error("Provisioning run failed", "tenantID", params.TenantID, "error", err)
		return temporal.ProvisionResult{TenantID: params.TenantID, Status: string(state.Status)}, err
	}

	return temporal.ProvisionResult{TenantID: params.TenantID, Status: string(state.Status)}, nil
}
