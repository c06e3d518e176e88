package workflows

import (
	"time"

	"go.temporal.io/sdk/workflow"

	"github.com/clipforge/highlights-api/internal/temporal"
	"github.com/clipforge/highlights-api/internal/temporal/activities"
)

// ProvisionWorkflow drives one provisioning run for a tenant. Retry and
// resumption semantics live in the orchestrator, not here: the activity is
// re-enterable and never repeats a checkpointed step, so the workflow can
// stay a single activity call.
func ProvisionWorkflow(ctx workflow.Context, params temporal.ProvisionParams) (temporal.ProvisionResult, error) {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: temporal.DefaultActivityTimeout,
		HeartbeatTimeout:    30 * time.Second,
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	logger := workflow.GetLogger(ctx)
	logger.Info("Starting provisioning workflow", "TenantID", params.TenantID)

	// The actual implementation is on the worker; this is just a proxy.
	var a *activities.Activities

	var result temporal.ProvisionResult
	err := workflow.ExecuteActivity(ctx, a.RunProvisioningActivity, params).Get(ctx, &result)
	if err != nil {
		logger.Error("Provisioning workflow failed.", "TenantID", params.TenantID, "error", err)
		return result, err
	}

	logger.Info("Provisioning workflow finished", "TenantID", params.TenantID, "Status", result.Status)
	return result, nil
}
