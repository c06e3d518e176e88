package temporal

import "time"

// TaskQueueName is the name of the Temporal task queue used for tenant provisioning workflows.
const TaskQueueName = "TENANT_PROVISION"

// ProvisionWorkflowIDPrefix is the prefix used for tenant provisioning workflow IDs.
// One workflow ID per tenant: Temporal rejects a second start while a run is open,
// which backs up the orchestrator's own dedupe.
const ProvisionWorkflowIDPrefix = "tenant-provision-"

// DefaultActivityTimeout is the default timeout duration for provisioning activities.
const DefaultActivityTimeout = 5 * time.Minute

// ProvisionParams defines the input for tenant provisioning workflows.
type ProvisionParams struct {
	TenantID string
}

// ProvisionResult summarizes a finished provisioning run.
type ProvisionResult struct {
	TenantID string
	Status   string
}
