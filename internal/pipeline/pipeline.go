// Package pipeline drives a tenant through the ordered provisioning
// steps, with a uniform rollback walk over completed steps in reverse
// when a fatal step fails.
package pipeline

import (
	"context"
	"fmt"

	"storefleet/internal/allocator"
	"storefleet/internal/proxy"
	"storefleet/internal/secrets"
	"storefleet/internal/store"

	"github.com/google/uuid"
)

// Step is one idempotent pipeline operation. Execute must be safe to
// re-run against the partial state a previous attempt left behind, and
// Rollback must be safe to run against partially-rolled-back state.
type Step interface {
	Name() string
	Execute(ctx context.Context, pc *Context) error
	Rollback(ctx context.Context, pc *Context) error

	// BestEffort steps never abort the pipeline; their failures are
	// caught and logged at the runner boundary.
	BestEffort() bool
}

// RouteManager is the reverse-proxy surface the pipeline needs.
type RouteManager interface {
	WriteRoute(ctx context.Context, r proxy.Route) error
	RemoveRoute(ctx context.Context, tenantID uuid.UUID) error
}

// Context is the per-run state threaded through the steps. It is
// rebuilt from the store for every attempt; nothing survives a worker
// restart outside the database.
type Context struct {
	Job    *store.ProvisioningJob
	Tenant *store.Tenant
	Server *store.Server

	// Populated by the credential step. Never persisted unsealed.
	Creds *secrets.Credentials

	// Populated by the allocation step (or from an existing placement).
	Port   int
	Limits allocator.PlanLimits

	Workspace   string
	ComposeFile string
}

// StepError wraps a fatal step failure with the step that caused it.
// Its message is the durable error detail written to the tenant record.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}
