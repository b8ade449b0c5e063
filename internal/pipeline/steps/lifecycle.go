package steps

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"storefleet/internal/pipeline"
	"storefleet/internal/runtime"
	"storefleet/internal/store"
)

// tenantEnv resolves the workspace paths for steps that run without a
// preceding ensureWorkspace, such as suspend and teardown.
func tenantEnv(set *Set, pc *pipeline.Context) runtime.Environment {
	if pc.Workspace == "" {
		pc.Workspace = set.WorkspacePath(pc.Tenant.ID)
		pc.ComposeFile = filepath.Join(pc.Workspace, composeFileName)
	}
	return runtime.Environment{
		TenantID:    pc.Tenant.ID,
		Workspace:   pc.Workspace,
		ComposeFile: pc.ComposeFile,
	}
}

// stopEnvironment stops the tenant's containers but keeps volumes,
// workspace, port and quota so a later resume is cheap.
type stopEnvironment struct {
	noRollback // the suspend intent is durable; a failed stop is retried, not undone
	set        *Set
}

func (s *stopEnvironment) Name() string     { return "stop-environment" }
func (s *stopEnvironment) BestEffort() bool { return false }

func (s *stopEnvironment) Execute(ctx context.Context, pc *pipeline.Context) error {
	if err := s.set.Runtime.Down(ctx, tenantEnv(s.set, pc), false); err != nil {
		return fmt.Errorf("failed to stop environment: %w", err)
	}
	return nil
}

// markResumed flips the tenant back to active once the restarted
// environment has passed its health check.
type markResumed struct {
	noRollback
	set *Set
}

func (s *markResumed) Name() string     { return "mark-resumed" }
func (s *markResumed) BestEffort() bool { return false }

func (s *markResumed) Execute(ctx context.Context, pc *pipeline.Context) error {
	return s.set.Store.ResumeTenant(ctx, pc.Tenant.ID)
}

// teardownEnvironment removes the tenant's containers, volumes and
// workspace directory. Tearing down an environment that never started
// is a no-op.
type teardownEnvironment struct {
	noRollback // teardown only moves forward
	set        *Set
}

func (s *teardownEnvironment) Name() string     { return "teardown-environment" }
func (s *teardownEnvironment) BestEffort() bool { return false }

func (s *teardownEnvironment) Execute(ctx context.Context, pc *pipeline.Context) error {
	env := tenantEnv(s.set, pc)
	if err := s.set.Runtime.Down(ctx, env, true); err != nil {
		return fmt.Errorf("failed to tear down environment: %w", err)
	}
	if err := os.RemoveAll(env.Workspace); err != nil {
		return fmt.Errorf("failed to remove workspace: %w", err)
	}
	return nil
}

// releaseResources frees the tenant's port assignment and quota record
// and clears the placement. All three releases are idempotent.
type releaseResources struct {
	noRollback
	set *Set
}

func (s *releaseResources) Name() string     { return "release-resources" }
func (s *releaseResources) BestEffort() bool { return false }

func (s *releaseResources) Execute(ctx context.Context, pc *pipeline.Context) error {
	assignment, err := s.set.Store.GetPortAssignment(ctx, pc.Tenant.ID)
	switch {
	case err == nil:
		if err := s.set.Alloc.ReleasePort(ctx, assignment.ServerID, assignment.Port); err != nil {
			return fmt.Errorf("failed to release port: %w", err)
		}
	case !errors.Is(err, store.ErrNotFound):
		return err
	}

	if err := s.set.Alloc.ReleaseQuota(ctx, pc.Tenant.ID); err != nil {
		return fmt.Errorf("failed to release quota: %w", err)
	}
	return s.set.Store.ClearTenantPlacement(ctx, nil, pc.Tenant.ID)
}

// deleteTenant hard-deletes the tenant record. It is the last teardown
// step, so every backing resource is already gone by the time the row
// disappears. The delete spans several tables and commits in one
// transaction.
type deleteTenant struct {
	noRollback
	set *Set
}

func (s *deleteTenant) Name() string     { return "delete-tenant" }
func (s *deleteTenant) BestEffort() bool { return false }

func (s *deleteTenant) Execute(ctx context.Context, pc *pipeline.Context) error {
	tx, err := s.set.Store.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin delete transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.set.Store.DeleteTenant(ctx, tx, pc.Tenant.ID); err != nil {
		return err
	}
	return tx.Commit()
}
