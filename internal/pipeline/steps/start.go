package steps

import (
	"context"
	"fmt"

	"storefleet/internal/pipeline"
	"storefleet/internal/runtime"
)

// startEnvironment brings the tenant's container stack up. With fresh
// set, containers and volumes from any previous attempt are removed
// first, which is what makes re-running the pipeline safe. Resume runs
// with fresh unset to preserve data volumes.
type startEnvironment struct {
	set   *Set
	fresh bool
}

func (s *startEnvironment) Name() string     { return "start-environment" }
func (s *startEnvironment) BestEffort() bool { return false }

func (s *startEnvironment) env(pc *pipeline.Context) runtime.Environment {
	ws := pc.Workspace
	cf := pc.ComposeFile
	if ws == "" {
		ws = s.set.WorkspacePath(pc.Tenant.ID)
		cf = ws + "/" + composeFileName
		pc.Workspace, pc.ComposeFile = ws, cf
	}
	return runtime.Environment{TenantID: pc.Tenant.ID, Workspace: ws, ComposeFile: cf}
}

func (s *startEnvironment) Execute(ctx context.Context, pc *pipeline.Context) error {
	env := s.env(pc)

	if err := s.set.Runtime.Down(ctx, env, s.fresh); err != nil {
		return fmt.Errorf("failed to clear previous environment: %w", err)
	}
	if err := s.set.Runtime.Up(ctx, env); err != nil {
		return err
	}
	return nil
}

// Rollback stops and removes the environment including volumes on a
// fresh start. A resume rollback keeps volumes: the data predates this
// attempt and must survive it.
func (s *startEnvironment) Rollback(ctx context.Context, pc *pipeline.Context) error {
	return s.set.Runtime.Down(ctx, s.env(pc), s.fresh)
}
