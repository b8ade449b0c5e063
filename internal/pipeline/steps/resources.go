package steps

import (
	"context"
	"errors"
	"fmt"

	"storefleet/internal/pipeline"
	"storefleet/internal/store"
)

// allocateResources assigns a port and persists the plan-derived quota.
// Port allocation is skipped when the tenant already holds a valid
// assignment on this server from a previous attempt; an assignment on a
// different server is released first.
type allocateResources struct {
	set *Set
}

func (s *allocateResources) Name() string     { return "allocate-resources" }
func (s *allocateResources) BestEffort() bool { return false }

func (s *allocateResources) Execute(ctx context.Context, pc *pipeline.Context) error {
	port, err := s.ensurePort(ctx, pc)
	if err != nil {
		return err
	}
	pc.Port = port

	limits, err := s.set.Alloc.AllocateQuota(ctx, pc.Tenant.ID, pc.Tenant.Plan)
	if err != nil {
		return fmt.Errorf("failed to allocate quota: %w", err)
	}
	pc.Limits = limits

	if err := s.set.Store.SetTenantPlacement(ctx, nil, pc.Tenant.ID, pc.Server.ID, port); err != nil {
		return fmt.Errorf("failed to record placement: %w", err)
	}
	return nil
}

func (s *allocateResources) ensurePort(ctx context.Context, pc *pipeline.Context) (int, error) {
	existing, err := s.set.Store.GetPortAssignment(ctx, pc.Tenant.ID)
	switch {
	case err == nil:
		if existing.ServerID == pc.Server.ID &&
			existing.Port >= pc.Server.PortRangeStart &&
			existing.Port <= pc.Server.PortRangeEnd {
			// Still valid and still ours, reuse it.
			return existing.Port, nil
		}
		// Stale assignment on another server or outside the range.
		if err := s.set.Alloc.ReleasePort(ctx, existing.ServerID, existing.Port); err != nil {
			return 0, fmt.Errorf("failed to release stale port assignment: %w", err)
		}
	case !errors.Is(err, store.ErrNotFound):
		return 0, err
	}

	return s.set.Alloc.AllocatePort(ctx, pc.Server.ID, pc.Tenant.ID)
}

// Rollback releases the port and quota and clears the placement. Every
// release is idempotent, so rolling back a partially-allocated state is
// safe.
func (s *allocateResources) Rollback(ctx context.Context, pc *pipeline.Context) error {
	if pc.Port != 0 {
		if err := s.set.Alloc.ReleasePort(ctx, pc.Server.ID, pc.Port); err != nil {
			return err
		}
	}
	if err := s.set.Alloc.ReleaseQuota(ctx, pc.Tenant.ID); err != nil {
		return err
	}
	return s.set.Store.ClearTenantPlacement(ctx, nil, pc.Tenant.ID)
}
