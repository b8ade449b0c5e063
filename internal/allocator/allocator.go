// Package allocator assigns exclusive ports and plan-derived resource
// quotas to tenants. Exclusivity is arbitrated by the storage layer's
// unique constraints so that allocation stays correct when attempted
// from different worker processes.
package allocator

import (
	"context"
	"errors"
	"log/slog"

	"storefleet/internal/store"

	"github.com/google/uuid"
)

// PlanLimits are the per-tenant ceilings derived from the plan tier.
// Disk and bandwidth are enforced by the quota monitor; memory and CPU
// are injected into the environment definition at render time.
type PlanLimits struct {
	DiskBytes      int64
	BandwidthBytes int64
	MemoryLimit    string
	CPULimit       string
}

const gib = int64(1) << 30

var planLimits = map[store.PlanTier]PlanLimits{
	store.PlanStarter:    {DiskBytes: 5 * gib, BandwidthBytes: 50 * gib, MemoryLimit: "1g", CPULimit: "1.0"},
	store.PlanBusiness:   {DiskBytes: 20 * gib, BandwidthBytes: 200 * gib, MemoryLimit: "2g", CPULimit: "2.0"},
	store.PlanEnterprise: {DiskBytes: 100 * gib, BandwidthBytes: 1000 * gib, MemoryLimit: "4g", CPULimit: "4.0"},
}

// LimitsForPlan returns the ceilings for a plan tier, defaulting to the
// starter tier for unknown values.
func LimitsForPlan(plan store.PlanTier) PlanLimits {
	if l, ok := planLimits[plan]; ok {
		return l
	}
	return planLimits[store.PlanStarter]
}

// Store is the persistence surface the allocator needs.
type Store interface {
	store.PortStore
	GetServer(ctx context.Context, id uuid.UUID) (*store.Server, error)
	UpsertQuota(ctx context.Context, q *store.ResourceQuota) error
	DeleteQuota(ctx context.Context, tenantID uuid.UUID) error
}

// Allocator hands out ports within a server's configured range and
// persists plan-derived quotas.
type Allocator struct {
	store Store
	log   *slog.Logger
}

func New(s Store, log *slog.Logger) *Allocator {
	return &Allocator{store: s, log: log}
}

// AllocatePort scans the server's range for the lowest free port and
// commits the assignment. Under concurrent calls the losing writer gets
// ErrPortTaken from the store and retries against the next candidate.
func (a *Allocator) AllocatePort(ctx context.Context, serverID, tenantID uuid.UUID) (int, error) {
	srv, err := a.store.GetServer(ctx, serverID)
	if err != nil {
		return 0, err
	}

	assigned, err := a.store.ListAssignedPorts(ctx, serverID)
	if err != nil {
		return 0, err
	}
	taken := make(map[int]struct{}, len(assigned))
	for _, p := range assigned {
		taken[p] = struct{}{}
	}

	for port := srv.PortRangeStart; port <= srv.PortRangeEnd; port++ {
		if _, ok := taken[port]; ok {
			continue
		}
		err := a.store.AssignPort(ctx, serverID, port, tenantID)
		if err == nil {
			a.log.Info("port allocated",
				"server_id", serverID, "tenant_id", tenantID, "port", port)
			return port, nil
		}
		if errors.Is(err, store.ErrPortTaken) {
			// Lost the race on this candidate, try the next one.
			continue
		}
		return 0, err
	}

	return 0, &store.ResourceExhaustedError{Resource: "ports", ServerID: serverID}
}

// ReleasePort frees the assignment. Idempotent: releasing a free port
// is a no-op.
func (a *Allocator) ReleasePort(ctx context.Context, serverID uuid.UUID, port int) error {
	return a.store.ReleasePort(ctx, serverID, port)
}

// AllocateQuota persists the plan-derived byte ceilings for the tenant.
// It does not enforce consumption; the quota monitor does that.
func (a *Allocator) AllocateQuota(ctx context.Context, tenantID uuid.UUID, plan store.PlanTier) (PlanLimits, error) {
	limits := LimitsForPlan(plan)
	err := a.store.UpsertQuota(ctx, &store.ResourceQuota{
		TenantID:            tenantID,
		DiskLimitBytes:      limits.DiskBytes,
		BandwidthLimitBytes: limits.BandwidthBytes,
	})
	if err != nil {
		return PlanLimits{}, err
	}
	return limits, nil
}

// ReleaseQuota removes the tenant's quota grant. Idempotent.
func (a *Allocator) ReleaseQuota(ctx context.Context, tenantID uuid.UUID) error {
	return a.store.DeleteQuota(ctx, tenantID)
}
