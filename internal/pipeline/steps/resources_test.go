package steps

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"storefleet/internal/allocator"
	"storefleet/internal/pipeline"
	"storefleet/internal/store"

	"github.com/google/uuid"
)

// resourceStore backs both the step and the allocator. The embedded
// interface panics on anything a test did not expect.
type resourceStore struct {
	store.Store

	server     *store.Server
	assignment *store.PortAssignment

	assigned  []int
	released  []int
	quotas    map[uuid.UUID]*store.ResourceQuota
	placement *store.PortAssignment
	cleared   bool
}

func (f *resourceStore) GetServer(ctx context.Context, id uuid.UUID) (*store.Server, error) {
	return f.server, nil
}

func (f *resourceStore) GetPortAssignment(ctx context.Context, tenantID uuid.UUID) (*store.PortAssignment, error) {
	if f.assignment == nil {
		return nil, store.ErrNotFound
	}
	return f.assignment, nil
}

func (f *resourceStore) ListAssignedPorts(ctx context.Context, serverID uuid.UUID) ([]int, error) {
	return f.assigned, nil
}

func (f *resourceStore) AssignPort(ctx context.Context, serverID uuid.UUID, port int, tenantID uuid.UUID) error {
	f.assigned = append(f.assigned, port)
	return nil
}

func (f *resourceStore) ReleasePort(ctx context.Context, serverID uuid.UUID, port int) error {
	f.released = append(f.released, port)
	return nil
}

func (f *resourceStore) UpsertQuota(ctx context.Context, q *store.ResourceQuota) error {
	if f.quotas == nil {
		f.quotas = make(map[uuid.UUID]*store.ResourceQuota)
	}
	f.quotas[q.TenantID] = q
	return nil
}

func (f *resourceStore) DeleteQuota(ctx context.Context, tenantID uuid.UUID) error {
	delete(f.quotas, tenantID)
	return nil
}

func (f *resourceStore) SetTenantPlacement(ctx context.Context, tx store.DBTransaction, id uuid.UUID, serverID uuid.UUID, port int) error {
	f.placement = &store.PortAssignment{ServerID: serverID, Port: port, TenantID: id}
	return nil
}

func (f *resourceStore) ClearTenantPlacement(ctx context.Context, tx store.DBTransaction, id uuid.UUID) error {
	f.cleared = true
	return nil
}

func resourceFixture(t *testing.T) (*allocateResources, *resourceStore, *pipeline.Context) {
	t.Helper()
	fs := &resourceStore{
		server: &store.Server{
			ID:             uuid.New(),
			Name:           "web-01",
			PortRangeStart: 10000,
			PortRangeEnd:   10099,
		},
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	set := &Set{
		Store: fs,
		Alloc: allocator.New(fs, log),
		Log:   log,
	}
	pc := &pipeline.Context{
		Tenant: &store.Tenant{ID: uuid.New(), Plan: store.PlanBusiness},
		Server: fs.server,
	}
	return &allocateResources{set: set}, fs, pc
}

func TestAllocateResources_FreshTenant(t *testing.T) {
	step, fs, pc := resourceFixture(t)

	if err := step.Execute(context.Background(), pc); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if pc.Port != 10000 {
		t.Errorf("got port %d, want the first in range", pc.Port)
	}
	if pc.Limits.MemoryLimit != "2g" {
		t.Errorf("got memory limit %s, want the business tier 2g", pc.Limits.MemoryLimit)
	}
	if fs.placement == nil || fs.placement.Port != 10000 {
		t.Error("placement not recorded")
	}
	if fs.quotas[pc.Tenant.ID] == nil {
		t.Error("quota not persisted")
	}
}

func TestAllocateResources_ReusesPriorAssignment(t *testing.T) {
	step, fs, pc := resourceFixture(t)
	fs.assignment = &store.PortAssignment{
		ServerID: fs.server.ID, Port: 10042, TenantID: pc.Tenant.ID,
	}

	if err := step.Execute(context.Background(), pc); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if pc.Port != 10042 {
		t.Errorf("got port %d, want the reused 10042", pc.Port)
	}
	if len(fs.assigned) != 0 {
		t.Error("a retry with a valid assignment allocated a new port")
	}
}

func TestAllocateResources_ReleasesForeignAssignment(t *testing.T) {
	step, fs, pc := resourceFixture(t)
	fs.assignment = &store.PortAssignment{
		ServerID: uuid.New(), Port: 11042, TenantID: pc.Tenant.ID,
	}

	if err := step.Execute(context.Background(), pc); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if len(fs.released) != 1 || fs.released[0] != 11042 {
		t.Errorf("stale assignment not released: %v", fs.released)
	}
	if pc.Port != 10000 {
		t.Errorf("got port %d, want a fresh one in this server's range", pc.Port)
	}
}

func TestAllocateResources_Rollback(t *testing.T) {
	step, fs, pc := resourceFixture(t)
	if err := step.Execute(context.Background(), pc); err != nil {
		t.Fatal(err)
	}

	if err := step.Rollback(context.Background(), pc); err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}

	if len(fs.released) != 1 || fs.released[0] != pc.Port {
		t.Errorf("port not released on rollback: %v", fs.released)
	}
	if len(fs.quotas) != 0 {
		t.Error("quota not released on rollback")
	}
	if !fs.cleared {
		t.Error("placement not cleared on rollback")
	}
}

func TestGenerateCredentials_FreshPerAttempt(t *testing.T) {
	step := &generateCredentials{}
	pc := &pipeline.Context{Tenant: &store.Tenant{ID: uuid.New(), Name: "Acme Shop"}}

	if err := step.Execute(context.Background(), pc); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	first := pc.Creds
	if first == nil || first.AdminPassword == "" {
		t.Fatal("no credentials generated")
	}

	if err := step.Execute(context.Background(), pc); err != nil {
		t.Fatal(err)
	}
	if pc.Creds.AdminPassword == first.AdminPassword {
		t.Error("second attempt reused the previous password")
	}
}
