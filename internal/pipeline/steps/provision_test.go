package steps

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"storefleet/internal/allocator"
	"storefleet/internal/certs"
	"storefleet/internal/notify"
	"storefleet/internal/pipeline"
	"storefleet/internal/proxy"
	"storefleet/internal/runtime"
	"storefleet/internal/secrets"
	"storefleet/internal/store"

	"github.com/google/uuid"
)

// provisionStore backs a full provision run: the runner, the steps and
// the allocator all share it. The embedded interface panics on anything
// a test did not expect.
type provisionStore struct {
	store.Store

	tenant *store.Tenant
	server *store.Server

	held       map[int]uuid.UUID
	assignment *store.PortAssignment
	quotas     map[uuid.UUID]*store.ResourceQuota

	statusUpdates []store.TenantStatus
	failedSteps   []string
	completed     int
	sealed        []byte
}

func (f *provisionStore) GetTenant(ctx context.Context, id uuid.UUID) (*store.Tenant, error) {
	return f.tenant, nil
}

func (f *provisionStore) GetServer(ctx context.Context, id uuid.UUID) (*store.Server, error) {
	return f.server, nil
}

func (f *provisionStore) UpdateTenantStatus(ctx context.Context, tx store.DBTransaction, id uuid.UUID, status store.TenantStatus, errMsg *string) error {
	f.statusUpdates = append(f.statusUpdates, status)
	f.tenant.Status = status
	f.tenant.LastError = errMsg
	return nil
}

func (f *provisionStore) SetJobCursor(ctx context.Context, jobID uuid.UUID, cursor int) error {
	return nil
}

func (f *provisionStore) CompleteJob(ctx context.Context, jobID uuid.UUID) error {
	f.completed++
	return nil
}

func (f *provisionStore) FailJob(ctx context.Context, jobID uuid.UUID, step, errMsg string) error {
	f.failedSteps = append(f.failedSteps, step)
	return nil
}

func (f *provisionStore) GetPortAssignment(ctx context.Context, tenantID uuid.UUID) (*store.PortAssignment, error) {
	if f.assignment == nil {
		return nil, store.ErrNotFound
	}
	return f.assignment, nil
}

func (f *provisionStore) ListAssignedPorts(ctx context.Context, serverID uuid.UUID) ([]int, error) {
	ports := make([]int, 0, len(f.held))
	for p := range f.held {
		ports = append(ports, p)
	}
	return ports, nil
}

func (f *provisionStore) AssignPort(ctx context.Context, serverID uuid.UUID, port int, tenantID uuid.UUID) error {
	f.held[port] = tenantID
	f.assignment = &store.PortAssignment{ServerID: serverID, Port: port, TenantID: tenantID}
	return nil
}

func (f *provisionStore) ReleasePort(ctx context.Context, serverID uuid.UUID, port int) error {
	delete(f.held, port)
	f.assignment = nil
	return nil
}

func (f *provisionStore) UpsertQuota(ctx context.Context, q *store.ResourceQuota) error {
	f.quotas[q.TenantID] = q
	return nil
}

func (f *provisionStore) DeleteQuota(ctx context.Context, tenantID uuid.UUID) error {
	delete(f.quotas, tenantID)
	return nil
}

func (f *provisionStore) SetTenantPlacement(ctx context.Context, tx store.DBTransaction, id uuid.UUID, serverID uuid.UUID, port int) error {
	f.tenant.ServerID = &serverID
	f.tenant.Port = &port
	return nil
}

func (f *provisionStore) ClearTenantPlacement(ctx context.Context, tx store.DBTransaction, id uuid.UUID) error {
	f.tenant.ServerID = nil
	f.tenant.Port = nil
	return nil
}

func (f *provisionStore) SetTenantCredentials(ctx context.Context, id uuid.UUID, sealed []byte) error {
	f.sealed = sealed
	return nil
}

// envRuntime tracks which tenant environments are currently up and can
// fail the next N Up calls.
type envRuntime struct {
	failUps int
	running map[uuid.UUID]bool
}

func (r *envRuntime) Up(ctx context.Context, env runtime.Environment) error {
	if r.failUps > 0 {
		r.failUps--
		return errors.New("container exited during startup")
	}
	r.running[env.TenantID] = true
	return nil
}

func (r *envRuntime) Down(ctx context.Context, env runtime.Environment, removeVolumes bool) error {
	delete(r.running, env.TenantID)
	return nil
}

func (r *envRuntime) Containers(ctx context.Context, tenantID uuid.UUID) ([]runtime.ContainerState, error) {
	return nil, nil
}

type routeTable struct {
	routes map[uuid.UUID]proxy.Route
}

func (rt *routeTable) WriteRoute(ctx context.Context, r proxy.Route) error {
	rt.routes[r.TenantID] = r
	return nil
}

func (rt *routeTable) RemoveRoute(ctx context.Context, tenantID uuid.UUID) error {
	delete(rt.routes, tenantID)
	return nil
}

// TestProvision_FailedStartThenRetryConverges runs the real provision
// sequence through the runner twice: the first attempt dies when the
// environment refuses to start, the retry succeeds. After both runs
// exactly one environment, one port assignment and one route exist.
func TestProvision_FailedStartThenRetryConverges(t *testing.T) {
	port := loopbackServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	fs := &provisionStore{
		tenant: &store.Tenant{
			ID:       uuid.New(),
			Name:     "Acme Shop",
			Domain:   "shop.example.com",
			Platform: store.PlatformWooCommerce,
			Plan:     store.PlanBusiness,
			Status:   store.TenantStatusPending,
		},
		server: &store.Server{
			ID:             uuid.New(),
			Name:           "web-01",
			PortRangeStart: port,
			PortRangeEnd:   port,
		},
		held:   make(map[int]uuid.UUID),
		quotas: make(map[uuid.UUID]*store.ResourceQuota),
	}
	rt := &envRuntime{failUps: 1, running: make(map[uuid.UUID]bool)}
	routes := &routeTable{routes: make(map[uuid.UUID]proxy.Route)}

	sealer, err := secrets.NewSealer(strings.Repeat("ab", 32))
	if err != nil {
		t.Fatal(err)
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	set := &Set{
		Store:          fs,
		Alloc:          allocator.New(fs, log),
		Runtime:        rt,
		Routes:         routes,
		Issuer:         certs.NopIssuer{},
		Notifier:       notify.NopNotifier{},
		Sealer:         sealer,
		WorkspaceRoot:  t.TempDir(),
		HealthTimeout:  2 * time.Second,
		HealthInterval: 10 * time.Millisecond,
		Log:            log,
	}
	runner := pipeline.NewRunner(fs, set.Sequences(), log)

	job := &store.ProvisioningJob{
		ID: uuid.New(), TenantID: fs.tenant.ID, ServerID: fs.server.ID,
		Kind: store.JobKindProvision,
	}
	err = runner.Run(context.Background(), job)
	var stepErr *pipeline.StepError
	if !errors.As(err, &stepErr) || stepErr.Step != "start-environment" {
		t.Fatalf("got %v, want a start-environment step failure", err)
	}
	if fs.tenant.Status != store.TenantStatusFailed {
		t.Fatalf("got status %s after the failed attempt, want failed", fs.tenant.Status)
	}

	// The rollback walk must have released everything the attempt held.
	if len(rt.running) != 0 {
		t.Errorf("%d environments up after rollback, want 0", len(rt.running))
	}
	if len(fs.held) != 0 {
		t.Errorf("ports still held after rollback: %v", fs.held)
	}
	if len(fs.quotas) != 0 {
		t.Error("quota survived the rollback")
	}
	if fs.tenant.ServerID != nil {
		t.Error("placement survived the rollback")
	}

	retry := &store.ProvisioningJob{
		ID: uuid.New(), TenantID: fs.tenant.ID, ServerID: fs.server.ID,
		Kind: store.JobKindProvision,
	}
	if err := runner.Run(context.Background(), retry); err != nil {
		t.Fatalf("retry failed: %v", err)
	}

	if fs.tenant.Status != store.TenantStatusActive {
		t.Fatalf("got status %s after retry, want active", fs.tenant.Status)
	}
	if len(rt.running) != 1 || !rt.running[fs.tenant.ID] {
		t.Errorf("got %d environments up, want exactly the tenant's", len(rt.running))
	}
	if len(fs.held) != 1 || fs.held[port] != fs.tenant.ID {
		t.Errorf("got held ports %v, want exactly %d for the tenant", fs.held, port)
	}
	if len(routes.routes) != 1 {
		t.Fatalf("got %d routes, want exactly 1", len(routes.routes))
	}
	if r := routes.routes[fs.tenant.ID]; r.Port != port || r.TLS {
		t.Errorf("got route %+v, want plain HTTP to port %d", r, port)
	}
	if len(fs.quotas) != 1 {
		t.Errorf("got %d quotas, want 1", len(fs.quotas))
	}
	if fs.tenant.Port == nil || *fs.tenant.Port != port {
		t.Error("placement not recorded on the tenant")
	}
	if fs.sealed == nil {
		t.Error("credentials not persisted")
	}
	if fs.completed != 1 {
		t.Errorf("got %d completed jobs, want 1", fs.completed)
	}
	if len(fs.failedSteps) != 1 || fs.failedSteps[0] != "start-environment" {
		t.Errorf("got failed steps %v, want the one failed start", fs.failedSteps)
	}
	if _, err := os.Stat(filepath.Join(set.WorkspaceRoot, fs.tenant.ID.String(), composeFileName)); err != nil {
		t.Errorf("rendered environment definition missing: %v", err)
	}
}
