package handlers

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"storefleet/internal/coordinator"
	"storefleet/internal/store"
	"storefleet/pkg/api"

	"github.com/google/uuid"
)

// fakeFactory implements the slice of StoreFactory the handlers touch.
// The embedded interface panics on anything a test did not expect.
type fakeFactory struct {
	StoreFactory

	tenants map[uuid.UUID]*store.Tenant
	servers map[uuid.UUID]*store.Server

	created    *store.Tenant
	createErr  error
	enqueued   []store.JobKind
	enqueueErr error
	suspended  bool
	deleted    bool
	deleteTx   store.DBTransaction
	tx         *fakeTx
	inflight   *store.ProvisioningJob
	jobs       []store.ProvisioningJob
	pingErr    error
}

// fakeTx records whether the handler committed the transaction it opened.
type fakeTx struct {
	committed  bool
	rolledBack bool
}

func (t *fakeTx) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return nil, nil
}

func (t *fakeTx) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return nil, nil
}

func (t *fakeTx) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return nil
}

func (t *fakeTx) Commit() error   { t.committed = true; return nil }
func (t *fakeTx) Rollback() error { t.rolledBack = true; return nil }

func newFakeFactory() *fakeFactory {
	return &fakeFactory{
		tenants: make(map[uuid.UUID]*store.Tenant),
		servers: make(map[uuid.UUID]*store.Server),
	}
}

func (f *fakeFactory) Ping(ctx context.Context) error { return f.pingErr }

func (f *fakeFactory) BeginTx(ctx context.Context) (store.Tx, error) {
	f.tx = &fakeTx{}
	return f.tx, nil
}

func (f *fakeFactory) GetTenantByDomain(ctx context.Context, domain string) (*store.Tenant, error) {
	for _, t := range f.tenants {
		if t.Domain == domain {
			return t, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeFactory) GetInFlightJob(ctx context.Context, tenantID uuid.UUID) (*store.ProvisioningJob, error) {
	if f.inflight == nil {
		return nil, store.ErrNotFound
	}
	return f.inflight, nil
}

func (f *fakeFactory) CreateTenant(ctx context.Context, tx store.DBTransaction, t *store.Tenant) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = t
	f.tenants[t.ID] = t
	return nil
}

func (f *fakeFactory) GetTenant(ctx context.Context, id uuid.UUID) (*store.Tenant, error) {
	t, ok := f.tenants[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return t, nil
}

func (f *fakeFactory) GetServer(ctx context.Context, id uuid.UUID) (*store.Server, error) {
	s, ok := f.servers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return s, nil
}

func (f *fakeFactory) EnqueueJob(ctx context.Context, tenantID, serverID uuid.UUID, kind store.JobKind) (*store.ProvisioningJob, error) {
	if f.enqueueErr != nil {
		return nil, f.enqueueErr
	}
	f.enqueued = append(f.enqueued, kind)
	return &store.ProvisioningJob{
		ID:       uuid.New(),
		TenantID: tenantID,
		ServerID: serverID,
		Kind:     kind,
		Status:   store.JobStatusQueued,
	}, nil
}

func (f *fakeFactory) SuspendTenant(ctx context.Context, id uuid.UUID, reason string, auto bool) error {
	f.suspended = true
	return nil
}

func (f *fakeFactory) DeleteTenant(ctx context.Context, tx store.DBTransaction, id uuid.UUID) error {
	f.deleted = true
	f.deleteTx = tx
	delete(f.tenants, id)
	return nil
}

func (f *fakeFactory) ListJobsForTenant(ctx context.Context, tenantID uuid.UUID, limit int) ([]store.ProvisioningJob, error) {
	return f.jobs, nil
}

type fakePlacer struct {
	server  *store.Server
	pickErr error
	status  *coordinator.FleetStatus
}

func (f *fakePlacer) PickServer(ctx context.Context, hint string) (*store.Server, error) {
	if f.pickErr != nil {
		return nil, f.pickErr
	}
	return f.server, nil
}

func (f *fakePlacer) Status(ctx context.Context) (*coordinator.FleetStatus, error) {
	return f.status, nil
}

func newTestRouter(fs *fakeFactory, p *fakePlacer) http.Handler {
	h := New(fs, p)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /stores", h.CreateStore)
	mux.HandleFunc("GET /stores/{id}", h.GetStore)
	mux.HandleFunc("GET /stores/{id}/jobs", h.ListStoreJobs)
	mux.HandleFunc("POST /stores/{id}/retry", h.RetryStore)
	mux.HandleFunc("POST /stores/{id}/suspend", h.SuspendStore)
	mux.HandleFunc("POST /stores/{id}/resume", h.ResumeStore)
	mux.HandleFunc("DELETE /stores/{id}", h.DeleteStore)
	return mux
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func validCreateRequest() api.CreateStoreRequest {
	return api.CreateStoreRequest{
		Name:     "Acme Shop",
		Domain:   "shop.example.com",
		Platform: "woocommerce",
		Plan:     "business",
	}
}

func TestCreateStore_Accepted(t *testing.T) {
	fs := newFakeFactory()
	p := &fakePlacer{server: &store.Server{ID: uuid.New(), Name: "web-01"}}
	router := newTestRouter(fs, p)

	rec := doJSON(t, router, http.MethodPost, "/stores", validCreateRequest())

	if rec.Code != http.StatusAccepted {
		t.Fatalf("got status %d, want 202: %s", rec.Code, rec.Body)
	}

	var resp api.CreateStoreResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "pending" {
		t.Errorf("got status %q, want pending", resp.Status)
	}
	if resp.JobID == "" || resp.TenantID == "" {
		t.Error("response missing ids")
	}

	if fs.created == nil || fs.created.Status != store.TenantStatusPending {
		t.Error("tenant not created in pending")
	}
	if fs.created.CreatedAt.IsZero() {
		t.Error("tenant created without a creation time")
	}
	if len(fs.enqueued) != 1 || fs.enqueued[0] != store.JobKindProvision {
		t.Errorf("enqueued %v, want one provision job", fs.enqueued)
	}
}

func TestCreateStore_ValidationFailure(t *testing.T) {
	fs := newFakeFactory()
	router := newTestRouter(fs, &fakePlacer{})

	req := validCreateRequest()
	req.Platform = "shopify"
	rec := doJSON(t, router, http.MethodPost, "/stores", req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("got status %d, want 422: %s", rec.Code, rec.Body)
	}
	if fs.created != nil {
		t.Error("invalid request still created a tenant")
	}

	var resp api.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(resp.Details, "Platform") {
		t.Errorf("details should name the failing field: %q", resp.Details)
	}
}

func TestCreateStore_InvalidJSON(t *testing.T) {
	router := newTestRouter(newFakeFactory(), &fakePlacer{})

	req := httptest.NewRequest(http.MethodPost, "/stores", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want 400", rec.Code)
	}
}

func TestCreateStore_DuplicateDomain(t *testing.T) {
	fs := newFakeFactory()
	fs.createErr = store.ErrDuplicateDomain
	p := &fakePlacer{server: &store.Server{ID: uuid.New()}}
	router := newTestRouter(fs, p)

	rec := doJSON(t, router, http.MethodPost, "/stores", validCreateRequest())
	if rec.Code != http.StatusConflict {
		t.Fatalf("got status %d, want 409", rec.Code)
	}
}

func TestCreateStore_DuplicateDomainCheckedBeforePlacement(t *testing.T) {
	fs := newFakeFactory()
	existing := &store.Tenant{ID: uuid.New(), Domain: "shop.example.com"}
	fs.tenants[existing.ID] = existing

	// PickServer failing proves the handler rejected before placement.
	p := &fakePlacer{pickErr: coordinator.ErrNoCapacity}
	router := newTestRouter(fs, p)

	rec := doJSON(t, router, http.MethodPost, "/stores", validCreateRequest())
	if rec.Code != http.StatusConflict {
		t.Fatalf("got status %d, want 409: %s", rec.Code, rec.Body)
	}
	if fs.created != nil {
		t.Error("duplicate domain still created a tenant")
	}
}

func TestCreateStore_NoCapacity(t *testing.T) {
	fs := newFakeFactory()
	p := &fakePlacer{pickErr: coordinator.ErrNoCapacity}
	router := newTestRouter(fs, p)

	rec := doJSON(t, router, http.MethodPost, "/stores", validCreateRequest())
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("got status %d, want 503", rec.Code)
	}
	if fs.created != nil {
		t.Error("tenant created despite no capacity")
	}
}

func TestCreateStore_HintUnavailable(t *testing.T) {
	fs := newFakeFactory()
	p := &fakePlacer{pickErr: coordinator.ErrServerUnavailable}
	router := newTestRouter(fs, p)

	req := validCreateRequest()
	req.Server = "web-09"
	rec := doJSON(t, router, http.MethodPost, "/stores", req)
	if rec.Code != http.StatusConflict {
		t.Fatalf("got status %d, want 409", rec.Code)
	}
}

func TestGetStore(t *testing.T) {
	fs := newFakeFactory()
	srv := &store.Server{ID: uuid.New(), Name: "web-01"}
	fs.servers[srv.ID] = srv

	port := 10042
	tenant := &store.Tenant{
		ID:       uuid.New(),
		Name:     "Acme Shop",
		Domain:   "shop.example.com",
		Status:   store.TenantStatusActive,
		ServerID: &srv.ID,
		Port:     &port,
	}
	fs.tenants[tenant.ID] = tenant
	router := newTestRouter(fs, &fakePlacer{})

	rec := doJSON(t, router, http.MethodGet, "/stores/"+tenant.ID.String(), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", rec.Code)
	}

	var resp api.StoreResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Server != "web-01" {
		t.Errorf("got server %q, want web-01", resp.Server)
	}
	if resp.Port == nil || *resp.Port != 10042 {
		t.Error("response missing the assigned port")
	}
}

func TestGetStore_IncludesInFlightJob(t *testing.T) {
	fs := newFakeFactory()
	tenant := &store.Tenant{ID: uuid.New(), Status: store.TenantStatusProvisioning}
	fs.tenants[tenant.ID] = tenant
	fs.inflight = &store.ProvisioningJob{
		ID: uuid.New(), TenantID: tenant.ID,
		Kind: store.JobKindProvision, Status: store.JobStatusRunning,
	}
	router := newTestRouter(fs, &fakePlacer{})

	rec := doJSON(t, router, http.MethodGet, "/stores/"+tenant.ID.String(), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", rec.Code)
	}

	var resp api.StoreResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Job == nil {
		t.Fatal("response missing the in-flight job")
	}
	if resp.Job.Status != "running" || resp.Job.Kind != "provision" {
		t.Errorf("got job %+v, want the running provision job", resp.Job)
	}
}

func TestGetStore_NotFound(t *testing.T) {
	router := newTestRouter(newFakeFactory(), &fakePlacer{})

	rec := doJSON(t, router, http.MethodGet, "/stores/"+uuid.NewString(), nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("got status %d, want 404", rec.Code)
	}
}

func TestGetStore_BadID(t *testing.T) {
	router := newTestRouter(newFakeFactory(), &fakePlacer{})

	rec := doJSON(t, router, http.MethodGet, "/stores/not-a-uuid", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want 400", rec.Code)
	}
}

func TestRetryStore_OnlyFailedOrPending(t *testing.T) {
	fs := newFakeFactory()
	tenant := &store.Tenant{ID: uuid.New(), Status: store.TenantStatusActive}
	fs.tenants[tenant.ID] = tenant
	router := newTestRouter(fs, &fakePlacer{})

	rec := doJSON(t, router, http.MethodPost, "/stores/"+tenant.ID.String()+"/retry", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("got status %d, want 409", rec.Code)
	}
	if len(fs.enqueued) != 0 {
		t.Error("retry of an active store enqueued a job")
	}
}

func TestRetryStore_ReusesExistingPlacement(t *testing.T) {
	fs := newFakeFactory()
	serverID := uuid.New()
	tenant := &store.Tenant{ID: uuid.New(), Status: store.TenantStatusFailed, ServerID: &serverID}
	fs.tenants[tenant.ID] = tenant

	// PickServer failing proves the handler never called it.
	p := &fakePlacer{pickErr: coordinator.ErrNoCapacity}
	router := newTestRouter(fs, p)

	rec := doJSON(t, router, http.MethodPost, "/stores/"+tenant.ID.String()+"/retry", nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("got status %d, want 202: %s", rec.Code, rec.Body)
	}
	if len(fs.enqueued) != 1 || fs.enqueued[0] != store.JobKindProvision {
		t.Errorf("enqueued %v, want one provision job", fs.enqueued)
	}
}

func TestSuspendStore(t *testing.T) {
	fs := newFakeFactory()
	serverID := uuid.New()
	tenant := &store.Tenant{ID: uuid.New(), Status: store.TenantStatusActive, ServerID: &serverID}
	fs.tenants[tenant.ID] = tenant
	router := newTestRouter(fs, &fakePlacer{})

	rec := doJSON(t, router, http.MethodPost, "/stores/"+tenant.ID.String()+"/suspend",
		api.SuspendStoreRequest{Reason: "payment overdue"})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("got status %d, want 202: %s", rec.Code, rec.Body)
	}
	if !fs.suspended {
		t.Error("tenant not marked suspended")
	}
	if len(fs.enqueued) != 1 || fs.enqueued[0] != store.JobKindSuspend {
		t.Errorf("enqueued %v, want one suspend job", fs.enqueued)
	}
}

func TestSuspendStore_InFlightLeavesTenantActive(t *testing.T) {
	fs := newFakeFactory()
	serverID := uuid.New()
	tenant := &store.Tenant{ID: uuid.New(), Status: store.TenantStatusActive, ServerID: &serverID}
	fs.tenants[tenant.ID] = tenant
	fs.enqueueErr = store.ErrAlreadyInFlight
	router := newTestRouter(fs, &fakePlacer{})

	rec := doJSON(t, router, http.MethodPost, "/stores/"+tenant.ID.String()+"/suspend",
		api.SuspendStoreRequest{Reason: "payment overdue"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("got status %d, want 409", rec.Code)
	}
	// The rejected request must not have recorded the suspension while
	// the containers keep running, which would also block a re-suspend.
	if fs.suspended {
		t.Error("tenant marked suspended despite the rejected stop job")
	}
}

func TestSuspendStore_RequiresReason(t *testing.T) {
	fs := newFakeFactory()
	serverID := uuid.New()
	tenant := &store.Tenant{ID: uuid.New(), Status: store.TenantStatusActive, ServerID: &serverID}
	fs.tenants[tenant.ID] = tenant
	router := newTestRouter(fs, &fakePlacer{})

	rec := doJSON(t, router, http.MethodPost, "/stores/"+tenant.ID.String()+"/suspend",
		api.SuspendStoreRequest{})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("got status %d, want 422", rec.Code)
	}
}

func TestSuspendStore_WrongState(t *testing.T) {
	fs := newFakeFactory()
	tenant := &store.Tenant{ID: uuid.New(), Status: store.TenantStatusSuspended}
	fs.tenants[tenant.ID] = tenant
	router := newTestRouter(fs, &fakePlacer{})

	rec := doJSON(t, router, http.MethodPost, "/stores/"+tenant.ID.String()+"/suspend",
		api.SuspendStoreRequest{Reason: "payment overdue"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("got status %d, want 409", rec.Code)
	}
}

func TestResumeStore_AlreadyInFlight(t *testing.T) {
	fs := newFakeFactory()
	serverID := uuid.New()
	tenant := &store.Tenant{ID: uuid.New(), Status: store.TenantStatusSuspended, ServerID: &serverID}
	fs.tenants[tenant.ID] = tenant
	fs.enqueueErr = store.ErrAlreadyInFlight
	router := newTestRouter(fs, &fakePlacer{})

	rec := doJSON(t, router, http.MethodPost, "/stores/"+tenant.ID.String()+"/resume", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("got status %d, want 409", rec.Code)
	}
}

func TestDeleteStore_PlacedEnqueuesTeardown(t *testing.T) {
	fs := newFakeFactory()
	serverID := uuid.New()
	tenant := &store.Tenant{ID: uuid.New(), Status: store.TenantStatusActive, ServerID: &serverID}
	fs.tenants[tenant.ID] = tenant
	router := newTestRouter(fs, &fakePlacer{})

	rec := doJSON(t, router, http.MethodDelete, "/stores/"+tenant.ID.String(), nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("got status %d, want 202", rec.Code)
	}
	if fs.deleted {
		t.Error("placed tenant deleted inline instead of torn down")
	}
	if len(fs.enqueued) != 1 || fs.enqueued[0] != store.JobKindTeardown {
		t.Errorf("enqueued %v, want one teardown job", fs.enqueued)
	}
}

func TestDeleteStore_UnplacedDeletesInline(t *testing.T) {
	fs := newFakeFactory()
	tenant := &store.Tenant{ID: uuid.New(), Status: store.TenantStatusFailed}
	fs.tenants[tenant.ID] = tenant
	router := newTestRouter(fs, &fakePlacer{})

	rec := doJSON(t, router, http.MethodDelete, "/stores/"+tenant.ID.String(), nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("got status %d, want 204", rec.Code)
	}
	if !fs.deleted {
		t.Error("unplaced tenant not deleted")
	}
	if len(fs.enqueued) != 0 {
		t.Error("unplaced tenant got a teardown job")
	}
	if fs.tx == nil || !fs.tx.committed {
		t.Error("delete did not commit a transaction")
	}
	if fs.deleteTx != fs.tx {
		t.Error("delete ran outside the opened transaction")
	}
}

func TestListStoreJobs(t *testing.T) {
	fs := newFakeFactory()
	tenant := &store.Tenant{ID: uuid.New(), Status: store.TenantStatusActive}
	fs.tenants[tenant.ID] = tenant
	step := "start_environment"
	msg := "container refused to start"
	fs.jobs = []store.ProvisioningJob{
		{ID: uuid.New(), TenantID: tenant.ID, Kind: store.JobKindProvision, Status: store.JobStatusFailed, ErrorStep: &step, ErrorMessage: &msg},
		{ID: uuid.New(), TenantID: tenant.ID, Kind: store.JobKindProvision, Status: store.JobStatusQueued},
	}
	router := newTestRouter(fs, &fakePlacer{})

	rec := doJSON(t, router, http.MethodGet, "/stores/"+tenant.ID.String()+"/jobs", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", rec.Code)
	}

	var resp []api.JobResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp) != 2 {
		t.Fatalf("got %d jobs, want 2", len(resp))
	}
	if resp[0].ErrorStep == nil || *resp[0].ErrorStep != "start_environment" {
		t.Error("failed job missing its error step")
	}
}
