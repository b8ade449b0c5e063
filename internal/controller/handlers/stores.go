package handlers

import (
	"errors"
	"net/http"
	"time"

	"storefleet/internal/coordinator"
	"storefleet/internal/store"
	"storefleet/pkg/api"

	"github.com/google/uuid"
)

// CreateStore handles POST /stores. Validation failures are rejected
// before anything is persisted; on success the tenant exists in
// pending and a provision job is queued for the picked server.
func (h *Handlers) CreateStore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.CreateStoreRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	// Cheap duplicate check before placement runs; the unique constraint
	// on tenants.domain stays the arbiter under concurrent requests.
	if _, err := h.store.GetTenantByDomain(ctx, req.Domain); err == nil {
		h.httpError(w, "Domain is already registered", http.StatusConflict)
		return
	} else if !errors.Is(err, store.ErrNotFound) {
		h.httpError(w, "Failed to create store", http.StatusInternalServerError)
		return
	}

	srv, err := h.placer.PickServer(ctx, req.Server)
	if err != nil {
		switch {
		case errors.Is(err, coordinator.ErrNoCapacity):
			h.httpError(w, "No server with available capacity", http.StatusServiceUnavailable)
		case errors.Is(err, coordinator.ErrServerUnavailable):
			h.httpError(w, err.Error(), http.StatusConflict)
		default:
			h.httpError(w, "Failed to pick a server", http.StatusInternalServerError)
		}
		return
	}

	tenant := &store.Tenant{
		ID:        uuid.New(),
		Name:      req.Name,
		Domain:    req.Domain,
		Platform:  store.Platform(req.Platform),
		Plan:      store.PlanTier(req.Plan),
		Status:    store.TenantStatusPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.store.CreateTenant(ctx, nil, tenant); err != nil {
		if errors.Is(err, store.ErrDuplicateDomain) {
			h.httpError(w, "Domain is already registered", http.StatusConflict)
			return
		}
		h.httpError(w, "Failed to create store", http.StatusInternalServerError)
		return
	}

	job, err := h.store.EnqueueJob(ctx, tenant.ID, srv.ID, store.JobKindProvision)
	if err != nil {
		// The tenant row stays pending; a retry re-enqueues.
		h.httpError(w, "Failed to queue provisioning", http.StatusInternalServerError)
		return
	}

	h.respondJson(w, http.StatusAccepted, api.CreateStoreResponse{
		TenantID: tenant.ID.String(),
		JobID:    job.ID.String(),
		Status:   string(tenant.Status),
	})
}

// GetStore handles GET /stores/{id}. The response carries the queued
// or running job, if any, so one call shows where a store stands.
func (h *Handlers) GetStore(w http.ResponseWriter, r *http.Request) {
	tenant, ok := h.tenantFromPath(w, r)
	if !ok {
		return
	}

	resp := toStoreResponse(tenant)
	if tenant.ServerID != nil {
		if srv, err := h.store.GetServer(r.Context(), *tenant.ServerID); err == nil {
			resp.Server = srv.Name
		}
	}
	if job, err := h.store.GetInFlightJob(r.Context(), tenant.ID); err == nil {
		jr := toJobResponse(job)
		resp.Job = &jr
	}
	h.respondJson(w, http.StatusOK, resp)
}

// ListStoreJobs handles GET /stores/{id}/jobs, newest first.
func (h *Handlers) ListStoreJobs(w http.ResponseWriter, r *http.Request) {
	tenant, ok := h.tenantFromPath(w, r)
	if !ok {
		return
	}

	jobs, err := h.store.ListJobsForTenant(r.Context(), tenant.ID, 20)
	if err != nil {
		h.httpError(w, "Failed to list jobs", http.StatusInternalServerError)
		return
	}

	resp := make([]api.JobResponse, 0, len(jobs))
	for _, j := range jobs {
		resp = append(resp, toJobResponse(&j))
	}
	h.respondJson(w, http.StatusOK, resp)
}

// RetryStore handles POST /stores/{id}/retry. Only failed tenants may
// be retried; the retry reuses the existing placement server when one
// is held, otherwise placement runs again.
func (h *Handlers) RetryStore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenant, ok := h.tenantFromPath(w, r)
	if !ok {
		return
	}

	if tenant.Status != store.TenantStatusFailed && tenant.Status != store.TenantStatusPending {
		h.httpError(w, "Only failed or pending stores can be retried", http.StatusConflict)
		return
	}

	var serverID uuid.UUID
	if tenant.ServerID != nil {
		serverID = *tenant.ServerID
	} else {
		srv, err := h.placer.PickServer(ctx, "")
		if err != nil {
			if errors.Is(err, coordinator.ErrNoCapacity) {
				h.httpError(w, "No server with available capacity", http.StatusServiceUnavailable)
				return
			}
			h.httpError(w, "Failed to pick a server", http.StatusInternalServerError)
			return
		}
		serverID = srv.ID
	}

	h.enqueue(w, r, tenant.ID, serverID, store.JobKindProvision)
}

// SuspendStore handles POST /stores/{id}/suspend. The stop job is
// queued before the suspension is recorded: if the tenant already has a
// job in flight the request is rejected with the tenant still active,
// never left marked suspended while its containers keep running.
func (h *Handlers) SuspendStore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenant, ok := h.tenantFromPath(w, r)
	if !ok {
		return
	}

	var req api.SuspendStoreRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	if tenant.Status != store.TenantStatusActive {
		h.httpError(w, "Only active stores can be suspended", http.StatusConflict)
		return
	}
	if tenant.ServerID == nil {
		h.httpError(w, "Store has no placement", http.StatusConflict)
		return
	}

	job, err := h.store.EnqueueJob(ctx, tenant.ID, *tenant.ServerID, store.JobKindSuspend)
	if err != nil {
		if errors.Is(err, store.ErrAlreadyInFlight) {
			h.httpError(w, "Store already has a job in flight", http.StatusConflict)
			return
		}
		h.httpError(w, "Failed to queue job", http.StatusInternalServerError)
		return
	}

	if err := h.store.SuspendTenant(ctx, tenant.ID, req.Reason, false); err != nil {
		h.httpError(w, "Failed to record suspension", http.StatusInternalServerError)
		return
	}

	h.respondJson(w, http.StatusAccepted, api.EnqueueResponse{
		JobID:  job.ID.String(),
		Kind:   string(job.Kind),
		Status: string(job.Status),
	})
}

// ResumeStore handles POST /stores/{id}/resume.
func (h *Handlers) ResumeStore(w http.ResponseWriter, r *http.Request) {
	tenant, ok := h.tenantFromPath(w, r)
	if !ok {
		return
	}

	if tenant.Status != store.TenantStatusSuspended {
		h.httpError(w, "Only suspended stores can be resumed", http.StatusConflict)
		return
	}
	if tenant.ServerID == nil {
		h.httpError(w, "Store has no placement", http.StatusConflict)
		return
	}

	h.enqueue(w, r, tenant.ID, *tenant.ServerID, store.JobKindResume)
}

// DeleteStore handles DELETE /stores/{id}. A placed tenant is torn
// down asynchronously so every backing resource is released before the
// record disappears. A tenant that never got a placement holds no
// resources and is deleted inline.
func (h *Handlers) DeleteStore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenant, ok := h.tenantFromPath(w, r)
	if !ok {
		return
	}

	if tenant.ServerID == nil {
		// The multi-table delete commits atomically.
		tx, err := h.store.BeginTx(ctx)
		if err != nil {
			h.httpError(w, "Failed to delete store", http.StatusInternalServerError)
			return
		}
		defer tx.Rollback()

		if err := h.store.DeleteTenant(ctx, tx, tenant.ID); err != nil {
			h.httpError(w, "Failed to delete store", http.StatusInternalServerError)
			return
		}
		if err := tx.Commit(); err != nil {
			h.httpError(w, "Failed to delete store", http.StatusInternalServerError)
			return
		}
		h.respondJson(w, http.StatusNoContent, nil)
		return
	}

	h.enqueue(w, r, tenant.ID, *tenant.ServerID, store.JobKindTeardown)
}

// enqueue queues a job and writes the standard accepted response.
func (h *Handlers) enqueue(w http.ResponseWriter, r *http.Request, tenantID, serverID uuid.UUID, kind store.JobKind) {
	job, err := h.store.EnqueueJob(r.Context(), tenantID, serverID, kind)
	if err != nil {
		if errors.Is(err, store.ErrAlreadyInFlight) {
			h.httpError(w, "Store already has a job in flight", http.StatusConflict)
			return
		}
		h.httpError(w, "Failed to queue job", http.StatusInternalServerError)
		return
	}

	h.respondJson(w, http.StatusAccepted, api.EnqueueResponse{
		JobID:  job.ID.String(),
		Kind:   string(job.Kind),
		Status: string(job.Status),
	})
}

// tenantFromPath loads the tenant named by the {id} path value and
// handles the error responses.
func (h *Handlers) tenantFromPath(w http.ResponseWriter, r *http.Request) (*store.Tenant, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.httpError(w, "Invalid store ID", http.StatusBadRequest)
		return nil, false
	}

	tenant, err := h.store.GetTenant(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.httpError(w, "Store not found", http.StatusNotFound)
			return nil, false
		}
		h.httpError(w, "Failed to load store", http.StatusInternalServerError)
		return nil, false
	}
	return tenant, true
}

func toStoreResponse(t *store.Tenant) api.StoreResponse {
	return api.StoreResponse{
		ID:            t.ID.String(),
		Name:          t.Name,
		Domain:        t.Domain,
		Platform:      string(t.Platform),
		Plan:          string(t.Plan),
		Status:        string(t.Status),
		Port:          t.Port,
		SuspendReason: t.SuspendReason,
		LastError:     t.LastError,
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
		SuspendedAt:   t.SuspendedAt,
	}
}

func toJobResponse(j *store.ProvisioningJob) api.JobResponse {
	return api.JobResponse{
		ID:         j.ID.String(),
		TenantID:   j.TenantID.String(),
		Kind:       string(j.Kind),
		Status:     string(j.Status),
		StepCursor: j.StepCursor,
		ErrorStep:  j.ErrorStep,
		Error:      j.ErrorMessage,
		EnqueuedAt: j.EnqueuedAt,
		StartedAt:  j.StartedAt,
		FinishedAt: j.FinishedAt,
	}
}
