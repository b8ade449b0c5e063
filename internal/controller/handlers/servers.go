package handlers

import (
	"errors"
	"net/http"

	"storefleet/internal/store"
	"storefleet/pkg/api"

	"github.com/google/uuid"
)

// RegisterServer handles POST /servers. Registration is an upsert by
// name so a host can refresh its address, capacity or port range by
// re-registering.
func (h *Handlers) RegisterServer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.RegisterServerRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	srv := &store.Server{
		ID:             uuid.New(),
		Name:           req.Name,
		Address:        req.Address,
		MaxTenants:     req.MaxTenants,
		PortRangeStart: req.PortRangeStart,
		PortRangeEnd:   req.PortRangeEnd,
		Status:         store.ServerStatusActive,
	}
	if err := h.store.RegisterServer(ctx, srv); err != nil {
		h.httpError(w, "Failed to register server", http.StatusInternalServerError)
		return
	}

	h.respondJson(w, http.StatusCreated, toServerResponse(srv))
}

// ListServers handles GET /servers.
func (h *Handlers) ListServers(w http.ResponseWriter, r *http.Request) {
	servers, err := h.store.ListServers(r.Context())
	if err != nil {
		h.httpError(w, "Failed to list servers", http.StatusInternalServerError)
		return
	}

	resp := make([]api.ServerResponse, 0, len(servers))
	for _, s := range servers {
		resp = append(resp, toServerResponse(&s))
	}
	h.respondJson(w, http.StatusOK, resp)
}

// SetMaintenance handles PUT /servers/{id}/maintenance. The declared
// status only gates new placements; heartbeat liveness is tracked
// separately and existing tenants keep running.
func (h *Handlers) SetMaintenance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.httpError(w, "Invalid server ID", http.StatusBadRequest)
		return
	}

	var req api.SetMaintenanceRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	status := store.ServerStatusActive
	if req.Maintenance {
		status = store.ServerStatusMaintenance
	}

	if err := h.store.SetServerStatus(ctx, id, status); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.httpError(w, "Server not found", http.StatusNotFound)
			return
		}
		h.httpError(w, "Failed to update server status", http.StatusInternalServerError)
		return
	}

	h.respondJson(w, http.StatusOK, map[string]string{"status": string(status)})
}

func toServerResponse(s *store.Server) api.ServerResponse {
	return api.ServerResponse{
		ID:             s.ID.String(),
		Name:           s.Name,
		Address:        s.Address,
		MaxTenants:     s.MaxTenants,
		PortRangeStart: s.PortRangeStart,
		PortRangeEnd:   s.PortRangeEnd,
		Status:         string(s.Status),
		LastHeartbeat:  s.LastHeartbeat,
	}
}
