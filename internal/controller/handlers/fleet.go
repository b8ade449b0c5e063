package handlers

import (
	"net/http"

	"storefleet/pkg/api"
)

// FleetStatus handles GET /fleet/status: per-server liveness, load and
// the current queue depth.
func (h *Handlers) FleetStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.placer.Status(r.Context())
	if err != nil {
		h.httpError(w, "Failed to build fleet status", http.StatusInternalServerError)
		return
	}

	resp := api.FleetStatusResponse{
		QueueDepth: status.QueueDepth,
		CheckedAt:  status.CheckedAt,
		Servers:    make([]api.FleetServerStatus, 0, len(status.Servers)),
	}
	for _, s := range status.Servers {
		resp.Servers = append(resp.Servers, api.FleetServerStatus{
			Server:      toServerResponse(&s.Server),
			Live:        s.Live,
			TenantCount: s.TenantCount,
			Reachable:   s.Reachable,
		})
	}
	h.respondJson(w, http.StatusOK, resp)
}
