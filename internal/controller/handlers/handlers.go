// Package handlers contains HTTP handlers for the controller API.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"storefleet/internal/coordinator"
	"storefleet/internal/store"
	"storefleet/pkg/api"

	"github.com/go-playground/validator/v10"
)

// StoreFactory combines the interfaces needed for the controller to function.
type StoreFactory interface {
	BeginTx(ctx context.Context) (store.Tx, error)
	Ping(ctx context.Context) error
	store.TenantStore
	store.JobStore
	store.ServerStore
}

// Placer is the placement and fleet-health surface of the coordinator.
type Placer interface {
	PickServer(ctx context.Context, hint string) (*store.Server, error)
	Status(ctx context.Context) (*coordinator.FleetStatus, error)
}

// Handlers holds all HTTP handlers and their dependencies.
type Handlers struct {
	store    StoreFactory
	placer   Placer
	validate *validator.Validate
}

// New creates a new Handlers instance with the given dependencies.
func New(s StoreFactory, p Placer) *Handlers {
	return &Handlers{
		store:    s,
		placer:   p,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// A helper function to write standard JSON responses.
func (h *Handlers) respondJson(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

// A helper function to return consistent error messages.
func (h *Handlers) httpError(w http.ResponseWriter, message string, code int) {
	h.respondJson(w, code, api.ErrorResponse{
		Error: message,
		Code:  strconv.Itoa(code),
	})
}

// decodeAndValidate unmarshals the body into dst and runs struct
// validation. It writes the error response itself and reports whether
// the caller should proceed.
func (h *Handlers) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.httpError(w, "Invalid JSON", http.StatusBadRequest)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		h.respondJson(w, http.StatusUnprocessableEntity, api.ErrorResponse{
			Error:   "Validation failed",
			Code:    strconv.Itoa(http.StatusUnprocessableEntity),
			Details: err.Error(),
		})
		return false
	}
	return true
}
