// Package api contains shared JSON request/response structs.
// This package is shared between the CLI and Controller.
package api

import "time"

// CreateStoreRequest is the request body for provisioning a new store.
type CreateStoreRequest struct {
	Name     string `json:"name" validate:"required,min=2,max=100"`
	Domain   string `json:"domain" validate:"required,hostname"`
	Platform string `json:"platform" validate:"required,oneof=woocommerce prestashop magento"`
	Plan     string `json:"plan" validate:"required,oneof=starter business enterprise"`
	// Server optionally pins the store to a named worker host.
	Server string `json:"server,omitempty"`
}

// CreateStoreResponse is the response body after accepting a store.
type CreateStoreResponse struct {
	TenantID string `json:"tenant_id"`
	JobID    string `json:"job_id"`
	Status   string `json:"status"`
}

// StoreResponse represents a tenant store in API responses.
type StoreResponse struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Domain        string     `json:"domain"`
	Platform      string     `json:"platform"`
	Plan          string     `json:"plan"`
	Status        string     `json:"status"`
	Server        string     `json:"server,omitempty"`
	Port          *int       `json:"port,omitempty"`
	SuspendReason *string    `json:"suspend_reason,omitempty"`
	LastError     *string    `json:"last_error,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	SuspendedAt   *time.Time `json:"suspended_at,omitempty"`

	// Job is the queued or running job, present while one is in flight.
	Job *JobResponse `json:"job,omitempty"`
}

// JobResponse represents one provisioning attempt.
type JobResponse struct {
	ID         string     `json:"id"`
	TenantID   string     `json:"tenant_id"`
	Kind       string     `json:"kind"`
	Status     string     `json:"status"`
	StepCursor int        `json:"step_cursor"`
	ErrorStep  *string    `json:"error_step,omitempty"`
	Error      *string    `json:"error,omitempty"`
	EnqueuedAt time.Time  `json:"enqueued_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// EnqueueResponse is returned by operations that schedule a job.
type EnqueueResponse struct {
	JobID  string `json:"job_id"`
	Kind   string `json:"kind"`
	Status string `json:"status"`
}

// SuspendStoreRequest is the request body for suspending a store.
type SuspendStoreRequest struct {
	Reason string `json:"reason" validate:"required,min=3,max=500"`
}

// RegisterServerRequest is the request body for registering a worker host.
type RegisterServerRequest struct {
	Name           string `json:"name" validate:"required,min=2,max=100"`
	Address        string `json:"address" validate:"required,hostname_port"`
	MaxTenants     int    `json:"max_tenants" validate:"required,min=1"`
	PortRangeStart int    `json:"port_range_start" validate:"required,min=1024,max=65535"`
	PortRangeEnd   int    `json:"port_range_end" validate:"required,min=1024,max=65535,gtefield=PortRangeStart"`
}

// ServerResponse represents a worker host in API responses.
type ServerResponse struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Address        string     `json:"address"`
	MaxTenants     int        `json:"max_tenants"`
	PortRangeStart int        `json:"port_range_start"`
	PortRangeEnd   int        `json:"port_range_end"`
	Status         string     `json:"status"`
	LastHeartbeat  *time.Time `json:"last_heartbeat,omitempty"`
}

// SetMaintenanceRequest toggles a server's declared status.
type SetMaintenanceRequest struct {
	Maintenance bool `json:"maintenance"`
}

// FleetServerStatus is one server's row in the fleet status report.
type FleetServerStatus struct {
	Server      ServerResponse `json:"server"`
	Live        bool           `json:"live"`
	TenantCount int            `json:"tenant_count"`
	Reachable   *bool          `json:"reachable,omitempty"`
}

// FleetStatusResponse is the aggregate fleet health report.
type FleetStatusResponse struct {
	Servers    []FleetServerStatus `json:"servers"`
	QueueDepth int64               `json:"queue_depth"`
	CheckedAt  time.Time           `json:"checked_at"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}
