package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// DBTransaction defines the methods shared by *sql.DB and *sql.Tx.
// This allows passing either a connection pool or an active transaction
// to the repository methods.
type DBTransaction interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type Tx interface {
	DBTransaction
	Commit() error
	Rollback() error
}

// TenantStore handles tenant records and their lifecycle fields.
type TenantStore interface {
	// CreateTenant inserts a new tenant. Returns ErrDuplicateDomain if the
	// domain is already registered.
	CreateTenant(ctx context.Context, tx DBTransaction, t *Tenant) error

	GetTenant(ctx context.Context, id uuid.UUID) (*Tenant, error)
	GetTenantByDomain(ctx context.Context, domain string) (*Tenant, error)
	ListTenantsByStatus(ctx context.Context, status TenantStatus) ([]Tenant, error)

	// UpdateTenantStatus sets the lifecycle status and the durable error
	// detail (nil clears it).
	UpdateTenantStatus(ctx context.Context, tx DBTransaction, id uuid.UUID, status TenantStatus, errMsg *string) error

	// SetTenantPlacement records the (server, port) pair a tenant holds.
	SetTenantPlacement(ctx context.Context, tx DBTransaction, id uuid.UUID, serverID uuid.UUID, port int) error

	// ClearTenantPlacement nulls out the (server, port) pair.
	ClearTenantPlacement(ctx context.Context, tx DBTransaction, id uuid.UUID) error

	SetTenantCredentials(ctx context.Context, id uuid.UUID, sealed []byte) error

	SuspendTenant(ctx context.Context, id uuid.UUID, reason string, auto bool) error
	ResumeTenant(ctx context.Context, id uuid.UUID) error

	// DeleteTenant removes the row. Callers must tear down backing
	// resources first; the port assignment foreign key enforces this.
	DeleteTenant(ctx context.Context, tx DBTransaction, id uuid.UUID) error

	// CountLiveTenants returns the number of tenants placed on a server in
	// a state that holds resources (provisioning, active, suspended).
	CountLiveTenants(ctx context.Context, serverID uuid.UUID) (int, error)
}

// JobStore is the durable dispatch queue. One logical queue per server.
type JobStore interface {
	// EnqueueJob creates a queued job for the tenant on the target server.
	// Returns ErrAlreadyInFlight when the tenant already has a queued or
	// running job, enforced by a partial unique index, not an application
	// check.
	EnqueueJob(ctx context.Context, tenantID, serverID uuid.UUID, kind JobKind) (*ProvisioningJob, error)

	// DequeueJob claims the oldest queued job for the server and flips it
	// to running. Returns (nil, nil) when the queue is empty.
	DequeueJob(ctx context.Context, serverID uuid.UUID) (*ProvisioningJob, error)

	CompleteJob(ctx context.Context, jobID uuid.UUID) error
	FailJob(ctx context.Context, jobID uuid.UUID, step, errMsg string) error

	// SetJobCursor records the index of the next step to run, after the
	// prior step's side effects are durable.
	SetJobCursor(ctx context.Context, jobID uuid.UUID, cursor int) error

	GetJob(ctx context.Context, jobID uuid.UUID) (*ProvisioningJob, error)
	GetInFlightJob(ctx context.Context, tenantID uuid.UUID) (*ProvisioningJob, error)
	ListJobsForTenant(ctx context.Context, tenantID uuid.UUID, limit int) ([]ProvisioningJob, error)

	// ResetStaleJobs fails jobs stuck running longer than staleAfter,
	// typically left behind by a crashed worker. Returns the number reset.
	ResetStaleJobs(ctx context.Context, staleAfter time.Duration) (int64, error)

	CountQueuedJobs(ctx context.Context) (int64, error)
}

// ServerStore tracks worker hosts and their heartbeats.
type ServerStore interface {
	// RegisterServer upserts a server by name, refreshing address,
	// capacity and port range on re-registration.
	RegisterServer(ctx context.Context, s *Server) error

	GetServer(ctx context.Context, id uuid.UUID) (*Server, error)
	GetServerByName(ctx context.Context, name string) (*Server, error)
	ListServers(ctx context.Context) ([]Server, error)

	// Heartbeat writes the liveness timestamp for the server.
	Heartbeat(ctx context.Context, id uuid.UUID, at time.Time) error

	SetServerStatus(ctx context.Context, id uuid.UUID, status ServerStatus) error
}

// PortStore persists exclusive port assignments. Uniqueness is arbitrated
// by the storage layer, not by in-process locks, so concurrent workers
// stay correct.
type PortStore interface {
	// AssignPort binds (serverID, port) to the tenant. Returns ErrPortTaken
	// when another caller committed the pair first.
	AssignPort(ctx context.Context, serverID uuid.UUID, port int, tenantID uuid.UUID) error

	// ReleasePort is idempotent; releasing a free port is a no-op.
	ReleasePort(ctx context.Context, serverID uuid.UUID, port int) error

	GetPortAssignment(ctx context.Context, tenantID uuid.UUID) (*PortAssignment, error)
	ListAssignedPorts(ctx context.Context, serverID uuid.UUID) ([]int, error)
}

// QuotaStore persists plan-derived ceilings, usage samples and alerts.
type QuotaStore interface {
	UpsertQuota(ctx context.Context, q *ResourceQuota) error
	DeleteQuota(ctx context.Context, tenantID uuid.UUID) error
	GetQuota(ctx context.Context, tenantID uuid.UUID) (*ResourceQuota, error)

	// UpsertUsageSample writes one sample per tenant per day.
	UpsertUsageSample(ctx context.Context, s *UsageSample) error

	// InsertAlertIfCooled inserts the alert unless one of the same
	// (tenant, kind) exists within the cooldown window. Reports whether a
	// row was inserted.
	InsertAlertIfCooled(ctx context.Context, a *QuotaAlert, cooldown time.Duration) (bool, error)
}

// Store combines every repository plus transaction and liveness helpers.
// The controller and worker wire against this; tests swap in fakes for
// the narrow interfaces above.
type Store interface {
	TenantStore
	JobStore
	ServerStore
	PortStore
	QuotaStore
	BeginTx(ctx context.Context) (Tx, error)
	Ping(ctx context.Context) error
}
