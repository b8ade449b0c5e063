// Package store contains the database layer for storefleet.
package store

import (
	"time"

	"github.com/google/uuid"
)

// TenantStatus represents the lifecycle state of a tenant store.
type TenantStatus string

const (
	TenantStatusPending      TenantStatus = "pending"
	TenantStatusProvisioning TenantStatus = "provisioning"
	TenantStatusActive       TenantStatus = "active"
	TenantStatusSuspended    TenantStatus = "suspended"
	TenantStatusFailed       TenantStatus = "failed"
)

// Platform is the shop software a tenant runs. Closed set.
type Platform string

const (
	PlatformWooCommerce Platform = "woocommerce"
	PlatformPrestaShop  Platform = "prestashop"
	PlatformMagento     Platform = "magento"
)

// Platforms lists every supported platform.
func Platforms() []Platform {
	return []Platform{PlatformWooCommerce, PlatformPrestaShop, PlatformMagento}
}

// PlanTier determines resource ceilings for a tenant.
type PlanTier string

const (
	PlanStarter    PlanTier = "starter"
	PlanBusiness   PlanTier = "business"
	PlanEnterprise PlanTier = "enterprise"
)

// Tenant represents one customer's store environment.
// A tenant holds a (server, port) placement while its status is
// provisioning, active or suspended.
type Tenant struct {
	ID       uuid.UUID
	Name     string
	Domain   string
	Platform Platform
	Plan     PlanTier
	Status   TenantStatus

	// Placement. Both nil or both set.
	ServerID *uuid.UUID
	Port     *int

	// Suspension metadata.
	SuspendReason *string
	SuspendedAuto bool
	SuspendedAt   *time.Time

	// Generated credentials, sealed before persisting.
	SealedCredentials []byte

	LastError *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasPlacement reports whether the tenant currently holds a (server, port) pair.
func (t *Tenant) HasPlacement() bool {
	return t.ServerID != nil && t.Port != nil
}

// JobStatus is the per-attempt state of a provisioning job.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

// JobKind selects which step sequence the worker runs for a job.
type JobKind string

const (
	JobKindProvision JobKind = "provision"
	JobKindSuspend   JobKind = "suspend"
	JobKindResume    JobKind = "resume"
	JobKindTeardown  JobKind = "teardown"
)

// ProvisioningJob is one attempt to run a pipeline for a tenant.
// Terminal jobs are append-only history and are never mutated.
type ProvisioningJob struct {
	ID         uuid.UUID
	TenantID   uuid.UUID
	ServerID   uuid.UUID
	Kind       JobKind
	Status     JobStatus
	StepCursor int

	ErrorStep    *string
	ErrorMessage *string

	EnqueuedAt time.Time
	StartedAt  *time.Time
	FinishedAt *time.Time
}

// ServerStatus is the administrator-declared state of a worker host.
// Liveness is derived from heartbeat age, not from this field.
type ServerStatus string

const (
	ServerStatusActive      ServerStatus = "active"
	ServerStatusMaintenance ServerStatus = "maintenance"
	ServerStatusOffline     ServerStatus = "offline"
)

// Server is a worker host capable of running the provisioning pipeline.
// Servers are never deleted; dead ones are marked offline so historical
// job and tenant associations stay intact.
type Server struct {
	ID             uuid.UUID
	Name           string
	Address        string
	MaxTenants     int
	PortRangeStart int
	PortRangeEnd   int
	Status         ServerStatus
	LastHeartbeat  *time.Time
	CreatedAt      time.Time
}

// PortAssignment binds one port within a server's range to one tenant.
type PortAssignment struct {
	ServerID  uuid.UUID
	Port      int
	TenantID  uuid.UUID
	CreatedAt time.Time
}

// ResourceQuota holds the per-tenant byte ceilings derived from the plan.
type ResourceQuota struct {
	TenantID            uuid.UUID
	DiskLimitBytes      int64
	BandwidthLimitBytes int64
	UpdatedAt           time.Time
}

// UsageSample is one measured usage data point, one row per tenant per day.
type UsageSample struct {
	TenantID       uuid.UUID
	SampleDate     time.Time
	DiskBytes      int64
	BandwidthBytes int64
	CollectedAt    time.Time
}

// AlertKind identifies which resource and severity an alert is for.
type AlertKind string

const (
	AlertDiskWarning       AlertKind = "disk_warning"
	AlertDiskCritical      AlertKind = "disk_critical"
	AlertBandwidthWarning  AlertKind = "bandwidth_warning"
	AlertBandwidthCritical AlertKind = "bandwidth_critical"
)

// QuotaAlert records a threshold breach. Deduplicated per (tenant, kind)
// within the monitor's cooldown window.
type QuotaAlert struct {
	ID         int64
	TenantID   uuid.UUID
	Kind       AlertKind
	UsedBytes  int64
	LimitBytes int64
	CreatedAt  time.Time
}
