// Package runtime manages tenant store environments: multi-container
// stacks defined by a rendered compose file, brought up and torn down
// on the worker host that owns the tenant's port.
package runtime

import (
	"context"

	"github.com/google/uuid"
)

// Environment identifies one tenant's runtime environment on disk.
type Environment struct {
	TenantID    uuid.UUID
	Workspace   string
	ComposeFile string
}

// ContainerState is a summary of one container in a tenant's stack.
type ContainerState struct {
	ID    string
	Name  string
	State string
}

// Runtime defines the operations the pipeline needs from the container
// layer. Tearing down a non-existent environment must be a no-op.
type Runtime interface {
	// Up brings the environment up detached.
	Up(ctx context.Context, env Environment) error

	// Down stops and removes the environment. With removeVolumes it also
	// deletes named volumes, which is what makes a retry start clean.
	Down(ctx context.Context, env Environment, removeVolumes bool) error

	// Containers lists the tenant's containers, running or not.
	Containers(ctx context.Context, tenantID uuid.UUID) ([]ContainerState, error)
}

// TenantLabel is set on every container of a tenant stack so stray
// containers from a crashed attempt can be found without a compose file.
const TenantLabel = "storefleet.tenant"

// ProjectName returns the compose project name for a tenant. Compose
// project names must be stable across attempts for teardown to find the
// previous attempt's containers.
func ProjectName(tenantID uuid.UUID) string {
	return "store-" + tenantID.String()[:8]
}
