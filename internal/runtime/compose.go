package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"github.com/google/uuid"
)

// ComposeRuntime drives tenant environments through the compose CLI and
// uses the Docker API directly for label-based teardown and inspection.
// The API sweep covers containers left behind by an attempt that crashed
// before its compose file was written.
type ComposeRuntime struct {
	bin    string
	docker *client.Client
	log    *slog.Logger

	// runCmd is swapped in tests.
	runCmd func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewComposeRuntime creates a runtime using the given compose binary
// (usually "docker") and a Docker client from standard environment
// variables (DOCKER_HOST, etc.).
func NewComposeRuntime(bin string, log *slog.Logger) (*ComposeRuntime, error) {
	if bin == "" {
		bin = "docker"
	}
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &ComposeRuntime{
		bin:    bin,
		docker: cli,
		log:    log,
		runCmd: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).CombinedOutput()
		},
	}, nil
}

// Up brings the environment up detached.
func (r *ComposeRuntime) Up(ctx context.Context, env Environment) error {
	out, err := r.runCmd(ctx, r.bin, "compose",
		"-f", env.ComposeFile,
		"-p", ProjectName(env.TenantID),
		"up", "-d")
	if err != nil {
		return fmt.Errorf("compose up failed for tenant %s: %w: %s", env.TenantID, err, out)
	}
	return nil
}

// Down stops and removes the environment. If the compose file is gone it
// falls back to a label sweep via the Docker API, so teardown of a
// non-existent or half-created environment stays a no-op.
func (r *ComposeRuntime) Down(ctx context.Context, env Environment, removeVolumes bool) error {
	if env.ComposeFile != "" {
		if _, err := os.Stat(env.ComposeFile); err == nil {
			args := []string{"compose", "-f", env.ComposeFile, "-p", ProjectName(env.TenantID), "down", "--remove-orphans"}
			if removeVolumes {
				args = append(args, "-v")
			}
			if out, err := r.runCmd(ctx, r.bin, args...); err != nil {
				// Fall through to the sweep; compose may fail on a stack
				// it only partially created.
				r.log.Warn("compose down failed, sweeping by label",
					"tenant_id", env.TenantID, "error", err, "output", string(out))
			}
		}
	}
	return r.sweep(ctx, env.TenantID, removeVolumes)
}

// Containers lists the tenant's containers by label, running or not.
func (r *ComposeRuntime) Containers(ctx context.Context, tenantID uuid.UUID) ([]ContainerState, error) {
	list, err := r.docker.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("label", TenantLabel+"="+tenantID.String())),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers for tenant %s: %w", tenantID, err)
	}

	states := make([]ContainerState, 0, len(list))
	for _, c := range list {
		name := c.ID[:12]
		if len(c.Names) > 0 {
			name = c.Names[0]
		}
		states = append(states, ContainerState{ID: c.ID, Name: name, State: c.State})
	}
	return states, nil
}

// sweep force-removes any remaining containers carrying the tenant label.
func (r *ComposeRuntime) sweep(ctx context.Context, tenantID uuid.UUID, removeVolumes bool) error {
	states, err := r.Containers(ctx, tenantID)
	if err != nil {
		return err
	}
	for _, c := range states {
		err := r.docker.ContainerRemove(ctx, c.ID, container.RemoveOptions{
			Force:         true,
			RemoveVolumes: removeVolumes,
		})
		if err != nil && !client.IsErrNotFound(err) {
			return fmt.Errorf("failed to remove container %s: %w", c.ID, err)
		}
		r.log.Info("removed stray container", "tenant_id", tenantID, "container", c.Name)
	}
	return nil
}
