// Package steps contains the pipeline step executors. Each step is
// individually idempotent; the fixed orderings are assembled here.
package steps

import (
	"context"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"storefleet/internal/allocator"
	"storefleet/internal/certs"
	"storefleet/internal/notify"
	"storefleet/internal/pipeline"
	"storefleet/internal/runtime"
	"storefleet/internal/secrets"
	"storefleet/internal/store"

	"github.com/google/uuid"
)

// composeFileName is the rendered environment definition inside a
// tenant workspace.
const composeFileName = "docker-compose.yaml"

// Set bundles the collaborators the steps need and builds the ordered
// sequences per job kind.
type Set struct {
	Store    store.Store
	Alloc    *allocator.Allocator
	Runtime  runtime.Runtime
	Routes   pipeline.RouteManager
	Issuer   certs.Issuer
	Notifier notify.Notifier
	Sealer   *secrets.Sealer

	WorkspaceRoot  string
	HealthTimeout  time.Duration
	HealthInterval time.Duration
	HTTPClient     *http.Client

	Log *slog.Logger
}

// WorkspacePath returns the tenant's workspace directory.
func (s *Set) WorkspacePath(tenantID uuid.UUID) string {
	return filepath.Join(s.WorkspaceRoot, tenantID.String())
}

func (s *Set) httpClient() *http.Client {
	if s.HTTPClient != nil {
		return s.HTTPClient
	}
	return &http.Client{Timeout: 10 * time.Second}
}

// Sequences returns the step ordering for every job kind.
func (s *Set) Sequences() map[store.JobKind][]pipeline.Step {
	return map[store.JobKind][]pipeline.Step{
		store.JobKindProvision: s.provision(),
		store.JobKindSuspend:   s.suspend(),
		store.JobKindResume:    s.resume(),
		store.JobKindTeardown:  s.teardown(),
	}
}

// provision is the full nine-step sequence that takes a tenant from
// pending to active.
func (s *Set) provision() []pipeline.Step {
	return []pipeline.Step{
		&ensureWorkspace{set: s},
		&generateCredentials{},
		&allocateResources{set: s},
		&renderEnvironment{set: s},
		&startEnvironment{set: s, fresh: true},
		&configureRoute{set: s},
		&issueCertificate{set: s},
		&verifyHealth{set: s},
		&activateStore{set: s},
	}
}

// suspend stops the environment and deactivates the route. Volumes,
// workspace, port and quota are all kept so resume is cheap.
func (s *Set) suspend() []pipeline.Step {
	return []pipeline.Step{
		&stopEnvironment{set: s},
		&removeRoute{set: s},
	}
}

// resume restarts a suspended environment and re-activates it once it
// reports healthy. Data volumes are preserved.
func (s *Set) resume() []pipeline.Step {
	return []pipeline.Step{
		&startEnvironment{set: s, fresh: false},
		&configureRoute{set: s},
		&verifyHealth{set: s},
		&markResumed{set: s},
	}
}

// teardown releases every backing resource and finally hard-deletes
// the tenant. Deletion is only reachable through this sequence.
func (s *Set) teardown() []pipeline.Step {
	return []pipeline.Step{
		&teardownEnvironment{set: s},
		&removeRoute{set: s},
		&releaseResources{set: s},
		&deleteTenant{set: s},
	}
}

// noRollback is embedded by steps that have nothing to undo.
type noRollback struct{}

func (noRollback) Rollback(ctx context.Context, pc *pipeline.Context) error { return nil }
