package steps

import (
	"context"
	"fmt"

	"storefleet/internal/pipeline"
	"storefleet/internal/proxy"
)

// configureRoute writes the tenant's reverse-proxy route. The route
// manager syntax-checks the rendered config before activating it; an
// invalid route is never applied.
type configureRoute struct {
	set *Set
}

func (s *configureRoute) Name() string     { return "configure-route" }
func (s *configureRoute) BestEffort() bool { return false }

func (s *configureRoute) Execute(ctx context.Context, pc *pipeline.Context) error {
	if pc.Port == 0 {
		return fmt.Errorf("no port in pipeline context")
	}
	return s.set.Routes.WriteRoute(ctx, proxy.Route{
		TenantID: pc.Tenant.ID,
		Domain:   pc.Tenant.Domain,
		Port:     pc.Port,
		TLS:      false,
	})
}

func (s *configureRoute) Rollback(ctx context.Context, pc *pipeline.Context) error {
	return s.set.Routes.RemoveRoute(ctx, pc.Tenant.ID)
}

// removeRoute deactivates the tenant's route. Used by the suspend and
// teardown sequences; removal of a missing route is a no-op.
type removeRoute struct {
	noRollback
	set *Set
}

func (s *removeRoute) Name() string     { return "remove-route" }
func (s *removeRoute) BestEffort() bool { return false }

func (s *removeRoute) Execute(ctx context.Context, pc *pipeline.Context) error {
	return s.set.Routes.RemoveRoute(ctx, pc.Tenant.ID)
}
