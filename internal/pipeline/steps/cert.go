package steps

import (
	"context"
	"fmt"

	"storefleet/internal/pipeline"
	"storefleet/internal/proxy"
)

// issueCertificate attempts domain-validated certificate issuance and,
// on success, rewrites the route with encrypted transport enabled.
// Best-effort: on failure the plain-HTTP route stays active and
// issuance is retried on a later cycle.
type issueCertificate struct {
	noRollback
	set *Set
}

func (s *issueCertificate) Name() string     { return "issue-certificate" }
func (s *issueCertificate) BestEffort() bool { return true }

func (s *issueCertificate) Execute(ctx context.Context, pc *pipeline.Context) error {
	if err := s.set.Issuer.Issue(ctx, pc.Tenant.Domain); err != nil {
		return err
	}

	err := s.set.Routes.WriteRoute(ctx, proxy.Route{
		TenantID: pc.Tenant.ID,
		Domain:   pc.Tenant.Domain,
		Port:     pc.Port,
		TLS:      true,
	})
	if err != nil {
		return fmt.Errorf("certificate issued but TLS route activation failed: %w", err)
	}
	return nil
}
