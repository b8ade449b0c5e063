package steps

import (
	"context"
	"fmt"

	"storefleet/internal/notify"
	"storefleet/internal/pipeline"
	"storefleet/internal/store"
)

// activateStore persists the sealed credentials, marks the tenant
// active and dispatches the provisioned notification. The notification
// is fire-and-forget: its failure is logged, never propagated.
type activateStore struct {
	noRollback // status reversal is handled by the runner's failure path
	set        *Set
}

func (s *activateStore) Name() string     { return "activate-store" }
func (s *activateStore) BestEffort() bool { return false }

func (s *activateStore) Execute(ctx context.Context, pc *pipeline.Context) error {
	sealed, err := s.set.Sealer.Seal(pc.Creds)
	if err != nil {
		return fmt.Errorf("failed to seal credentials: %w", err)
	}
	if err := s.set.Store.SetTenantCredentials(ctx, pc.Tenant.ID, sealed); err != nil {
		return fmt.Errorf("failed to persist credentials: %w", err)
	}

	if err := s.set.Store.UpdateTenantStatus(ctx, nil, pc.Tenant.ID, store.TenantStatusActive, nil); err != nil {
		return fmt.Errorf("failed to activate tenant: %w", err)
	}

	msg := notify.StoreProvisioned{
		TenantID:      pc.Tenant.ID,
		StoreURL:      "https://" + pc.Tenant.Domain,
		AdminURL:      adminURL(pc.Tenant),
		AdminUser:     pc.Creds.AdminUser,
		AdminPassword: pc.Creds.AdminPassword,
	}
	if err := s.set.Notifier.StoreProvisioned(ctx, msg); err != nil {
		s.set.Log.Warn("provisioned notification failed",
			"tenant_id", pc.Tenant.ID, "error", err)
	}

	return nil
}

func adminURL(t *store.Tenant) string {
	switch t.Platform {
	case store.PlatformWooCommerce:
		return "https://" + t.Domain + "/wp-admin"
	case store.PlatformPrestaShop:
		return "https://" + t.Domain + "/admin"
	case store.PlatformMagento:
		return "https://" + t.Domain + "/admin"
	default:
		return "https://" + t.Domain
	}
}
