package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"storefleet/internal/store"

	"github.com/google/uuid"
)

const tenantColumns = `id, name, domain, platform, plan, status, server_id, port,
	suspend_reason, suspended_auto, suspended_at, sealed_credentials, last_error,
	created_at, updated_at`

func scanTenant(row interface{ Scan(...interface{}) error }) (*store.Tenant, error) {
	var t store.Tenant
	err := row.Scan(
		&t.ID, &t.Name, &t.Domain, &t.Platform, &t.Plan, &t.Status,
		&t.ServerID, &t.Port,
		&t.SuspendReason, &t.SuspendedAuto, &t.SuspendedAt,
		&t.SealedCredentials, &t.LastError,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (s *Store) CreateTenant(ctx context.Context, tx store.DBTransaction, t *store.Tenant) error {
	executor := s.getExecutor(tx)

	query := `
		INSERT INTO tenants (id, name, domain, platform, plan, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
	`
	_, err := executor.ExecContext(ctx, query,
		t.ID, t.Name, t.Domain, t.Platform, t.Plan, t.Status, t.CreatedAt,
	)
	if err != nil {
		if store.IsUniqueViolation(err, "tenants_domain_key") {
			return store.ErrDuplicateDomain
		}
		return fmt.Errorf("failed to create tenant %s: %w", t.ID, err)
	}
	return nil
}

func (s *Store) GetTenant(ctx context.Context, id uuid.UUID) (*store.Tenant, error) {
	query := fmt.Sprintf("SELECT %s FROM tenants WHERE id = $1", tenantColumns)
	return scanTenant(s.db.QueryRowContext(ctx, query, id))
}

func (s *Store) GetTenantByDomain(ctx context.Context, domain string) (*store.Tenant, error) {
	query := fmt.Sprintf("SELECT %s FROM tenants WHERE domain = $1", tenantColumns)
	return scanTenant(s.db.QueryRowContext(ctx, query, domain))
}

func (s *Store) ListTenantsByStatus(ctx context.Context, status store.TenantStatus) ([]store.Tenant, error) {
	query := fmt.Sprintf("SELECT %s FROM tenants WHERE status = $1 ORDER BY created_at ASC", tenantColumns)

	rows, err := s.db.QueryContext(ctx, query, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants by status %s: %w", status, err)
	}
	defer rows.Close()

	var tenants []store.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		tenants = append(tenants, *t)
	}
	return tenants, rows.Err()
}

func (s *Store) UpdateTenantStatus(ctx context.Context, tx store.DBTransaction, id uuid.UUID, status store.TenantStatus, errMsg *string) error {
	executor := s.getExecutor(tx)

	_, err := executor.ExecContext(ctx, `
		UPDATE tenants
		SET status = $1, last_error = $2, updated_at = NOW()
		WHERE id = $3
	`, status, errMsg, id)
	if err != nil {
		return fmt.Errorf("failed to update tenant %s status: %w", id, err)
	}
	return nil
}

func (s *Store) SetTenantPlacement(ctx context.Context, tx store.DBTransaction, id uuid.UUID, serverID uuid.UUID, port int) error {
	executor := s.getExecutor(tx)

	_, err := executor.ExecContext(ctx, `
		UPDATE tenants
		SET server_id = $1, port = $2, updated_at = NOW()
		WHERE id = $3
	`, serverID, port, id)
	return err
}

func (s *Store) ClearTenantPlacement(ctx context.Context, tx store.DBTransaction, id uuid.UUID) error {
	executor := s.getExecutor(tx)

	_, err := executor.ExecContext(ctx, `
		UPDATE tenants
		SET server_id = NULL, port = NULL, updated_at = NOW()
		WHERE id = $1
	`, id)
	return err
}

func (s *Store) SetTenantCredentials(ctx context.Context, id uuid.UUID, sealed []byte) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE tenants
		SET sealed_credentials = $1, updated_at = NOW()
		WHERE id = $2
	`, sealed, id)
	return err
}

func (s *Store) SuspendTenant(ctx context.Context, id uuid.UUID, reason string, auto bool) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE tenants
		SET status = $1, suspend_reason = $2, suspended_auto = $3, suspended_at = NOW(), updated_at = NOW()
		WHERE id = $4
	`, store.TenantStatusSuspended, reason, auto, id)
	return err
}

func (s *Store) ResumeTenant(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE tenants
		SET status = $1, suspend_reason = NULL, suspended_auto = FALSE, suspended_at = NULL, updated_at = NOW()
		WHERE id = $2
	`, store.TenantStatusActive, id)
	return err
}

func (s *Store) DeleteTenant(ctx context.Context, tx store.DBTransaction, id uuid.UUID) error {
	executor := s.getExecutor(tx)

	// Dependent rows first; the port assignment must already be released
	// by the teardown pipeline.
	if _, err := executor.ExecContext(ctx, "DELETE FROM quota_alerts WHERE tenant_id = $1", id); err != nil {
		return err
	}
	if _, err := executor.ExecContext(ctx, "DELETE FROM usage_samples WHERE tenant_id = $1", id); err != nil {
		return err
	}
	if _, err := executor.ExecContext(ctx, "DELETE FROM resource_quotas WHERE tenant_id = $1", id); err != nil {
		return err
	}
	if _, err := executor.ExecContext(ctx, "DELETE FROM provisioning_jobs WHERE tenant_id = $1", id); err != nil {
		return err
	}
	if _, err := executor.ExecContext(ctx, "DELETE FROM tenants WHERE id = $1", id); err != nil {
		return fmt.Errorf("failed to delete tenant %s: %w", id, err)
	}
	return nil
}

func (s *Store) CountLiveTenants(ctx context.Context, serverID uuid.UUID) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM tenants
		WHERE server_id = $1 AND status IN ('provisioning', 'active', 'suspended')
	`, serverID).Scan(&count)
	return count, err
}
