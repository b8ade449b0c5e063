package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"storefleet/internal/store"

	"github.com/google/uuid"
)

func (s *Store) UpsertQuota(ctx context.Context, q *store.ResourceQuota) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO resource_quotas (tenant_id, disk_limit_bytes, bandwidth_limit_bytes, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (tenant_id) DO UPDATE
		SET disk_limit_bytes = EXCLUDED.disk_limit_bytes,
		    bandwidth_limit_bytes = EXCLUDED.bandwidth_limit_bytes,
		    updated_at = NOW()
	`, q.TenantID, q.DiskLimitBytes, q.BandwidthLimitBytes)
	if err != nil {
		return fmt.Errorf("failed to upsert quota for tenant %s: %w", q.TenantID, err)
	}
	return nil
}

func (s *Store) DeleteQuota(ctx context.Context, tenantID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM resource_quotas WHERE tenant_id = $1", tenantID)
	return err
}

func (s *Store) GetQuota(ctx context.Context, tenantID uuid.UUID) (*store.ResourceQuota, error) {
	var q store.ResourceQuota
	err := s.db.QueryRowContext(ctx, `
		SELECT tenant_id, disk_limit_bytes, bandwidth_limit_bytes, updated_at
		FROM resource_quotas
		WHERE tenant_id = $1
	`, tenantID).Scan(&q.TenantID, &q.DiskLimitBytes, &q.BandwidthLimitBytes, &q.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &q, nil
}

// UpsertUsageSample writes one sample per tenant per day, keyed on the
// sample date.
func (s *Store) UpsertUsageSample(ctx context.Context, sample *store.UsageSample) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO usage_samples (tenant_id, sample_date, disk_bytes, bandwidth_bytes, collected_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (tenant_id, sample_date) DO UPDATE
		SET disk_bytes = EXCLUDED.disk_bytes,
		    bandwidth_bytes = EXCLUDED.bandwidth_bytes,
		    collected_at = NOW()
	`, sample.TenantID, sample.SampleDate, sample.DiskBytes, sample.BandwidthBytes)
	if err != nil {
		return fmt.Errorf("failed to upsert usage sample for tenant %s: %w", sample.TenantID, err)
	}
	return nil
}

// InsertAlertIfCooled inserts the alert only when no alert of the same
// (tenant, kind) exists within the cooldown window. The conditional
// insert makes deduplication atomic under concurrent monitor runs.
func (s *Store) InsertAlertIfCooled(ctx context.Context, a *store.QuotaAlert, cooldown time.Duration) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO quota_alerts (tenant_id, kind, used_bytes, limit_bytes)
		SELECT $1, $2, $3, $4
		WHERE NOT EXISTS (
			SELECT 1 FROM quota_alerts
			WHERE tenant_id = $1 AND kind = $2
			  AND created_at > NOW() - ($5 * INTERVAL '1 second')
		)
	`, a.TenantID, a.Kind, a.UsedBytes, a.LimitBytes, cooldown.Seconds())
	if err != nil {
		return false, fmt.Errorf("failed to insert alert for tenant %s: %w", a.TenantID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
