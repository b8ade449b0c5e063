// Package monitor samples per-tenant resource usage and raises quota
// alerts. It runs on the worker host so it can read workspaces and
// access logs directly.
package monitor

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"path/filepath"
	"time"

	"storefleet/internal/notify"
	"storefleet/internal/store"

	"github.com/google/uuid"
)

const (
	// DefaultInterval is how often the monitor walks the fleet.
	DefaultInterval = 15 * time.Minute

	// DefaultAlertCooldown suppresses repeat alerts of the same kind.
	DefaultAlertCooldown = 24 * time.Hour

	warningThreshold  = 0.80
	criticalThreshold = 0.90
)

// Store is the subset of the storage layer the monitor needs.
type Store interface {
	ListTenantsByStatus(ctx context.Context, status store.TenantStatus) ([]store.Tenant, error)
	GetQuota(ctx context.Context, tenantID uuid.UUID) (*store.ResourceQuota, error)
	UpsertUsageSample(ctx context.Context, s *store.UsageSample) error
	InsertAlertIfCooled(ctx context.Context, a *store.QuotaAlert, cooldown time.Duration) (bool, error)
}

// Monitor measures disk and bandwidth usage for each active tenant on
// this host and records one sample per tenant per day.
type Monitor struct {
	store         Store
	notifier      notify.Notifier
	serverID      uuid.UUID
	workspaceRoot string
	interval      time.Duration
	cooldown      time.Duration
	log           *slog.Logger

	// measurement hooks, replaced in tests
	diskUsage      func(workspace string) (int64, error)
	bandwidthUsage func(workspace string, periodStart time.Time) (int64, error)
	now            func() time.Time
}

type Config struct {
	ServerID      uuid.UUID
	WorkspaceRoot string
	Interval      time.Duration
	AlertCooldown time.Duration
}

func New(s Store, n notify.Notifier, cfg Config, log *slog.Logger) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.AlertCooldown <= 0 {
		cfg.AlertCooldown = DefaultAlertCooldown
	}
	return &Monitor{
		store:          s,
		notifier:       n,
		serverID:       cfg.ServerID,
		workspaceRoot:  cfg.WorkspaceRoot,
		interval:       cfg.Interval,
		cooldown:       cfg.AlertCooldown,
		log:            log,
		diskUsage:      duWalk,
		bandwidthUsage: accessLogBytes,
		now:            time.Now,
	}
}

// Run executes the sampling loop until the context is cancelled. One
// pass runs immediately on start.
func (m *Monitor) Run(ctx context.Context) {
	m.log.Info("usage monitor started", "interval", m.interval)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		if err := m.Sweep(ctx); err != nil {
			m.log.Error("usage sweep failed", "error", err)
		}
		select {
		case <-ctx.Done():
			m.log.Info("usage monitor stopped")
			return
		case <-ticker.C:
		}
	}
}

// Sweep measures every active tenant placed on this server once.
// Per-tenant failures are logged and do not abort the sweep.
func (m *Monitor) Sweep(ctx context.Context) error {
	tenants, err := m.store.ListTenantsByStatus(ctx, store.TenantStatusActive)
	if err != nil {
		return err
	}

	for _, t := range tenants {
		if t.ServerID == nil || *t.ServerID != m.serverID {
			continue
		}
		if err := m.sampleTenant(ctx, &t); err != nil {
			m.log.Warn("failed to sample tenant usage",
				"tenant_id", t.ID, "error", err)
		}
	}
	return nil
}

func (m *Monitor) sampleTenant(ctx context.Context, t *store.Tenant) error {
	quota, err := m.store.GetQuota(ctx, t.ID)
	if err != nil {
		return err
	}

	ws := filepath.Join(m.workspaceRoot, t.ID.String())
	now := m.now()

	disk, err := m.diskUsage(ws)
	if err != nil {
		return err
	}
	bandwidth, err := m.bandwidthUsage(ws, periodStart(now))
	if err != nil {
		return err
	}

	sample := &store.UsageSample{
		TenantID:       t.ID,
		SampleDate:     now.UTC().Truncate(24 * time.Hour),
		DiskBytes:      disk,
		BandwidthBytes: bandwidth,
		CollectedAt:    now,
	}
	if err := m.store.UpsertUsageSample(ctx, sample); err != nil {
		return err
	}

	m.checkThreshold(ctx, t.ID, disk, quota.DiskLimitBytes,
		store.AlertDiskWarning, store.AlertDiskCritical)
	m.checkThreshold(ctx, t.ID, bandwidth, quota.BandwidthLimitBytes,
		store.AlertBandwidthWarning, store.AlertBandwidthCritical)
	return nil
}

// checkThreshold raises at most one alert per resource per pass: the
// critical kind when usage is at or past 90%, otherwise the warning
// kind at 80%. The conditional insert enforces the cooldown.
func (m *Monitor) checkThreshold(ctx context.Context, tenantID uuid.UUID, used, limit int64, warn, crit store.AlertKind) {
	if limit <= 0 {
		return
	}
	ratio := float64(used) / float64(limit)

	var kind store.AlertKind
	switch {
	case ratio >= criticalThreshold:
		kind = crit
	case ratio >= warningThreshold:
		kind = warn
	default:
		return
	}

	alert := &store.QuotaAlert{
		TenantID:   tenantID,
		Kind:       kind,
		UsedBytes:  used,
		LimitBytes: limit,
	}
	inserted, err := m.store.InsertAlertIfCooled(ctx, alert, m.cooldown)
	if err != nil {
		m.log.Error("failed to record quota alert",
			"tenant_id", tenantID, "kind", kind, "error", err)
		return
	}
	if !inserted {
		return
	}

	m.log.Warn("quota threshold crossed",
		"tenant_id", tenantID, "kind", kind,
		"used_bytes", used, "limit_bytes", limit)

	msg := notify.QuotaAlert{
		TenantID:   tenantID,
		Kind:       string(kind),
		UsedBytes:  used,
		LimitBytes: limit,
	}
	if err := m.notifier.QuotaAlert(ctx, msg); err != nil {
		m.log.Warn("quota alert notification failed",
			"tenant_id", tenantID, "error", err)
	}
}

// periodStart returns the start of the current billing period, the
// first of the month in UTC.
func periodStart(now time.Time) time.Time {
	y, mo, _ := now.UTC().Date()
	return time.Date(y, mo, 1, 0, 0, 0, 0, time.UTC)
}

// duWalk sums file sizes under the workspace. A missing workspace
// counts as zero usage rather than an error, since a tenant can be
// sampled between placement and first start.
func duWalk(workspace string) (int64, error) {
	var total int64
	err := filepath.WalkDir(workspace, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		total += info.Size()
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	return total, err
}
