package postgres

import (
	"context"
	"testing"
	"time"

	"storefleet/internal/store"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
)

func TestInsertAlertIfCooled_Inserts(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectExec(`INSERT INTO quota_alerts`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	inserted, err := s.InsertAlertIfCooled(context.Background(), &store.QuotaAlert{
		TenantID:   uuid.New(),
		Kind:       store.AlertDiskWarning,
		UsedBytes:  9 << 30,
		LimitBytes: 10 << 30,
	}, 24*time.Hour)
	if err != nil {
		t.Fatalf("InsertAlertIfCooled failed: %v", err)
	}
	if !inserted {
		t.Error("expected insert, got suppressed")
	}
}

func TestInsertAlertIfCooled_SuppressedWithinCooldown(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	// The conditional insert matches zero rows while a recent alert of
	// the same (tenant, kind) exists.
	mock.ExpectExec(`INSERT INTO quota_alerts`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	inserted, err := s.InsertAlertIfCooled(context.Background(), &store.QuotaAlert{
		TenantID:   uuid.New(),
		Kind:       store.AlertDiskWarning,
		UsedBytes:  9 << 30,
		LimitBytes: 10 << 30,
	}, 24*time.Hour)
	if err != nil {
		t.Fatalf("InsertAlertIfCooled failed: %v", err)
	}
	if inserted {
		t.Error("expected suppression within cooldown, got insert")
	}
}

func TestUpsertUsageSample(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	sample := &store.UsageSample{
		TenantID:       uuid.New(),
		SampleDate:     time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC),
		DiskBytes:      1 << 30,
		BandwidthBytes: 3 << 30,
	}

	mock.ExpectExec(`INSERT INTO usage_samples`).
		WithArgs(sample.TenantID, sample.SampleDate, sample.DiskBytes, sample.BandwidthBytes).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.UpsertUsageSample(context.Background(), sample); err != nil {
		t.Fatalf("UpsertUsageSample failed: %v", err)
	}
}
