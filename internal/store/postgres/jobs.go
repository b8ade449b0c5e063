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

const jobColumns = `id, tenant_id, server_id, kind, status, step_cursor,
	error_step, error_message, enqueued_at, started_at, finished_at`

func scanJob(row interface{ Scan(...interface{}) error }) (*store.ProvisioningJob, error) {
	var j store.ProvisioningJob
	err := row.Scan(
		&j.ID, &j.TenantID, &j.ServerID, &j.Kind, &j.Status, &j.StepCursor,
		&j.ErrorStep, &j.ErrorMessage, &j.EnqueuedAt, &j.StartedAt, &j.FinishedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &j, nil
}

// EnqueueJob inserts a queued job. The partial unique index
// provisioning_jobs_in_flight arbitrates concurrent enqueues: the first
// committer wins, everyone else gets ErrAlreadyInFlight.
func (s *Store) EnqueueJob(ctx context.Context, tenantID, serverID uuid.UUID, kind store.JobKind) (*store.ProvisioningJob, error) {
	job := &store.ProvisioningJob{
		ID:         uuid.New(),
		TenantID:   tenantID,
		ServerID:   serverID,
		Kind:       kind,
		Status:     store.JobStatusQueued,
		EnqueuedAt: time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO provisioning_jobs (id, tenant_id, server_id, kind, status, enqueued_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, job.ID, job.TenantID, job.ServerID, job.Kind, job.Status, job.EnqueuedAt)
	if err != nil {
		if store.IsUniqueViolation(err, "provisioning_jobs_in_flight") {
			return nil, store.ErrAlreadyInFlight
		}
		return nil, fmt.Errorf("failed to enqueue job for tenant %s: %w", tenantID, err)
	}

	return job, nil
}

// DequeueJob claims the oldest queued job for the server using
// SELECT ... FOR UPDATE SKIP LOCKED and flips it to running.
// Returns (nil, nil) if no job is available.
func (s *Store) DequeueJob(ctx context.Context, serverID uuid.UUID) (*store.ProvisioningJob, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	query := fmt.Sprintf(`
		SELECT %s
		FROM provisioning_jobs
		WHERE server_id = $1 AND status = 'queued'
		ORDER BY enqueued_at ASC
		FOR UPDATE SKIP LOCKED
		LIMIT 1
	`, jobColumns)

	job, err := scanJob(tx.QueryRowContext(ctx, query, serverID))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("dequeue query failed: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE provisioning_jobs
		SET status = $1, started_at = NOW()
		WHERE id = $2
	`, store.JobStatusRunning, job.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to claim job %s: %w", job.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	job.Status = store.JobStatusRunning
	now := time.Now().UTC()
	job.StartedAt = &now
	return job, nil
}

func (s *Store) CompleteJob(ctx context.Context, jobID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE provisioning_jobs
		SET status = $1, finished_at = NOW()
		WHERE id = $2
	`, store.JobStatusSucceeded, jobID)
	return err
}

func (s *Store) FailJob(ctx context.Context, jobID uuid.UUID, step, errMsg string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE provisioning_jobs
		SET status = $1, error_step = $2, error_message = $3, finished_at = NOW()
		WHERE id = $4
	`, store.JobStatusFailed, step, errMsg, jobID)
	return err
}

func (s *Store) SetJobCursor(ctx context.Context, jobID uuid.UUID, cursor int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE provisioning_jobs
		SET step_cursor = $1
		WHERE id = $2
	`, cursor, jobID)
	return err
}

func (s *Store) GetJob(ctx context.Context, jobID uuid.UUID) (*store.ProvisioningJob, error) {
	query := fmt.Sprintf("SELECT %s FROM provisioning_jobs WHERE id = $1", jobColumns)
	return scanJob(s.db.QueryRowContext(ctx, query, jobID))
}

func (s *Store) GetInFlightJob(ctx context.Context, tenantID uuid.UUID) (*store.ProvisioningJob, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM provisioning_jobs
		WHERE tenant_id = $1 AND status IN ('queued', 'running')
	`, jobColumns)
	return scanJob(s.db.QueryRowContext(ctx, query, tenantID))
}

func (s *Store) ListJobsForTenant(ctx context.Context, tenantID uuid.UUID, limit int) ([]store.ProvisioningJob, error) {
	if limit <= 0 {
		limit = 20
	}
	query := fmt.Sprintf(`
		SELECT %s FROM provisioning_jobs
		WHERE tenant_id = $1
		ORDER BY enqueued_at DESC
		LIMIT $2
	`, jobColumns)

	rows, err := s.db.QueryContext(ctx, query, tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []store.ProvisioningJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

// ResetStaleJobs fails jobs stuck in running longer than staleAfter and
// marks their tenants failed. A crashed worker leaves its job running
// forever otherwise; the reset makes the tenant retry-eligible.
func (s *Store) ResetStaleJobs(ctx context.Context, staleAfter time.Duration) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		WITH stale AS (
			UPDATE provisioning_jobs
			SET status = 'failed',
			    error_message = 'job stale: worker stopped reporting',
			    finished_at = NOW()
			WHERE status = 'running'
			  AND started_at < NOW() - ($1 * INTERVAL '1 second')
			RETURNING tenant_id
		)
		UPDATE tenants
		SET status = 'failed',
		    last_error = 'provisioning interrupted: worker stopped reporting',
		    updated_at = NOW()
		WHERE id IN (SELECT tenant_id FROM stale)
	`, staleAfter.Seconds())
	if err != nil {
		return 0, fmt.Errorf("failed to reset stale jobs: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) CountQueuedJobs(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM provisioning_jobs WHERE status = 'queued'",
	).Scan(&count)
	return count, err
}
