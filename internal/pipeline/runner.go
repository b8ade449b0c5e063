package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"storefleet/internal/store"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Runner executes the step sequence for a job's kind and owns the
// tenant status transitions around it.
type Runner struct {
	store     store.Store
	sequences map[store.JobKind][]Step
	log       *slog.Logger
}

// NewRunner creates a runner with one ordered step sequence per job kind.
func NewRunner(s store.Store, sequences map[store.JobKind][]Step, log *slog.Logger) *Runner {
	return &Runner{store: s, sequences: sequences, log: log}
}

// Run executes the job to completion: success, fatal failure with
// rollback, or process crash. There is no mid-pipeline cancellation
// beyond ctx, which callers keep alive during graceful drain.
func (r *Runner) Run(ctx context.Context, job *store.ProvisioningJob) error {
	tracer := otel.Tracer("pipeline")
	ctx, span := tracer.Start(ctx, "pipeline.run",
		trace.WithAttributes(
			attribute.String("job.id", job.ID.String()),
			attribute.String("job.kind", string(job.Kind)),
			attribute.String("tenant.id", job.TenantID.String()),
		))
	defer span.End()

	steps, ok := r.sequences[job.Kind]
	if !ok {
		err := fmt.Errorf("no step sequence for job kind %q", job.Kind)
		r.failJob(ctx, job, "dispatch", err)
		return err
	}

	tenant, err := r.store.GetTenant(ctx, job.TenantID)
	if err != nil {
		err = fmt.Errorf("failed to load tenant %s: %w", job.TenantID, err)
		r.failJob(ctx, job, "dispatch", err)
		return err
	}
	server, err := r.store.GetServer(ctx, job.ServerID)
	if err != nil {
		err = fmt.Errorf("failed to load server %s: %w", job.ServerID, err)
		r.failJob(ctx, job, "dispatch", err)
		return err
	}

	log := r.log.With("job_id", job.ID, "kind", job.Kind, "tenant_id", tenant.ID, "domain", tenant.Domain)

	pc := &Context{Job: job, Tenant: tenant, Server: server}
	if tenant.HasPlacement() {
		pc.Port = *tenant.Port
	}

	if job.Kind == store.JobKindProvision || job.Kind == store.JobKindResume {
		if err := r.store.UpdateTenantStatus(ctx, nil, tenant.ID, store.TenantStatusProvisioning, nil); err != nil {
			r.failJob(ctx, job, "dispatch", err)
			return err
		}
	}

	for i, step := range steps {
		log.Info("executing step", "step", step.Name(), "index", i+1, "total", len(steps))

		if err := step.Execute(ctx, pc); err != nil {
			if step.BestEffort() {
				log.Warn("best-effort step failed, continuing", "step", step.Name(), "error", err)
				continue
			}

			stepErr := &StepError{Step: step.Name(), Err: err}
			span.RecordError(stepErr)
			log.Error("fatal step failure, rolling back", "step", step.Name(), "error", err)

			r.rollback(ctx, pc, steps[:i+1], log)

			if job.Kind != store.JobKindTeardown {
				msg := stepErr.Error()
				if err := r.store.UpdateTenantStatus(ctx, nil, tenant.ID, store.TenantStatusFailed, &msg); err != nil {
					log.Error("failed to mark tenant failed", "error", err)
				}
			}
			r.failJob(ctx, job, step.Name(), stepErr.Err)
			return stepErr
		}

		// The cursor only advances once the step's side effects are
		// durable; a retry resumes from a consistent boundary.
		if err := r.store.SetJobCursor(ctx, job.ID, i+1); err != nil {
			log.Warn("failed to persist step cursor", "error", err)
		}
	}

	if err := r.store.CompleteJob(ctx, job.ID); err != nil {
		return fmt.Errorf("pipeline succeeded but job completion failed: %w", err)
	}

	log.Info("pipeline completed")
	return nil
}

// rollback walks the attempted steps in reverse. A rollback failure is
// logged and the walk continues: the system prefers a clearly-failed,
// partially-cleaned-up tenant over a silently-stuck one.
func (r *Runner) rollback(ctx context.Context, pc *Context, attempted []Step, log *slog.Logger) {
	for i := len(attempted) - 1; i >= 0; i-- {
		step := attempted[i]
		if step.BestEffort() {
			continue
		}
		if err := step.Rollback(ctx, pc); err != nil {
			log.Error("rollback step failed, continuing", "step", step.Name(), "error", err)
		}
	}
}

func (r *Runner) failJob(ctx context.Context, job *store.ProvisioningJob, step string, err error) {
	if ferr := r.store.FailJob(ctx, job.ID, step, err.Error()); ferr != nil {
		r.log.Error("failed to record job failure", "job_id", job.ID, "error", ferr)
	}
}
