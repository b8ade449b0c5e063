// Package worker contains the host agent: the serial job loop, the
// server heartbeat and the stale-job janitor.
package worker

import (
	"context"
	"log/slog"
	"time"

	"storefleet/internal/pipeline"
	"storefleet/internal/store"

	"github.com/google/uuid"
)

// AgentConfig holds configuration for the worker agent.
type AgentConfig struct {
	ServerID          uuid.UUID
	PollInterval      time.Duration // minimum delay between polls (default: 1s)
	MaxBackoff        time.Duration // maximum backoff when queue is empty (default: 30s)
	HeartbeatInterval time.Duration // interval between liveness writes (default: 15s)
	JobStaleAfter     time.Duration // running jobs older than this are failed (default: 30m)
	JanitorInterval   time.Duration // how often the janitor sweeps (default: 5m)
}

func (c *AgentConfig) applyDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 30 * time.Second
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 15 * time.Second
	}
	if c.JobStaleAfter <= 0 {
		c.JobStaleAfter = 30 * time.Minute
	}
	if c.JanitorInterval <= 0 {
		c.JanitorInterval = 5 * time.Minute
	}
}

// Agent runs the pull-loop against this server's queue. Jobs execute
// strictly one at a time: the steps touch shared host state (ports,
// proxy config, the container daemon), so serial execution is the
// concurrency control.
type Agent struct {
	store  store.JobStore
	runner *pipeline.Runner
	config AgentConfig
	log    *slog.Logger
	done   chan struct{}
}

func New(s store.JobStore, r *pipeline.Runner, config AgentConfig, log *slog.Logger) *Agent {
	config.applyDefaults()
	return &Agent{
		store:  s,
		runner: r,
		config: config,
		log:    log,
		done:   make(chan struct{}),
	}
}

// Run starts the pull-loop and blocks until the context is cancelled.
// On shutdown the in-flight job is allowed to finish; a job killed
// mid-run is recovered later by the janitor.
func (a *Agent) Run(ctx context.Context) error {
	a.log.Info("agent starting", "server_id", a.config.ServerID)
	defer close(a.done)

	// Backoff grows while the queue is empty and resets on work found.
	backoff := a.config.PollInterval

	for {
		select {
		case <-ctx.Done():
			a.log.Info("agent stopping")
			return ctx.Err()
		case <-time.After(backoff):
		}

		job, err := a.store.DequeueJob(ctx, a.config.ServerID)
		if err != nil {
			a.log.Error("dequeue failed", "error", err)
			backoff = a.nextBackoff(backoff)
			continue
		}
		if job == nil {
			backoff = a.nextBackoff(backoff)
			continue
		}
		backoff = a.config.PollInterval

		// Run with a fresh context so SIGTERM drains instead of
		// aborting a half-finished pipeline.
		runCtx, cancel := context.WithTimeout(context.Background(), a.config.JobStaleAfter)
		if err := a.runner.Run(runCtx, job); err != nil {
			a.log.Error("job failed",
				"job_id", job.ID, "tenant_id", job.TenantID,
				"kind", job.Kind, "error", err)
		}
		cancel()
	}
}

func (a *Agent) nextBackoff(current time.Duration) time.Duration {
	next := current * 2
	if next > a.config.MaxBackoff {
		next = a.config.MaxBackoff
	}
	return next
}

// Done returns a channel closed once the agent has fully stopped.
func (a *Agent) Done() <-chan struct{} {
	return a.done
}
