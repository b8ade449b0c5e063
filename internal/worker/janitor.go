package worker

import (
	"context"
	"log/slog"
	"time"

	"storefleet/internal/store"
)

// Janitor fails jobs stuck in running longer than the staleness bound.
// Such jobs belong to a worker process that died mid-pipeline; their
// tenants are marked failed and become retryable.
type Janitor struct {
	store      store.JobStore
	staleAfter time.Duration
	interval   time.Duration
	log        *slog.Logger
}

func NewJanitor(s store.JobStore, staleAfter, interval time.Duration, log *slog.Logger) *Janitor {
	return &Janitor{store: s, staleAfter: staleAfter, interval: interval, log: log}
}

// Run sweeps until the context is cancelled. A pass runs immediately
// on start so a restarting host reclaims its own orphans first.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		n, err := j.store.ResetStaleJobs(ctx, j.staleAfter)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			j.log.Error("stale job sweep failed", "error", err)
		} else if n > 0 {
			j.log.Warn("reset stale jobs", "count", n, "stale_after", j.staleAfter)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
