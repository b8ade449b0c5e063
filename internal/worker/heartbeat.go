package worker

import (
	"context"
	"log/slog"
	"time"

	"storefleet/internal/store"

	"github.com/google/uuid"
)

// Heartbeat periodically writes this server's liveness timestamp. The
// controller treats a server without a fresh heartbeat as ineligible
// for placement regardless of its declared status.
type Heartbeat struct {
	store    store.ServerStore
	serverID uuid.UUID
	interval time.Duration
	log      *slog.Logger
}

func NewHeartbeat(s store.ServerStore, serverID uuid.UUID, interval time.Duration, log *slog.Logger) *Heartbeat {
	return &Heartbeat{store: s, serverID: serverID, interval: interval, log: log}
}

// Run writes heartbeats until the context is cancelled. The first
// write happens immediately so a restarting agent becomes routable
// without waiting a full interval.
func (h *Heartbeat) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		if err := h.store.Heartbeat(ctx, h.serverID, time.Now()); err != nil {
			if ctx.Err() != nil {
				return
			}
			h.log.Error("heartbeat write failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RegisterServer upserts this host's server record from its static
// configuration and returns the assigned server ID.
func RegisterServer(ctx context.Context, s store.ServerStore, srv *store.Server) (uuid.UUID, error) {
	if err := s.RegisterServer(ctx, srv); err != nil {
		return uuid.Nil, err
	}
	return srv.ID, nil
}
