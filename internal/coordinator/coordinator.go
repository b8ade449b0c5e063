// Package coordinator places tenants onto worker hosts and reports
// fleet health. Placement treats heartbeat-derived liveness and the
// administrator-declared status as independent signals.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"time"

	"storefleet/internal/store"

	"github.com/google/uuid"
)

// ErrNoCapacity is returned when no active, live server can take
// another tenant.
var ErrNoCapacity = errors.New("no server with available capacity")

// ErrServerUnavailable is returned when a placement hint names a server
// that cannot accept the tenant.
var ErrServerUnavailable = errors.New("requested server is not available")

const (
	// DefaultHeartbeatFreshness is how recent a heartbeat must be for a
	// server to count as live.
	DefaultHeartbeatFreshness = 45 * time.Second

	// probeTimeout bounds the TCP reachability probe used when a
	// heartbeat has gone stale.
	probeTimeout = 3 * time.Second
)

// Store is the subset of the storage layer the coordinator needs.
type Store interface {
	ListServers(ctx context.Context) ([]store.Server, error)
	GetServer(ctx context.Context, id uuid.UUID) (*store.Server, error)
	GetServerByName(ctx context.Context, name string) (*store.Server, error)
	CountLiveTenants(ctx context.Context, serverID uuid.UUID) (int, error)
	CountQueuedJobs(ctx context.Context) (int64, error)
}

// Dialer probes raw TCP reachability. Swapped out in tests.
type Dialer func(network, address string, timeout time.Duration) (net.Conn, error)

type Coordinator struct {
	store     Store
	freshness time.Duration
	dial      Dialer
	log       *slog.Logger
}

func New(s Store, freshness time.Duration, log *slog.Logger) *Coordinator {
	if freshness <= 0 {
		freshness = DefaultHeartbeatFreshness
	}
	return &Coordinator{
		store:     s,
		freshness: freshness,
		dial:      net.DialTimeout,
		log:       log,
	}
}

// alive reports whether the server's heartbeat is fresh at the given
// instant. Declared status is deliberately not consulted here.
func (c *Coordinator) alive(s *store.Server, now time.Time) bool {
	return s.LastHeartbeat != nil && now.Sub(*s.LastHeartbeat) < c.freshness
}

// candidate pairs a server with its current tenant count.
type candidate struct {
	server store.Server
	load   int
}

// PickServer selects the placement target for a new tenant. With a
// hint, only the named server is considered and it must be active, live
// and under capacity. Without one, the least loaded eligible server
// wins; ties break on name so placement is deterministic.
func (c *Coordinator) PickServer(ctx context.Context, hint string) (*store.Server, error) {
	now := time.Now()

	if hint != "" {
		srv, err := c.store.GetServerByName(ctx, hint)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, fmt.Errorf("%w: %s", ErrServerUnavailable, hint)
			}
			return nil, err
		}
		if srv.Status != store.ServerStatusActive || !c.alive(srv, now) {
			return nil, fmt.Errorf("%w: %s", ErrServerUnavailable, hint)
		}
		load, err := c.store.CountLiveTenants(ctx, srv.ID)
		if err != nil {
			return nil, err
		}
		if load >= srv.MaxTenants {
			return nil, fmt.Errorf("%w: %s is at capacity", ErrServerUnavailable, hint)
		}
		return srv, nil
	}

	servers, err := c.store.ListServers(ctx)
	if err != nil {
		return nil, err
	}

	var candidates []candidate
	for _, srv := range servers {
		if srv.Status != store.ServerStatusActive || !c.alive(&srv, now) {
			continue
		}
		load, err := c.store.CountLiveTenants(ctx, srv.ID)
		if err != nil {
			return nil, err
		}
		if load >= srv.MaxTenants {
			continue
		}
		candidates = append(candidates, candidate{server: srv, load: load})
	}
	if len(candidates) == 0 {
		return nil, ErrNoCapacity
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].load != candidates[j].load {
			return candidates[i].load < candidates[j].load
		}
		return candidates[i].server.Name < candidates[j].server.Name
	})

	picked := candidates[0].server
	return &picked, nil
}

// ServerHealth is one server's row in the fleet status report.
type ServerHealth struct {
	Server      store.Server `json:"server"`
	Live        bool         `json:"live"`
	TenantCount int          `json:"tenant_count"`
	Reachable   *bool        `json:"reachable,omitempty"`
}

// FleetStatus is the aggregate health view served to operators.
type FleetStatus struct {
	Servers    []ServerHealth `json:"servers"`
	QueueDepth int64          `json:"queue_depth"`
	CheckedAt  time.Time      `json:"checked_at"`
}

// Status builds the fleet health report. Servers with a stale heartbeat
// get a direct TCP probe so operators can tell a dead host from a dead
// agent process.
func (c *Coordinator) Status(ctx context.Context) (*FleetStatus, error) {
	servers, err := c.store.ListServers(ctx)
	if err != nil {
		return nil, err
	}
	now := time.Now()

	out := &FleetStatus{CheckedAt: now, Servers: make([]ServerHealth, 0, len(servers))}
	for _, srv := range servers {
		h := ServerHealth{Server: srv, Live: c.alive(&srv, now)}

		count, err := c.store.CountLiveTenants(ctx, srv.ID)
		if err != nil {
			return nil, err
		}
		h.TenantCount = count

		if !h.Live {
			reachable := c.probe(srv.Address)
			h.Reachable = &reachable
		}
		out.Servers = append(out.Servers, h)
	}

	depth, err := c.store.CountQueuedJobs(ctx)
	if err != nil {
		return nil, err
	}
	out.QueueDepth = depth
	return out, nil
}

// CountLiveServers returns how many servers currently have a fresh
// heartbeat, regardless of declared status. Feeds the fleet gauge.
func (c *Coordinator) CountLiveServers(ctx context.Context) (int64, error) {
	servers, err := c.store.ListServers(ctx)
	if err != nil {
		return 0, err
	}
	now := time.Now()

	var live int64
	for _, srv := range servers {
		if c.alive(&srv, now) {
			live++
		}
	}
	return live, nil
}

func (c *Coordinator) probe(address string) bool {
	conn, err := c.dial("tcp", address, probeTimeout)
	if err != nil {
		c.log.Debug("server probe failed", "address", address, "error", err)
		return false
	}
	conn.Close()
	return true
}
