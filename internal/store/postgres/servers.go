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

const serverColumns = `id, name, address, max_tenants, port_range_start,
	port_range_end, status, last_heartbeat, created_at`

func scanServer(row interface{ Scan(...interface{}) error }) (*store.Server, error) {
	var srv store.Server
	err := row.Scan(
		&srv.ID, &srv.Name, &srv.Address, &srv.MaxTenants,
		&srv.PortRangeStart, &srv.PortRangeEnd, &srv.Status,
		&srv.LastHeartbeat, &srv.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &srv, nil
}

// RegisterServer upserts by name so a worker can re-register on restart
// without losing its identity or history. Re-registration refreshes the
// address, capacity and port range but never touches the declared
// status: a host an administrator put in maintenance stays there across
// worker restarts.
func (s *Store) RegisterServer(ctx context.Context, srv *store.Server) error {
	if srv.ID == uuid.Nil {
		srv.ID = uuid.New()
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO servers (id, name, address, max_tenants, port_range_start, port_range_end, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (name) DO UPDATE
		SET address = EXCLUDED.address,
		    max_tenants = EXCLUDED.max_tenants,
		    port_range_start = EXCLUDED.port_range_start,
		    port_range_end = EXCLUDED.port_range_end
		RETURNING id, status, created_at
	`, srv.ID, srv.Name, srv.Address, srv.MaxTenants,
		srv.PortRangeStart, srv.PortRangeEnd, srv.Status,
	).Scan(&srv.ID, &srv.Status, &srv.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to register server %s: %w", srv.Name, err)
	}
	return nil
}

func (s *Store) GetServer(ctx context.Context, id uuid.UUID) (*store.Server, error) {
	query := fmt.Sprintf("SELECT %s FROM servers WHERE id = $1", serverColumns)
	return scanServer(s.db.QueryRowContext(ctx, query, id))
}

func (s *Store) GetServerByName(ctx context.Context, name string) (*store.Server, error) {
	query := fmt.Sprintf("SELECT %s FROM servers WHERE name = $1", serverColumns)
	return scanServer(s.db.QueryRowContext(ctx, query, name))
}

func (s *Store) ListServers(ctx context.Context) ([]store.Server, error) {
	query := fmt.Sprintf("SELECT %s FROM servers ORDER BY name ASC", serverColumns)

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list servers: %w", err)
	}
	defer rows.Close()

	var servers []store.Server
	for rows.Next() {
		srv, err := scanServer(rows)
		if err != nil {
			return nil, err
		}
		servers = append(servers, *srv)
	}
	return servers, rows.Err()
}

func (s *Store) Heartbeat(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE servers SET last_heartbeat = $1 WHERE id = $2
	`, at, id)
	return err
}

func (s *Store) SetServerStatus(ctx context.Context, id uuid.UUID, status store.ServerStatus) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE servers SET status = $1 WHERE id = $2
	`, status, id)
	return err
}
