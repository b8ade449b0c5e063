package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"storefleet/internal/store"

	"github.com/google/uuid"
)

// AssignPort binds (serverID, port) to a tenant. The primary key on
// (server_id, port) arbitrates concurrent allocation attempts across
// worker processes: the first committed insert wins.
func (s *Store) AssignPort(ctx context.Context, serverID uuid.UUID, port int, tenantID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO port_assignments (server_id, port, tenant_id)
		VALUES ($1, $2, $3)
	`, serverID, port, tenantID)
	if err != nil {
		if store.IsUniqueViolation(err, "port_assignments_pkey") {
			return store.ErrPortTaken
		}
		if store.IsUniqueViolation(err, "port_assignments_tenant_key") {
			// Tenant already holds a port; callers check this first, but
			// a concurrent allocator may have raced us.
			return store.ErrPortTaken
		}
		return fmt.Errorf("failed to assign port %d on server %s: %w", port, serverID, err)
	}
	return nil
}

// ReleasePort removes the assignment. Releasing an already-free port is
// a no-op, not an error, so rollback stays idempotent.
func (s *Store) ReleasePort(ctx context.Context, serverID uuid.UUID, port int) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM port_assignments WHERE server_id = $1 AND port = $2
	`, serverID, port)
	return err
}

func (s *Store) GetPortAssignment(ctx context.Context, tenantID uuid.UUID) (*store.PortAssignment, error) {
	var pa store.PortAssignment
	err := s.db.QueryRowContext(ctx, `
		SELECT server_id, port, tenant_id, created_at
		FROM port_assignments
		WHERE tenant_id = $1
	`, tenantID).Scan(&pa.ServerID, &pa.Port, &pa.TenantID, &pa.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &pa, nil
}

func (s *Store) ListAssignedPorts(ctx context.Context, serverID uuid.UUID) ([]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT port FROM port_assignments WHERE server_id = $1 ORDER BY port ASC
	`, serverID)
	if err != nil {
		return nil, fmt.Errorf("failed to list ports for server %s: %w", serverID, err)
	}
	defer rows.Close()

	var ports []int
	for rows.Next() {
		var p int
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		ports = append(ports, p)
	}
	return ports, rows.Err()
}
