// Package backup invokes the external backup/restore tool. The tool's
// internal storage format is opaque to the core; the contract is the
// command line and its output.
package backup

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Scope selects what the tool operates on.
type Scope string

const (
	ScopeDB    Scope = "db"
	ScopeFiles Scope = "files"
	ScopeBoth  Scope = "both"
)

// ValidScope reports whether s is one of the accepted scopes.
func ValidScope(s Scope) bool {
	switch s {
	case ScopeDB, ScopeFiles, ScopeBoth:
		return true
	}
	return false
}

// Runner wraps the external tool binary.
type Runner struct {
	bin     string
	timeout time.Duration
	log     *slog.Logger

	runCmd func(ctx context.Context, name string, args ...string) ([]byte, error)
}

func NewRunner(bin string, timeout time.Duration, log *slog.Logger) *Runner {
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	return &Runner{
		bin:     bin,
		timeout: timeout,
		log:     log,
		runCmd: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).CombinedOutput()
		},
	}
}

// Backup snapshots the tenant and returns the tool's snapshot
// identifier, which is the last non-empty line of its output.
func (r *Runner) Backup(ctx context.Context, tenantID uuid.UUID, scope Scope) (string, error) {
	if !ValidScope(scope) {
		return "", fmt.Errorf("invalid backup scope %q", scope)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	out, err := r.runCmd(ctx, r.bin, "backup", "--tenant", tenantID.String(), "--scope", string(scope))
	if err != nil {
		return "", fmt.Errorf("backup failed for tenant %s: %w: %s", tenantID, err, out)
	}

	snapshotID := lastLine(string(out))
	if snapshotID == "" {
		return "", fmt.Errorf("backup tool returned no snapshot id for tenant %s", tenantID)
	}

	r.log.Info("backup completed", "tenant_id", tenantID, "snapshot_id", snapshotID)
	return snapshotID, nil
}

// Restore applies a snapshot. Success or failure is the tool's exit code.
func (r *Runner) Restore(ctx context.Context, tenantID uuid.UUID, snapshotID string, scope Scope) error {
	if !ValidScope(scope) {
		return fmt.Errorf("invalid restore scope %q", scope)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	out, err := r.runCmd(ctx, r.bin, "restore",
		"--tenant", tenantID.String(),
		"--snapshot", snapshotID,
		"--scope", string(scope))
	if err != nil {
		return fmt.Errorf("restore failed for tenant %s: %w: %s", tenantID, err, out)
	}

	r.log.Info("restore completed", "tenant_id", tenantID, "snapshot_id", snapshotID)
	return nil
}

func lastLine(out string) string {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return ""
}
