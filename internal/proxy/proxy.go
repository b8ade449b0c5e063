// Package proxy writes per-tenant reverse-proxy route files and applies
// them via syntax-check-then-reload. A syntactically invalid route is
// never activated.
package proxy

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/google/uuid"
)

// Route is the input to the route template.
type Route struct {
	TenantID uuid.UUID
	Domain   string
	Port     int
	TLS      bool
}

var routeTemplate = template.Must(template.New("route").Parse(`# managed by storefleet, tenant {{ .TenantID }}
server {
    listen 80;
{{- if .TLS }}
    listen 443 ssl;
    ssl_certificate     /etc/letsencrypt/live/{{ .Domain }}/fullchain.pem;
    ssl_certificate_key /etc/letsencrypt/live/{{ .Domain }}/privkey.pem;
{{- end }}
    server_name {{ .Domain }};

    location / {
        proxy_pass http://127.0.0.1:{{ .Port }};
        proxy_set_header Host $host;
        proxy_set_header X-Real-IP $remote_addr;
        proxy_set_header X-Forwarded-For $proxy_add_x_forwarded_for;
        proxy_set_header X-Forwarded-Proto $scheme;
    }
}
`))

// Manager renders route files into confDir, one file per tenant at a
// deterministic path keyed by tenant id.
type Manager struct {
	confDir   string
	checkCmd  []string
	reloadCmd []string
	log       *slog.Logger

	// runCmd is swapped in tests.
	runCmd func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// New creates a route manager. checkCmd and reloadCmd are full command
// lines, e.g. "nginx -t" and "nginx -s reload".
func New(confDir, checkCmd, reloadCmd string, log *slog.Logger) *Manager {
	return &Manager{
		confDir:   confDir,
		checkCmd:  strings.Fields(checkCmd),
		reloadCmd: strings.Fields(reloadCmd),
		log:       log,
		runCmd: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).CombinedOutput()
		},
	}
}

// RoutePath returns the deterministic config path for a tenant.
func (m *Manager) RoutePath(tenantID uuid.UUID) string {
	return filepath.Join(m.confDir, tenantID.String()+".conf")
}

// WriteRoute renders the route, stages it, runs the proxy's syntax
// check, and only then activates it and reloads. On check failure the
// staged file is removed and the previous route (if any) stays active.
func (m *Manager) WriteRoute(ctx context.Context, r Route) error {
	var buf bytes.Buffer
	if err := routeTemplate.Execute(&buf, r); err != nil {
		return fmt.Errorf("failed to render route for tenant %s: %w", r.TenantID, err)
	}

	final := m.RoutePath(r.TenantID)
	staged := final + ".staged"
	if err := os.WriteFile(staged, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to stage route: %w", err)
	}

	if err := m.check(ctx, staged); err != nil {
		os.Remove(staged)
		return fmt.Errorf("route failed syntax check, not activated: %w", err)
	}

	if err := os.Rename(staged, final); err != nil {
		os.Remove(staged)
		return fmt.Errorf("failed to activate route: %w", err)
	}

	return m.reload(ctx)
}

// RemoveRoute deletes the tenant's route file and reloads. Removing a
// route that does not exist is a no-op, keeping rollback idempotent.
func (m *Manager) RemoveRoute(ctx context.Context, tenantID uuid.UUID) error {
	path := m.RoutePath(tenantID)
	err := os.Remove(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to remove route %s: %w", path, err)
	}
	return m.reload(ctx)
}

// HasRoute reports whether an active route file exists for the tenant.
func (m *Manager) HasRoute(tenantID uuid.UUID) bool {
	_, err := os.Stat(m.RoutePath(tenantID))
	return err == nil
}

func (m *Manager) check(ctx context.Context, stagedFile string) error {
	if len(m.checkCmd) == 0 {
		return nil
	}
	// The staged file path is appended so wrappers like a check script
	// can validate the candidate in isolation.
	args := append(append([]string{}, m.checkCmd[1:]...), stagedFile)
	out, err := m.runCmd(ctx, m.checkCmd[0], args...)
	if err != nil {
		return fmt.Errorf("%w: %s", err, out)
	}
	return nil
}

func (m *Manager) reload(ctx context.Context) error {
	if len(m.reloadCmd) == 0 {
		return nil
	}
	out, err := m.runCmd(ctx, m.reloadCmd[0], m.reloadCmd[1:]...)
	if err != nil {
		return fmt.Errorf("proxy reload failed: %w: %s", err, out)
	}
	return nil
}
