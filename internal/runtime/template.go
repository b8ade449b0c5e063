package runtime

import (
	"bytes"
	"embed"
	"fmt"
	"text/template"

	"storefleet/internal/store"

	"github.com/google/uuid"
)

//go:embed templates/*.yaml.tmpl
var templateFS embed.FS

// EnvironmentDef carries everything a platform template needs.
type EnvironmentDef struct {
	TenantID      uuid.UUID
	Domain        string
	Port          int
	Platform      store.Platform
	DBName        string
	DBUser        string
	DBPassword    string
	AdminUser     string
	AdminPassword string
	MemoryLimit   string
	CPULimit      string
}

// Label returns the tenant label value injected into every service.
func (d EnvironmentDef) Label() string {
	return d.TenantID.String()
}

// RenderCompose renders the compose definition for the tenant's
// platform with per-plan memory and CPU ceilings injected.
func RenderCompose(def EnvironmentDef) ([]byte, error) {
	name := fmt.Sprintf("templates/%s.yaml.tmpl", def.Platform)
	tmpl, err := template.ParseFS(templateFS, name)
	if err != nil {
		return nil, fmt.Errorf("unsupported platform %q: %w", def.Platform, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, def); err != nil {
		return nil, fmt.Errorf("failed to render environment for tenant %s: %w", def.TenantID, err)
	}
	return buf.Bytes(), nil
}
