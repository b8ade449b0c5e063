package steps

import (
	"context"
	"fmt"
	"os"

	"storefleet/internal/pipeline"
	"storefleet/internal/runtime"
)

// renderEnvironment materializes the compose definition for the
// tenant's platform with per-plan memory and CPU ceilings injected.
type renderEnvironment struct {
	noRollback // the file lives in the workspace, which is kept
	set        *Set
}

func (s *renderEnvironment) Name() string     { return "render-environment" }
func (s *renderEnvironment) BestEffort() bool { return false }

func (s *renderEnvironment) Execute(ctx context.Context, pc *pipeline.Context) error {
	if pc.Creds == nil {
		return fmt.Errorf("no credentials in pipeline context")
	}

	def := runtime.EnvironmentDef{
		TenantID:      pc.Tenant.ID,
		Domain:        pc.Tenant.Domain,
		Port:          pc.Port,
		Platform:      pc.Tenant.Platform,
		DBName:        "shop",
		DBUser:        pc.Creds.DBUser,
		DBPassword:    pc.Creds.DBPassword,
		AdminUser:     pc.Creds.AdminUser,
		AdminPassword: pc.Creds.AdminPassword,
		MemoryLimit:   pc.Limits.MemoryLimit,
		CPULimit:      pc.Limits.CPULimit,
	}

	data, err := runtime.RenderCompose(def)
	if err != nil {
		return err
	}

	// Contains generated passwords; owner-only.
	if err := os.WriteFile(pc.ComposeFile, data, 0o600); err != nil {
		return fmt.Errorf("failed to write environment definition: %w", err)
	}
	return nil
}
