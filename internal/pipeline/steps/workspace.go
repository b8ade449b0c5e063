package steps

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"storefleet/internal/pipeline"
	"storefleet/internal/runtime"
)

// ensureWorkspace creates the tenant's workspace directory. If a prior
// partial attempt left one behind, any running containers are torn down
// first; the step never fails merely because the path exists.
type ensureWorkspace struct {
	noRollback // workspace is left in place for forensic inspection
	set        *Set
}

func (s *ensureWorkspace) Name() string     { return "ensure-workspace" }
func (s *ensureWorkspace) BestEffort() bool { return false }

func (s *ensureWorkspace) Execute(ctx context.Context, pc *pipeline.Context) error {
	ws := s.set.WorkspacePath(pc.Tenant.ID)
	composeFile := filepath.Join(ws, composeFileName)

	if _, err := os.Stat(ws); err == nil {
		// Leftovers from a previous attempt. Stop whatever is still
		// running before reusing the directory.
		env := runtime.Environment{
			TenantID:    pc.Tenant.ID,
			Workspace:   ws,
			ComposeFile: composeFile,
		}
		if err := s.set.Runtime.Down(ctx, env, true); err != nil {
			return fmt.Errorf("failed to tear down previous attempt: %w", err)
		}
	}

	for _, dir := range []string{ws, filepath.Join(ws, "logs")} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create workspace %s: %w", dir, err)
		}
	}

	pc.Workspace = ws
	pc.ComposeFile = composeFile
	return nil
}
