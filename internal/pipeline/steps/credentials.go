package steps

import (
	"context"

	"storefleet/internal/pipeline"
	"storefleet/internal/secrets"
)

// generateCredentials creates a fresh credential set. Credentials are
// regenerated on every attempt, never reused, so a password that leaked
// into an earlier attempt's logs is worthless.
type generateCredentials struct {
	noRollback
}

func (s *generateCredentials) Name() string     { return "generate-credentials" }
func (s *generateCredentials) BestEffort() bool { return false }

func (s *generateCredentials) Execute(ctx context.Context, pc *pipeline.Context) error {
	creds, err := secrets.NewCredentials(pc.Tenant.Name)
	if err != nil {
		return err
	}
	pc.Creds = creds
	return nil
}
