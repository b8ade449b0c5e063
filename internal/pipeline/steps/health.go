package steps

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"storefleet/internal/pipeline"
)

// verifyHealth polls the environment's local HTTP surface until it
// responds, for up to a bounded wait. A store that never comes up is a
// fatal failure and triggers rollback.
type verifyHealth struct {
	noRollback
	set *Set
}

func (s *verifyHealth) Name() string     { return "verify-health" }
func (s *verifyHealth) BestEffort() bool { return false }

func (s *verifyHealth) Execute(ctx context.Context, pc *pipeline.Context) error {
	timeout := s.set.HealthTimeout
	if timeout <= 0 {
		timeout = 3 * time.Minute
	}
	interval := s.set.HealthInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}

	url := fmt.Sprintf("http://127.0.0.1:%d/", pc.Port)
	client := s.set.httpClient()

	deadline := time.Now().Add(timeout)
	var lastErr error

	for time.Now().Before(deadline) {
		if err := probeOnce(ctx, client, url); err == nil {
			return nil
		} else {
			lastErr = err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}

	return fmt.Errorf("environment unhealthy after %s: %w", timeout, lastErr)
}

// probeOnce considers any HTTP response below 500 as alive: a fresh
// store may redirect to its installer or answer 403 before setup.
func probeOnce(ctx context.Context, client *http.Client, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}
