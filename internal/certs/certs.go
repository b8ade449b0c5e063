// Package certs requests TLS certificates for tenant domains through an
// external ACME client. Issuance is best-effort: on failure the tenant
// stays reachable over plain HTTP and issuance is retried on a later
// cycle.
package certs

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"time"
)

// Issuer requests a certificate for a domain.
type Issuer interface {
	Issue(ctx context.Context, domain string) error
}

// ExternalIssuer shells out to an ACME client binary (certbot-style)
// with webroot domain validation.
type ExternalIssuer struct {
	bin     string
	webroot string
	email   string
	timeout time.Duration
	log     *slog.Logger

	runCmd func(ctx context.Context, name string, args ...string) ([]byte, error)
}

func NewExternalIssuer(bin, webroot, email string, timeout time.Duration, log *slog.Logger) *ExternalIssuer {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &ExternalIssuer{
		bin:     bin,
		webroot: webroot,
		email:   email,
		timeout: timeout,
		log:     log,
		runCmd: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).CombinedOutput()
		},
	}
}

func (e *ExternalIssuer) Issue(ctx context.Context, domain string) error {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	out, err := e.runCmd(ctx, e.bin,
		"certonly", "--non-interactive", "--agree-tos",
		"--webroot", "-w", e.webroot,
		"-m", e.email,
		"-d", domain)
	if err != nil {
		return fmt.Errorf("certificate issuance failed for %s: %w: %s", domain, err, out)
	}

	e.log.Info("certificate issued", "domain", domain)
	return nil
}

// NopIssuer always fails with a descriptive error. Used when no ACME
// client is configured; the best-effort step logs and continues.
type NopIssuer struct{}

func (NopIssuer) Issue(ctx context.Context, domain string) error {
	return fmt.Errorf("no certificate issuer configured")
}
