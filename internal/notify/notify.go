// Package notify dispatches fire-and-forget notifications to an
// external collaborator. Failures are logged by callers and never roll
// back provisioning.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// StoreProvisioned is sent when a tenant store becomes active.
type StoreProvisioned struct {
	TenantID      uuid.UUID `json:"tenant_id"`
	StoreURL      string    `json:"store_url"`
	AdminURL      string    `json:"admin_url"`
	AdminUser     string    `json:"admin_user"`
	AdminPassword string    `json:"admin_password"`
}

// QuotaAlert is sent when a tenant crosses a usage threshold.
type QuotaAlert struct {
	TenantID   uuid.UUID `json:"tenant_id"`
	Kind       string    `json:"kind"`
	UsedBytes  int64     `json:"used_bytes"`
	LimitBytes int64     `json:"limit_bytes"`
}

// Notifier is the external notification collaborator.
type Notifier interface {
	StoreProvisioned(ctx context.Context, msg StoreProvisioned) error
	QuotaAlert(ctx context.Context, msg QuotaAlert) error
}

// WebhookNotifier posts JSON messages to a single webhook URL.
type WebhookNotifier struct {
	url        string
	httpClient *http.Client
}

func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url: url,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (n *WebhookNotifier) StoreProvisioned(ctx context.Context, msg StoreProvisioned) error {
	return n.post(ctx, "store.provisioned", msg)
}

func (n *WebhookNotifier) QuotaAlert(ctx context.Context, msg QuotaAlert) error {
	return n.post(ctx, "quota.alert", msg)
}

func (n *WebhookNotifier) post(ctx context.Context, event string, payload interface{}) error {
	body, err := json.Marshal(map[string]interface{}{
		"event":   event,
		"payload": payload,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("notification dispatch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("notification endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// NopNotifier drops all messages. Used when no webhook is configured.
type NopNotifier struct{}

func (NopNotifier) StoreProvisioned(ctx context.Context, msg StoreProvisioned) error { return nil }
func (NopNotifier) QuotaAlert(ctx context.Context, msg QuotaAlert) error             { return nil }
