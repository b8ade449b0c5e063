package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"storefleet/pkg/api"
)

// FleetClient handles API calls to the storefleet controller.
type FleetClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewFleetClient creates a new client with the given base URL.
func NewFleetClient(baseURL string) *FleetClient {
	return &FleetClient{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// APIError represents an error response from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

// do runs a request and decodes the JSON response into out when it is
// non-nil. Any non-2xx status becomes an APIError carrying the body.
func (c *FleetClient) do(method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(bodyBytes)
	}

	httpReq, err := http.NewRequest(method, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Add("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}

// CreateStore sends POST /stores to provision a new store.
func (c *FleetClient) CreateStore(req api.CreateStoreRequest) (*api.CreateStoreResponse, error) {
	var result api.CreateStoreResponse
	if err := c.do(http.MethodPost, "/stores", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetStore sends GET /stores/{id}.
func (c *FleetClient) GetStore(tenantID string) (*api.StoreResponse, error) {
	var result api.StoreResponse
	if err := c.do(http.MethodGet, "/stores/"+tenantID, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListStoreJobs sends GET /stores/{id}/jobs.
func (c *FleetClient) ListStoreJobs(tenantID string) ([]api.JobResponse, error) {
	var result []api.JobResponse
	if err := c.do(http.MethodGet, "/stores/"+tenantID+"/jobs", nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// RetryStore sends POST /stores/{id}/retry.
func (c *FleetClient) RetryStore(tenantID string) (*api.EnqueueResponse, error) {
	var result api.EnqueueResponse
	if err := c.do(http.MethodPost, "/stores/"+tenantID+"/retry", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SuspendStore sends POST /stores/{id}/suspend.
func (c *FleetClient) SuspendStore(tenantID, reason string) (*api.EnqueueResponse, error) {
	var result api.EnqueueResponse
	req := api.SuspendStoreRequest{Reason: reason}
	if err := c.do(http.MethodPost, "/stores/"+tenantID+"/suspend", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ResumeStore sends POST /stores/{id}/resume.
func (c *FleetClient) ResumeStore(tenantID string) (*api.EnqueueResponse, error) {
	var result api.EnqueueResponse
	if err := c.do(http.MethodPost, "/stores/"+tenantID+"/resume", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// DeleteStore sends DELETE /stores/{id}.
func (c *FleetClient) DeleteStore(tenantID string) (*api.EnqueueResponse, error) {
	var result api.EnqueueResponse
	if err := c.do(http.MethodDelete, "/stores/"+tenantID, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListServers sends GET /servers.
func (c *FleetClient) ListServers() ([]api.ServerResponse, error) {
	var result []api.ServerResponse
	if err := c.do(http.MethodGet, "/servers", nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// FleetStatus sends GET /fleet/status.
func (c *FleetClient) FleetStatus() (*api.FleetStatusResponse, error) {
	var result api.FleetStatusResponse
	if err := c.do(http.MethodGet, "/fleet/status", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
