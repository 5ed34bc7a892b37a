// Package cliutil is the CLI's HTTP client over the daemon's REST
// surface: probe /health, then issue GET/POST/DELETE against the
// routes §6 defines. Swapped from the teacher's Unix-socket JSON-RPC
// transport to plain net/http, since ops serves REST rather than RPC.
package cliutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// HealthTimeout and DataTimeout are the HTTP client defaults per §5:
// 1.0s for health checks, 3.0s for everything else.
const (
	HealthTimeout = 1 * time.Second
	DataTimeout   = 3 * time.Second
)

// Client calls the daemon's REST surface at BaseURL (e.g.
// "http://127.0.0.1:7777").
type Client struct {
	BaseURL string
	http    *http.Client
}

// NewClient builds a Client with DataTimeout as its per-request
// default. Health uses its own shorter timeout via Healthy.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		http:    &http.Client{Timeout: DataTimeout},
	}
}

// APIError is the error shape every 4xx response carries: {error:"..."}.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("daemon returned %d: %s", e.StatusCode, e.Message)
}

// Healthy probes GET /health with HealthTimeout and reports whether the
// daemon answered successfully. Callers use this to decide between the
// HTTP client and the offline index path.
func (c *Client) Healthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, HealthTimeout)
	defer cancel()

	var out map[string]any
	err := c.doRequest(ctx, http.MethodGet, "/health", nil, &out, HealthTimeout)
	return err == nil
}

// Get issues a GET request with the given query parameters.
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	return c.doRequest(ctx, http.MethodGet, path, nil, out, DataTimeout)
}

// Post issues a POST request with a JSON-encoded body.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.doRequest(ctx, http.MethodPost, path, body, out, DataTimeout)
}

// Delete issues a DELETE request.
func (c *Client) Delete(ctx context.Context, path string, out any) error {
	return c.doRequest(ctx, http.MethodDelete, path, nil, out, DataTimeout)
}

func (c *Client) doRequest(ctx context.Context, method, path string, body, out any, timeout time.Duration) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(data, &apiErr)
		return &APIError{StatusCode: resp.StatusCode, Message: apiErr.Error}
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// DefaultBaseURL builds the base URL the CLI targets for a given host
// and port, mirroring how ops.yml/daemon flags resolve an address.
func DefaultBaseURL(addr string) string {
	return "http://" + addr
}
