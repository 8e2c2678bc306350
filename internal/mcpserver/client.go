package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Config holds the configuration for connecting to the peerflag service.
type Config struct {
	APIURL string // Base URL, e.g. "http://localhost:8080"
	APIKey string // Optional API key for protected deployments
}

// PeerflagClient is a pure HTTP client for the peerflag service API.
type PeerflagClient struct {
	cfg        Config
	httpClient *http.Client
}

// NewPeerflagClient creates a new client for the peerflag service.
func NewPeerflagClient(cfg Config) *PeerflagClient {
	return &PeerflagClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// apiError represents an error response from the service.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// doRequest makes an HTTP request to the service and returns the response body.
func (c *PeerflagClient) doRequest(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	u, err := url.Parse(c.cfg.APIURL + path)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
			return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, apiErr.Message)
		}
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(respBody))
	}

	return json.RawMessage(respBody), nil
}

// CheckPurchase evaluates a hypothetical purchase without recording it.
func (c *PeerflagClient) CheckPurchase(ctx context.Context, user string, amount float64) (json.RawMessage, error) {
	body := map[string]any{
		"user":   user,
		"amount": amount,
	}
	return c.doRequest(ctx, http.MethodPost, "/v1/purchases/check", nil, body)
}

// GetUserFlags returns the evaluation history for one user.
func (c *PeerflagClient) GetUserFlags(ctx context.Context, user string, flaggedOnly bool, limit int) (json.RawMessage, error) {
	q := url.Values{}
	if flaggedOnly {
		q.Set("flagged", "true")
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return c.doRequest(ctx, http.MethodGet, "/v1/users/"+url.PathEscape(user)+"/flags", q, nil)
}

// ListFlags returns recent evaluation decisions across all users.
func (c *PeerflagClient) ListFlags(ctx context.Context, flaggedOnly bool, limit int) (json.RawMessage, error) {
	q := url.Values{}
	if flaggedOnly {
		q.Set("flagged", "true")
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return c.doRequest(ctx, http.MethodGet, "/v1/flags", q, nil)
}

// GetFeed returns the most recent purchases in a user's network.
func (c *PeerflagClient) GetFeed(ctx context.Context, user string, degree, limit int) (json.RawMessage, error) {
	q := url.Values{}
	if degree > 0 {
		q.Set("degree", strconv.Itoa(degree))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return c.doRequest(ctx, http.MethodGet, "/v1/users/"+url.PathEscape(user)+"/feed", q, nil)
}

// GetNeighborhood returns all users within the given degree of a user.
func (c *PeerflagClient) GetNeighborhood(ctx context.Context, user string, degree int) (json.RawMessage, error) {
	q := url.Values{}
	if degree > 0 {
		q.Set("degree", strconv.Itoa(degree))
	}
	return c.doRequest(ctx, http.MethodGet, "/v1/users/"+url.PathEscape(user)+"/neighborhood", q, nil)
}

// GetNetworkStats returns service-wide statistics.
func (c *PeerflagClient) GetNetworkStats(ctx context.Context) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/stats", nil, nil)
}
