package execution

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPBackend talks to the SQL execution service over a single RPC-style
// POST. The service returns {"rows": [...]} on success or {"error": "..."}
// when the statement is rejected.
type HTTPBackend struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// HTTPBackendConfig holds configuration for the HTTP backend.
type HTTPBackendConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// NewHTTPBackend creates an HTTP execution backend.
func NewHTTPBackend(config HTTPBackendConfig) (*HTTPBackend, error) {
	if config.BaseURL == "" {
		return nil, ErrBackendUnconfigured
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPBackend{
		baseURL:    config.BaseURL,
		apiKey:     config.APIKey,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

type executeRequest struct {
	SQL string `json:"sql"`
}

type executeResponse struct {
	Rows  []Row  `json:"rows"`
	Error string `json:"error,omitempty"`
}

// Execute sends the SQL to the backend and returns its rows.
func (b *HTTPBackend) Execute(ctx context.Context, sql string) ([]Row, error) {
	body, err := json.Marshal(executeRequest{SQL: sql})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", b.baseURL+"/execute_sql", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if b.apiKey != "" {
		req.Header.Set("apikey", b.apiKey)
		req.Header.Set("Authorization", "Bearer "+b.apiKey)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sql backend unreachable: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sql backend returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var result executeResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if result.Error != "" {
		return nil, fmt.Errorf("query rejected: %s", result.Error)
	}
	return result.Rows, nil
}
