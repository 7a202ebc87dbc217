// Package openaicompat adapts any OpenAI-compatible Chat Completions
// backend as a reasoning collaborator. Capability descriptors travel as
// tool definitions, tool calls come back as proposals.
package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ausweis-dev/ausweis/pkg/api"
	"github.com/ausweis-dev/ausweis/pkg/oracle"
)

// Client performs HTTP requests against an OpenAI-compatible Chat
// Completions backend.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

var _ oracle.Oracle = (*Client)(nil)

// NewClient creates a Client for an OpenAI-compatible backend.
func NewClient(baseURL, apiKey, model string, timeout time.Duration) *Client {
	// Normalize: remove trailing slash from base URL.
	baseURL = strings.TrimRight(baseURL, "/")

	if timeout == 0 {
		timeout = 120 * time.Second
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
	}
}

func (c *Client) Name() string { return "openaicompat" }

// Propose sends the session state to the backend and converts the reply
// into a proposal.
func (c *Client) Propose(ctx context.Context, req *oracle.Request) (*api.ProposalPayload, error) {
	chatReq, err := translateRequest(c.model, req)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(chatReq)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	url := c.baseURL + "/v1/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("calling backend: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, mapHTTPError(httpResp)
	}

	var chatResp chatResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&chatResp); err != nil {
		return nil, fmt.Errorf("parsing backend response: %w", err)
	}

	return translateResponse(&chatResp)
}

// Close releases the underlying HTTP client's idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// mapHTTPError extracts the backend's error message when the body carries
// a structured error document.
func mapHTTPError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	var ce chatError
	if err := json.Unmarshal(body, &ce); err == nil && ce.Error.Message != "" {
		return fmt.Errorf("backend error (%d): %s", resp.StatusCode, ce.Error.Message)
	}
	return fmt.Errorf("backend error (%d): %s", resp.StatusCode, http.StatusText(resp.StatusCode))
}
