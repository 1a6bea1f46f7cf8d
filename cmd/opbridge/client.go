package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// apiClient is a thin wrapper around the bridge's JSON API.
type apiClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func newAPIClient(baseURL, apiKey string) *apiClient {
	return &apiClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		// Waiting on a response can legitimately take minutes; individual
		// commands pass their own deadline via context.
		httpClient: &http.Client{Timeout: 0},
	}
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (c *apiClient) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("X-API-Key", c.apiKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Message != "" {
			return &apiErr
		}
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

type requestView struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	Options   []string  `json:"options,omitempty"`
	TimeoutMs int64     `json:"timeout_ms"`
	CreatedAt time.Time `json:"created_at"`
}

type responseView struct {
	ID          string    `json:"id"`
	Value       any       `json:"value"`
	RespondedAt time.Time `json:"responded_at"`
}

type promptView struct {
	ID          string    `json:"id"`
	SessionKey  string    `json:"session_key"`
	SenderLabel string    `json:"sender_label,omitempty"`
	Text        string    `json:"text"`
	CreatedAt   time.Time `json:"created_at"`
	Processed   bool      `json:"processed"`
	Response    string    `json:"response,omitempty"`
}

func (c *apiClient) createRequest(ctx context.Context, kind, message string, options []string, timeoutMs int64) (*requestView, error) {
	var out struct {
		Request *requestView `json:"request"`
	}
	err := c.do(ctx, http.MethodPost, "/api/interactions", map[string]any{
		"kind":       kind,
		"message":    message,
		"options":    options,
		"timeout_ms": timeoutMs,
	}, &out)
	return out.Request, err
}

func (c *apiClient) listRequests(ctx context.Context) ([]*requestView, error) {
	var out struct {
		Requests []*requestView `json:"requests"`
	}
	err := c.do(ctx, http.MethodGet, "/api/interactions", nil, &out)
	return out.Requests, err
}

func (c *apiClient) waitForResponse(ctx context.Context, id string) (*responseView, error) {
	var out struct {
		Response *responseView `json:"response"`
	}
	err := c.do(ctx, http.MethodGet, "/api/interactions/"+id+"/wait", nil, &out)
	return out.Response, err
}

func (c *apiClient) respond(ctx context.Context, id string, value any) (bool, error) {
	var out struct {
		Accepted bool `json:"accepted"`
	}
	err := c.do(ctx, http.MethodPost, "/api/interactions/"+id+"/response", map[string]any{"value": value}, &out)
	return out.Accepted, err
}

func (c *apiClient) cancel(ctx context.Context, id string) (bool, error) {
	var out struct {
		Cancelled bool `json:"cancelled"`
	}
	err := c.do(ctx, http.MethodPost, "/api/interactions/"+id+"/cancel", nil, &out)
	return out.Cancelled, err
}

func (c *apiClient) interactionStats(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	err := c.do(ctx, http.MethodGet, "/api/interactions/stats", nil, &out)
	return out, err
}

func (c *apiClient) listPrompts(ctx context.Context, pendingOnly bool) ([]*promptView, error) {
	path := "/api/prompts"
	if pendingOnly {
		path += "/pending"
	}
	var out struct {
		Prompts []*promptView `json:"prompts"`
	}
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out.Prompts, err
}

func (c *apiClient) markPromptProcessed(ctx context.Context, id, response string) (bool, error) {
	var out struct {
		Processed bool `json:"processed"`
	}
	err := c.do(ctx, http.MethodPost, "/api/prompts/"+id+"/processed", map[string]any{"response": response}, &out)
	return out.Processed, err
}

func (c *apiClient) cleanupPrompts(ctx context.Context) (int, error) {
	var out struct {
		Removed int `json:"removed"`
	}
	err := c.do(ctx, http.MethodPost, "/api/prompts/cleanup", nil, &out)
	return out.Removed, err
}
