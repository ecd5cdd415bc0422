package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Server is the subset of the pushgarden API the manager calls.
type Server interface {
	VAPIDPublicKey(ctx context.Context) (string, error)
	Subscribe(ctx context.Context, endpoint string, keys Keys) error
	Unsubscribe(ctx context.Context, endpoint string) error
	SendTest(ctx context.Context, title, body string) error
}

// APIClient calls the pushgarden HTTP API.
type APIClient struct {
	baseURL    string
	token      func() string
	httpClient *http.Client
}

var _ Server = (*APIClient)(nil)

// NewAPIClient creates a client for the API rooted at baseURL, e.g.
// https://example.com/api/v1. token supplies the bearer token per request and
// may be nil.
func NewAPIClient(baseURL string, token func() string) *APIClient {
	return &APIClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// VAPIDPublicKey fetches GET /push/vapid-public-key.
func (c *APIClient) VAPIDPublicKey(ctx context.Context) (string, error) {
	var resp struct {
		PublicKey string `json:"publicKey"`
	}
	if err := c.do(ctx, http.MethodGet, "/push/vapid-public-key", nil, &resp); err != nil {
		return "", err
	}
	if resp.PublicKey == "" {
		return "", errors.New("server returned an empty public key")
	}
	return resp.PublicKey, nil
}

// Subscribe posts the subscription to /push/subscribe.
func (c *APIClient) Subscribe(ctx context.Context, endpoint string, keys Keys) error {
	body := map[string]any{
		"subscription": map[string]any{
			"endpoint": endpoint,
			"keys":     keys,
		},
	}
	return c.do(ctx, http.MethodPost, "/push/subscribe", body, nil)
}

// Unsubscribe posts the endpoint to /push/unsubscribe.
func (c *APIClient) Unsubscribe(ctx context.Context, endpoint string) error {
	return c.do(ctx, http.MethodPost, "/push/unsubscribe", map[string]string{"endpoint": endpoint}, nil)
}

// SendTest posts to /push/test.
func (c *APIClient) SendTest(ctx context.Context, title, body string) error {
	return c.do(ctx, http.MethodPost, "/push/test", map[string]string{"title": title, "body": body}, nil)
}

func (c *APIClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != nil {
		if token := c.token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Status: resp.StatusCode, Message: errorMessage(resp.Body)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// errorMessage extracts {"error":{"message":...}} from an error response.
func errorMessage(r io.Reader) string {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	data, err := io.ReadAll(io.LimitReader(r, 64<<10))
	if err != nil {
		return ""
	}
	if json.Unmarshal(data, &envelope) == nil && envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	return strings.TrimSpace(string(data))
}
