package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client is the root Supabase client. Sub-clients share its HTTP transport
// and key configuration.
type Client struct {
	config Config

	restURL    string
	authURL    string
	storageURL string

	httpClient *http.Client

	auth     *AuthClient
	database *DatabaseClient
	storage  *StorageClient
}

// New creates a Supabase client for the configured project.
func New(cfg Config) (*Client, error) {
	if cfg.ProjectURL == "" {
		return nil, fmt.Errorf("project URL is required")
	}
	if cfg.AnonKey == "" {
		return nil, fmt.Errorf("anon key is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	baseURL := strings.TrimRight(cfg.ProjectURL, "/")
	c := &Client{
		config:     cfg,
		restURL:    baseURL + "/rest/v1",
		authURL:    baseURL + "/auth/v1",
		storageURL: baseURL + "/storage/v1",
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
	c.auth = &AuthClient{client: c}
	c.database = &DatabaseClient{client: c}
	c.storage = &StorageClient{client: c}
	return c, nil
}

// Auth returns the auth client.
func (c *Client) Auth() *AuthClient { return c.auth }

// Database returns the database client.
func (c *Client) Database() *DatabaseClient { return c.database }

// Storage returns the storage client.
func (c *Client) Storage() *StorageClient { return c.storage }

// request performs a request authorized with the anon key.
func (c *Client) request(ctx context.Context, method, url string, body []byte, headers map[string]string) ([]byte, int, error) {
	return c.do(ctx, method, url, body, headers, c.config.AnonKey)
}

// requestWithServiceKey performs a request with the service role key.
func (c *Client) requestWithServiceKey(ctx context.Context, method, url string, body []byte, headers map[string]string) ([]byte, int, error) {
	if c.config.ServiceKey == "" {
		return nil, 0, fmt.Errorf("service key not configured")
	}
	return c.do(ctx, method, url, body, headers, c.config.ServiceKey)
}

// requestWithToken performs a request on behalf of a user access token.
func (c *Client) requestWithToken(ctx context.Context, method, url string, body []byte, headers map[string]string, accessToken string) ([]byte, int, error) {
	return c.do(ctx, method, url, body, headers, accessToken)
}

func (c *Client) do(ctx context.Context, method, url string, body []byte, headers map[string]string, bearer string) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, 0, err
	}

	req.Header.Set("apikey", c.config.AnonKey)
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Accept", "application/json")
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	return respBody, resp.StatusCode, nil
}

// parseError decodes a Supabase error payload. The auth and rest services
// use different field names, so several are tried.
func parseError(body []byte, statusCode int) error {
	var errResp struct {
		Code             string `json:"code"`
		Message          string `json:"message"`
		ErrorField       string `json:"error"`
		ErrorDescription string `json:"error_description"`
		Msg              string `json:"msg"`
	}
	if err := json.Unmarshal(body, &errResp); err != nil {
		return &Error{Code: "unknown", Message: string(body), StatusCode: statusCode}
	}

	msg := errResp.Message
	if msg == "" {
		msg = errResp.Msg
	}
	if msg == "" {
		msg = errResp.ErrorDescription
	}
	if msg == "" {
		msg = errResp.ErrorField
	}
	return &Error{Code: errResp.Code, Message: msg, StatusCode: statusCode}
}
