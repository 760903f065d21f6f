// Package client is a Go client for the conntrack Status API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/benmeehan/irc-conntrack/internal/constants"
	"github.com/benmeehan/irc-conntrack/internal/models"
	"github.com/benmeehan/irc-conntrack/pkg/heartbeat"
)

// DefaultTimeout bounds every request made by a Client built without WithHTTPClient.
const DefaultTimeout = 10 * time.Second

// APIError is a non-2xx response from the Status API.
type APIError struct {
	StatusCode int
	ErrCode    string
	Message    string
}

func (e *APIError) Error() string {
	if e.ErrCode == "" {
		return fmt.Sprintf("conntrack: HTTP %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("conntrack: %s (HTTP %d): %s", e.ErrCode, e.StatusCode, e.Message)
}

// IsNotFound reports whether err is an API error for an untracked connection.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.ErrCode == constants.ErrCodeClientNotFound
}

// IsConflict reports whether err is an API error for an already tracked connection.
func IsConflict(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.ErrCode == constants.ErrCodeClientConflict
}

// Client talks to one conntrack instance.
type Client struct {
	baseURL string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.http = httpClient
	}
}

// New creates a Client for the API rooted at baseURL, e.g. http://127.0.0.1:9995.
func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(baseURL, "/")
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q: want http(s)://host[:port]", baseURL)
	}

	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Register starts tracking id and returns its initial snapshot.
func (c *Client) Register(ctx context.Context, id string) (models.TrackedConnection, error) {
	var conn models.TrackedConnection
	err := c.do(ctx, http.MethodPost, connectionPath(id), "", nil, http.StatusCreated, &conn)
	return conn, err
}

// RegisterGenerated starts tracking a connection under a server generated id.
func (c *Client) RegisterGenerated(ctx context.Context) (string, error) {
	var resp models.RegisterResponse
	err := c.do(ctx, http.MethodPost, "/connections", "", nil, http.StatusCreated, &resp)
	return resp.ID, err
}

// Heartbeat sends msg for id.
func (c *Client) Heartbeat(ctx context.Context, id string, msg heartbeat.Message) error {
	return c.SendHeartbeat(ctx, id, heartbeat.Encode(msg))
}

// SendHeartbeat posts an already encoded heartbeat for id.
func (c *Client) SendHeartbeat(ctx context.Context, id string, payload []byte) error {
	return c.do(ctx, http.MethodPost, connectionPath(id)+"/heartbeat", heartbeat.ContentType, payload, http.StatusNoContent, nil)
}

// Evict stops tracking id.
func (c *Client) Evict(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, connectionPath(id), "", nil, http.StatusNoContent, nil)
}

// Status returns the current snapshot of id.
func (c *Client) Status(ctx context.Context, id string) (models.TrackedConnection, error) {
	var conn models.TrackedConnection
	err := c.do(ctx, http.MethodGet, connectionPath(id), "", nil, http.StatusOK, &conn)
	return conn, err
}

// List returns every tracked connection, restricted to statuses when any are given.
func (c *Client) List(ctx context.Context, statuses ...constants.ConnectionStatus) ([]models.TrackedConnection, error) {
	path := "/connections"
	if len(statuses) > 0 {
		names := make([]string, len(statuses))
		for i, s := range statuses {
			names[i] = string(s)
		}
		path += "?" + url.Values{"status": {strings.Join(names, ",")}}.Encode()
	}

	conns := []models.TrackedConnection{}
	err := c.do(ctx, http.MethodGet, path, "", nil, http.StatusOK, &conns)
	return conns, err
}

// Health returns the health report of the instance.
func (c *Client) Health(ctx context.Context) (models.HealthReport, error) {
	var report models.HealthReport
	err := c.do(ctx, http.MethodGet, "/health", "", nil, http.StatusOK, &report)
	return report, err
}

// Config returns the effective configuration of the instance as a YAML document.
func (c *Client) Config(ctx context.Context) ([]byte, error) {
	var doc []byte
	err := c.do(ctx, http.MethodGet, "/config", "", nil, http.StatusOK, &doc)
	return doc, err
}

// ReloadConfig makes the instance re-read its configuration file and returns the
// effective configuration as a YAML document.
func (c *Client) ReloadConfig(ctx context.Context) ([]byte, error) {
	var doc []byte
	err := c.do(ctx, http.MethodPost, "/config/reload", "", nil, http.StatusOK, &doc)
	return doc, err
}

func connectionPath(id string) string {
	return "/connections/" + url.PathEscape(id)
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body []byte, want int, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if raw, ok := out.(*[]byte); ok {
		*raw, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read %s %s response: %w", method, path, err)
		}
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var body models.ErrorResponse
	if err := json.Unmarshal(raw, &body); err == nil && body.ErrCode != "" {
		apiErr.ErrCode = body.ErrCode
		apiErr.Message = body.Error
	} else {
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	return apiErr
}
