// Package remote is the HTTP client for the Focus AFK backend.
//
// Every call reads the bearer token from an auth.Gate at request time, so a
// single Client survives logins and logouts. Responses use the backend's
// envelope:
//
//	{"success": true, "data": ...}
//	{"success": false, "error": "message"}
//
// A 401 is reported as ErrUnauthorized so callers can tell an expired session
// apart from a network failure.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MSghais/focus-afk-sub001/internal/auth"
)

var (
	// ErrUnauthorized is returned for HTTP 401.
	ErrUnauthorized = errors.New("backend rejected credentials")
	// ErrNotFound is returned for HTTP 404.
	ErrNotFound = errors.New("backend record not found")
)

// APIError is a non-2xx response or a success:false envelope.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("backend status %d", e.Status)
}

// Client talks to the backend REST API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	gate       auth.Gate
	logger     *log.Logger
}

// DefaultTimeout is used when New is given a nil http.Client.
const DefaultTimeout = 15 * time.Second

// New creates a client. A nil httpClient gets DefaultTimeout; a nil gate
// sends unauthenticated requests.
func New(httpClient *http.Client, baseURL string, gate auth.Gate, logger *log.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[remote] ", log.LstdFlags)
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		gate:       gate,
		logger:     logger,
	}
}

// BaseURL returns the configured backend root.
func (c *Client) BaseURL() string { return c.baseURL }

type envelope struct {
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		r = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Request-ID", uuid.NewString())
	if c.gate != nil {
		if token, ok := c.gate.Token(); ok && token != "" {
			if !strings.HasPrefix(strings.ToLower(token), "bearer ") {
				token = "Bearer " + token
			}
			req.Header.Set("Authorization", token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return fmt.Errorf("%s %s: failed to read response: %w", method, path, err)
	}

	var env envelope
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil && resp.StatusCode < 300 {
			return fmt.Errorf("%s %s: failed to decode response: %w", method, path, err)
		}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s %s: %w", method, path, ErrNotFound)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return &APIError{Status: resp.StatusCode, Message: env.message()}
	case env.Success != nil && !*env.Success:
		return &APIError{Status: resp.StatusCode, Message: env.message()}
	}

	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%s %s: failed to decode data: %w", method, path, err)
	}
	return nil
}

func (e envelope) message() string {
	if strings.TrimSpace(e.Error) != "" {
		return e.Error
	}
	return e.Message
}

// IsUnauthorized reports whether err is (or wraps) ErrUnauthorized.
func IsUnauthorized(err error) bool { return errors.Is(err, ErrUnauthorized) }
