// Package transport is the authenticated HTTP layer of the chat client.
//
// Every request carries the current access token. A 401 response triggers a
// single shared token refresh, after which the request is retried once with
// the new token.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/longkey1/chatc/internal/apierr"
	"github.com/longkey1/chatc/internal/credential"
)

// Endpoints the transport itself needs to know about.
const (
	LoginPath    = "/api/v1/user/login"
	RegisterPath = "/api/v1/user/register"
	RefreshPath  = "/api/v1/user/refresh"
)

// DefaultExemptPaths are never intercepted on 401: a rejected login or
// refresh is an answer, not an expired token.
var DefaultExemptPaths = []string{LoginPath, RegisterPath, RefreshPath}

// maxErrorBody caps how much of an error response is read.
const maxErrorBody = 1 << 20

// Config holds configuration options for the Client.
type Config struct {
	// BaseURL is the backend root, e.g. "https://chat.example.com".
	BaseURL string

	// HTTPClient is used for every request (default: a client without a
	// timeout, since streams are long-lived).
	HTTPClient *http.Client

	// Store holds the credential attached to requests.
	Store *credential.Store

	// Coordinator performs shared refreshes on 401.
	Coordinator *Coordinator

	// RequestTimeout bounds JSON calls made through DoJSON (0 = none).
	RequestTimeout time.Duration

	// ExemptPaths are passed through on 401 (default: DefaultExemptPaths).
	ExemptPaths []string

	Logger *slog.Logger
}

// Client sends authenticated requests to the backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	store      *credential.Store
	coord      *Coordinator
	timeout    time.Duration
	exempt     []string
	logger     *slog.Logger
}

// New creates a Client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("credential store is required")
	}
	if cfg.Coordinator == nil {
		return nil, fmt.Errorf("refresh coordinator is required")
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.ExemptPaths == nil {
		cfg.ExemptPaths = DefaultExemptPaths
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: cfg.HTTPClient,
		store:      cfg.Store,
		coord:      cfg.Coordinator,
		timeout:    cfg.RequestTimeout,
		exempt:     cfg.ExemptPaths,
		logger:     cfg.Logger,
	}, nil
}

// BaseURL returns the backend root.
func (c *Client) BaseURL() string { return c.baseURL }

// Store returns the credential store.
func (c *Client) Store() *credential.Store { return c.store }

// Coordinator returns the shared refresh coordinator.
func (c *Client) Coordinator() *Coordinator { return c.coord }

// Do sends a request with a JSON body (nil for none) and returns the
// response when its status is below 400. The caller must close the body.
// Error statuses are returned as *apierr.Error.
//
// A 401 on a non-exempt path is retried exactly once after a shared refresh.
// When that refresh fails the error satisfies errors.Is(err, ErrAuthFailed).
func (c *Client) Do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	payload, err := encodeBody(body)
	if err != nil {
		return nil, err
	}

	token := c.store.AccessToken()
	resp, err := c.send(ctx, method, path, payload, token)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized && !c.isExempt(path) {
		drain(resp)
		c.logger.Debug("access token rejected", "method", method, "path", path)

		fresh, err := c.coord.Refresh(ctx, token)
		if err != nil {
			return nil, err
		}
		resp, err = c.send(ctx, method, path, payload, fresh)
		if err != nil {
			return nil, err
		}
	}

	if resp.StatusCode >= http.StatusBadRequest {
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, apierr.Parse(resp.StatusCode, data)
	}
	return resp, nil
}

// DoJSON sends in as JSON and decodes the response into out. A nil out
// discards the response body.
func (c *Client) DoJSON(ctx context.Context, method, path string, in, out any) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	resp, err := c.Do(ctx, method, path, in)
	if err != nil {
		return err
	}
	defer drain(resp)

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s %s response: %w", method, path, err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte, token string) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	requestID := uuid.NewString()
	req.Header.Set("X-Request-ID", requestID)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := context.Cause(ctx); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}

	c.logger.Debug("backend request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"request_id", requestID,
		"duration", time.Since(start),
	)
	return resp, nil
}

func (c *Client) isExempt(path string) bool {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	return slices.Contains(c.exempt, path)
}

func encodeBody(body any) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return b, nil
	case json.RawMessage:
		return b, nil
	default:
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		return data, nil
	}
}

// drain discards the rest of the body so the connection can be reused.
func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	resp.Body.Close()
}
