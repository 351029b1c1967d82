// Package provider holds the HTTP plumbing shared by the threat-intelligence
// lookup clients.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"secops-dashboard/internal/metrics"
	"secops-dashboard/internal/util"
)

const maxErrorBody = 512

var (
	ErrMissingCredential = errors.New("provider API key not configured")
	// ErrUpstream marks transport and decoding failures.
	ErrUpstream = errors.New("provider request failed")
)

// APIError is a non-2xx response from a provider.
type APIError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Provider, e.StatusCode, e.Body)
}

// Credential is an API key that can be replaced at runtime.
type Credential struct {
	mu  sync.RWMutex
	key string
}

func NewCredential(key string) *Credential {
	return &Credential{key: strings.TrimSpace(key)}
}

func (c *Credential) Set(key string) {
	c.mu.Lock()
	c.key = strings.TrimSpace(key)
	c.mu.Unlock()
}

func (c *Credential) Get() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.key
}

func (c *Credential) Present() bool {
	return c.Get() != ""
}

// HTTPClient issues authenticated JSON requests against one provider.
type HTTPClient struct {
	name       string
	baseURL    string
	authHeader string
	cred       *Credential
	http       *http.Client
	logger     *zap.Logger
	metrics    *metrics.Metrics
}

type HTTPOptions struct {
	Name       string
	BaseURL    string
	AuthHeader string
	Credential *Credential
	HTTPClient *http.Client
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
}

func NewHTTPClient(opts HTTPOptions) *HTTPClient {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	cred := opts.Credential
	if cred == nil {
		cred = NewCredential("")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPClient{
		name:       opts.Name,
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		authHeader: opts.AuthHeader,
		cred:       cred,
		http:       hc,
		logger:     logger,
		metrics:    opts.Metrics,
	}
}

func (c *HTTPClient) Name() string {
	return c.name
}

func (c *HTTPClient) Credential() *Credential {
	return c.cred
}

// RequireCredential fails fast before any cache or network access.
func (c *HTTPClient) RequireCredential() error {
	if !c.cred.Present() {
		return fmt.Errorf("%s: %w", c.name, ErrMissingCredential)
	}
	return nil
}

// GetJSON fetches path and decodes the response body into out.
func (c *HTTPClient) GetJSON(ctx context.Context, path string, query url.Values, out any) error {
	return c.Do(ctx, http.MethodGet, path, query, nil, "", out)
}

// Do sends one request. Requests are never retried.
func (c *HTTPClient) Do(ctx context.Context, method, path string, query url.Values, body io.Reader, contentType string, out any) error {
	key := c.cred.Get()
	if key == "" {
		return fmt.Errorf("%s: %w", c.name, ErrMissingCredential)
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", c.name, err)
	}
	req.Header.Set(c.authHeader, key)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.ProviderRequest(c.name, 0, time.Since(start))
		c.logger.Error("Provider request failed",
			util.String("provider", c.name),
			util.String("method", method),
			util.String("path", path),
			util.ErrorField(err),
		)
		return fmt.Errorf("%s: %s %s: %w: %w", c.name, method, path, ErrUpstream, err)
	}
	defer resp.Body.Close()
	c.metrics.ProviderRequest(c.name, resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.Warn("Provider returned error status",
			util.String("provider", c.name),
			util.String("path", path),
			util.Int("status", resp.StatusCode),
		)
		return &APIError{Provider: c.name, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	c.logger.Debug("Provider request completed",
		util.String("provider", c.name),
		util.String("path", path),
		util.Duration("duration", time.Since(start)),
	)

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode %s: %w: %w", c.name, path, ErrUpstream, err)
	}
	return nil
}
