package virustotal

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"secops-dashboard/internal/cache"
	"secops-dashboard/internal/metrics"
	"secops-dashboard/internal/provider"
	"secops-dashboard/internal/util"
)

const (
	Name           = "virustotal"
	DefaultBaseURL = "https://www.virustotal.com/api/v3"
	DefaultTTL     = 24 * time.Hour
	authHeader     = "x-apikey"
)

type Options struct {
	BaseURL    string
	APIKey     string
	TTL        time.Duration
	HTTPClient *http.Client
	Resolver   *cache.Resolver
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
}

// Client looks up files, addresses, domains and URLs. Report lookups are
// cached for TTL; submissions are never cached.
type Client struct {
	http     *provider.HTTPClient
	resolver *cache.Resolver
	ttl      time.Duration
	logger   *zap.Logger
}

func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Client{
		http: provider.NewHTTPClient(provider.HTTPOptions{
			Name:       Name,
			BaseURL:    opts.BaseURL,
			AuthHeader: authHeader,
			Credential: provider.NewCredential(opts.APIKey),
			HTTPClient: opts.HTTPClient,
			Logger:     opts.Logger,
			Metrics:    opts.Metrics,
		}),
		resolver: opts.Resolver,
		ttl:      opts.TTL,
		logger:   opts.Logger,
	}
}

func (c *Client) SetAPIKey(key string) {
	c.http.Credential().Set(key)
	c.logger.Info("VirusTotal API key updated", util.Bool("present", c.http.Credential().Present()))
}

func (c *Client) HasAPIKey() bool {
	return c.http.Credential().Present()
}

func (c *Client) LookupFile(ctx context.Context, hash string) (*Object, bool, error) {
	return c.report(ctx, cache.Key("file", hash), "/files/"+url.PathEscape(hash))
}

func (c *Client) LookupIP(ctx context.Context, ip string) (*Object, bool, error) {
	return c.report(ctx, cache.Key("ip", ip), "/ip_addresses/"+url.PathEscape(ip))
}

func (c *Client) LookupDomain(ctx context.Context, domain string) (*Object, bool, error) {
	return c.report(ctx, cache.Key("domain", domain), "/domains/"+url.PathEscape(domain))
}

// GetURLReport fetches the analysis produced by SubmitURL.
func (c *Client) GetURLReport(ctx context.Context, scanID string) (*Object, bool, error) {
	return c.report(ctx, cache.Key("url", scanID), "/analyses/"+url.PathEscape(scanID))
}

// GetAnalysisReport fetches the analysis produced by UploadFile.
func (c *Client) GetAnalysisReport(ctx context.Context, analysisID string) (*Object, bool, error) {
	return c.report(ctx, cache.Key("analysis", analysisID), "/analyses/"+url.PathEscape(analysisID))
}

// SubmitURL queues a URL for scanning and returns the analysis ID.
func (c *Client) SubmitURL(ctx context.Context, target string) (string, error) {
	form := url.Values{"url": {target}}
	var out envelope
	err := c.http.Do(ctx, http.MethodPost, "/urls", nil,
		bytes.NewBufferString(form.Encode()), "application/x-www-form-urlencoded", &out)
	if err != nil {
		return "", err
	}
	return out.Data.ID, nil
}

// UploadFile submits file content for analysis and returns the analysis ID.
func (c *Client) UploadFile(ctx context.Context, name string, content io.Reader) (string, error) {
	if err := c.http.RequireCredential(); err != nil {
		return "", err
	}
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return "", fmt.Errorf("%s: build upload: %w", Name, err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return "", fmt.Errorf("%s: read upload: %w", Name, err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("%s: build upload: %w", Name, err)
	}

	var out envelope
	if err := c.http.Do(ctx, http.MethodPost, "/files", nil, &body, mw.FormDataContentType(), &out); err != nil {
		return "", err
	}
	return out.Data.ID, nil
}

// report resolves a cached object, reporting whether it was a cache hit.
func (c *Client) report(ctx context.Context, key, path string) (*Object, bool, error) {
	if err := c.http.RequireCredential(); err != nil {
		return nil, false, err
	}
	obj, hit, err := cache.ResolveHit(ctx, c.resolver, key, c.ttl, func(ctx context.Context) (Object, error) {
		var out envelope
		if err := c.http.GetJSON(ctx, path, nil, &out); err != nil {
			return Object{}, err
		}
		return out.Data, nil
	})
	if err != nil {
		return nil, false, err
	}
	return &obj, hit, nil
}
