package otx

import (
	"context"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"secops-dashboard/internal/cache"
	"secops-dashboard/internal/metrics"
	"secops-dashboard/internal/provider"
	"secops-dashboard/internal/util"
)

const (
	Name           = "otx"
	DefaultBaseURL = "https://otx.alienvault.com/api/v1"
	DefaultTTL     = time.Hour

	// ThreatMapPulses is how many subscribed pulses feed the threat map.
	ThreatMapPulses = 50

	authHeader = "X-OTX-API-KEY"
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

// Client reads pulses and indicator reports from AlienVault OTX. Every read
// is cached for TTL.
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
	c.logger.Info("OTX API key updated", util.Bool("present", c.http.Credential().Present()))
}

func (c *Client) HasAPIKey() bool {
	return c.http.Credential().Present()
}

func (c *Client) Pulses(ctx context.Context, limit int) (*PulseList, bool, error) {
	if limit <= 0 {
		limit = 10
	}
	query := url.Values{"limit": {strconv.Itoa(limit)}}
	return get[PulseList](ctx, c, cache.Key("pulses", strconv.Itoa(limit)), "/pulses/subscribed", query)
}

func (c *Client) IPInfo(ctx context.Context, ip string) (*IPResponse, bool, error) {
	return get[IPResponse](ctx, c, cache.Key("ip", ip), "/indicators/IPv4/"+url.PathEscape(ip)+"/general", nil)
}

func (c *Client) DomainInfo(ctx context.Context, domain string) (*DomainResponse, bool, error) {
	return get[DomainResponse](ctx, c, cache.Key("domain", domain), "/indicators/domain/"+url.PathEscape(domain)+"/general", nil)
}

func (c *Client) FileInfo(ctx context.Context, hash string) (*FileResponse, bool, error) {
	return get[FileResponse](ctx, c, cache.Key("file", hash), "/indicators/file/"+url.PathEscape(hash)+"/general", nil)
}

// GlobalThreatMap counts how often each country is targeted across the
// latest subscribed pulses.
func (c *Client) GlobalThreatMap(ctx context.Context) (*ThreatMap, bool, error) {
	if err := c.http.RequireCredential(); err != nil {
		return nil, false, err
	}
	m, hit, err := cache.ResolveHit(ctx, c.resolver, "global_threat_map", c.ttl, func(ctx context.Context) (ThreatMap, error) {
		pulses, _, err := c.Pulses(ctx, ThreatMapPulses)
		if err != nil {
			return ThreatMap{}, err
		}
		return BuildThreatMap(pulses.Results), nil
	})
	if err != nil {
		return nil, false, err
	}
	return &m, hit, nil
}

// BuildThreatMap aggregates targeted countries, most targeted first.
func BuildThreatMap(pulses []Pulse) ThreatMap {
	counts := make(map[string]int)
	for _, p := range pulses {
		for _, country := range p.TargetedCountries {
			if country = strings.TrimSpace(country); country != "" {
				counts[country]++
			}
		}
	}
	regions := make([]Region, 0, len(counts))
	for country, n := range counts {
		regions = append(regions, Region{ID: country, Name: country, Count: n})
	}
	sort.Slice(regions, func(i, j int) bool {
		if regions[i].Count != regions[j].Count {
			return regions[i].Count > regions[j].Count
		}
		return regions[i].ID < regions[j].ID
	})
	return ThreatMap{Regions: regions}
}

func get[T any](ctx context.Context, c *Client, key, path string, query url.Values) (*T, bool, error) {
	if err := c.http.RequireCredential(); err != nil {
		return nil, false, err
	}
	v, hit, err := cache.ResolveHit(ctx, c.resolver, key, c.ttl, func(ctx context.Context) (T, error) {
		var out T
		err := c.http.GetJSON(ctx, path, query, &out)
		return out, err
	})
	if err != nil {
		return nil, false, err
	}
	return &v, hit, nil
}
