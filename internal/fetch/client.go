// Package fetch implements the NFL data fetchers. They are thin callers of
// the resilience layer: every outbound request runs through the bulkhead,
// the retry engine, and a per-endpoint circuit breaker, and every payload is
// validated before it is stored or returned.
package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"github.com/gtonic/nfl-mcp-sub001/internal/metrics"
	"github.com/gtonic/nfl-mcp-sub001/internal/resilience"
	"github.com/gtonic/nfl-mcp-sub001/internal/storage"
	"github.com/gtonic/nfl-mcp-sub001/internal/validate"
	"github.com/gtonic/nfl-mcp-sub001/pkg/api"
)

// PayloadCache is the optional fallback source for raw payloads when a
// circuit is open
type PayloadCache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, payload []byte)
}

// Options configures a fetch client
type Options struct {
	BaseURL string
	Timeout time.Duration
	// LongTimeout bounds the heavier per-team fetches (schedule, snap
	// counts); zero falls back to Timeout
	LongTimeout time.Duration
	Retrier     *resilience.Retrier
	Breakers    *resilience.Registry
	Bulkhead    *resilience.Bulkhead
	Store       *storage.Store
	Cache       PayloadCache
	Collector   *metrics.Collector
	Logger      *logrus.Logger
}

// Client fetches NFL data from the upstream service
type Client struct {
	http      *resty.Client
	httpLong  *resty.Client
	retrier   *resilience.Retrier
	breakers  *resilience.Registry
	bulkhead  *resilience.Bulkhead
	store     *storage.Store
	cache     PayloadCache
	collector *metrics.Collector
	logger    *logrus.Logger
}

// New creates a fetch client
func New(opts Options) *Client {
	httpClient := resty.New().SetBaseURL(opts.BaseURL)
	if opts.Timeout > 0 {
		httpClient.SetTimeout(opts.Timeout)
	}

	longTimeout := opts.LongTimeout
	if longTimeout <= 0 {
		longTimeout = opts.Timeout
	}
	longClient := resty.New().SetBaseURL(opts.BaseURL)
	if longTimeout > 0 {
		longClient.SetTimeout(longTimeout)
	}

	return &Client{
		http:      httpClient,
		httpLong:  longClient,
		retrier:   opts.Retrier,
		breakers:  opts.Breakers,
		bulkhead:  opts.Bulkhead,
		store:     opts.Store,
		cache:     opts.Cache,
		collector: opts.Collector,
		logger:    opts.Logger,
	}
}

// News fetches the league news feed, validates it, and stores usable items
func (c *Client) News(ctx context.Context) ([]api.NewsItem, error) {
	body, err := c.fetchRaw(ctx, c.http, "news", "/news", "news")
	if err != nil {
		return nil, err
	}

	if !c.usable(body, validate.News, "news") {
		return nil, fmt.Errorf("news payload failed validation")
	}

	var items []api.NewsItem
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, fmt.Errorf("failed to decode news payload: %w", err)
	}

	if err := c.store.UpsertNews(ctx, items); err != nil {
		c.logger.WithError(err).Warn("Failed to persist news")
	}
	return items, nil
}

// Teams fetches the team list, validates it, and stores usable entries
func (c *Client) Teams(ctx context.Context) ([]api.Team, error) {
	body, err := c.fetchRaw(ctx, c.http, "teams", "/teams", "teams")
	if err != nil {
		return nil, err
	}

	if !c.usable(body, validate.Teams, "teams") {
		return nil, fmt.Errorf("teams payload failed validation")
	}

	var teams []api.Team
	if err := json.Unmarshal(body, &teams); err != nil {
		return nil, fmt.Errorf("failed to decode teams payload: %w", err)
	}

	if err := c.store.UpsertTeams(ctx, teams); err != nil {
		c.logger.WithError(err).Warn("Failed to persist teams")
	}
	return teams, nil
}

// Schedule fetches a team schedule, validates it, and stores usable games
func (c *Client) Schedule(ctx context.Context, team string) ([]api.Game, error) {
	body, err := c.fetchRaw(ctx, c.httpLong, "schedule", "/teams/"+team+"/schedule", "schedule:"+team)
	if err != nil {
		return nil, err
	}

	if !c.usable(body, validate.Schedule, "schedule") {
		return nil, fmt.Errorf("schedule payload failed validation")
	}

	var games []api.Game
	if err := json.Unmarshal(body, &games); err != nil {
		return nil, fmt.Errorf("failed to decode schedule payload: %w", err)
	}

	if err := c.store.UpsertSchedule(ctx, team, games); err != nil {
		c.logger.WithError(err).Warn("Failed to persist schedule")
	}
	return games, nil
}

// Standings fetches the league standings, validates them, and stores usable rows
func (c *Client) Standings(ctx context.Context) ([]api.Standing, error) {
	body, err := c.fetchRaw(ctx, c.http, "standings", "/standings", "standings")
	if err != nil {
		return nil, err
	}

	if !c.usable(body, validate.Standings, "standings") {
		return nil, fmt.Errorf("standings payload failed validation")
	}

	var standings []api.Standing
	if err := json.Unmarshal(body, &standings); err != nil {
		return nil, fmt.Errorf("failed to decode standings payload: %w", err)
	}

	if err := c.store.UpsertStandings(ctx, standings); err != nil {
		c.logger.WithError(err).Warn("Failed to persist standings")
	}
	return standings, nil
}

// SnapCounts fetches snap counts for a team. They are validated and
// returned as-is, not persisted.
func (c *Client) SnapCounts(ctx context.Context, team string) (map[string]interface{}, error) {
	body, err := c.fetchRaw(ctx, c.httpLong, "snap_counts", "/teams/"+team+"/snap-counts", "snap_counts:"+team)
	if err != nil {
		return nil, err
	}

	if !c.usable(body, validate.SnapCounts, "snap_counts") {
		return nil, fmt.Errorf("snap counts payload failed validation")
	}

	var counts map[string]interface{}
	if err := json.Unmarshal(body, &counts); err != nil {
		return nil, fmt.Errorf("failed to decode snap counts payload: %w", err)
	}
	return counts, nil
}

// fetchRaw performs the guarded outbound request for one endpoint. HTTP
// status codes >= 400 are translated into errors here, so the retry engine
// stays transport-agnostic. On a circuit-open rejection the payload cache,
// when configured, is consulted before giving up.
//
// cacheKey must identify the exact payload, not just the endpoint: per-team
// endpoints include the team, so one team's cached data is never served or
// persisted for another.
func (c *Client) fetchRaw(ctx context.Context, httpc *resty.Client, endpoint, path, cacheKey string) ([]byte, error) {
	labels := map[string]string{"endpoint": endpoint}

	if c.bulkhead != nil {
		if !c.bulkhead.Acquire(ctx) {
			c.collector.IncrementCounter("upstream_rejected_total", 1, labels)
			return nil, resilience.ErrBulkheadFull
		}
		defer c.bulkhead.Release()
	}

	cb := c.breakers.Get(endpoint)
	start := time.Now()

	result, err := c.retrier.DoWithBreaker(ctx, cb, func(ctx context.Context) (interface{}, error) {
		resp, err := httpc.R().SetContext(ctx).Get(path)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode() >= 400 {
			return nil, fmt.Errorf("upstream %s returned status %d", endpoint, resp.StatusCode())
		}
		return resp.Body(), nil
	})

	c.collector.RecordTiming("upstream_request_duration_ms", time.Since(start), labels)

	if err != nil {
		c.collector.IncrementCounter("upstream_errors_total", 1, labels)

		if errors.Is(err, resilience.ErrCircuitOpen) && c.cache != nil {
			if cached, ok := c.cache.Get(ctx, cacheKey); ok {
				c.collector.IncrementCounter("upstream_served_from_cache_total", 1, labels)
				c.logger.WithField("key", cacheKey).Warn("Circuit open, serving cached payload")
				return cached, nil
			}
		}
		return nil, err
	}

	body := result.([]byte)
	c.collector.IncrementCounter("upstream_requests_total", 1, labels)

	if c.cache != nil {
		c.cache.Set(ctx, cacheKey, body)
	}
	return body, nil
}

// usable decodes the payload generically and runs it through the validator.
// Partial data (warnings only) is accepted; structurally invalid data is not.
func (c *Client) usable(body []byte, fn validate.Func, label string) bool {
	var generic interface{}
	if err := json.Unmarshal(body, &generic); err != nil {
		c.logger.WithError(err).WithField("payload", label).Error("Payload is not valid JSON")
		return false
	}
	return validate.ValidateAndLog(c.logger, generic, fn, label, true)
}
