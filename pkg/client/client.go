// Package client is a small Go client for the nflmcp HTTP API.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gtonic/nfl-mcp-sub001/pkg/api"
)

// Client is an nflmcp API client
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// ClientOption is a function that configures a Client
type ClientOption func(*Client)

// WithTimeout sets the timeout for the HTTP client
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a new nflmcp API client
func NewClient(baseURL string, options ...ClientOption) *Client {
	client := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	for _, option := range options {
		option(client)
	}

	return client
}

// HealthCheck is a single check inside a health report
type HealthCheck struct {
	Name           string                 `json:"name"`
	Status         string                 `json:"status"`
	Message        string                 `json:"message"`
	ResponseTimeMs float64                `json:"response_time_ms"`
	Details        map[string]interface{} `json:"details,omitempty"`
}

// HealthReport is the aggregated health of the service
type HealthReport struct {
	Status string        `json:"status"`
	Checks []HealthCheck `json:"checks"`
	Summary struct {
		Total     int `json:"total"`
		Healthy   int `json:"healthy"`
		Degraded  int `json:"degraded"`
		Unhealthy int `json:"unhealthy"`
	} `json:"summary"`
	DurationMs float64 `json:"duration_ms"`
}

// CircuitBreakerState is one breaker's published state
type CircuitBreakerState struct {
	Name         string     `json:"name"`
	State        string     `json:"state"`
	FailureCount int        `json:"failure_count"`
	SuccessCount int        `json:"success_count"`
	LastFailure  *time.Time `json:"last_failure,omitempty"`
}

// Health fetches the service health report. Dependency probes are skipped
// unless includeDependencies is set.
func (c *Client) Health(ctx context.Context, includeDependencies bool) (*HealthReport, error) {
	path := "/health"
	if includeDependencies {
		path += "?include_dependencies=true"
	}

	var report HealthReport
	// A degraded service answers 207, which still carries a full report
	if err := c.get(ctx, path, &report, http.StatusOK, http.StatusMultiStatus); err != nil {
		return nil, err
	}
	return &report, nil
}

// News fetches the league news feed
func (c *Client) News(ctx context.Context) ([]api.NewsItem, error) {
	var envelope struct {
		News []api.NewsItem `json:"news"`
	}
	if err := c.get(ctx, "/api/news", &envelope, http.StatusOK); err != nil {
		return nil, err
	}
	return envelope.News, nil
}

// Teams fetches the league teams
func (c *Client) Teams(ctx context.Context) ([]api.Team, error) {
	var envelope struct {
		Teams []api.Team `json:"teams"`
	}
	if err := c.get(ctx, "/api/teams", &envelope, http.StatusOK); err != nil {
		return nil, err
	}
	return envelope.Teams, nil
}

// Schedule fetches one team's schedule
func (c *Client) Schedule(ctx context.Context, team string) ([]api.Game, error) {
	var envelope struct {
		Schedule []api.Game `json:"schedule"`
	}
	if err := c.get(ctx, "/api/teams/"+team+"/schedule", &envelope, http.StatusOK); err != nil {
		return nil, err
	}
	return envelope.Schedule, nil
}

// Standings fetches the league standings
func (c *Client) Standings(ctx context.Context) ([]api.Standing, error) {
	var envelope struct {
		Standings []api.Standing `json:"standings"`
	}
	if err := c.get(ctx, "/api/standings", &envelope, http.StatusOK); err != nil {
		return nil, err
	}
	return envelope.Standings, nil
}

// CircuitBreakers lists the state of every known circuit breaker
func (c *Client) CircuitBreakers(ctx context.Context) ([]CircuitBreakerState, error) {
	var envelope struct {
		CircuitBreakers []CircuitBreakerState `json:"circuit_breakers"`
	}
	if err := c.get(ctx, "/api/circuit-breakers", &envelope, http.StatusOK); err != nil {
		return nil, err
	}
	return envelope.CircuitBreakers, nil
}

// ResetCircuitBreaker forces a breaker back to CLOSED
func (c *Client) ResetCircuitBreaker(ctx context.Context, name string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/circuit-breakers/"+name+"/reset", nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("reset %s: unexpected status %d", name, resp.StatusCode)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, out interface{}, acceptable ...int) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	accepted := false
	for _, code := range acceptable {
		if resp.StatusCode == code {
			accepted = true
			break
		}
	}
	if !accepted {
		return fmt.Errorf("GET %s: unexpected status %d", path, resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
