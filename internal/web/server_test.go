package web

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gtonic/nfl-mcp-sub001/internal/fetch"
	"github.com/gtonic/nfl-mcp-sub001/internal/health"
	"github.com/gtonic/nfl-mcp-sub001/internal/metrics"
	"github.com/gtonic/nfl-mcp-sub001/internal/resilience"
	"github.com/gtonic/nfl-mcp-sub001/internal/storage"
)

// stubStorage satisfies health.StorageProber without a database
type stubStorage struct{ healthy bool }

func (s stubStorage) HealthCheck(ctx context.Context) (bool, map[string]interface{}) {
	return s.healthy, map[string]interface{}{"stub": true}
}

func newTestServer(t *testing.T, upstream *httptest.Server) (*Server, *metrics.Collector, *resilience.Registry) {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	collector := metrics.NewCollector()
	breakers := resilience.NewRegistry(resilience.DefaultConfig(), zap.NewNop())
	checker := health.NewChecker(stubStorage{healthy: true}, nil, collector, logger)

	store, err := storage.NewStore(filepath.Join(t.TempDir(), "web.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	baseURL := ""
	if upstream != nil {
		baseURL = upstream.URL
	}
	fetcher := fetch.New(fetch.Options{
		BaseURL: baseURL,
		Timeout: time.Second,
		Retrier: resilience.NewRetrier(resilience.RetryConfig{
			MaxAttempts:  1,
			InitialDelay: time.Millisecond,
			MaxDelay:     time.Millisecond,
			BackoffBase:  1,
		}, zap.NewNop()),
		Breakers:  breakers,
		Store:     store,
		Collector: collector,
		Logger:    logger,
	})

	return NewServer(":0", collector, checker, breakers, fetcher, logger), collector, breakers
}

func TestServer_HealthEndpoint(t *testing.T) {
	server, _, _ := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	var report struct {
		Status  string `json:"status"`
		Summary struct {
			Total     int `json:"total"`
			Healthy   int `json:"healthy"`
			Degraded  int `json:"degraded"`
			Unhealthy int `json:"unhealthy"`
		} `json:"summary"`
		Checks []struct {
			Name   string `json:"name"`
			Status string `json:"status"`
		} `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))

	// Resource pressure on the test host is unknown, so assert shape, not
	// specific status values
	assert.Contains(t, []string{"healthy", "degraded", "unhealthy"}, report.Status)
	assert.Equal(t, 3, report.Summary.Total, "dependencies are not probed unless requested")
	names := make([]string, 0, len(report.Checks))
	for _, c := range report.Checks {
		names = append(names, c.Name)
	}
	assert.ElementsMatch(t, []string{"self", "storage", "resources"}, names)
}

func TestServer_MetricsEndpoints(t *testing.T) {
	server, collector, _ := newTestApp(t)

	collector.IncrementCounter("http_requests_total", 2, map[string]string{"method": "GET"})
	collector.SetGauge("up", 1, nil)

	// JSON snapshot
	req := httptest.NewRequest(http.MethodGet, "/api/metrics", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var snap struct {
		Counters map[string]float64 `json:"counters"`
		Gauges   map[string]float64 `json:"gauges"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, float64(2), snap.Counters[metrics.Key("http_requests_total", map[string]string{"method": "GET"})])

	// Prometheus text
	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `http_requests_total{method="GET"} 2`)
	assert.Contains(t, rec.Body.String(), "up 1")
}

func TestServer_MiddlewareCountsRequests(t *testing.T) {
	server, collector, _ := newTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	snap := collector.GetMetrics()
	key := metrics.Key("http_requests_total", map[string]string{
		"method": "GET",
		"path":   "/health",
		"status": "2xx",
	})
	assert.Equal(t, float64(1), snap.Counters[key])
}

func TestServer_DataEndpointProxiesUpstream(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"headline":"Season opener","published":"2025-09-04"}]`))
	}))
	defer upstream.Close()

	server, _, _ := newTestServer(t, upstream)

	req := httptest.NewRequest(http.MethodGet, "/api/news", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Season opener")
}

func TestServer_OpenCircuitIsClearlyLabeled(t *testing.T) {
	server, _, breakers := newTestApp(t)

	// Force the news breaker open
	cb := breakers.GetWithConfig("news", resilience.Config{
		FailureThreshold: 1,
		RecoveryTimeout:  time.Hour,
		SuccessThreshold: 1,
	})
	cb.RecordFailure()
	require.Equal(t, resilience.StateOpen, cb.State())

	req := httptest.NewRequest(http.MethodGet, "/api/news", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "circuit_open")
}

func TestServer_BreakerAdminEndpoints(t *testing.T) {
	server, _, breakers := newTestApp(t)

	cb := breakers.GetWithConfig("standings", resilience.Config{
		FailureThreshold: 1,
		RecoveryTimeout:  time.Hour,
		SuccessThreshold: 1,
	})
	cb.RecordFailure()

	req := httptest.NewRequest(http.MethodGet, "/api/circuit-breakers", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"standings"`)
	assert.Contains(t, rec.Body.String(), `"open"`)

	req = httptest.NewRequest(http.MethodPost, "/api/circuit-breakers/standings/reset", nil)
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, resilience.StateClosed, cb.State())

	req = httptest.NewRequest(http.MethodPost, "/api/circuit-breakers/unknown/reset", nil)
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// newTestApp is a convenience wrapper for tests that do not need an upstream
func newTestApp(t *testing.T) (*Server, *metrics.Collector, *resilience.Registry) {
	t.Helper()
	return newTestServer(t, nil)
}
