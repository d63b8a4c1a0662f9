package health

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gtonic/nfl-mcp-sub001/internal/metrics"
)

// fakeStorage is a stub storage prober
type fakeStorage struct {
	healthy bool
	details map[string]interface{}
}

func (f *fakeStorage) HealthCheck(ctx context.Context) (bool, map[string]interface{}) {
	return f.healthy, f.details
}

func newTestChecker(storage StorageProber, deps []Dependency) (*Checker, *metrics.Collector) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	collector := metrics.NewCollector()
	checker := NewChecker(storage, deps, collector, logger)
	checker.sampleResources = func(ctx context.Context) (resourceSample, error) {
		return resourceSample{cpuPct: 10, memPct: 20, diskPct: 30}, nil
	}
	return checker, collector
}

func TestChecker_AllHealthy(t *testing.T) {
	checker, _ := newTestChecker(&fakeStorage{healthy: true}, nil)

	report := checker.Check(context.Background(), false)

	assert.Equal(t, StatusHealthy, report.Status)
	assert.Equal(t, Summary{Total: 3, Healthy: 3}, report.Summary)
	require.Len(t, report.Checks, 3)
	for _, check := range report.Checks {
		assert.NotZero(t, check.Timestamp)
		assert.GreaterOrEqual(t, check.ResponseTimeMs, 0.0)
	}
}

func TestChecker_UnhealthyStorageDegradesOverall(t *testing.T) {
	checker, _ := newTestChecker(&fakeStorage{healthy: false, details: map[string]interface{}{"error": "db locked"}}, nil)

	report := checker.Check(context.Background(), false)

	// Storage being down degrades the service, it does not mark it down
	assert.Equal(t, StatusDegraded, report.Status)
	assert.Equal(t, 1, report.Summary.Unhealthy)

	storageCheck := findCheck(t, report, "storage")
	assert.Equal(t, StatusUnhealthy, storageCheck.Status)
	assert.Equal(t, "db locked", storageCheck.Details["error"])
}

func TestChecker_ResourceBands(t *testing.T) {
	tests := []struct {
		name   string
		sample resourceSample
		want   Status
	}{
		{"all clear", resourceSample{10, 20, 30}, StatusHealthy},
		{"high cpu", resourceSample{75, 20, 30}, StatusDegraded},
		{"high memory", resourceSample{10, 72, 30}, StatusDegraded},
		{"high disk", resourceSample{10, 20, 85}, StatusDegraded},
		{"critical cpu", resourceSample{95, 20, 30}, StatusUnhealthy},
		{"critical disk", resourceSample{10, 20, 91}, StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker, _ := newTestChecker(&fakeStorage{healthy: true}, nil)
			checker.sampleResources = func(ctx context.Context) (resourceSample, error) {
				return tt.sample, nil
			}

			report := checker.Check(context.Background(), false)
			assert.Equal(t, tt.want, findCheck(t, report, "resources").Status)
		})
	}
}

func TestChecker_DependencyClassification(t *testing.T) {
	statuses := map[string]int{"/ok": 200, "/missing": 404, "/broken": 503}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(statuses[r.URL.Path])
	}))
	defer srv.Close()

	deps := []Dependency{
		{Name: "ok", URL: srv.URL + "/ok", Timeout: time.Second},
		{Name: "missing", URL: srv.URL + "/missing", Timeout: time.Second},
		{Name: "broken", URL: srv.URL + "/broken", Timeout: time.Second},
		{Name: "gone", URL: "http://127.0.0.1:1/", Timeout: 200 * time.Millisecond},
	}
	checker, _ := newTestChecker(&fakeStorage{healthy: true}, deps)

	report := checker.Check(context.Background(), true)

	assert.Equal(t, StatusHealthy, findCheck(t, report, "dependency:ok").Status)
	assert.Equal(t, StatusDegraded, findCheck(t, report, "dependency:missing").Status)
	assert.Equal(t, StatusUnhealthy, findCheck(t, report, "dependency:broken").Status)
	assert.Equal(t, StatusUnhealthy, findCheck(t, report, "dependency:gone").Status)

	// Dependency outages never force the service to report itself down
	assert.Equal(t, StatusDegraded, report.Status)
	assert.Equal(t, 7, report.Summary.Total)
}

func TestChecker_DependenciesSkippedByDefault(t *testing.T) {
	checker, _ := newTestChecker(&fakeStorage{healthy: true}, []Dependency{
		{Name: "never-probed", URL: "http://127.0.0.1:1/"},
	})

	report := checker.Check(context.Background(), false)
	assert.Len(t, report.Checks, 3)
}

func TestChecker_PublishesMetrics(t *testing.T) {
	checker, collector := newTestChecker(&fakeStorage{healthy: true}, nil)

	checker.Check(context.Background(), false)

	snap := collector.GetMetrics()
	assert.Equal(t, float64(1), snap.Gauges["health_check_healthy"])
	assert.Equal(t, int64(1), snap.Summaries["health_check_duration_ms"].Count)

	// An unhealthy run flips the gauge
	checker.sampleResources = func(ctx context.Context) (resourceSample, error) {
		return resourceSample{cpuPct: 99}, nil
	}
	checker.Check(context.Background(), false)
	assert.Equal(t, float64(0), collector.GetMetrics().Gauges["health_check_healthy"])
}

func TestChecker_ResourceSamplingFailureIsUnhealthyNotPanic(t *testing.T) {
	checker, _ := newTestChecker(&fakeStorage{healthy: true}, nil)
	checker.sampleResources = func(ctx context.Context) (resourceSample, error) {
		return resourceSample{}, assert.AnError
	}

	report := checker.Check(context.Background(), false)

	check := findCheck(t, report, "resources")
	assert.Equal(t, StatusUnhealthy, check.Status)
	assert.Contains(t, check.Message, "resource sampling failed")
	assert.Equal(t, StatusDegraded, report.Status)
}

func TestChecker_NilStorageIsUnhealthy(t *testing.T) {
	checker, _ := newTestChecker(nil, nil)

	report := checker.Check(context.Background(), false)
	assert.Equal(t, StatusUnhealthy, findCheck(t, report, "storage").Status)
}

func findCheck(t *testing.T, report Report, name string) CheckResult {
	t.Helper()
	for _, check := range report.Checks {
		if check.Name == name {
			return check
		}
	}
	t.Fatalf("check %q not found in report", name)
	return CheckResult{}
}
