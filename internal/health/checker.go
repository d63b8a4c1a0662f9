// Package health aggregates self, storage, host-resource, and external
// dependency checks into a single report. Probing never raises: every
// failure is converted into an unhealthy check result, so the health
// endpoint itself cannot crash.
package health

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/sirupsen/logrus"

	"github.com/gtonic/nfl-mcp-sub001/internal/metrics"
)

// Status classifies a single check or the rolled-up report
type Status string

const (
	// StatusHealthy means the check passed cleanly
	StatusHealthy Status = "healthy"
	// StatusDegraded means the check passed with elevated pressure or a
	// non-fatal dependency problem
	StatusDegraded Status = "degraded"
	// StatusUnhealthy means the check failed
	StatusUnhealthy Status = "unhealthy"
)

// Resource pressure bands: above high is degraded, above critical is unhealthy
const (
	cpuHighPct      = 70.0
	memHighPct      = 70.0
	diskHighPct     = 80.0
	criticalPct     = 90.0
	defaultDepProbe = 5 * time.Second
)

// CheckResult is an immutable snapshot of one check, produced fresh per call
type CheckResult struct {
	Name           string                 `json:"name"`
	Status         Status                 `json:"status"`
	Message        string                 `json:"message"`
	ResponseTimeMs float64                `json:"response_time_ms"`
	Timestamp      time.Time              `json:"timestamp"`
	Details        map[string]interface{} `json:"details,omitempty"`
}

// Summary is the count breakdown callers assert on without parsing messages
type Summary struct {
	Total     int `json:"total"`
	Healthy   int `json:"healthy"`
	Degraded  int `json:"degraded"`
	Unhealthy int `json:"unhealthy"`
}

// Report is the aggregated output of a health check run
type Report struct {
	Status     Status        `json:"status"`
	Checks     []CheckResult `json:"checks"`
	Summary    Summary       `json:"summary"`
	Timestamp  time.Time     `json:"timestamp"`
	DurationMs float64       `json:"duration_ms"`
}

// StorageProber is the boundary to the storage collaborator: a probe that
// reports a healthy flag plus free-form details
type StorageProber interface {
	HealthCheck(ctx context.Context) (bool, map[string]interface{})
}

// Dependency is one configured external endpoint probed with a HEAD request
type Dependency struct {
	Name    string
	URL     string
	Timeout time.Duration
}

// resourceSample is one reading of host pressure, injectable for tests
type resourceSample struct {
	cpuPct  float64
	memPct  float64
	diskPct float64
}

// Checker runs the configured checks on demand. Every run publishes a
// healthy/unhealthy gauge and a duration timing into the metrics collector,
// so health checking is itself observable.
type Checker struct {
	storage   StorageProber
	deps      []Dependency
	collector *metrics.Collector
	client    *resty.Client
	logger    *logrus.Logger

	// sampleResources is replaced in tests to avoid real host readings
	sampleResources func(ctx context.Context) (resourceSample, error)
}

// NewChecker creates a health checker over the given collaborators
func NewChecker(storage StorageProber, deps []Dependency, collector *metrics.Collector, logger *logrus.Logger) *Checker {
	return &Checker{
		storage:         storage,
		deps:            deps,
		collector:       collector,
		client:          resty.New(),
		logger:          logger,
		sampleResources: sampleHostResources,
	}
}

// Check runs the self, storage, and resource checks, plus the external
// dependency probes when includeDependencies is set, and aggregates them.
//
// Aggregation: overall starts healthy; a non-healthy storage or resource
// check downgrades it to degraded, as does an unhealthy dependency. A
// third-party outage never makes the service report itself fully down.
func (c *Checker) Check(ctx context.Context, includeDependencies bool) Report {
	start := time.Now()

	checks := []CheckResult{
		c.checkSelf(),
		c.checkStorage(ctx),
		c.checkResources(ctx),
	}

	if includeDependencies {
		for _, dep := range c.deps {
			checks = append(checks, c.checkDependency(ctx, dep))
		}
	}

	overall := StatusHealthy
	summary := Summary{Total: len(checks)}
	for _, check := range checks {
		switch check.Status {
		case StatusHealthy:
			summary.Healthy++
		case StatusDegraded:
			summary.Degraded++
		case StatusUnhealthy:
			summary.Unhealthy++
		}
		if check.Status != StatusHealthy {
			overall = StatusDegraded
		}
	}

	elapsed := time.Since(start)
	report := Report{
		Status:     overall,
		Checks:     checks,
		Summary:    summary,
		Timestamp:  start,
		DurationMs: float64(elapsed.Nanoseconds()) / 1e6,
	}

	if c.collector != nil {
		healthy := 0.0
		if overall == StatusHealthy {
			healthy = 1.0
		}
		c.collector.SetGauge("health_check_healthy", healthy, nil)
		c.collector.RecordTiming("health_check_duration_ms", elapsed, nil)
	}

	c.logger.WithFields(logrus.Fields{
		"status":   overall,
		"checks":   summary.Total,
		"duration": elapsed,
	}).Debug("Health check completed")

	return report
}

// checkSelf verifies internal metrics access works
func (c *Checker) checkSelf() CheckResult {
	start := time.Now()

	result := CheckResult{
		Name:      "self",
		Status:    StatusHealthy,
		Message:   "service is running",
		Timestamp: start,
	}

	if c.collector == nil {
		result.Status = StatusUnhealthy
		result.Message = "metrics collector unavailable"
	} else {
		snap := c.collector.GetMetrics()
		result.Details = map[string]interface{}{
			"tracked_counters": len(snap.Counters),
			"tracked_gauges":   len(snap.Gauges),
		}
	}

	result.ResponseTimeMs = msSince(start)
	return result
}

// checkStorage delegates to the storage collaborator's own probe
func (c *Checker) checkStorage(ctx context.Context) CheckResult {
	start := time.Now()

	result := CheckResult{
		Name:      "storage",
		Timestamp: start,
	}

	if c.storage == nil {
		result.Status = StatusUnhealthy
		result.Message = "storage not configured"
		result.ResponseTimeMs = msSince(start)
		return result
	}

	healthy, details := c.storage.HealthCheck(ctx)
	result.Details = details
	if healthy {
		result.Status = StatusHealthy
		result.Message = "storage is reachable"
	} else {
		result.Status = StatusUnhealthy
		result.Message = "storage probe failed"
	}

	result.ResponseTimeMs = msSince(start)
	return result
}

// checkResources samples host CPU, memory, and disk pressure and classifies
// it into the healthy/degraded/unhealthy bands
func (c *Checker) checkResources(ctx context.Context) CheckResult {
	start := time.Now()

	result := CheckResult{
		Name:      "resources",
		Timestamp: start,
	}

	sample, err := c.sampleResources(ctx)
	if err != nil {
		result.Status = StatusUnhealthy
		result.Message = fmt.Sprintf("resource sampling failed: %v", err)
		result.ResponseTimeMs = msSince(start)
		return result
	}

	result.Details = map[string]interface{}{
		"cpu_percent":  sample.cpuPct,
		"mem_percent":  sample.memPct,
		"disk_percent": sample.diskPct,
	}

	switch {
	case sample.cpuPct > criticalPct || sample.memPct > criticalPct || sample.diskPct > criticalPct:
		result.Status = StatusUnhealthy
		result.Message = "host resources critically constrained"
	case sample.cpuPct > cpuHighPct || sample.memPct > memHighPct || sample.diskPct > diskHighPct:
		result.Status = StatusDegraded
		result.Message = "host resources under pressure"
	default:
		result.Status = StatusHealthy
		result.Message = "host resources within limits"
	}

	result.ResponseTimeMs = msSince(start)
	return result
}

// checkDependency issues a HEAD probe to one external endpoint and classifies
// the response: <400 healthy, 4xx degraded, >=500 or timeout unhealthy
func (c *Checker) checkDependency(ctx context.Context, dep Dependency) CheckResult {
	start := time.Now()

	result := CheckResult{
		Name:      "dependency:" + dep.Name,
		Timestamp: start,
		Details:   map[string]interface{}{"url": dep.URL},
	}

	timeout := dep.Timeout
	if timeout <= 0 {
		timeout = defaultDepProbe
	}
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := c.client.R().SetContext(probeCtx).Head(dep.URL)
	result.ResponseTimeMs = msSince(start)

	if err != nil {
		result.Status = StatusUnhealthy
		result.Message = fmt.Sprintf("probe failed: %v", err)
		return result
	}

	code := resp.StatusCode()
	result.Details["status_code"] = code
	switch {
	case code < 400:
		result.Status = StatusHealthy
		result.Message = fmt.Sprintf("responded with %d", code)
	case code < 500:
		result.Status = StatusDegraded
		result.Message = fmt.Sprintf("responded with client error %d", code)
	default:
		result.Status = StatusUnhealthy
		result.Message = fmt.Sprintf("responded with server error %d", code)
	}
	return result
}

// sampleHostResources reads real host pressure via gopsutil
func sampleHostResources(ctx context.Context) (resourceSample, error) {
	var sample resourceSample

	cpuPcts, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return sample, fmt.Errorf("cpu sample: %w", err)
	}
	if len(cpuPcts) > 0 {
		sample.cpuPct = cpuPcts[0]
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return sample, fmt.Errorf("memory sample: %w", err)
	}
	sample.memPct = vm.UsedPercent

	du, err := disk.UsageWithContext(ctx, "/")
	if err != nil {
		return sample, fmt.Errorf("disk sample: %w", err)
	}
	sample.diskPct = du.UsedPercent

	return sample, nil
}

func msSince(start time.Time) float64 {
	return float64(time.Since(start).Nanoseconds()) / 1e6
}
