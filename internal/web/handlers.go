package web

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gtonic/nfl-mcp-sub001/internal/resilience"
)

// healthHandler serves the aggregated health report. Dependency probing is
// opt-in via ?include_dependencies=true.
func (s *Server) healthHandler(c *gin.Context) {
	includeDeps := c.Query("include_dependencies") == "true"
	report := s.checker.Check(c.Request.Context(), includeDeps)

	status := http.StatusOK
	if report.Status != "healthy" {
		status = http.StatusMultiStatus
	}
	c.JSON(status, report)
}

// metricsHandler serves the JSON metrics snapshot
func (s *Server) metricsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.collector.GetMetrics())
}

// prometheusHandler serves the Prometheus exposition-format text body
func (s *Server) prometheusHandler(c *gin.Context) {
	c.Data(http.StatusOK, "text/plain; version=0.0.4", []byte(s.collector.GetPrometheusText()))
}

// newsHandler serves the league news feed
func (s *Server) newsHandler(c *gin.Context) {
	items, err := s.fetcher.News(c.Request.Context())
	if err != nil {
		s.upstreamError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"news": items})
}

// teamsHandler serves the team list
func (s *Server) teamsHandler(c *gin.Context) {
	teams, err := s.fetcher.Teams(c.Request.Context())
	if err != nil {
		s.upstreamError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"teams": teams})
}

// scheduleHandler serves a team schedule
func (s *Server) scheduleHandler(c *gin.Context) {
	team := c.Param("team")
	games, err := s.fetcher.Schedule(c.Request.Context(), team)
	if err != nil {
		s.upstreamError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"team": team, "schedule": games})
}

// snapCountsHandler serves snap counts for a team
func (s *Server) snapCountsHandler(c *gin.Context) {
	counts, err := s.fetcher.SnapCounts(c.Request.Context(), c.Param("team"))
	if err != nil {
		s.upstreamError(c, err)
		return
	}
	c.JSON(http.StatusOK, counts)
}

// standingsHandler serves the league standings
func (s *Server) standingsHandler(c *gin.Context) {
	standings, err := s.fetcher.Standings(c.Request.Context())
	if err != nil {
		s.upstreamError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"standings": standings})
}

// breakersHandler lists the state of every circuit breaker
func (s *Server) breakersHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"circuit_breakers": s.breakers.Snapshots()})
}

// breakerResetHandler force-closes a named circuit breaker
func (s *Server) breakerResetHandler(c *gin.Context) {
	name := c.Param("name")
	if !s.breakers.Reset(name) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown circuit breaker: " + name})
		return
	}

	s.logger.WithField("name", name).Warn("Circuit breaker manually reset")
	c.JSON(http.StatusOK, gin.H{"reset": name})
}

// upstreamError maps fetch failures to responses. An open circuit produces a
// fast, clearly labeled 503 so operators can tell "known-bad dependency"
// apart from a slow one.
func (s *Server) upstreamError(c *gin.Context, err error) {
	if errors.Is(err, resilience.ErrCircuitOpen) {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":  err.Error(),
			"reason": "circuit_open",
		})
		return
	}
	if errors.Is(err, resilience.ErrBulkheadFull) {
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":  err.Error(),
			"reason": "bulkhead_full",
		})
		return
	}
	c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
}
