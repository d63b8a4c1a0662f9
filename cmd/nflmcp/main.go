package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gtonic/nfl-mcp-sub001/internal/cache"
	"github.com/gtonic/nfl-mcp-sub001/internal/config"
	"github.com/gtonic/nfl-mcp-sub001/internal/fetch"
	"github.com/gtonic/nfl-mcp-sub001/internal/health"
	"github.com/gtonic/nfl-mcp-sub001/internal/metrics"
	"github.com/gtonic/nfl-mcp-sub001/internal/resilience"
	"github.com/gtonic/nfl-mcp-sub001/internal/storage"
	"github.com/gtonic/nfl-mcp-sub001/internal/web"
)

var (
	// Version is set during build
	Version = "dev"
	// BuildTime is set during build
	BuildTime = "unknown"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	rootCmd := &cobra.Command{
		Use:   "nflmcp",
		Short: "NFL data service with resilient upstream access",
		Long: `nflmcp serves NFL news, teams, schedules, and standings fetched
from an upstream provider. Every outbound call runs through a circuit
breaker, retry, and bulkhead layer, and the service exposes health and
metrics endpoints for operators.`,
		Run: func(cmd *cobra.Command, args []string) {
			log.Infof("Starting nflmcp %s (built at %s)", Version, BuildTime)
			runServer(log)
		},
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("nflmcp %s (built at %s)\n", Version, BuildTime)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Failed to execute command: %v", err)
	}
}

func runServer(log *logrus.Logger) {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	} else {
		log.Warnf("Unknown log level %q, using info", cfg.LogLevel)
	}

	// The resilience layer logs through zap; everything else uses logrus.
	zapLogger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to create resilience logger: %v", err)
	}
	defer zapLogger.Sync() //nolint:errcheck

	store, err := storage.NewStore(cfg.DatabasePath, log)
	if err != nil {
		log.Fatalf("Failed to open storage: %v", err)
	}
	defer store.Close()

	var payloadCache fetch.PayloadCache
	if cfg.RedisAddr != "" {
		redisCache := cache.New(cfg.RedisAddr, cfg.CacheTTL, log)
		defer redisCache.Close()
		payloadCache = redisCache
	}

	collector := metrics.NewCollector()

	breakers := resilience.NewRegistry(resilience.Config{
		FailureThreshold: cfg.CircuitFailureThreshold,
		RecoveryTimeout:  cfg.CircuitRecoveryTimeout,
		SuccessThreshold: cfg.CircuitSuccessThreshold,
	}, zapLogger)

	retrier := resilience.NewRetrier(resilience.RetryConfig{
		MaxAttempts:  cfg.RetryMaxAttempts,
		InitialDelay: cfg.RetryInitialDelay,
		MaxDelay:     cfg.RetryMaxDelay,
		BackoffBase:  cfg.RetryBackoffBase,
	}, zapLogger)

	bulkhead := resilience.NewBulkhead("upstream", resilience.BulkheadConfig{
		MaxConcurrentCalls: cfg.MaxConcurrentFetches,
		AcquireTimeout:     time.Second,
	}, zapLogger)

	fetcher := fetch.New(fetch.Options{
		BaseURL:     cfg.UpstreamBaseURL,
		Timeout:     cfg.ShortTimeout,
		LongTimeout: cfg.LongTimeout,
		Retrier:     retrier,
		Breakers:    breakers,
		Bulkhead:    bulkhead,
		Store:       store,
		Cache:       payloadCache,
		Collector:   collector,
		Logger:      log,
	})

	deps := make([]health.Dependency, 0, len(cfg.HealthDependencies))
	for _, url := range cfg.HealthDependencies {
		deps = append(deps, health.Dependency{
			Name:    url,
			URL:     url,
			Timeout: cfg.DependencyTimeout,
		})
	}
	checker := health.NewChecker(store, deps, collector, log)

	server := web.NewServer(cfg.Addr, collector, checker, breakers, fetcher, log)

	go func() {
		if err := server.Start(); err != nil {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()
	log.Infof("Listening on %s. Press Ctrl+C to stop.", cfg.Addr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Infof("Received signal %v, shutting down...", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Stop(ctx); err != nil {
		log.Errorf("Error during shutdown: %v", err)
	}

	log.Info("Shutdown complete")
}
