package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/time/rate"

	"github.com/fieldline/gridcast/internal/adapters/http/api"
	"github.com/fieldline/gridcast/internal/adapters/http/swagger"
	app "github.com/fieldline/gridcast/internal/app"
	"github.com/fieldline/gridcast/internal/config"
	"github.com/fieldline/gridcast/internal/domain/ensemble"
	"github.com/fieldline/gridcast/internal/resilience/breaker"
	"github.com/fieldline/gridcast/internal/resilience/cache"
	"github.com/fieldline/gridcast/pkg/logger"
	"github.com/fieldline/gridcast/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout           = 10 * time.Second
	writeTimeout          = 30 * time.Second
	idleTimeout           = 60 * time.Second
	readHeaderTimeout     = 5 * time.Second
	shutdownTimeout       = 30 * time.Second
	systemMetricsInterval = 10 * time.Second
)

func main() {
	// Disable default Go metrics collection to avoid duplicate metrics
	// We collect our own custom system metrics instead
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Initialize logging
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return
	}

	log := logger.Get()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return
	}

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	// Create and start the service with configuration options
	svc := app.New(
		app.WithLogger(log),
		app.WithModelsDir(cfg.ModelsDir),
		app.WithFeatureDBPath(cfg.FeatureDBPath),
		app.WithSeasonBounds(cfg.SeasonMin, cfg.SeasonMax),
		app.WithWeekBounds(cfg.WeekMin, cfg.WeekMax),
		app.WithPredictTimeout(time.Duration(cfg.PredictTimeoutMS)*time.Millisecond),
		app.WithImputationThreshold(cfg.ImputationThreshold),
		app.WithMedianWindow(cfg.MedianWindowWeeks),
		app.WithDegradedFallback(cfg.AllowDegradedFallback),
		app.WithBatchMaxSize(cfg.BatchMaxSize),
		app.WithBatchWorkerCount(cfg.BatchWorkerCount),
		app.WithBreakerOptions(
			breaker.WithDegradedThreshold(cfg.BreakerDegradedThreshold),
			breaker.WithUnavailableThreshold(cfg.BreakerUnavailableThreshold),
			breaker.WithCooldown(time.Duration(cfg.BreakerCooldownMS)*time.Millisecond),
		),
		app.WithCacheOptions(
			cache.WithTTL(time.Duration(cfg.CacheTTLMS)*time.Millisecond),
			cache.WithSweepInterval(time.Duration(cfg.CacheSweepIntervalMS)*time.Millisecond),
		),
		app.WithCombinerOptions(
			ensemble.WithCalibrationK(cfg.CalibrationK),
			ensemble.WithConfidenceSlope(cfg.ConfidenceSlope),
			ensemble.WithLowConfidenceDiscount(cfg.LowConfidenceDiscount),
			ensemble.WithMissingModelPenalty(cfg.MissingModelPenalty),
		),
	)
	if err := svc.Start(ctx); err != nil {
		os.Stderr.WriteString("failed to start service: " + err.Error() + "\n")
		return
	}
	defer svc.Stop()

	// Start system metrics updater
	go startSystemMetricsUpdater(ctx)

	// HTTP mux and routes.
	mux := http.NewServeMux()

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}

	// Register business API routes with the service dependency.
	apiServer := api.NewServer(svc, svc, limiter)
	apiServer.Register(ctx, mux)

	// API documentation (ReDoc + OpenAPI spec).
	swagger.Register(ctx, mux)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	// Start the HTTP server
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			os.Stderr.WriteString("HTTP server failed: " + err.Error() + "\n")
			return
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()
	log.Info(ctx, "shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	log.Info(ctx, "server stopped")
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
}
