// pipeline-service is the HTTP API server for managing pipeline runs.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pipeliner/internal/api"
	"pipeliner/internal/config"
	"pipeliner/internal/dispatcher"
	"pipeliner/internal/executor"
	"pipeliner/internal/executor/docker"
	"pipeliner/internal/health"
	"pipeliner/internal/observability"
	"pipeliner/internal/pipeline"
	"pipeliner/internal/run"
	"pipeliner/internal/trigger"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := runService(); err != nil {
		slog.Error("Service failed", "error", err)
		os.Exit(1)
	}
}

func runService() error {
	ctx := context.Background()

	// Load configuration
	svcCfg := config.LoadServiceConfig()
	dispatcherCfg := dispatcher.LoadConfigFromEnv()

	// Setup metrics
	metrics, metricsHandler, err := observability.NewMetrics(ctx)
	if err != nil {
		return err
	}

	// Create notification dispatcher
	eventDispatcher := dispatcher.NewMemory(dispatcherCfg, metrics)

	// Build the step executor: host shell, plus Docker when enabled
	backend := &executor.Selector{Host: executor.NewLocal(0)}
	if svcCfg.DockerEnabled {
		containerExec, err := docker.NewExecutor(docker.LoadConfigFromEnv())
		if err != nil {
			return err
		}
		backend.Container = containerExec
		slog.Info("Connected to Docker daemon")
	}
	defer backend.Close()

	// Load pipeline definitions
	registry := pipeline.NewRegistry()
	if err := registry.LoadDir(svcCfg.PipelinesDir); err != nil {
		return err
	}
	slog.Info("Pipelines loaded", "dir", svcCfg.PipelinesDir, "count", len(registry.List()))

	// Create health checker
	healthChecker := health.NewChecker(backend)

	// Create run service
	runService := run.NewService(run.ServiceConfig{
		Registry: registry,
		Engine: run.NewEngine(run.EngineConfig{
			Runner:        backend,
			Dispatcher:    eventDispatcher,
			Metrics:       metrics,
			WorkspaceRoot: svcCfg.WorkspaceRoot,
			MaxConcurrent: svcCfg.MaxConcurrentJobs,
		}),
		Metrics:   metrics,
		Retention: svcCfg.RunRetention,
	})

	// Start the cron scheduler for pipelines with a schedule
	scheduler, err := trigger.NewScheduler(registry, runService)
	if err != nil {
		return err
	}
	scheduler.Start()

	// Create API router
	router := api.NewRouter(api.RouterConfig{
		RunService:    runService,
		Registry:      registry,
		PushHandler:   trigger.NewPushHandler(registry, runService, svcCfg.WebhookSecret),
		Metrics:       metrics,
		HealthChecker: healthChecker,
		APIKey:        svcCfg.APIKey,
	})

	if svcCfg.APIKey != "" {
		slog.Info("API authentication enabled")
	} else {
		slog.Warn("API authentication disabled - no API_KEY configured")
	}
	if svcCfg.WebhookSecret == "" {
		slog.Warn("Webhook signature verification disabled - no WEBHOOK_SECRET configured")
	}

	// Create API server
	apiServer := &http.Server{
		Addr:         ":" + svcCfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Create metrics server
	metricsMux := http.NewServeMux()
	metricsMux.Handle("GET /metrics", metricsHandler)
	metricsServer := &http.Server{
		Addr:         ":" + svcCfg.MetricsPort,
		Handler:      metricsMux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	// Channel to capture server errors
	serverErr := make(chan error, 1)

	// Start API server
	go func() {
		slog.Info("Starting API server", "port", svcCfg.Port)
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Start metrics server
	go func() {
		slog.Info("Starting metrics server", "port", svcCfg.MetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// shutdown closes both servers gracefully
	shutdown := func(timeout time.Duration) {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := apiServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("API server shutdown error", "error", err)
		}
		if err := metricsServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server shutdown error", "error", err)
		}
	}

	// Wait for interrupt signal or server error
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("Received shutdown signal", "signal", sig)
	case err := <-serverErr:
		slog.Error("Server failed to start", "error", err)
		shutdown(5 * time.Second)
		return err
	}

	// Phase 1: Mark service as unhealthy for load balancer draining
	healthChecker.SetShuttingDown()

	// Stop firing scheduled runs
	schedulerCtx, schedulerCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := scheduler.Stop(schedulerCtx); err != nil {
		slog.Warn("Scheduler shutdown error", "error", err)
	}
	schedulerCancel()

	// Wait for load balancers to stop sending traffic
	if svcCfg.ShutdownDrainWait > 0 {
		slog.Info("Waiting for traffic to drain", "duration", svcCfg.ShutdownDrainWait)
		time.Sleep(svcCfg.ShutdownDrainWait)
	}

	// Phase 2: Graceful shutdown - stop accepting new connections, finish in-flight requests
	slog.Info("Starting graceful shutdown")
	shutdown(25 * time.Second)

	// Phase 3: Wait for in-flight runs to finish
	slog.Info("Waiting for active runs")
	runCtx, runCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer runCancel()
	if err := runService.Close(runCtx); err != nil {
		slog.Warn("Run service shutdown error", "error", err)
	}

	// Phase 4: Drain notification dispatcher
	slog.Info("Draining notification dispatcher")
	dispatcherCtx, dispatcherCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer dispatcherCancel()
	if err := eventDispatcher.Close(dispatcherCtx); err != nil {
		slog.Warn("Dispatcher shutdown error", "error", err)
	}

	// Log final dispatcher stats
	stats := eventDispatcher.Stats()
	slog.Info("Dispatcher stats",
		"delivered", stats.Delivered,
		"failed", stats.Failed,
		"dropped", stats.Dropped,
	)

	slog.Info("Shutdown complete")
	return nil
}
