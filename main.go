package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lichtfeld/config"
	"lichtfeld/failures"
	"lichtfeld/job"
	"lichtfeld/logger"
	"lichtfeld/routes"
	"lichtfeld/success"
	"lichtfeld/tracing"
	"lichtfeld/transcripts"
)

const shutdownTimeout = 30 * time.Second

func main() {
	settings, err := config.Load()
	if err != nil {
		logger.Fatalf("Invalid configuration: %v", err)
	}

	level, err := logger.ParseLevel(settings.LogLevel)
	if err != nil {
		logger.Fatalf("Invalid log level: %v", err)
	}
	if err := logger.Init(settings.LogFile, true, level); err != nil {
		logger.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Close()

	logger.Info("Starting LichtFeld processing server")

	for _, dir := range []string{settings.DataDir, settings.WorkspaceDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			logger.Fatalf("Failed to create directory %s: %v", dir, err)
		}
	}

	// Initialize failure store
	logger.Debug("Initializing failures database")
	failureStore, err := failures.Open(settings.FailuresDBPath())
	if err != nil {
		logger.Fatalf("Failed to initialize failure store: %v", err)
	}
	defer failureStore.Close()

	// Initialize success store
	logger.Debug("Initializing success database")
	successStore, err := success.Open(settings.SuccessDBPath())
	if err != nil {
		logger.Fatalf("Failed to initialize success store: %v", err)
	}
	defer successStore.Close()
	logger.Info("Run record databases initialized successfully")

	lifetime, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tp, err := tracing.InitTracer(lifetime, settings.OTLPEndpoint)
	if err != nil {
		logger.Fatalf("Failed to initialize tracing: %v", err)
	}
	if tp != nil {
		logger.Infof("Exporting traces to %s", settings.OTLPEndpoint)
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(ctx); err != nil {
				logger.Warnf("Failed to flush traces: %v", err)
			}
		}()
	}

	deps := job.Deps{Failures: failureStore, Successes: successStore}
	shipper, err := transcripts.NewShipper(settings.Transcripts)
	if err != nil {
		logger.Fatalf("Invalid transcript sink: %v", err)
	}
	if shipper.Enabled() {
		deps.Transcripts = shipper
		logger.Infof("Shipping pipeline transcripts to %s sink", settings.Transcripts.Sink)
	}

	orchestrator := job.NewOrchestrator(lifetime, settings, deps)
	if !orchestrator.PipelineAvailable() {
		logger.Warnf("Pipeline script %s is missing or not executable", settings.ScriptPath())
	}

	// Start cleanup routine for old run records
	go cleanupRoutine(lifetime, settings.RecordRetention, failureStore, successStore)

	logger.Info("Registering HTTP routes")
	mux := http.NewServeMux()
	routes.NewServer(settings, orchestrator, failureStore, successStore).Register(mux)

	srv := &http.Server{
		Addr:              settings.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Infof("LichtFeld server listening on %s", settings.ListenAddr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Server failed: %v", err)
		}
	case <-lifetime.Done():
		logger.Info("Shutdown signal received, stopping server")
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Errorf("Graceful shutdown failed: %v", err)
		}
		// runs outlive their handlers when the shutdown times out; let them finish
		// writing run records before the stores close
		drainCtx, cancelDrain := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelDrain()
		if err := orchestrator.Drain(drainCtx); err != nil {
			logger.Errorf("Runs still in progress at shutdown: %v", err)
		}
	}
	logger.Info("Server stopped")
}

// cleanupRoutine periodically removes run records older than maxAge
func cleanupRoutine(ctx context.Context, maxAge time.Duration, failureStore *failures.Store, successStore *success.Store) {
	logger.Info("Cleanup routine started - will run every 24 hours")
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Cleanup routine stopped due to context cancellation")
			return
		case <-ticker.C:
			logger.Info("Running scheduled cleanup of old records")

			if n, err := successStore.CleanupOldRecords(maxAge); err != nil {
				logger.Errorf("Failed to cleanup old success records: %v", err)
			} else {
				logger.Infof("Removed %d success records older than %v", n, maxAge)
			}

			if n, err := failureStore.CleanupOldRecords(maxAge); err != nil {
				logger.Errorf("Failed to cleanup old failure records: %v", err)
			} else {
				logger.Infof("Removed %d failure records older than %v", n, maxAge)
			}
		}
	}
}
