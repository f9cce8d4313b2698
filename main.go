package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"thermobeacon-exporter/config"
	"thermobeacon-exporter/exporter"
	"thermobeacon-exporter/locations"
	"thermobeacon-exporter/metrics"
	"thermobeacon-exporter/profiling"
	"thermobeacon-exporter/scanner"
	"thermobeacon-exporter/store"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("c", "config.yaml", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := cfg.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting ThermoBeacon exporter")
	cfg.PrintConfig(logger)

	// Initialize Pyroscope profiling
	profiler, err := profiling.Start(&cfg.Profiling, logger)
	if err != nil {
		logger.Error("failed to initialize profiler", zap.Error(err))
		os.Exit(1)
	}
	defer func() {
		if err := profiler.Stop(); err != nil {
			logger.Error("failed to shutdown profiler", zap.Error(err))
		}
	}()

	// Load location metadata; the physical gauges work without it
	table, err := locations.Load(cfg.Locations.File, logger)
	if err != nil {
		logger.Warn("failed to load location table, continuing without location metadata",
			zap.String("file", cfg.Locations.File),
			zap.Error(err),
		)
		table = locations.Empty()
	}

	// Create the reading store and register the scrape collector
	readings := store.New()
	collector := exporter.New(readings, table)
	prometheus.MustRegister(collector)

	// Create cancelable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var wg sync.WaitGroup

	// Start metrics endpoint
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:    cfg.Metrics.ListenAddress,
		Handler: mux,
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("metrics endpoint listening", zap.String("address", cfg.Metrics.ListenAddress))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
			cancel()
		}
	}()

	// Start BLE scanner in goroutine
	bleScanner := scanner.New(readings, logger)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := bleScanner.Start(ctx); err != nil {
			logger.Error("BLE scanner failed", zap.Error(err))
			cancel()
		}
	}()

	// Start remote_write pusher if enabled
	if cfg.RemoteWrite.Enabled {
		logger.Info("remote write enabled, starting pusher")
		pusher := metrics.New(
			cfg.RemoteWrite.URL,
			cfg.RemoteWrite.Username,
			cfg.RemoteWrite.Password,
			readings,
			table,
			cfg.RemoteWrite.PushIntervalSeconds,
			logger,
		)
		wg.Add(1)
		go func() {
			defer wg.Done()
			pusher.Start(ctx)
		}()
	} else {
		logger.Info("remote write disabled")
	}

	// Wait for shutdown signal
	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("context cancelled")
	}

	cancel()

	// Stop scanner
	logger.Info("stopping BLE scanner")
	if err := bleScanner.Stop(); err != nil {
		logger.Error("failed to stop BLE scanner", zap.Error(err))
	}

	// Shut down the metrics endpoint
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown metrics server", zap.Error(err))
	}

	logger.Info("waiting for goroutines to finish")
	wg.Wait()

	logger.Info("ThermoBeacon exporter stopped")
}
