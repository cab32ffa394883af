package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/marmos91/dittometa/internal/logger"
	"github.com/marmos91/dittometa/pkg/blockmap"
	"github.com/marmos91/dittometa/pkg/config"
	"github.com/marmos91/dittometa/pkg/filemeta"
	"github.com/marmos91/dittometa/pkg/metrics"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: $XDG_CONFIG_HOME/dittometa/config.yaml)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	configureLogging(cfg.Logging)

	fmt.Println("dittometa - file metadata service")
	logger.Info("Log level set to: %s", cfg.Logging.Level)
	logger.Info("Metadata store: %s", cfg.Store.Type)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := config.CreateStore(ctx, cfg.Store)
	if err != nil {
		log.Fatalf("Failed to create metadata store: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close store: %v", err)
		}
	}()

	if err := store.Healthcheck(ctx); err != nil {
		log.Fatalf("Metadata store healthcheck failed: %v", err)
	}

	var engineMetrics *metrics.EngineMetrics
	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		registry := prometheus.NewRegistry()
		engineMetrics = metrics.NewEngineMetrics(registry)

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		metricsServer = &http.Server{Addr: cfg.Metrics.Listen, Handler: mux}
		go func() {
			logger.Info("Metrics endpoint listening on %s", cfg.Metrics.Listen)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("Metrics server failed: %v", err)
			}
		}()
	}

	engine, err := filemeta.NewEngine(filemeta.EngineConfig{
		Store:               store,
		Blocks:              blockmap.NewManager(store),
		NodeID:              cfg.Engine.NodeID,
		MinReplication:      cfg.Engine.MinReplication,
		NumCommittedAllowed: cfg.Engine.NumCommittedAllowed,
		Metrics:             engineMetrics,
	})
	if err != nil {
		log.Fatalf("Failed to create metadata engine: %v", err)
	}

	logger.Info("File metadata engine ready (node %d, min replication %d, first id %d)",
		cfg.Engine.NodeID, cfg.Engine.MinReplication, engine.NextID())

	// Block until SIGINT/SIGTERM, then shut down gracefully.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("Received signal %s, shutting down", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("Metrics server shutdown failed: %v", err)
		}
	}
	cancel()
	logger.Info("Shutdown complete")
}

// configureLogging applies the logging section to the process-wide logger.
func configureLogging(cfg config.LoggingConfig) {
	logger.SetLevel(cfg.Level)
	logger.SetFormat(cfg.Format)

	switch cfg.Output {
	case "", "stdout":
		// default
	case "stderr":
		logger.SetOutput(os.Stderr)
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			log.Fatalf("Failed to open log file %s: %v", cfg.Output, err)
		}
		logger.SetOutput(f)
	}
}
