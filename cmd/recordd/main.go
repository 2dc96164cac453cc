// Recordd is a multi-tenant data management API with user-defined
// schemas and semantic search.
//
// Configuration is loaded from an optional YAML file and environment
// variables. See internal/config for details.
//
// Usage:
//
//	# Start server with defaults
//	AUTH_JWT_SECRET=secret recordd
//
//	# Configure via file and environment
//	SERVER_PORT=9090 recordd -config recordd.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/recordd/internal/auth"
	"github.com/fyrsmithlabs/recordd/internal/config"
	"github.com/fyrsmithlabs/recordd/internal/embeddings"
	httpserver "github.com/fyrsmithlabs/recordd/internal/http"
	"github.com/fyrsmithlabs/recordd/internal/logging"
	"github.com/fyrsmithlabs/recordd/internal/models"
	"github.com/fyrsmithlabs/recordd/internal/records"
	"github.com/fyrsmithlabs/recordd/internal/services"
	"github.com/fyrsmithlabs/recordd/internal/store"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()
	args := flag.Args()

	// Handle subcommands
	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  recordd           Start the recordd server\n")
			fmt.Fprintf(os.Stderr, "  recordd version   Show version information\n")
			os.Exit(1)
		}
	}

	// Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server shutdown complete")
}

// printVersion prints version information
func printVersion() {
	fmt.Printf("recordd by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run starts the recordd server and blocks until context is cancelled.
//
// This function initializes all dependencies and services:
//  1. Loads and validates configuration
//  2. Initializes the structured logger
//  3. Opens the record store
//  4. Creates the embeddings client
//  5. Initializes business services (models, records)
//  6. Wires the HTTP server and metrics endpoint
//  7. Performs graceful shutdown on context cancellation
func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync() // Best-effort sync on shutdown
	}()

	logger.Info("Starting recordd",
		zap.Int("port", cfg.Server.Port),
		zap.String("service", cfg.Observability.ServiceName),
		zap.Duration("shutdown_timeout", cfg.Server.ShutdownTimeout))

	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	var embedder embeddings.Embedder
	if cfg.Embedding.APIKey != "" {
		embedder = embeddings.NewClient(embeddings.Config{
			BaseURL:    cfg.Embedding.BaseURL,
			APIKey:     cfg.Embedding.APIKey,
			Model:      cfg.Embedding.Model,
			MaxRetries: cfg.Embedding.MaxRetries,
		}, logger)
	} else {
		logger.Warn("embedding api key not configured, semantic search is unavailable")
	}

	modelsSvc, err := models.NewService(st, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize models service: %w", err)
	}
	recordsSvc, err := records.NewService(modelsSvc, st, embedder, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize records service: %w", err)
	}
	registry, err := services.NewRegistry(modelsSvc, recordsSvc)
	if err != nil {
		return fmt.Errorf("failed to initialize service registry: %w", err)
	}

	resolver := auth.NewResolver(auth.Config{
		JWTSecret:    cfg.Auth.JWTSecret,
		APIKeyHeader: cfg.Auth.APIKeyHeader,
		APIKeyPrefix: cfg.Auth.APIKeyPrefix,
	})

	srv, err := httpserver.NewServer(registry, resolver, logger, &httpserver.Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	})
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}

	// Register metrics endpoint
	srv.Echo().GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	logger.Info("Server configured",
		zap.String("health_endpoint", fmt.Sprintf("http://%s:%d/health", cfg.Server.Host, cfg.Server.Port)),
		zap.String("metrics_endpoint", "/metrics"))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancelShutdown()
		return srv.Shutdown(shutdownCtx)
	}
}
