// Gateway edge server — authenticates callers, forwards prompts to the
// Sentinel input-security service, and translates verdicts into HTTP
// responses with explainability headers.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/clestiq/clestiq/pkg/config"
	"github.com/clestiq/clestiq/pkg/credentials"
	"github.com/clestiq/clestiq/pkg/database"
	"github.com/clestiq/clestiq/pkg/gateway"
	"github.com/clestiq/clestiq/pkg/sentinel"
	"github.com/clestiq/clestiq/pkg/telemetry"
	"github.com/clestiq/clestiq/pkg/usage"
	"github.com/clestiq/clestiq/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	// Parse command-line flags
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	// Load .env file from config directory
	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
	} else {
		slog.Info("Loaded environment", "path", envPath)
	}

	ctx := context.Background()

	// 1. Load configuration
	cfg, err := config.LoadGateway()
	if err != nil {
		slog.Error("Failed to load gateway configuration", "error", err)
		os.Exit(1)
	}
	slog.Info("Starting gateway",
		"version", version.Full(),
		"port", cfg.Port,
		"sentinel_url", cfg.SentinelURL)

	policies, err := config.LoadPolicies(cfg.PoliciesPath)
	if err != nil {
		slog.Error("Failed to load policies", "error", err)
		os.Exit(1)
	}

	// 2. Connect to the credential database and run migrations
	dbClient, err := database.NewClient(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			slog.Error("Error closing database client", "error", err)
		}
	}()
	slog.Info("Connected to PostgreSQL database")

	credStore := credentials.NewCachedStore(
		credentials.NewPostgresStore(dbClient.DB()),
		cfg.CredentialCacheTTL,
	)

	// 3. Connect the usage counter store and start the accounting worker
	redisStore, err := usage.NewRedisStore(ctx, cfg.RedisURL)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisStore.Close(); err != nil {
			slog.Error("Error closing Redis client", "error", err)
		}
	}()

	recorder := usage.NewRecorder(redisStore, usage.NewPostgresStore(dbClient.DB()))
	recorder.Start()
	slog.Info("Usage recorder started")

	// 4. Wire metrics, the Sentinel client and the HTTP server
	metrics := telemetry.NewMetrics()
	sentinelClient := sentinel.NewClient(cfg.SentinelURL, cfg.SentinelTimeout)
	handler := gateway.NewHandler(sentinelClient, cfg.SentinelTimeout, recorder, metrics, policies)
	server := gateway.NewServer(handler, credStore, cfg.APIKeySalt, metrics)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: server.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// 5. Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("Received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		slog.Error("HTTP server failed", "error", err)
	}

	// 6. Graceful shutdown: stop accepting requests, then drain accounting
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	recorder.Stop()
	slog.Info("Usage recorder drained")

	slog.Info("Shutdown complete")
}
