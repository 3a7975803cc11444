// Sentinel input-security server — runs the staged input pipeline over each
// prompt, fans out to the model provider and a security audit in parallel,
// and forwards safe completions to Guardian for output validation.
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
	"github.com/clestiq/clestiq/pkg/guardian"
	"github.com/clestiq/clestiq/pkg/provider"
	"github.com/clestiq/clestiq/pkg/sentinel"
	"github.com/clestiq/clestiq/pkg/telemetry"
	"github.com/clestiq/clestiq/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// newModelFactory builds the provider factory for the configured backend.
// Every client is wrapped in a circuit breaker so a failing provider sheds
// load instead of queueing timeouts.
func newModelFactory(ctx context.Context, cfg *config.Sentinel) provider.Factory {
	return func(model string, maxOutputTokens int) (provider.ModelClient, error) {
		var (
			client provider.ModelClient
			err    error
		)
		switch cfg.Provider {
		case "bedrock":
			client, err = provider.NewBedrockClient(ctx, provider.BedrockConfig{
				Region:  cfg.BedrockRegion,
				ModelID: cfg.BedrockModelID,
			})
		default:
			client, err = provider.NewGeminiClient(provider.GeminiConfig{
				APIKey:          cfg.GeminiAPIKey,
				Model:           model,
				MaxOutputTokens: maxOutputTokens,
			})
		}
		if err != nil {
			return nil, err
		}
		return provider.NewBreakerClient(client), nil
	}
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
	cfg, err := config.LoadSentinel()
	if err != nil {
		slog.Error("Failed to load sentinel configuration", "error", err)
		os.Exit(1)
	}
	slog.Info("Starting sentinel",
		"version", version.Full(),
		"port", cfg.Port,
		"provider", cfg.Provider,
		"default_model", cfg.DefaultModel,
		"guardian_url", cfg.GuardianURL)

	// 2. Start the audit sink
	auditSink := telemetry.NewAsyncAuditSink("sentinel")
	auditSink.Start()
	defer auditSink.Stop()

	// 3. Wire the model pool, the Guardian client and the pipeline
	pool := provider.NewPool(newModelFactory(ctx, cfg), cfg.PoolLimit)
	guardianClient := guardian.NewClient(cfg.GuardianURL, cfg.GuardianTimeout)
	service := sentinel.NewService(pool, guardianClient, auditSink, cfg.DefaultModel)
	server := sentinel.NewServer(service)

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

	// 4. Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("Received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		slog.Error("HTTP server failed", "error", err)
	}

	// 5. Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}
