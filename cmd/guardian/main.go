// Guardian output-validation server — runs each completion through the
// content filter, PII scan, compact decoding, the concurrent judge checks,
// and disclaimer injection.
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
	"github.com/clestiq/clestiq/pkg/telemetry"
	"github.com/clestiq/clestiq/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// newJudgeClient builds the model client the judge checks run on.
func newJudgeClient(ctx context.Context, cfg *config.Guardian) (provider.ModelClient, error) {
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
			APIKey: cfg.GeminiAPIKey,
			Model:  provider.NormalizeModel(cfg.JudgeModel, ""),
		})
	}
	if err != nil {
		return nil, err
	}
	return provider.NewBreakerClient(client), nil
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
	cfg, err := config.LoadGuardian()
	if err != nil {
		slog.Error("Failed to load guardian configuration", "error", err)
		os.Exit(1)
	}
	slog.Info("Starting guardian",
		"version", version.Full(),
		"port", cfg.Port,
		"judge_model", cfg.JudgeModel,
		"default_moderation", cfg.DefaultModeration)

	policies, err := config.LoadPolicies(cfg.PoliciesPath)
	if err != nil {
		slog.Error("Failed to load policies", "error", err)
		os.Exit(1)
	}

	// 2. Start the audit sink
	auditSink := telemetry.NewAsyncAuditSink("guardian")
	auditSink.Start()
	defer auditSink.Stop()

	// 3. Wire the judge and the validation pipeline
	judgeClient, err := newJudgeClient(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize judge client", "error", err)
		os.Exit(1)
	}

	judge := guardian.NewJudge(judgeClient, cfg.JudgeTimeout)
	service := guardian.NewService(judge, cfg.DefaultModeration, policies.CitationBlocklist, auditSink)
	server := guardian.NewServer(service)

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
