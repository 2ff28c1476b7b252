// DeepQuery server — streams evidence-grounded multi-turn reasoning over an
// HTTP/SSE API, backed by knowledge-base retrieval and sandboxed code
// execution.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/medrag/deepquery/pkg/agent"
	"github.com/medrag/deepquery/pkg/api"
	"github.com/medrag/deepquery/pkg/citations"
	"github.com/medrag/deepquery/pkg/config"
	"github.com/medrag/deepquery/pkg/llm"
	"github.com/medrag/deepquery/pkg/pipeline"
	"github.com/medrag/deepquery/pkg/session"
	"github.com/medrag/deepquery/pkg/tools"
)

// sessionGrace is how long finished sessions stay visible on /sessions.
const sessionGrace = time.Hour

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file, continuing with existing environment")
	}

	// 1. Configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	slog.Info("Starting DeepQuery",
		"http_port", cfg.HTTPPort,
		"max_concurrent", cfg.Pipeline.MaxConcurrentRequests,
		"max_rounds", cfg.Agent.MaxRounds,
		"llm_base_url", cfg.LLM.BaseURL)

	// 2. LLM client and tool clients
	llmClient := llm.NewHTTPClient(cfg.LLM, logger)
	retrieval := tools.NewRetrievalClient(cfg.Retrieval, logger)
	classifier := tools.NewClassifier(llmClient, cfg.Retrieval, cfg.LLM, logger)
	sandbox := tools.NewSandboxClient(cfg.Sandbox, logger)
	dispatcher := tools.NewDispatcher(retrieval, classifier, sandbox,
		tools.NewJudge(llmClient, cfg.LLM, logger),
		cfg.Agent.ToolResultMaxBytes, logger)

	// 3. Stores
	citationStore := citations.NewStore(cfg.Citations, logger)
	citationStore.Start()
	defer citationStore.Stop()

	sessions := session.NewManager(sessionGrace, logger)

	// 4. Orchestrator and pipeline
	estimator := agent.NewTokenEstimator(logger)
	orchestrator := agent.NewOrchestrator(llmClient, dispatcher, dispatcher.Judge(),
		citationStore, cfg.Agent, cfg.LLM, estimator, logger)
	pipe := pipeline.New(cfg.Pipeline, cfg.Agent, cfg.LLM.Generation,
		sessions, citationStore, orchestrator, logger)

	// 5. Background session sweep
	sweepStop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				sessions.Sweep(time.Now())
			case <-sweepStop:
				return
			}
		}
	}()
	defer close(sweepStop)

	// 6. HTTP server (non-blocking)
	server := api.NewServer(pipe, sessions, citationStore, logger)
	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.HTTPPort
		slog.Info("HTTP server listening", "addr", addr)
		if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	// 7. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 8. Graceful shutdown: stop accepting requests, let in-flight streams
	// observe cancellation at their next checkpoint.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}
