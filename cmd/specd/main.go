// Specd is a daemon that extracts structured facts (server
// configuration, SQL entities, API routes, dependency lists) from
// documents retrieved by semantic search over an indexed codebase.
//
// Usage:
//
//	# Start server with defaults
//	specd
//
//	# Start with a config file
//	specd -config /etc/specd/config.yaml
//
//	# Configure via environment
//	SPECD_SERVER_PORT=9090 SPECD_INFERENCE_API_KEY=sk-... specd
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

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/specd/internal/config"
	"github.com/fyrsmithlabs/specd/internal/embeddings"
	"github.com/fyrsmithlabs/specd/internal/extraction"
	"github.com/fyrsmithlabs/specd/internal/logging"
	"github.com/fyrsmithlabs/specd/internal/pipeline"
	"github.com/fyrsmithlabs/specd/internal/retrieval"
	"github.com/fyrsmithlabs/specd/internal/schema"
	"github.com/fyrsmithlabs/specd/internal/server"
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

	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  specd           Start the specd daemon\n")
			fmt.Fprintf(os.Stderr, "  specd version   Show version information\n")
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
	log.Println("Server shutdown complete")
}

func printVersion() {
	fmt.Printf("specd by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run wires the full pipeline and blocks until the context is
// cancelled. Returns http.ErrServerClosed on graceful shutdown.
func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() {
		_ = logger.Sync() // Best-effort sync on shutdown
	}()

	logger.Info("Starting specd",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.String("retrieval_provider", cfg.Retrieval.Provider),
		zap.String("inference_provider", cfg.Inference.Provider))

	embedder, err := embeddings.NewService(cfg.Embeddings)
	if err != nil {
		return fmt.Errorf("initializing embeddings: %w", err)
	}

	source, err := retrieval.New(cfg.Retrieval, embedder, logger)
	if err != nil {
		return fmt.Errorf("initializing retrieval: %w", err)
	}

	client, err := extraction.NewInferenceClient(extraction.ClientConfig{
		Provider:  cfg.Inference.Provider,
		Model:     cfg.Inference.Model,
		APIKey:    cfg.Inference.APIKey,
		BaseURL:   cfg.Inference.BaseURL,
		MaxTokens: cfg.Inference.MaxTokens,
		Timeout:   int(cfg.Inference.Timeout.Seconds()),
	})
	if err != nil {
		return fmt.Errorf("initializing inference client: %w", err)
	}

	registry := schema.NewRegistry()
	chain, err := extraction.NewChain(client, registry, extraction.RetryPolicy{
		MaxAttempts: cfg.Inference.MaxRetries,
		Delay:       cfg.Inference.RetryDelay,
	}, logger)
	if err != nil {
		return fmt.Errorf("initializing strategy chain: %w", err)
	}

	scheduler := pipeline.NewScheduler(chain, pipeline.SchedulerConfig{
		Workers:     cfg.Pipeline.Workers,
		TaskTimeout: cfg.Pipeline.TaskTimeout,
	}, logger)

	service := pipeline.NewService(registry, scheduler, source, logger)
	service.SetMetrics(pipeline.NewMetrics())

	srv := server.New(cfg.Server, service, logger)
	logger.Info("specd ready",
		zap.String("addr", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)))
	return srv.Start(ctx)
}
