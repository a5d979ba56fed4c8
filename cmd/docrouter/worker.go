package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonathan/docrouter/internal/config"
	"github.com/jonathan/docrouter/internal/db"
	"github.com/jonathan/docrouter/internal/gateway"
	"github.com/jonathan/docrouter/internal/logging"
	"github.com/jonathan/docrouter/internal/pipeline"
	"github.com/jonathan/docrouter/internal/prompts"
	"github.com/jonathan/docrouter/internal/queue"
	"github.com/jonathan/docrouter/internal/runner"
)

var workerCommand = &cobra.Command{
	Use:   "worker",
	Short: "Run the intake worker loop against the queue",
	Long: `Polls the run request queue, executes each requested pipeline over the
document's stored pages, and persists the audit trail and outcome. Runs until
interrupted.`,
	RunE: runWorkerCmd,
}

var (
	workerConfigPath string
	workerDBURL      string
	workerAPIKey     string
)

func init() {
	workerCommand.Flags().StringVar(&workerConfigPath, "config", "", "Path to config.json file")
	workerCommand.Flags().StringVar(&workerDBURL, "db-url", "", "PostgreSQL connection URL (optional, defaults to DATABASE_URL env var)")
	workerCommand.Flags().StringVar(&workerAPIKey, "api-key", "", "Gemini API Key (optional, defaults to GEMINI_API_KEY env var)")

	rootCmd.AddCommand(workerCommand)
}

func runWorkerCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(workerConfigPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("db-url") {
		cfg.DatabaseURL = workerDBURL
	}
	if cmd.Flags().Changed("api-key") {
		cfg.APIKey = workerAPIKey
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("no database URL: set --db-url or DATABASE_URL")
	}
	if cfg.APIKey == "" {
		return fmt.Errorf("no API key: set --api-key or GEMINI_API_KEY")
	}

	logging.Init(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat)
	logger := logging.New("worker")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer store.Close()

	client, err := gateway.NewGeminiClient(ctx, cfg.APIKey, cfg.Model, prompts.NewStore(prompts.DefaultFile))
	if err != nil {
		return fmt.Errorf("failed to create gateway client: %w", err)
	}
	defer client.Close()

	retrier := gateway.NewRetrier(client, time.Duration(cfg.TimeoutSec)*time.Second, cfg.Retries)
	orch := pipeline.New(retrier, orchestratorOptions(cfg))

	transport := queue.NewPostgres(store.Pool(), time.Duration(cfg.PollIntervalSec)*time.Second)
	defer transport.Close()

	logger.Info("worker started", "poll_interval_sec", cfg.PollIntervalSec, "max_parallel", cfg.MaxParallel)

	if err := runner.New(transport, store, orch).Run(ctx); err != nil {
		return err
	}
	logger.Info("worker stopped")
	return nil
}
