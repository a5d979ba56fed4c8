package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonathan/docrouter/internal/batching"
	"github.com/jonathan/docrouter/internal/config"
	"github.com/jonathan/docrouter/internal/consolidate"
	"github.com/jonathan/docrouter/internal/gateway"
	"github.com/jonathan/docrouter/internal/logging"
	"github.com/jonathan/docrouter/internal/pipeline"
	"github.com/jonathan/docrouter/internal/prompts"
)

var runCommand = &cobra.Command{
	Use:   "run",
	Short: "Run a pipeline once over a document and print the outcome",
	Long: `Runs a pipeline definition over the pages of one document. The document is
a JSON file containing an array of {"page": N, "text": "..."} objects. The
consolidated outcome is printed as JSON.

Configuration can be loaded from a JSON file using --config. Command-line
arguments override config file values.`,
	RunE: runPipelineCmd,
}

var (
	runConfigPath   string
	runPipelinePath string
	runPagesPath    string
	runAPIKey       string
	runModel        string
	runPretty       bool
)

func init() {
	runCommand.Flags().StringVar(&runConfigPath, "config", "", "Path to config.json file (values can be overridden by other flags)")
	runCommand.Flags().StringVarP(&runPipelinePath, "pipeline", "p", "", "Path to pipeline YAML definition (required)")
	runCommand.Flags().StringVarP(&runPagesPath, "pages", "d", "", "Path to document pages JSON file (required)")
	runCommand.Flags().StringVar(&runAPIKey, "api-key", "", "Gemini API Key (optional, defaults to GEMINI_API_KEY env var)")
	runCommand.Flags().StringVar(&runModel, "model", "", "Gemini model name")
	runCommand.Flags().BoolVar(&runPretty, "pretty", false, "Indent the printed outcome")

	_ = runCommand.MarkFlagRequired("pipeline")
	_ = runCommand.MarkFlagRequired("pages")

	rootCmd.AddCommand(runCommand)
}

func runPipelineCmd(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()

	cfg, err := config.Load(runConfigPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("api-key") {
		cfg.APIKey = runAPIKey
	}
	if cmd.Flags().Changed("model") {
		cfg.Model = runModel
	}
	if cfg.APIKey == "" {
		return fmt.Errorf("no API key: set --api-key or GEMINI_API_KEY")
	}

	logging.Init(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat)

	p, err := pipeline.LoadPipeline(runPipelinePath)
	if err != nil {
		return fmt.Errorf("failed to load pipeline: %w", err)
	}

	pages, err := loadPages(runPagesPath)
	if err != nil {
		return err
	}

	client, err := gateway.NewGeminiClient(ctx, cfg.APIKey, cfg.Model, prompts.NewStore(prompts.DefaultFile))
	if err != nil {
		return fmt.Errorf("failed to create gateway client: %w", err)
	}
	defer client.Close()

	retrier := gateway.NewRetrier(client, time.Duration(cfg.TimeoutSec)*time.Second, cfg.Retries)
	orch := pipeline.New(retrier, orchestratorOptions(cfg))

	outcome, err := orch.Run(ctx, p.Steps, pages)
	if err != nil {
		return fmt.Errorf("pipeline run failed: %w", err)
	}

	return printJSON(outcome, runPretty)
}

func orchestratorOptions(cfg *config.Config) pipeline.Options {
	weights := consolidate.DefaultConfig()
	weights.MinConfidence = cfg.MinConfidence
	weights.HeaderY = cfg.HeaderY
	return pipeline.Options{
		MaxPages:    cfg.MaxPages,
		MaxChars:    cfg.MaxChars,
		MaxParallel: cfg.MaxParallel,
		Weights:     weights,
	}
}

type pageFile struct {
	Page int    `json:"page"`
	Text string `json:"text"`
}

func loadPages(path string) ([]batching.Page, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pages file %s: %w", path, err)
	}
	var raw []pageFile
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse pages JSON: %w", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("pages file %s contains no pages", path)
	}
	pages := make([]batching.Page, 0, len(raw))
	for _, p := range raw {
		pages = append(pages, batching.Page{Number: p.Page, Text: p.Text})
	}
	return pages, nil
}

func printJSON(v any, pretty bool) error {
	enc := json.NewEncoder(os.Stdout)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}
