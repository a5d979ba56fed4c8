// Package main provides the entry point for the docrouter CLI and worker.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonathan/docrouter/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "docrouter",
	Short: "Document intake pipeline runner",
	Long:  "docrouter runs configurable extraction, scoring and decision pipelines over multi-page documents and consolidates the per-batch model answers into canonical results.",
}

func main() {
	// Load .env file if it exists
	config.LoadEnvFile()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
