// Package main implements the crewd CLI.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	// configPath is the optional YAML config file.
	configPath string

	// Build metadata, injected at link time.
	version = "dev"
	commit  = "none"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "crewd",
	Short: "Multi-domain development pipeline orchestrator",
	Long: `crewd runs a crew of development workers across independent business
domains. It resolves the manifest's dependency graph into layers, runs
each domain through develop, safety check and QA with bounded repair
loops, detects cross-domain conflicts, and merges approved change sets
to an integration branch when the consensus gate passes.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to crewd config file (YAML)")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(versionCmd)
}
