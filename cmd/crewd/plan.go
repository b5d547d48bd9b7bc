package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/crewd/internal/plan"
)

var planCmd = &cobra.Command{
	Use:   "plan <manifest>",
	Short: "Resolve and print the execution plan without running",
	Long: `Resolve the manifest's dependency graph and print the execution
layers. Domains in the same layer run concurrently; layers run in order.

Examples:
  crewd plan crew.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runPlan,
}

func runPlan(cmd *cobra.Command, args []string) error {
	manifest, err := plan.LoadManifest(args[0])
	if err != nil {
		return err
	}

	ep, err := plan.Resolve(manifest.Names(), manifest.DependencyMap())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%d domains in %d layers\n\n", len(ep.SortedOrder), len(ep.Layers))
	for i, layer := range ep.Layers {
		fmt.Fprintf(out, "layer %d: %s\n", i, strings.Join(layer, ", "))
	}
	return nil
}
