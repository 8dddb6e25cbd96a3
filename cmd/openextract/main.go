// openextract runs prompt pipelines over tabular documents.
//
// Usage:
//
//	openextract run --config pipelines/policy.yaml [--settings settings.yaml] [--dry-run]
//	openextract view [output/api_results/results.json] [--detail]
//	openextract view --db results.db [--run <id>]
//	openextract prompts --dir prompts/policy
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "openextract",
	Short: "Extract structured tags from tabular documents with LLM prompt pipelines",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(viewCmd)
	rootCmd.AddCommand(promptsCmd)
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
