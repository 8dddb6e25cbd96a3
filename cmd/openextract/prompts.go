package main

import (
	"github.com/spf13/cobra"

	"github.com/cognicore/openextract/internal/report"
	"github.com/cognicore/openextract/pkg/openextract/prompts"
)

var promptsDir string

var promptsCmd = &cobra.Command{
	Use:   "prompts",
	Short: "List the prompt steps in a directory and the placeholders they use",
	RunE: func(cmd *cobra.Command, _ []string) error {
		steps, err := prompts.NewLoader(promptsDir).Load()
		if err != nil {
			return err
		}
		return report.Prompts(cmd.OutOrStdout(), steps, report.ASCII)
	},
}

func init() {
	promptsCmd.Flags().StringVar(&promptsDir, "dir", "", "Prompt directory (required)")
	_ = promptsCmd.MarkFlagRequired("dir")
}
