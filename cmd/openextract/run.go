package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cognicore/openextract/pkg/openextract/config"
	"github.com/cognicore/openextract/pkg/openextract/pipeline"
)

var runFlags struct {
	config   string
	settings string
	envFile  string
	dryRun   bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a pipeline over its configured source",
	RunE:  runPipeline,
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runFlags.config, "config", "", "Path to pipeline YAML config (required)")
	f.StringVar(&runFlags.settings, "settings", "", "Path to global settings YAML")
	f.StringVar(&runFlags.envFile, "env", ".env", "Dotenv file to load before resolving credentials")
	f.BoolVar(&runFlags.dryRun, "dry-run", false, "Use the offline echo provider instead of the configured one")
	_ = runCmd.MarkFlagRequired("config")
}

func runPipeline(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if err := loadDotEnv(runFlags.envFile); err != nil {
		return err
	}
	cfg, err := config.Load(runFlags.config, runFlags.settings)
	if err != nil {
		return err
	}
	logger, err := cfg.Logging.NewLogger(cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Pipeline: %s\n", orDefault(cfg.Pipeline.Name, "unnamed"))
	fmt.Fprintf(out, "Description: %s\n", orDefault(cfg.Pipeline.Description, "N/A"))

	r, cleanup, err := build(ctx, cfg, runFlags.dryRun, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	fmt.Fprintf(out, "Run %s: %d prompts\n", r.runID, len(r.engine.Prompts()))

	var sum pipeline.Summary
	runErr := r.engine.Each(ctx, r.source.Documents(ctx), func(res pipeline.Result) error {
		sum.Add(res)
		return r.sinks.Write(ctx, res)
	})
	if runErr != nil {
		r.sinks.Abort(runErr)
	}
	closeErr := r.sinks.Close()
	if runErr != nil {
		return fmt.Errorf("run aborted after %d documents: %w", sum.Documents, runErr)
	}
	if closeErr != nil {
		return fmt.Errorf("write results: %w", closeErr)
	}

	fmt.Fprintf(out, "Processed %d documents (%d clean, %d failed steps)\n", sum.Documents, sum.Clean, sum.FailedSteps)
	fmt.Fprintf(out, "Results: %s\n", strings.Join(r.outputs, ", "))
	return nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
