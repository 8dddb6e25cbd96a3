package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cognicore/openextract/internal/report"
	"github.com/cognicore/openextract/pkg/openextract/config"
	"github.com/cognicore/openextract/pkg/openextract/pipeline"
	"github.com/cognicore/openextract/pkg/openextract/sink"
	"github.com/cognicore/openextract/pkg/openextract/sink/sqlite"
)

var viewFlags struct {
	db       string
	run      string
	detail   bool
	markdown bool
}

var viewCmd = &cobra.Command{
	Use:   "view [results.json]",
	Short: "Display pipeline results",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runView,
}

func init() {
	f := viewCmd.Flags()
	f.StringVar(&viewFlags.db, "db", "", "Read results from a SQLite results database")
	f.StringVar(&viewFlags.run, "run", "", "Run ID to show (default: latest run in --db)")
	f.BoolVar(&viewFlags.detail, "detail", false, "Print every extracted section")
	f.BoolVar(&viewFlags.markdown, "markdown", false, "Render the summary as a Markdown table")
}

func runView(cmd *cobra.Command, args []string) error {
	results, err := loadResults(cmd.Context(), args)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	mode := report.ASCII
	if viewFlags.markdown {
		mode = report.Markdown
	}
	if err := report.Summary(out, results, mode); err != nil {
		return err
	}
	if viewFlags.detail {
		return report.Detail(out, results)
	}
	return nil
}

func loadResults(ctx context.Context, args []string) ([]pipeline.Result, error) {
	if viewFlags.db == "" {
		path := filepath.Join(config.DefaultJSONPath, sink.JSONFileName)
		if len(args) > 0 {
			path = args[0]
		}
		return sink.ReadJSON(path)
	}

	store, err := sqlite.Open(ctx, viewFlags.db)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	runID := viewFlags.run
	if runID == "" {
		latest, err := store.LatestRun(ctx)
		if err != nil {
			return nil, fmt.Errorf("latest run: %w", err)
		}
		runID = latest.ID
	}
	return store.Results(ctx, runID)
}
