package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/joho/godotenv"

	"github.com/cognicore/openextract/pkg/openextract/config"
	"github.com/cognicore/openextract/pkg/openextract/pipeline"
	"github.com/cognicore/openextract/pkg/openextract/prompts"
	"github.com/cognicore/openextract/pkg/openextract/provider"
	"github.com/cognicore/openextract/pkg/openextract/provider/chat"
	"github.com/cognicore/openextract/pkg/openextract/provider/echo"
	"github.com/cognicore/openextract/pkg/openextract/sink"
	"github.com/cognicore/openextract/pkg/openextract/sink/sqlite"
	"github.com/cognicore/openextract/pkg/openextract/source"
)

const echoProvider = "echo"

// runner bundles everything a run needs once setup has succeeded.
type runner struct {
	runID   string
	engine  *pipeline.Engine
	source  source.Source
	sinks   sink.Multi
	outputs []string
}

func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func newRegistry() *provider.Registry {
	r := provider.NewRegistry()
	chat.Register(r)
	r.Register(echoProvider, echo.Factory)
	return r
}

func buildProvider(cfg *config.Config, dryRun bool, logger *slog.Logger) (pipeline.Provider, error) {
	name := cfg.Pipeline.Provider.Name
	if dryRun {
		name = echoProvider
	}
	settings := cfg.Providers[name]

	s := provider.Settings{
		Name:             name,
		BaseURL:          settings.APIBase,
		Model:            settings.Model,
		MaxTokens:        settings.MaxTokens,
		StructuredOutput: settings.StructuredOutput,
		MinIntervalSecs:  cfg.Pipeline.Provider.MinInterval().Seconds(),
		TimeoutSecs:      cfg.Pipeline.Provider.CallTimeout().Seconds(),
		Logger:           logger,
	}
	if name != echoProvider {
		key, err := config.ResolveAPIKey(settings)
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", name, err)
		}
		s.APIKey = key
	}
	return newRegistry().Build(s)
}

func buildPrompts(p config.Prompts) ([]pipeline.PromptUnit, error) {
	loader := prompts.NewLoader(p.Dir)
	if p.DefaultTemperature != nil {
		loader.DefaultTemperature = *p.DefaultTemperature
	}
	loader.TemperatureOverrides = p.TemperatureOverrides
	loader.MaxTokensOverrides = p.MaxTokensOverrides
	return loader.Units()
}

func buildSource(cfg *config.Config, logger *slog.Logger) (source.Source, error) {
	src := cfg.Pipeline.Source
	return source.Open(source.Spec{
		Type:       src.Type,
		Path:       src.Path,
		Sheet:      src.Sheet.Name,
		SheetIndex: src.Sheet.Index,
		Options: source.Options{
			Columns: source.Columns{
				ID:      src.IDColumn,
				Title:   src.TitleColumn,
				Content: src.ContentColumn,
			},
			MaxRows:   cfg.Pipeline.Runtime.MaxRows,
			StripHTML: src.StripHTML,
			Logger:    logger,
		},
	})
}

// buildSinks opens every configured output. The returned cleanup releases
// resources that outlive the sinks themselves.
func buildSinks(ctx context.Context, cfg *config.Config, runID string) (sink.Multi, []string, func(), error) {
	out := cfg.Pipeline.Outputs
	var (
		sinks   sink.Multi
		paths   []string
		opened  []func() error
		cleanup = func() {}
	)
	fail := func(err error) (sink.Multi, []string, func(), error) {
		for _, c := range opened {
			c()
		}
		return nil, nil, nil, err
	}

	if out.JSONLDump != "" {
		jl, err := sink.NewJSONL(out.JSONLDump)
		if err != nil {
			return fail(err)
		}
		opened = append(opened, jl.Close)
		sinks = append(sinks, jl)
		paths = append(paths, jl.Path())
	}

	if out.SQLitePath != "" {
		store, err := sqlite.Open(ctx, out.SQLitePath)
		if err != nil {
			return fail(fmt.Errorf("open results db: %w", err))
		}
		opened = append(opened, store.Close)
		if err := store.BeginRun(ctx, runID, cfg.Pipeline.Name, time.Now()); err != nil {
			return fail(fmt.Errorf("record run: %w", err))
		}
		sinks = append(sinks, store.Writer(runID))
		paths = append(paths, out.SQLitePath+" (run "+runID+")")
		cleanup = func() { store.Close() }
	}

	jsonSink := sink.NewJSONFile(out.JSONPath)
	sinks = append(sinks, jsonSink)
	paths = append([]string{jsonSink.Path()}, paths...)

	return sinks, paths, cleanup, nil
}

// build performs every setup step. Any error here aborts the run before a
// document is read.
func build(ctx context.Context, cfg *config.Config, dryRun bool, logger *slog.Logger) (*runner, func(), error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	runID := pipeline.NewRunID()
	runLog := logger.With("run_id", runID)

	src, err := buildSource(cfg, runLog)
	if err != nil {
		return nil, nil, err
	}
	prov, err := buildProvider(cfg, dryRun, runLog)
	if err != nil {
		return nil, nil, err
	}
	steps, err := buildPrompts(cfg.Pipeline.Prompts)
	if err != nil {
		return nil, nil, fmt.Errorf("load prompts: %w", err)
	}
	sinks, paths, cleanup, err := buildSinks(ctx, cfg, runID)
	if err != nil {
		return nil, nil, err
	}

	engine := pipeline.New(steps, prov, pipeline.WithLogger(logger), pipeline.WithRunID(runID))
	return &runner{
		runID:   runID,
		engine:  engine,
		source:  src,
		sinks:   sinks,
		outputs: paths,
	}, cleanup, nil
}
