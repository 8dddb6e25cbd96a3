package pipeline

import (
	"context"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"time"
)

// Message is a single chat message in a rendered request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Payload is the provider-independent request a prompt renders.
// MaxTokens of zero leaves the provider default in place.
type Payload struct {
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// PromptUnit renders one extraction step's request.
// RenderInput must not mutate doc or ctx.
type PromptUnit interface {
	Name() string
	Section() string
	RenderInput(doc Document, ctx Context) (Payload, error)
}

// Provider turns a rendered payload into a parsed structured result.
type Provider interface {
	Invoke(ctx context.Context, prompt PromptUnit, doc Document, payload Payload) (any, error)
}

// Engine feeds documents through an ordered list of prompts.
// It is not safe for concurrent use: the provider's rate-limit state is shared
// across every step of a run.
type Engine struct {
	prompts  []PromptUnit
	provider Provider
	logger   *slog.Logger
	runID    string
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger configures structured logging.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithRunID tags log records with a run identifier.
func WithRunID(id string) Option {
	return func(e *Engine) { e.runID = id }
}

// New creates an Engine that runs prompts in the given order.
func New(prompts []PromptUnit, provider Provider, opts ...Option) *Engine {
	e := &Engine{
		prompts:  append([]PromptUnit(nil), prompts...),
		provider: provider,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.runID != "" {
		e.logger = e.logger.With("run_id", e.runID)
	}
	return e
}

// Prompts returns the configured steps in execution order.
func (e *Engine) Prompts() []PromptUnit {
	return append([]PromptUnit(nil), e.prompts...)
}

// Process runs every prompt against a single document. Step failures are
// recorded in the result and never stop the remaining steps.
func (e *Engine) Process(ctx context.Context, doc Document) Result {
	tags := make(map[string]any, len(e.prompts))
	running := make(Context, len(e.prompts))
	var errs []StepError

	log := e.logger.With("doc_id", doc.ID)
	for _, p := range e.prompts {
		start := time.Now()
		out, err := e.step(ctx, p, doc, running)
		if err != nil {
			errs = append(errs, StepError{Prompt: p.Name(), Error: err.Error()})
			log.Warn("step failed", "prompt", p.Name(), "error", err)
			continue
		}
		tags[p.Section()] = out
		running[p.Section()] = out
		log.Debug("step done", "prompt", p.Name(), "section", p.Section(), "elapsed", time.Since(start))
	}

	return Result{
		DocID:          doc.ID,
		Title:          doc.Title,
		StructuredTags: tags,
		Errors:         errs,
	}
}

func (e *Engine) step(ctx context.Context, p PromptUnit, doc Document, running Context) (any, error) {
	payload, err := p.RenderInput(doc, running)
	if err != nil {
		return nil, err
	}
	return e.provider.Invoke(ctx, p, doc, payload)
}

// Each processes documents in order and hands every result to emit as soon
// as it is ready. Errors from the document sequence or from emit abort the
// run, as does a document without an ID. Step errors never do.
func (e *Engine) Each(ctx context.Context, docs iter.Seq2[Document, error], emit func(Result) error) error {
	n := 0
	for doc, err := range docs {
		if err != nil {
			return err
		}
		if err := doc.Validate(); err != nil {
			return fmt.Errorf("document %d: %w", n+1, err)
		}
		res := e.Process(ctx, doc)
		n++
		e.logger.Info("document processed",
			"doc_id", doc.ID,
			"sections", len(res.StructuredTags),
			"errors", len(res.Errors),
		)
		if err := emit(res); err != nil {
			return err
		}
	}
	e.logger.Info("run complete", "documents", n)
	return nil
}

// Run processes all documents and returns one result per document, in input
// order. On a source error the results gathered so far are returned with it.
func (e *Engine) Run(ctx context.Context, docs iter.Seq2[Document, error]) ([]Result, error) {
	var results []Result
	err := e.Each(ctx, docs, func(r Result) error {
		results = append(results, r)
		return nil
	})
	return results, err
}

// Documents adapts in-memory documents to the sequence Run expects.
func Documents(docs ...Document) iter.Seq2[Document, error] {
	return func(yield func(Document, error) bool) {
		for _, d := range docs {
			if !yield(d, nil) {
				return
			}
		}
	}
}
