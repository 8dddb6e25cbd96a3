package prompts

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/cognicore/openextract/pkg/openextract/internalerr"
	"github.com/cognicore/openextract/pkg/openextract/pipeline"
)

func TestTemplatePromptRenderInput(t *testing.T) {
	p, err := NewTemplatePrompt("summary", "summary", "Summarize {title}", WithTemperature(0.7), WithMaxTokens(300))
	if err != nil {
		t.Fatal(err)
	}
	got, err := p.RenderInput(sampleDoc, pipeline.Context{})
	if err != nil {
		t.Fatal(err)
	}
	want := pipeline.Payload{
		Messages:    []pipeline.Message{{Role: "user", Content: "Summarize Green energy plan"}},
		Temperature: 0.7,
		MaxTokens:   300,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("payload (-want +got):\n%s", diff)
	}
}

func TestTemplatePromptDefaultTemperature(t *testing.T) {
	p, err := NewTemplatePrompt("a", "a", "x")
	if err != nil {
		t.Fatal(err)
	}
	got, _ := p.RenderInput(sampleDoc, nil)
	if got.Temperature != DefaultTemperature {
		t.Errorf("expected default temperature %v, got %v", DefaultTemperature, got.Temperature)
	}
	if got.MaxTokens != 0 {
		t.Errorf("expected provider default max tokens, got %d", got.MaxTokens)
	}
}

func TestTemplatePromptDoesNotMutateContext(t *testing.T) {
	p, _ := NewTemplatePrompt("b", "b", "{a.content}")
	ctx := pipeline.Context{"a": map[string]any{"content": "x"}}
	if _, err := p.RenderInput(sampleDoc, ctx); err != nil {
		t.Fatal(err)
	}
	if len(ctx) != 1 {
		t.Errorf("context mutated: %v", ctx)
	}
}

func TestNewTemplatePromptRejectsReservedSection(t *testing.T) {
	for _, section := range []string{"title", "content", "doc_id", "meta"} {
		if _, err := NewTemplatePrompt(section, section, "x"); !errors.Is(err, internalerr.ErrInvalidConfig) {
			t.Errorf("section %q: expected ErrInvalidConfig, got %v", section, err)
		}
	}
}

func TestNewTemplatePromptMalformed(t *testing.T) {
	_, err := NewTemplatePrompt("bad", "bad", "oops {")
	if !errors.Is(err, internalerr.ErrMalformedTemplate) {
		t.Errorf("expected ErrMalformedTemplate, got %v", err)
	}
}
