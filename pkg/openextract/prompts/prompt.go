package prompts

import (
	"fmt"

	"github.com/cognicore/openextract/pkg/openextract/internalerr"
	"github.com/cognicore/openextract/pkg/openextract/pipeline"
)

// DefaultTemperature is used when a prompt has no override.
const DefaultTemperature = 0.2

// TemplatePrompt is a pipeline step backed by a text template.
type TemplatePrompt struct {
	name        string
	section     string
	tmpl        *Template
	temperature float64
	maxTokens   int
}

// PromptOption configures a TemplatePrompt.
type PromptOption func(*TemplatePrompt)

// WithTemperature overrides the sampling temperature.
func WithTemperature(t float64) PromptOption {
	return func(p *TemplatePrompt) { p.temperature = t }
}

// WithMaxTokens caps the output size for this prompt.
func WithMaxTokens(n int) PromptOption {
	return func(p *TemplatePrompt) { p.maxTokens = n }
}

// NewTemplatePrompt compiles src and returns a prompt storing its result
// under section.
func NewTemplatePrompt(name, section, src string, opts ...PromptOption) (*TemplatePrompt, error) {
	if name == "" || section == "" {
		return nil, fmt.Errorf("%w: prompt name and section required", internalerr.ErrInvalidConfig)
	}
	if IsReserved(section) {
		return nil, fmt.Errorf("%w: section %q is reserved for document fields", internalerr.ErrInvalidConfig, section)
	}
	if err := checkName(section); err != nil {
		return nil, fmt.Errorf("%w: section %q cannot be referenced from a template: %v", internalerr.ErrInvalidConfig, section, err)
	}
	tmpl, err := Compile(src)
	if err != nil {
		return nil, fmt.Errorf("prompt %s: %w", name, err)
	}
	p := &TemplatePrompt{
		name:        name,
		section:     section,
		tmpl:        tmpl,
		temperature: DefaultTemperature,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Name implements pipeline.PromptUnit.
func (p *TemplatePrompt) Name() string { return p.name }

// Section implements pipeline.PromptUnit.
func (p *TemplatePrompt) Section() string { return p.section }

// Temperature is the sampling temperature sent with every request.
func (p *TemplatePrompt) Temperature() float64 { return p.temperature }

// Template returns the compiled template.
func (p *TemplatePrompt) Template() *Template { return p.tmpl }

// RenderInput implements pipeline.PromptUnit.
func (p *TemplatePrompt) RenderInput(doc pipeline.Document, ctx pipeline.Context) (pipeline.Payload, error) {
	text, err := p.tmpl.Render(doc, ctx)
	if err != nil {
		return pipeline.Payload{}, err
	}
	return pipeline.Payload{
		Messages:    []pipeline.Message{{Role: "user", Content: text}},
		Temperature: p.temperature,
		MaxTokens:   p.maxTokens,
	}, nil
}
