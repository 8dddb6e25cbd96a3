// Package echo provides an offline provider that returns the rendered prompt
// text as the step result. It backs dry runs and tests.
package echo

import (
	"context"
	"fmt"

	"github.com/cognicore/openextract/pkg/openextract/internalerr"
	"github.com/cognicore/openextract/pkg/openextract/pipeline"
	"github.com/cognicore/openextract/pkg/openextract/provider"
)

// Provider echoes the last user message back as {"content": text}.
type Provider struct {
	// Fail, when set, is consulted before every call; a non-nil error is
	// returned from Dispatch.
	Fail func(doc pipeline.Document, prompt string) error

	calls int
}

// Request is one echo call. It carries the document and prompt so Dispatch
// needs no state from earlier calls.
type Request struct {
	Doc     pipeline.Document
	Prompt  string
	Payload pipeline.Payload
}

// call binds a Provider to the step being invoked.
type call struct {
	*Provider
	doc    pipeline.Document
	prompt string
}

var _ provider.Stages[Request, string] = call{}

// New returns an echo provider.
func New() *Provider { return &Provider{} }

// Calls reports how many requests Dispatch answered.
func (p *Provider) Calls() int { return p.calls }

// PreparePayload attaches the bound document and prompt.
func (c call) PreparePayload(payload pipeline.Payload) Request {
	return Request{Doc: c.doc, Prompt: c.prompt, Payload: payload}
}

// Dispatch returns the text of the last user message.
func (p *Provider) Dispatch(ctx context.Context, req Request) (string, error) {
	if p.Fail != nil {
		if err := p.Fail(req.Doc, req.Prompt); err != nil {
			return "", fmt.Errorf("%w: %v", internalerr.ErrProviderCall, err)
		}
	}
	p.calls++
	msgs := req.Payload.Messages
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == "user" {
			return msgs[i].Content, nil
		}
	}
	return "", nil
}

// ParseResponse wraps the echoed text.
func (p *Provider) ParseResponse(raw string) (any, error) {
	return map[string]any{"content": raw}, nil
}

// Invoke implements pipeline.Provider.
func (p *Provider) Invoke(ctx context.Context, prompt pipeline.PromptUnit, doc pipeline.Document, payload pipeline.Payload) (any, error) {
	return provider.Invoke[Request, string](ctx, call{Provider: p, doc: doc, prompt: prompt.Name()}, payload)
}

// Factory registers the echo provider in a provider.Registry.
func Factory(provider.Settings) (pipeline.Provider, error) {
	return New(), nil
}
