package provider

import (
	"context"

	"github.com/cognicore/openextract/pkg/openextract/pipeline"
)

// Stages is the three-step contract a provider adapter exposes. Req is the
// provider-specific request and Raw the undecoded response.
type Stages[Req, Raw any] interface {
	// PreparePayload merges the generic payload with provider defaults.
	PreparePayload(payload pipeline.Payload) Req
	// Dispatch performs the remote call.
	Dispatch(ctx context.Context, req Req) (Raw, error)
	// ParseResponse normalizes the response into a structured result.
	ParseResponse(raw Raw) (any, error)
}

// Invoke runs prepare, dispatch and parse in order. The first failing stage's
// error is returned as is and later stages are skipped.
func Invoke[Req, Raw any](ctx context.Context, s Stages[Req, Raw], payload pipeline.Payload) (any, error) {
	req := s.PreparePayload(payload)
	raw, err := s.Dispatch(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.ParseResponse(raw)
}
