package internalerr

import "errors"

// Sentinel errors for common cases
var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidConfig = errors.New("invalid configuration")

	// Step-level failures. These are recorded against a single prompt step
	// and never abort a document.
	ErrMissingContextKey = errors.New("missing context key")
	ErrProviderCall      = errors.New("provider call failed")
	ErrResponseParse     = errors.New("response parse failed")

	// Setup-level failures. These abort a run before any document is read.
	ErrMalformedTemplate = errors.New("malformed template")
	ErrMissingCredential = errors.New("missing credential")
)
