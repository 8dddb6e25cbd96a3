package config

import (
	"fmt"
	"os"

	"github.com/cognicore/openextract/pkg/openextract/internalerr"
)

// ResolveAPIKey returns the provider secret. A named environment variable
// takes precedence over a literal key; an unset or empty variable is an error
// even when a literal key is also present.
func ResolveAPIKey(p ProviderSettings) (string, error) {
	return resolveAPIKey(p, os.LookupEnv)
}

func resolveAPIKey(p ProviderSettings, lookup func(string) (string, bool)) (string, error) {
	if p.APIKeyEnv != "" {
		v, ok := lookup(p.APIKeyEnv)
		if !ok || v == "" {
			return "", fmt.Errorf("%w: environment variable %s is not set", internalerr.ErrMissingCredential, p.APIKeyEnv)
		}
		return v, nil
	}
	if p.APIKey != "" {
		return p.APIKey, nil
	}
	return "", fmt.Errorf("%w: no api_key or api_key_env in provider settings", internalerr.ErrMissingCredential)
}
