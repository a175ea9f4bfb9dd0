package config

import "context"

// SecretProvider resolves secret parameter paths to plaintext values. SSM
// backs it in deployed environments; EnvVarProvider backs it locally. See
// DefaultProvider.
type SecretProvider interface {
	// GetParametersBatch returns a path -> value map for every key it could
	// resolve.
	GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error)
}
