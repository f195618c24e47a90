package config

import "context"

// SecretProvider resolves _SSM_PARAM pointer values. SSMProvider serves
// deployed environments and EnvVarProvider serves local runs and tests.
type SecretProvider interface {
	// GetParametersBatch returns a map of key to plaintext value for every
	// key it could resolve.
	GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error)
}
