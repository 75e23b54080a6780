package llm

import (
	"context"
	"os"
	"strings"
)

// CredentialStore resolves a decrypted API key for a provider id.
type CredentialStore interface {
	APIKey(ctx context.Context, provider string) (string, error)
}

// EnvCredentials reads keys from THIRDEYE_<PROVIDER>_API_KEY, then from configured defaults.
// Local providers without a key resolve to an empty string.
type EnvCredentials struct {
	Configured map[string]string
}

// APIKey implements CredentialStore.
func (e EnvCredentials) APIKey(ctx context.Context, provider string) (string, error) {
	name := "THIRDEYE_" + strings.ToUpper(strings.ReplaceAll(provider, "-", "_")) + "_API_KEY"
	if v := os.Getenv(name); v != "" {
		return v, nil
	}
	return e.Configured[strings.ToLower(provider)], nil
}
