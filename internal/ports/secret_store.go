package ports

import "context"

// SecretStore keeps credentials outside the config file, keyed by a slash
// separated path such as "adspower/api_key".
type SecretStore interface {
	Get(ctx context.Context, key string) (string, error)
	Put(ctx context.Context, key string, value string) error
	Delete(ctx context.Context, key string) error
}
