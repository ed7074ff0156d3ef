package chain

import (
	"context"
	"errors"
	"fmt"

	filestore "github.com/bnema/ritual-rpa/internal/adapters/secrets/file"
	passstore "github.com/bnema/ritual-rpa/internal/adapters/secrets/pass"
	"github.com/bnema/ritual-rpa/internal/domain"
	"github.com/bnema/ritual-rpa/internal/ports"
)

var errNoBackends = errors.New("secret store chain has no backends")

// Store consults its backends in order. Reads return the first hit, writes go
// to the first backend that accepts them, and deletes reach every backend.
type Store struct {
	backends []ports.SecretStore
}

var _ ports.SecretStore = (*Store)(nil)

func NewStore(backends ...ports.SecretStore) (*Store, error) {
	kept := make([]ports.SecretStore, 0, len(backends))
	for _, backend := range backends {
		if backend != nil {
			kept = append(kept, backend)
		}
	}
	if len(kept) == 0 {
		return nil, errNoBackends
	}
	return &Store{backends: kept}, nil
}

// NewPassFirstWithFileFallback prefers pass(1) and falls back to files under fileRoot.
func NewPassFirstWithFileFallback(fileRoot string) (*Store, error) {
	return NewStore(passstore.NewStore(passstore.DefaultPrefix), filestore.NewStore(fileRoot))
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	var errs []error
	for i, backend := range s.backends {
		value, err := backend.Get(ctx, key)
		if err == nil {
			return value, nil
		}
		if isContextError(err) {
			return "", err
		}
		errs = append(errs, fmt.Errorf("backend %d: %w", i+1, err))
	}

	if allNotFound(errs) {
		return "", fmt.Errorf("secret %q: %w", key, domain.ErrSecretNotFound)
	}
	return "", fmt.Errorf("get secret %q: %w", key, errors.Join(errs...))
}

func (s *Store) Put(ctx context.Context, key string, value string) error {
	var errs []error
	for i, backend := range s.backends {
		err := backend.Put(ctx, key, value)
		if err == nil {
			return nil
		}
		if isContextError(err) {
			return err
		}
		errs = append(errs, fmt.Errorf("backend %d: %w", i+1, err))
	}
	return fmt.Errorf("put secret %q: %w", key, errors.Join(errs...))
}

// Delete succeeds when at least one backend removed the key, so a stale copy
// is not left behind in a fallback.
func (s *Store) Delete(ctx context.Context, key string) error {
	var errs []error
	for i, backend := range s.backends {
		err := backend.Delete(ctx, key)
		if err == nil {
			continue
		}
		if isContextError(err) {
			return err
		}
		errs = append(errs, fmt.Errorf("backend %d: %w", i+1, err))
	}
	if len(errs) == len(s.backends) {
		return fmt.Errorf("delete secret %q: %w", key, errors.Join(errs...))
	}
	return nil
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// allNotFound treats an unavailable pass binary like a missing entry.
func allNotFound(errs []error) bool {
	for _, err := range errs {
		if !errors.Is(err, domain.ErrSecretNotFound) && !errors.Is(err, passstore.ErrUnavailable) {
			return false
		}
	}
	return true
}
