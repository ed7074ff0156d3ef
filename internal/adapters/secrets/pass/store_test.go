package pass

import (
	"context"
	"errors"
	"testing"

	"github.com/bnema/ritual-rpa/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scripted(t *testing.T, wantArgs []string, wantInput string, stdout, stderr string, err error) *Store {
	t.Helper()

	store := NewStore(DefaultPrefix)
	store.run = func(_ context.Context, input string, args ...string) (string, string, error) {
		assert.Equal(t, wantArgs, args)
		assert.Equal(t, wantInput, input)
		return stdout, stderr, err
	}
	return store
}

func TestStorePutUsesPassInsert(t *testing.T) {
	t.Parallel()

	store := scripted(t, []string{"insert", "-m", "-f", "ritual/adspower/api_key"}, "top-secret\n", "", "", nil)
	require.NoError(t, store.Put(context.Background(), "adspower/api_key", "top-secret"))
}

func TestStoreGetReturnsFirstLine(t *testing.T) {
	t.Parallel()

	store := scripted(t, []string{"show", "ritual/adspower/api_key"}, "", "top-secret\r\nurl: localhost\n", "", nil)
	value, err := store.Get(context.Background(), "/adspower/api_key/")
	require.NoError(t, err)
	assert.Equal(t, "top-secret", value)
}

func TestStoreGetMissingEntry(t *testing.T) {
	t.Parallel()

	store := scripted(t, []string{"show", "ritual/adspower/api_key"}, "",
		"", "Error: ritual/adspower/api_key is not in the password store.", errors.New("exit status 1"))

	_, err := store.Get(context.Background(), "adspower/api_key")
	require.ErrorIs(t, err, domain.ErrSecretNotFound)
}

func TestStoreGetReturnsClearError(t *testing.T) {
	t.Parallel()

	store := scripted(t, []string{"show", "ritual/adspower/api_key"}, "", "", "gpg: decryption failed", errors.New("exit status 2"))

	_, err := store.Get(context.Background(), "adspower/api_key")
	require.Error(t, err)
	assert.ErrorContains(t, err, "pass show")
	assert.ErrorContains(t, err, "ritual/adspower/api_key")
	assert.ErrorContains(t, err, "gpg: decryption failed")
	assert.NotErrorIs(t, err, domain.ErrSecretNotFound)
}

func TestStoreDeleteIgnoresMissingEntry(t *testing.T) {
	t.Parallel()

	store := scripted(t, []string{"rm", "-f", "ritual/adspower/api_key"}, "",
		"", "Error: ritual/adspower/api_key is not in the password store.", errors.New("exit status 1"))
	require.NoError(t, store.Delete(context.Background(), "adspower/api_key"))
}

func TestStoreWithoutPrefix(t *testing.T) {
	t.Parallel()

	store := NewStore("")
	store.run = func(_ context.Context, _ string, args ...string) (string, string, error) {
		assert.Equal(t, []string{"show", "adspower/api_key"}, args)
		return "value\n", "", nil
	}

	value, err := store.Get(context.Background(), "adspower/api_key")
	require.NoError(t, err)
	assert.Equal(t, "value", value)
}

func TestStoreRejectsEmptyKey(t *testing.T) {
	t.Parallel()

	_, err := NewStore(DefaultPrefix).Get(context.Background(), " / ")
	require.Error(t, err)
	assert.ErrorContains(t, err, "secret key is empty")
}
