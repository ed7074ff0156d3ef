package application

import (
	"context"
	"errors"
	"testing"

	"github.com/bnema/ritual-rpa/internal/domain"
	"github.com/bnema/ritual-rpa/internal/ports"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockLauncher struct {
	mock.Mock
}

var _ ports.ProfileLauncher = (*mockLauncher)(nil)

func (m *mockLauncher) Start(ctx context.Context, profile domain.ProfileRef) (ports.ConnectionInfo, error) {
	args := m.Called(ctx, profile)
	return args.Get(0).(ports.ConnectionInfo), args.Error(1)
}

func (m *mockLauncher) Stop(ctx context.Context, profile domain.ProfileRef) (bool, error) {
	args := m.Called(ctx, profile)
	return args.Bool(0), args.Error(1)
}

func (m *mockLauncher) CheckConnection(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockLauncher) Close() error {
	return m.Called().Error(0)
}

func mustProfile(t *testing.T, raw string) domain.ProfileRef {
	t.Helper()

	ref, err := domain.ParseProfileRef(raw)
	require.NoError(t, err)
	return ref
}

func TestShutdownCoordinatorCleanupRunsOnce(t *testing.T) {
	t.Parallel()

	launcher := &mockLauncher{}
	first := mustProfile(t, "k1abc")
	second := mustProfile(t, "17")
	launcher.On("Stop", mock.Anything, first).Return(true, nil).Once()
	launcher.On("Stop", mock.Anything, second).Return(false, nil).Once()
	launcher.On("Close").Return(nil).Once()

	coordinator := NewShutdownCoordinator(launcher, zerolog.Nop())
	coordinator.Register(first)
	coordinator.Register(second)

	coordinator.Cleanup(context.Background())
	coordinator.Cleanup(context.Background())

	launcher.AssertExpectations(t)
	launcher.AssertNumberOfCalls(t, "Stop", 2)
	launcher.AssertNumberOfCalls(t, "Close", 1)
	assert.Empty(t, coordinator.Open())
	assert.True(t, coordinator.ShutdownRequested())
}

func TestShutdownCoordinatorCleanupContinuesAfterStopError(t *testing.T) {
	t.Parallel()

	launcher := &mockLauncher{}
	failing := mustProfile(t, "3")
	healthy := mustProfile(t, "4")
	launcher.On("Stop", mock.Anything, failing).Return(false, errors.New("connection refused")).Once()
	launcher.On("Stop", mock.Anything, healthy).Return(true, nil).Once()
	launcher.On("Close").Return(errors.New("already closed")).Once()

	coordinator := NewShutdownCoordinator(launcher, zerolog.Nop())
	coordinator.Register(failing)
	coordinator.Register(healthy)

	coordinator.Cleanup(context.Background())

	launcher.AssertExpectations(t)
	assert.Empty(t, coordinator.Open(), "profiles are removed whatever the stop result")
}

func TestShutdownCoordinatorRegistry(t *testing.T) {
	t.Parallel()

	coordinator := NewShutdownCoordinator(&mockLauncher{}, zerolog.Nop())
	profile := mustProfile(t, "k1abc")

	assert.False(t, coordinator.ShutdownRequested())
	coordinator.Register(profile)
	coordinator.Register(profile)
	assert.Equal(t, []domain.ProfileRef{profile}, coordinator.Open())

	coordinator.Unregister(profile)
	assert.Empty(t, coordinator.Open())

	coordinator.RequestShutdown()
	coordinator.RequestShutdown()
	assert.True(t, coordinator.ShutdownRequested())
}
