package application

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/bnema/ritual-rpa/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type orchestratorFixture struct {
	launcher *fakeLauncher
	executor *fakeExecutor
	progress *ProgressStore
	repo     *inMemoryProgressRepo
	blocks   *inMemoryBlockRepo
	registry *AccountRegistry
	shutdown *ShutdownCoordinator
	roster   []domain.Account
}

func newOrchestratorFixture(t *testing.T, names ...string) *orchestratorFixture {
	t.Helper()

	f := &orchestratorFixture{
		launcher: &fakeLauncher{startErr: map[string]error{}, stopErr: map[string]error{}},
		executor: &fakeExecutor{scripts: map[string]sessionScript{}},
		repo:     &inMemoryProgressRepo{},
		blocks:   newInMemoryBlockRepo(),
		roster:   testRoster(t, names...),
	}
	f.progress = newLoadedStore(t, f.repo, testNow)
	f.registry = newTestRegistry(t, f.blocks, f.roster)
	f.shutdown = NewShutdownCoordinator(f.launcher, zerolog.Nop())
	return f
}

func (f *orchestratorFixture) orchestrator(cfg ExecutionConfig) *SessionOrchestrator {
	if cfg.ChannelURL == "" {
		cfg.ChannelURL = "https://discord.com/channels/1/2"
	}
	o := NewSessionOrchestrator(OrchestratorDeps{
		Launcher: f.launcher,
		Executor: f.executor,
		Progress: f.progress,
		Registry: f.registry,
		Shutdown: f.shutdown,
		Logger:   zerolog.Nop(),
	}, cfg)
	o.newRunID = func() string { return "run-1" }
	return o
}

func (f *orchestratorFixture) account(name string) domain.Account {
	for _, account := range f.roster {
		if string(account.Name) == name {
			return account
		}
	}
	panic("unknown account " + name)
}

func (f *orchestratorFixture) plan(pairs ...[3]string) []domain.PlanItem {
	items := make([]domain.PlanItem, 0, len(pairs))
	for _, pair := range pairs {
		items = append(items, domain.PlanItem{
			Giver:    f.account(pair[0]),
			Receiver: f.account(pair[1]),
			Action:   domain.ActionKind(pair[2]),
		})
	}
	domain.Renumber(items)
	return items
}

func TestOrchestratorSequentialBatchesPerGiver(t *testing.T) {
	t.Parallel()

	f := newOrchestratorFixture(t, "alpha", "beta", "gamma")
	items := f.plan(
		[3]string{"alpha", "beta", "bless"},
		[3]string{"beta", "gamma", "curse"},
		[3]string{"alpha", "gamma", "curse"},
	)

	result, err := f.orchestrator(ExecutionConfig{}).Run(context.Background(), items)
	require.NoError(t, err)

	assert.Equal(t, RunResult{RunID: "run-1", Planned: 3, Sessions: 2, Completed: 3}, result)
	assert.Equal(t, []string{"pa", "pb"}, f.launcher.startedProfiles())
	assert.Equal(t, []string{"pa", "pb"}, f.launcher.stoppedProfiles())
	assert.Equal(t, []string{"bless->beta", "curse->gamma", "curse->gamma"}, f.executor.performed())
	assert.Empty(t, f.shutdown.Open())

	assert.Equal(t, 2, f.progress.GetProgress("alpha").TotalGivenToday())
	assert.Equal(t, 2, f.progress.GetProgress("gamma").CurseReceived)
}

func TestOrchestratorSplitsLongSessions(t *testing.T) {
	t.Parallel()

	f := newOrchestratorFixture(t, "alpha", "beta", "gamma")
	items := f.plan(
		[3]string{"alpha", "beta", "bless"},
		[3]string{"alpha", "gamma", "bless"},
		[3]string{"alpha", "beta", "curse"},
	)

	result, err := f.orchestrator(ExecutionConfig{MaxActionsPerSession: 2}).Run(context.Background(), items)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Sessions)
	assert.Equal(t, 3, result.Completed)
	assert.Equal(t, []string{"pa", "pa"}, f.launcher.startedProfiles())
}

func TestOrchestratorLaunchFailure(t *testing.T) {
	t.Parallel()

	f := newOrchestratorFixture(t, "alpha", "beta", "gamma")
	f.launcher.startErr["pa"] = errors.New("profile is busy")
	var registeredDuringStart []domain.ProfileRef
	f.launcher.onStart = func(domain.ProfileRef) { registeredDuringStart = f.shutdown.Open() }
	items := f.plan(
		[3]string{"alpha", "beta", "bless"},
		[3]string{"alpha", "gamma", "curse"},
	)

	result, err := f.orchestrator(ExecutionConfig{}).Run(context.Background(), items)
	require.NoError(t, err)

	assert.Zero(t, result.Completed)
	assert.Equal(t, 2, result.Failed)
	assert.Empty(t, registeredDuringStart)
	assert.Empty(t, f.launcher.stoppedProfiles())
	assert.Empty(t, f.shutdown.Open())
	assert.Zero(t, result.Blocked)

	stats := f.progress.Snapshot().DailyStats["2026-02-14"]
	require.Len(t, stats.Actions, 2)
	assert.False(t, stats.Actions[0].Success)
	assert.Zero(t, f.progress.GetProgress("alpha").TotalGivenToday())
}

func TestOrchestratorUnauthorizedBlocksOnce(t *testing.T) {
	t.Parallel()

	f := newOrchestratorFixture(t, "alpha", "beta", "gamma")
	f.executor.scripts["pa"] = sessionScript{unauthenticated: true}
	items := f.plan(
		[3]string{"alpha", "beta", "bless"},
		[3]string{"alpha", "gamma", "bless"},
		[3]string{"beta", "gamma", "curse"},
	)

	result, err := f.orchestrator(ExecutionConfig{MaxActionsPerSession: 1}).Run(context.Background(), items)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Blocked)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 1, result.Skipped, "second alpha session is skipped once blocked")
	assert.Equal(t, 1, result.Completed)
	assert.Equal(t, 1, f.blocks.count(domain.BlockUnauthorized))
	assert.Equal(t, []string{"pa", "pb"}, f.launcher.startedProfiles())
	assert.Equal(t, []string{"pa", "pb"}, f.launcher.stoppedProfiles())

	created, err := f.registry.Block(context.Background(), domain.BlockUnauthorized, f.account("alpha"), "again")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, 1, f.blocks.count(domain.BlockUnauthorized))
}

func TestOrchestratorNavigationClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		script       sessionScript
		wantCategory domain.BlockCategory
	}{
		{name: "access text", script: sessionScript{navigateErr: errors.New("timeout"), accessReason: "You do not have permission"}, wantCategory: domain.BlockChannel},
		{name: "missing input", script: sessionScript{noInput: true}, wantCategory: domain.BlockChannel},
		{name: "login redirect", script: sessionScript{navigateErr: fmt.Errorf("%w: redirected to https://discord.com/login", domain.ErrUnauthorized)}, wantCategory: domain.BlockUnauthorized},
		{name: "transient", script: sessionScript{navigateErr: errors.New("net::ERR_CONNECTION_RESET")}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newOrchestratorFixture(t, "alpha", "beta", "gamma")
			f.executor.scripts["pa"] = tt.script
			items := f.plan(
				[3]string{"alpha", "beta", "bless"},
				[3]string{"alpha", "gamma", "curse"},
				[3]string{"beta", "alpha", "bless"},
			)

			result, err := f.orchestrator(ExecutionConfig{}).Run(context.Background(), items)
			require.NoError(t, err)

			assert.Equal(t, 2, result.Failed)
			assert.Equal(t, 1, result.Completed, "other givers are unaffected")
			assert.Equal(t, []string{"pa", "pb"}, f.launcher.stoppedProfiles())
			if tt.wantCategory == "" {
				assert.Zero(t, result.Blocked)
				assert.False(t, f.registry.IsBlocked(f.account("alpha")))
				return
			}
			assert.Equal(t, 1, result.Blocked)
			assert.Equal(t, 1, f.blocks.count(tt.wantCategory))
		})
	}
}

func TestOrchestratorSessionStartFailuresAreRecorded(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		setup func(f *orchestratorFixture)
	}{
		{name: "connect error", setup: func(f *orchestratorFixture) {
			f.executor.connectErr = map[string]error{"pa": errors.New("websocket refused")}
		}},
		{name: "login check error", setup: func(f *orchestratorFixture) {
			f.executor.scripts["pa"] = sessionScript{authErr: errors.New("target closed")}
		}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newOrchestratorFixture(t, "alpha", "beta", "gamma")
			tt.setup(f)
			items := f.plan(
				[3]string{"alpha", "beta", "bless"},
				[3]string{"alpha", "gamma", "curse"},
			)

			result, err := f.orchestrator(ExecutionConfig{}).Run(context.Background(), items)
			require.NoError(t, err)

			assert.Equal(t, 2, result.Failed)
			assert.Zero(t, result.Blocked)
			assert.False(t, f.registry.IsBlocked(f.account("alpha")))
			assert.Equal(t, []string{"pa"}, f.launcher.stoppedProfiles())
			assert.Empty(t, f.shutdown.Open())

			actions := f.progress.Snapshot().DailyStats["2026-02-14"].Actions
			require.Len(t, actions, 2)
			assert.False(t, actions[0].Success)
			assert.False(t, actions[1].Success)
		})
	}
}

func TestOrchestratorCancelDuringLoginCheckDoesNotBlock(t *testing.T) {
	t.Parallel()

	f := newOrchestratorFixture(t, "alpha", "beta")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.executor.onConnect = cancel
	items := f.plan(
		[3]string{"alpha", "beta", "bless"},
		[3]string{"alpha", "beta", "curse"},
	)

	result, err := f.orchestrator(ExecutionConfig{}).Run(ctx, items)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Skipped)
	assert.Zero(t, result.Failed)
	assert.Zero(t, result.Blocked)
	assert.False(t, f.registry.IsBlocked(f.account("alpha")))
	assert.Zero(t, f.blocks.count(domain.BlockUnauthorized))
	assert.Equal(t, []string{"pa"}, f.launcher.stoppedProfiles())
	assert.Empty(t, f.shutdown.Open())
}

func TestOrchestratorBlockingDisabled(t *testing.T) {
	t.Parallel()

	f := newOrchestratorFixture(t, "alpha", "beta", "gamma")
	f.executor.scripts["pa"] = sessionScript{unauthenticated: true}
	f.executor.scripts["pb"] = sessionScript{noInput: true}
	items := f.plan(
		[3]string{"alpha", "beta", "bless"},
		[3]string{"beta", "gamma", "curse"},
	)

	result, err := f.orchestrator(ExecutionConfig{DisableBlocking: true}).Run(context.Background(), items)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Failed)
	assert.Zero(t, result.Blocked)
	assert.Zero(t, f.blocks.count(domain.BlockUnauthorized))
	assert.Zero(t, f.blocks.count(domain.BlockChannel))
	assert.Len(t, f.registry.Eligible(), 3)
}

func TestOrchestratorTransientActionFailureContinues(t *testing.T) {
	t.Parallel()

	f := newOrchestratorFixture(t, "alpha", "beta", "gamma")
	f.executor.scripts["pa"] = sessionScript{failActions: map[domain.AccountName]bool{"beta": true}}
	items := f.plan(
		[3]string{"alpha", "beta", "bless"},
		[3]string{"alpha", "gamma", "bless"},
	)

	result, err := f.orchestrator(ExecutionConfig{}).Run(context.Background(), items)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 1, result.Completed)
	assert.Zero(t, result.Blocked)
	assert.Equal(t, 1, f.progress.GetProgress("alpha").BlessGivenToday)
	assert.Len(t, f.progress.Snapshot().DailyStats["2026-02-14"].Actions, 2)
}

func TestOrchestratorStopsAfterShutdownRequest(t *testing.T) {
	t.Parallel()

	f := newOrchestratorFixture(t, "alpha", "beta", "gamma")
	f.executor.onAction = f.shutdown.RequestShutdown
	items := f.plan(
		[3]string{"alpha", "beta", "bless"},
		[3]string{"alpha", "gamma", "bless"},
		[3]string{"beta", "gamma", "curse"},
	)

	result, err := f.orchestrator(ExecutionConfig{}).Run(context.Background(), items)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Completed)
	assert.Equal(t, 2, result.Skipped)
	assert.Equal(t, []string{"pa"}, f.launcher.stoppedProfiles())
	assert.Empty(t, f.shutdown.Open())
}

func TestOrchestratorCancelledContextStillStopsProfile(t *testing.T) {
	t.Parallel()

	f := newOrchestratorFixture(t, "alpha", "beta")
	ctx, cancel := context.WithCancel(context.Background())
	f.executor.onAction = cancel
	items := f.plan(
		[3]string{"alpha", "beta", "bless"},
		[3]string{"alpha", "beta", "curse"},
	)

	result, err := f.orchestrator(ExecutionConfig{}).Run(ctx, items)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Completed)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 1, f.progress.GetProgress("alpha").BlessGivenToday, "finished action is recorded after cancel")
	assert.Equal(t, []string{"pa"}, f.launcher.stoppedProfiles())
	assert.Empty(t, f.shutdown.Open())
}

func TestOrchestratorParallel(t *testing.T) {
	t.Parallel()

	names := []string{"a", "b", "c", "d", "e", "f"}
	f := newOrchestratorFixture(t, names...)
	var inFlight, peak atomic.Int32
	f.launcher.onStart = func(domain.ProfileRef) {
		current := inFlight.Add(1)
		for {
			seen := peak.Load()
			if current <= seen || peak.CompareAndSwap(seen, current) {
				break
			}
		}
	}
	f.executor.onAction = func() { inFlight.Add(-1) }

	var pairs [][3]string
	for i, name := range names {
		pairs = append(pairs, [3]string{name, names[(i+1)%len(names)], "bless"})
	}

	result, err := f.orchestrator(ExecutionConfig{Parallel: true, MaxConcurrent: 3}).Run(context.Background(), f.plan(pairs...))
	require.NoError(t, err)

	assert.Equal(t, 6, result.Completed)
	assert.Equal(t, 6, result.Sessions)
	assert.LessOrEqual(t, peak.Load(), int32(3))
	assert.ElementsMatch(t, []string{"pa", "pb", "pc", "pd", "pe", "pf"}, f.launcher.stoppedProfiles())
	assert.Empty(t, f.shutdown.Open())
}

func TestOrchestratorParallelRunsGiverSessionsInOrder(t *testing.T) {
	t.Parallel()

	f := newOrchestratorFixture(t, "alpha", "beta", "gamma")
	var reopened atomic.Int32
	f.launcher.onStart = func(profile domain.ProfileRef) {
		for _, open := range f.shutdown.Open() {
			if open.Key() == profile.Key() {
				reopened.Add(1)
			}
		}
	}
	items := f.plan(
		[3]string{"alpha", "beta", "bless"},
		[3]string{"alpha", "gamma", "bless"},
		[3]string{"alpha", "beta", "curse"},
		[3]string{"alpha", "gamma", "curse"},
		[3]string{"beta", "alpha", "curse"},
	)

	cfg := ExecutionConfig{Parallel: true, MaxConcurrent: 3, MaxActionsPerSession: 1}
	result, err := f.orchestrator(cfg).Run(context.Background(), items)
	require.NoError(t, err)

	assert.Zero(t, reopened.Load(), "a profile is never started while its previous session is open")
	assert.Equal(t, 5, result.Sessions)
	assert.Equal(t, 5, result.Completed)
	assert.ElementsMatch(t, []string{"pa", "pa", "pa", "pa", "pb"}, f.launcher.startedProfiles())
	assert.Empty(t, f.shutdown.Open())

	var alphaActions []string
	for _, action := range f.executor.performed() {
		if action != "curse->alpha" {
			alphaActions = append(alphaActions, action)
		}
	}
	assert.Equal(t, []string{"bless->beta", "bless->gamma", "curse->beta", "curse->gamma"}, alphaActions)
}

func TestGiverLanes(t *testing.T) {
	t.Parallel()

	alpha := domain.Account{Name: "alpha"}
	beta := domain.Account{Name: "beta"}
	batches := []domain.GiverBatch{{Giver: alpha}, {Giver: alpha}, {Giver: beta}, {Giver: alpha}}

	lanes := giverLanes(batches)
	require.Len(t, lanes, 3)
	assert.Len(t, lanes[0], 2)
	assert.Len(t, lanes[1], 1)
	assert.Equal(t, domain.AccountName("beta"), lanes[1][0].Giver.Name)
	assert.Len(t, lanes[2], 1)
	assert.Empty(t, giverLanes(nil))
}

func TestOrchestratorParallelRecoversWorkerPanic(t *testing.T) {
	t.Parallel()

	f := newOrchestratorFixture(t, "alpha", "beta", "gamma")
	f.executor.scripts["pa"] = sessionScript{panicOnAction: true}
	items := f.plan(
		[3]string{"alpha", "beta", "bless"},
		[3]string{"alpha", "gamma", "bless"},
		[3]string{"beta", "gamma", "curse"},
	)

	result, err := f.orchestrator(ExecutionConfig{Parallel: true, MaxConcurrent: 2}).Run(context.Background(), items)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Failed)
	assert.Equal(t, 1, result.Completed)
	assert.ElementsMatch(t, []string{"pa", "pb"}, f.launcher.stoppedProfiles())
	assert.Empty(t, f.shutdown.Open())
}

func TestExecutionConfigConcurrency(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 1, ExecutionConfig{MaxConcurrent: 8}.Concurrency())
	assert.Equal(t, 1, ExecutionConfig{Parallel: true}.Concurrency())
	assert.Equal(t, 4, ExecutionConfig{Parallel: true, MaxConcurrent: 4}.Concurrency())
	assert.Equal(t, MaxConcurrentSessions, ExecutionConfig{Parallel: true, MaxConcurrent: 50}.Concurrency())
}
