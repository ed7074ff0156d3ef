package application

import (
	"context"
	"testing"

	"github.com/bnema/ritual-rpa/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPlanner(t *testing.T, state *domain.ProgressState) (*PairPlanner, *ProgressStore) {
	t.Helper()

	store := newLoadedStore(t, &inMemoryProgressRepo{state: state}, testNow)
	planner := NewPairPlanner(store, zerolog.Nop())
	planner.shuffle = func(int, func(i, j int)) {}
	return planner, store
}

func stateWithTargets(limit, bless, curse int) *domain.ProgressState {
	state := domain.NewProgressState(testNow)
	state.Settings.DailyLimitPerAccount = limit
	state.Settings.TargetBless = bless
	state.Settings.TargetCurse = curse
	return &state
}

func usageByGiver(items []domain.PlanItem) map[domain.AccountName]int {
	usage := map[domain.AccountName]int{}
	for _, item := range items {
		usage[item.Giver.Name]++
	}
	return usage
}

func assertNoSelfTargeting(t *testing.T, items []domain.PlanItem) {
	t.Helper()
	for _, item := range items {
		assert.NotEqual(t, item.Giver.Name, item.Receiver.Name)
	}
}

func TestPlanPairsSmallRoster(t *testing.T) {
	t.Parallel()

	planner, _ := newTestPlanner(t, stateWithTargets(5, 1, 1))
	roster := testRoster(t, "alpha", "beta", "gamma")

	items, err := planner.PlanPairs(context.Background(), roster, 0, nil)
	require.NoError(t, err)

	require.Len(t, items, 6)
	assertNoSelfTargeting(t, items)
	for i, item := range items {
		assert.Equal(t, i+1, item.Index)
		assert.Equal(t, 6, item.Total)
	}
	received := map[domain.AccountName]map[domain.ActionKind]int{}
	for _, item := range items {
		if received[item.Receiver.Name] == nil {
			received[item.Receiver.Name] = map[domain.ActionKind]int{}
		}
		received[item.Receiver.Name][item.Action]++
	}
	for _, account := range roster {
		assert.Equal(t, 1, received[account.Name][domain.ActionBless])
		assert.Equal(t, 1, received[account.Name][domain.ActionCurse])
	}
}

func TestPlanPairsFairness(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		roster []string
	}{
		{name: "three givers", roster: []string{"a", "b", "c"}},
		{name: "four givers", roster: []string{"a", "b", "c", "d"}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			planner, _ := newTestPlanner(t, stateWithTargets(5, 1, 1))
			items, err := planner.PlanPairs(context.Background(), testRoster(t, tt.roster...), 0, nil)
			require.NoError(t, err)
			require.Len(t, items, 2*len(tt.roster))

			usage := usageByGiver(items)
			lowest, highest := len(items), 0
			for _, name := range tt.roster {
				lowest = min(lowest, usage[domain.AccountName(name)])
				highest = max(highest, usage[domain.AccountName(name)])
			}
			assert.LessOrEqual(t, highest-lowest, 1)
		})
	}
}

func TestPlanPairsRespectsMaxActions(t *testing.T) {
	t.Parallel()

	planner, _ := newTestPlanner(t, stateWithTargets(5, 3, 3))
	items, err := planner.PlanPairs(context.Background(), testRoster(t, "a", "b", "c", "d"), 4, nil)
	require.NoError(t, err)

	assert.Len(t, items, 4)
	assertNoSelfTargeting(t, items)
}

func TestPlanPairsSkipsSatisfiedReceivers(t *testing.T) {
	t.Parallel()

	state := stateWithTargets(5, 1, 1)
	state.Accounts["alpha"] = domain.AccountProgress{BlessReceived: 1, CurseReceived: 1}
	planner, _ := newTestPlanner(t, state)

	items, err := planner.PlanPairs(context.Background(), testRoster(t, "alpha", "beta", "gamma"), 0, nil)
	require.NoError(t, err)

	require.Len(t, items, 4)
	for _, item := range items {
		assert.NotEqual(t, domain.AccountName("alpha"), item.Receiver.Name)
	}
}

func TestPlanPairsExcludesBlockedAccounts(t *testing.T) {
	t.Parallel()

	planner, _ := newTestPlanner(t, stateWithTargets(5, 2, 2))
	roster := testRoster(t, "alpha", "beta", "gamma", "delta")
	blocked := func(account domain.Account) bool { return account.Name == "gamma" }

	items, err := planner.PlanPairs(context.Background(), roster, 0, blocked)
	require.NoError(t, err)

	require.NotEmpty(t, items)
	for _, item := range items {
		assert.NotEqual(t, domain.AccountName("gamma"), item.Giver.Name)
		assert.NotEqual(t, domain.AccountName("gamma"), item.Receiver.Name)
	}
}

func TestPlanPairsEmptyCases(t *testing.T) {
	t.Parallel()

	t.Run("single eligible account", func(t *testing.T) {
		t.Parallel()

		planner, _ := newTestPlanner(t, stateWithTargets(5, 1, 1))
		items, err := planner.PlanPairs(context.Background(), testRoster(t, "solo"), 0, nil)
		require.NoError(t, err)
		assert.Empty(t, items)
	})

	t.Run("no giver capacity", func(t *testing.T) {
		t.Parallel()

		state := stateWithTargets(1, 1, 1)
		state.Accounts["a"] = domain.AccountProgress{BlessGivenToday: 1, LastActionDate: "2026-02-14"}
		state.Accounts["b"] = domain.AccountProgress{CurseGivenToday: 1, LastActionDate: "2026-02-14"}
		planner, _ := newTestPlanner(t, state)

		items, err := planner.PlanPairs(context.Background(), testRoster(t, "a", "b"), 0, nil)
		require.NoError(t, err)
		assert.Empty(t, items)
	})

	t.Run("targets satisfied", func(t *testing.T) {
		t.Parallel()

		state := stateWithTargets(5, 1, 1)
		state.Accounts["a"] = domain.AccountProgress{BlessReceived: 1, CurseReceived: 1}
		state.Accounts["b"] = domain.AccountProgress{BlessReceived: 2, CurseReceived: 1}
		planner, _ := newTestPlanner(t, state)

		items, err := planner.PlanPairs(context.Background(), testRoster(t, "a", "b"), 0, nil)
		require.NoError(t, err)
		assert.Empty(t, items)
	})
}

func TestPlanPairsConsumesGiverCapacity(t *testing.T) {
	t.Parallel()

	planner, _ := newTestPlanner(t, stateWithTargets(1, 2, 2))
	items, err := planner.PlanPairs(context.Background(), testRoster(t, "a", "b", "c"), 0, nil)
	require.NoError(t, err)

	require.Len(t, items, 3)
	for name, used := range usageByGiver(items) {
		assert.Equal(t, 1, used, "giver %s", name)
	}
}

func TestPlanChain(t *testing.T) {
	t.Parallel()

	roster := testRoster(t, "alpha", "beta", "gamma")

	items := PlanChain(roster, 0, nil)
	require.Len(t, items, 6)
	assertNoSelfTargeting(t, items)
	assert.Equal(t, domain.AccountName("beta"), items[0].Receiver.Name)
	assert.Equal(t, domain.AccountName("alpha"), items[5].Receiver.Name)
	assert.Equal(t, 6, items[5].Index)

	blocked := func(account domain.Account) bool { return account.Name == "beta" }
	items = PlanChain(roster, 0, blocked)
	require.Len(t, items, 2)
	assert.Equal(t, domain.AccountName("gamma"), items[0].Giver.Name)
	assert.Equal(t, domain.AccountName("alpha"), items[0].Receiver.Name)

	assert.Empty(t, PlanChain(roster[:1], 0, nil))
}

func TestPlanSingleTarget(t *testing.T) {
	t.Parallel()

	roster := testRoster(t, "alpha", "beta", "gamma")

	items, err := PlanSingleTarget(roster, "alpha", []domain.ActionKind{domain.ActionBless}, 0, nil)
	require.NoError(t, err)
	require.Len(t, items, 2)
	for _, item := range items {
		assert.Equal(t, domain.AccountName("alpha"), item.Receiver.Name)
		assert.Equal(t, domain.ActionBless, item.Action)
	}

	_, err = PlanSingleTarget(roster, "nobody", nil, 0, nil)
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestPlanExplicit(t *testing.T) {
	t.Parallel()

	roster := testRoster(t, "alpha", "beta", "gamma")
	pairs := []ExplicitPair{
		{Giver: "alpha", Receiver: "beta", Action: domain.ActionCurse},
		{Giver: "beta", Receiver: "beta"},
		{Giver: "gamma", Receiver: "alpha"},
	}

	items, err := PlanExplicit(roster, pairs, 0, nil)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, domain.ActionCurse, items[0].Action)
	assert.Equal(t, domain.AccountName("gamma"), items[1].Giver.Name)

	items, err = PlanExplicit(roster, pairs, 2, nil)
	require.NoError(t, err)
	assert.Len(t, items, 2)

	_, err = PlanExplicit(roster, []ExplicitPair{{Giver: "ghost", Receiver: "alpha"}}, 0, nil)
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestParseExplicitPair(t *testing.T) {
	t.Parallel()

	pair, err := ParseExplicitPair("alpha:beta:curse")
	require.NoError(t, err)
	assert.Equal(t, ExplicitPair{Giver: "alpha", Receiver: "beta", Action: domain.ActionCurse}, pair)

	pair, err = ParseExplicitPair("alpha:beta")
	require.NoError(t, err)
	assert.Empty(t, pair.Action)

	for _, raw := range []string{"alpha", "alpha:", "a:b:smite", "a:b:c:d"} {
		_, err := ParseExplicitPair(raw)
		assert.Error(t, err, raw)
	}
}
