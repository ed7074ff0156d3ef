package status

import (
	"testing"
	"time"

	"github.com/bnema/ritual-rpa/internal/application"
	"github.com/bnema/ritual-rpa/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var renderNow = time.Date(2026, 2, 14, 11, 0, 0, 0, time.UTC)

func account(t *testing.T, name, profile string) *domain.Account {
	t.Helper()

	ref, err := domain.ParseProfileRef(profile)
	require.NoError(t, err)
	return &domain.Account{Name: domain.AccountName(name), Profile: ref, Target: name + "_user"}
}

func TestRenderProgressReport(t *testing.T) {
	t.Parallel()

	settings := domain.Settings{DailyLimitPerAccount: 5, TargetBless: 10, TargetCurse: 10}
	output, err := Render(application.ProgressReport{
		Settings: settings,
		Today: domain.DailyStats{
			Date:              "2026-02-14",
			AccountsProcessed: []domain.AccountName{"alpha"},
			TotalBless:        2,
			Actions:           make([]domain.ActionLogEntry, 3),
		},
		Accounts: []application.AccountReport{
			{
				Name:    "alpha",
				Account: account(t, "alpha", "12"),
				Progress: domain.AccountProgress{
					BlessReceived:   10,
					CurseReceived:   10,
					BlessGivenToday: 2,
					LastActionDate:  "2026-02-14",
					LastActionTime:  "10:40:00",
				},
				RemainingToday: 3,
			},
			{
				Name:           "beta",
				Account:        account(t, "beta", "k9x2"),
				Progress:       domain.AccountProgress{BlessReceived: 5},
				RemainingToday: 5,
				Block: &domain.BlockRecord{
					Category:  domain.BlockChannel,
					Account:   "beta",
					Reason:    "no access",
					BlockedAt: renderNow.Add(-3 * time.Hour),
				},
			},
		},
		Summary: application.ProgressSummary{TotalAccounts: 2, Completed: 1, InProgress: 1, TotalDone: 25, TotalTarget: 40},
	}, RenderOptions{Now: renderNow})

	require.NoError(t, err)
	assert.Contains(t, output, "Ritual Progress")
	assert.Contains(t, output, "accounts: 2")
	assert.Contains(t, output, "alpha (#12) [done]")
	assert.Contains(t, output, "beta (k9x2) [blocked: channel]")
	assert.Contains(t, output, "reason: no access (3 hours ago)")
	assert.Contains(t, output, "10/10")
	assert.Contains(t, output, "5/10")
	assert.Contains(t, output, "given today: 2/5 (3 left)  last action: 2026-02-14 10:40:00")
	assert.Contains(t, output, "last action: never")
	assert.Contains(t, output, "25/40 (62.5%)")
	assert.Contains(t, output, "completed: 1  in progress: 1")
	assert.Contains(t, output, "today (2026-02-14): 3 actions, 2 bless, 0 curse, 1 accounts active")
}

func TestRenderEmptyReport(t *testing.T) {
	t.Parallel()

	output, err := Render(application.ProgressReport{}, RenderOptions{})
	require.NoError(t, err)
	assert.Contains(t, output, "No accounts tracked yet.")
}

func TestRenderBlocked(t *testing.T) {
	t.Parallel()

	output, err := RenderBlocked([]domain.BlockRecord{
		{Category: domain.BlockUnauthorized, Account: "gamma", ProfileKey: "7", Reason: "login page", BlockedAt: renderNow.Add(-30 * time.Minute)},
		{Category: domain.BlockChannel, Account: "delta", ProfileKey: "k1", Target: "delta_user", BlockedAt: renderNow.Add(-49 * time.Hour)},
	}, RenderOptions{Now: renderNow})

	require.NoError(t, err)
	assert.Contains(t, output, "blocked: 2")
	assert.Contains(t, output, "gamma (7) [unauthorized]")
	assert.Contains(t, output, "since: 30 minutes ago")
	assert.Contains(t, output, "reason: -")
	assert.Contains(t, output, "since: 2 days ago (12 Feb)")
	assert.Contains(t, output, "discord: delta_user")

	empty, err := RenderBlocked(nil, RenderOptions{})
	require.NoError(t, err)
	assert.Contains(t, empty, "No blocked accounts.")
}

func TestRenderRun(t *testing.T) {
	t.Parallel()

	alpha := *account(t, "alpha", "1")
	beta := *account(t, "beta", "2")
	items := []domain.PlanItem{
		{Giver: alpha, Receiver: beta, Action: domain.ActionBless, Index: 1, Total: 2},
		{Giver: beta, Receiver: alpha, Action: domain.ActionCurse, Index: 2, Total: 2},
	}

	output, err := RenderRun(application.RunResult{RunID: "run-1", Planned: 2, Sessions: 2, Completed: 1, Failed: 1}, items, RenderOptions{Now: renderNow})
	require.NoError(t, err)
	assert.Contains(t, output, "run: run-1  planned: 2  sessions: 2")
	assert.Contains(t, output, "1/2  /bless alpha -> beta")
	assert.Contains(t, output, "2/2  /curse beta -> alpha")
	assert.Contains(t, output, "completed: 1")
	assert.Contains(t, output, "failed: 1")
	assert.Contains(t, output, "finished 11:00:00")

	dry, err := RenderRun(application.RunResult{Planned: 2}, items, RenderOptions{})
	require.NoError(t, err)
	assert.Contains(t, dry, "run: -")
	assert.NotContains(t, dry, "completed:")

	idle, err := RenderRun(application.RunResult{}, nil, RenderOptions{})
	require.NoError(t, err)
	assert.Contains(t, idle, "Nothing to do")
}

func TestFormatSince(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		at   time.Time
		now  time.Time
		want string
	}{
		{name: "zero", want: "unknown"},
		{name: "no clock", at: renderNow, want: "2026-02-14 11:00"},
		{name: "seconds", at: renderNow.Add(-10 * time.Second), now: renderNow, want: "just now"},
		{name: "one hour", at: renderNow.Add(-time.Hour), now: renderNow, want: "1 hour ago"},
		{name: "future", at: renderNow.Add(time.Hour), now: renderNow, want: "2026-02-14 12:00"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, formatSince(tt.at, tt.now))
		})
	}
}

func TestRenderProgressBar(t *testing.T) {
	t.Parallel()

	s := newStyles()
	assert.Equal(t, "[=====-----]", renderProgressBar(50, 10, s))
	assert.Equal(t, "[==========]", renderProgressBar(150, 10, s))
	assert.Equal(t, "[----------]", renderProgressBar(-5, 10, s))
	assert.Empty(t, renderProgressBar(50, 0, s))
}
