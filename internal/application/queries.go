package application

import (
	"sort"

	"github.com/bnema/ritual-rpa/internal/domain"
)

type AccountReport struct {
	Name           domain.AccountName
	Account        *domain.Account
	Progress       domain.AccountProgress
	RemainingToday int
	Block          *domain.BlockRecord
}

// Complete reports whether both received targets are met.
func (r AccountReport) Complete(settings domain.Settings) bool {
	return r.Progress.BlessReceived >= settings.TargetBless && r.Progress.CurseReceived >= settings.TargetCurse
}

type ProgressSummary struct {
	TotalAccounts int
	Completed     int
	InProgress    int
	TotalDone     int
	TotalTarget   int
}

func (s ProgressSummary) Percent() float64 {
	if s.TotalTarget == 0 {
		return 0
	}
	return float64(s.TotalDone) / float64(s.TotalTarget) * 100
}

type ProgressReport struct {
	Settings domain.Settings
	Today    domain.DailyStats
	Accounts []AccountReport
	Summary  ProgressSummary
}

// BuildReport joins persisted progress with the roster and block lists. Accounts
// that only exist in the state file are included as well.
func BuildReport(state domain.ProgressState, roster []domain.Account, registry *AccountRegistry, today string) ProgressReport {
	byName := domain.IndexByName(roster)
	names := make([]domain.AccountName, 0, len(state.Accounts))
	for name := range state.Accounts {
		names = append(names, name)
	}
	for _, account := range roster {
		if _, ok := state.Accounts[account.Name]; !ok {
			names = append(names, account.Name)
		}
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })

	report := ProgressReport{Settings: state.Settings, Today: state.DailyStats[today]}
	report.Today.Date = today
	for _, name := range names {
		progress := state.Accounts[name]
		if progress.IsStale(today) {
			progress.ResetDaily()
		}
		entry := AccountReport{
			Name:           name,
			Progress:       progress,
			RemainingToday: max(0, state.Settings.DailyLimitPerAccount-progress.TotalGivenToday()),
		}
		if account, ok := byName[name]; ok {
			entry.Account = &account
			if registry != nil {
				if record, blocked := registry.BlockRecord(account); blocked {
					entry.Block = &record
				}
			}
		}

		report.Accounts = append(report.Accounts, entry)
		report.Summary.TotalAccounts++
		if entry.Complete(state.Settings) {
			report.Summary.Completed++
		}
		report.Summary.TotalDone += progress.BlessReceived + progress.CurseReceived
	}
	report.Summary.InProgress = report.Summary.TotalAccounts - report.Summary.Completed
	report.Summary.TotalTarget = report.Summary.TotalAccounts * (state.Settings.TargetBless + state.Settings.TargetCurse)

	return report
}
