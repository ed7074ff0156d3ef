package jsonfile

import (
	"context"

	"github.com/bnema/ritual-rpa/internal/domain"
	"github.com/bnema/ritual-rpa/internal/ports"
)

type ProgressRepository struct {
	doc document
}

var _ ports.ProgressRepository = (*ProgressRepository)(nil)

func NewProgressRepository(dir string) (*ProgressRepository, error) {
	doc, err := newDocument(dir, ProgressFileName)
	if err != nil {
		return nil, err
	}
	return &ProgressRepository{doc: doc}, nil
}

func (r *ProgressRepository) Path() string { return r.doc.path }

func (r *ProgressRepository) Load(ctx context.Context) (domain.ProgressState, error) {
	if err := ctx.Err(); err != nil {
		return domain.ProgressState{}, err
	}

	r.doc.mu.RLock()
	defer r.doc.mu.RUnlock()

	var file stateSchema
	found, err := r.doc.read(&file)
	if err != nil {
		return domain.ProgressState{}, err
	}
	if !found {
		return domain.ProgressState{}, domain.ErrStateNotFound
	}

	return fromStateSchema(file), nil
}

func (r *ProgressRepository) Save(ctx context.Context, state domain.ProgressState) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.doc.mu.Lock()
	defer r.doc.mu.Unlock()

	return r.doc.write(toStateSchema(state))
}

func toStateSchema(state domain.ProgressState) stateSchema {
	settings := state.Settings
	file := stateSchema{
		Settings: settingsSchema{
			DailyLimitPerAccount: &settings.DailyLimitPerAccount,
			TargetBless:          &settings.TargetBless,
			TargetCurse:          &settings.TargetCurse,
			CreatedAt:            formatTime(settings.CreatedAt),
		},
		Accounts:    make(map[string]progressSchema, len(state.Accounts)),
		DailyStats:  make(map[string]dailyStatsSchema, len(state.DailyStats)),
		LastUpdated: formatTime(state.LastUpdated),
	}

	for name, progress := range state.Accounts {
		file.Accounts[string(name)] = progressSchema{
			BlessReceived:   progress.BlessReceived,
			CurseReceived:   progress.CurseReceived,
			BlessGivenToday: progress.BlessGivenToday,
			CurseGivenToday: progress.CurseGivenToday,
			LastActionDate:  progress.LastActionDate,
			LastActionTime:  progress.LastActionTime,
		}
	}

	for date, stats := range state.DailyStats {
		encoded := dailyStatsSchema{
			Date:              stats.Date,
			AccountsProcessed: make([]string, 0, len(stats.AccountsProcessed)),
			TotalBless:        stats.TotalBless,
			TotalCurse:        stats.TotalCurse,
			Actions:           make([]actionEntrySchema, 0, len(stats.Actions)),
		}
		if encoded.Date == "" {
			encoded.Date = date
		}
		for _, name := range stats.AccountsProcessed {
			encoded.AccountsProcessed = append(encoded.AccountsProcessed, string(name))
		}
		for _, entry := range stats.Actions {
			encoded.Actions = append(encoded.Actions, actionEntrySchema{
				Time:     entry.Time,
				Giver:    string(entry.Giver),
				Receiver: string(entry.Receiver),
				Action:   string(entry.Action),
				Success:  entry.Success,
			})
		}
		file.DailyStats[date] = encoded
	}

	return file
}

// fromStateSchema fills settings that are missing from the file with defaults.
func fromStateSchema(file stateSchema) domain.ProgressState {
	createdAt := parseTime(file.Settings.CreatedAt)
	state := domain.NewProgressState(createdAt)
	if file.Settings.DailyLimitPerAccount != nil {
		state.Settings.DailyLimitPerAccount = *file.Settings.DailyLimitPerAccount
	}
	if file.Settings.TargetBless != nil {
		state.Settings.TargetBless = *file.Settings.TargetBless
	}
	if file.Settings.TargetCurse != nil {
		state.Settings.TargetCurse = *file.Settings.TargetCurse
	}
	state.LastUpdated = parseTime(file.LastUpdated)

	for name, progress := range file.Accounts {
		state.Accounts[domain.AccountName(name)] = domain.AccountProgress{
			BlessReceived:   progress.BlessReceived,
			CurseReceived:   progress.CurseReceived,
			BlessGivenToday: progress.BlessGivenToday,
			CurseGivenToday: progress.CurseGivenToday,
			LastActionDate:  progress.LastActionDate,
			LastActionTime:  progress.LastActionTime,
		}
	}

	for date, encoded := range file.DailyStats {
		stats := domain.DailyStats{
			Date:       encoded.Date,
			TotalBless: encoded.TotalBless,
			TotalCurse: encoded.TotalCurse,
		}
		if stats.Date == "" {
			stats.Date = date
		}
		for _, name := range encoded.AccountsProcessed {
			stats.AccountsProcessed = append(stats.AccountsProcessed, domain.AccountName(name))
		}
		for _, entry := range encoded.Actions {
			stats.Actions = append(stats.Actions, domain.ActionLogEntry{
				Time:     entry.Time,
				Giver:    domain.AccountName(entry.Giver),
				Receiver: domain.AccountName(entry.Receiver),
				Action:   domain.ActionKind(entry.Action),
				Success:  entry.Success,
			})
		}
		state.DailyStats[date] = stats
	}

	return state
}
