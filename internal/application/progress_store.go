package application

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bnema/ritual-rpa/internal/domain"
	"github.com/bnema/ritual-rpa/internal/ports"
	"github.com/rs/zerolog"
)

// ProgressStore owns per-account counters, daily stats and settings. Every
// counter mutation goes through RecordAction and is persisted before it returns.
type ProgressStore struct {
	repo   ports.ProgressRepository
	clock  ports.Clock
	logger zerolog.Logger

	mu     sync.Mutex
	state  domain.ProgressState
	loaded bool
	dirty  bool
}

func NewProgressStore(repo ports.ProgressRepository, clock ports.Clock, logger zerolog.Logger) *ProgressStore {
	if clock == nil {
		clock = ports.SystemClock{}
	}

	return &ProgressStore{repo: repo, clock: clock, logger: logger}
}

// Load reads persisted state. A missing document is initialized and written
// immediately; an unreadable one fails with domain.ErrPersistence and is left
// untouched on disk.
func (s *ProgressStore) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.repo.Load(ctx)
	switch {
	case errors.Is(err, domain.ErrStateNotFound):
		state = domain.NewProgressState(s.clock.Now())
		s.state = state
		s.loaded = true
		if err := s.persistLocked(ctx); err != nil {
			return err
		}
		s.logger.Info().Msg("initialized empty progress state")
		return nil
	case err != nil:
		return fmt.Errorf("%w: load progress state: %w", domain.ErrPersistence, err)
	}

	if state.Accounts == nil {
		state.Accounts = map[domain.AccountName]domain.AccountProgress{}
	}
	if state.DailyStats == nil {
		state.DailyStats = map[string]domain.DailyStats{}
	}
	s.state = state
	s.loaded = true
	s.dirty = false

	s.rolloverLocked()
	if s.dirty {
		if err := s.persistLocked(ctx); err != nil {
			return err
		}
	}

	return nil
}

func (s *ProgressStore) today() string {
	return s.clock.Now().Format(domain.DateLayout)
}

// rolloverLocked zeroes today-counters that belong to an earlier date.
func (s *ProgressStore) rolloverLocked() {
	today := s.today()
	for name, progress := range s.state.Accounts {
		if !progress.IsStale(today) {
			continue
		}
		if progress.TotalGivenToday() == 0 {
			continue
		}
		progress.ResetDaily()
		s.state.Accounts[name] = progress
		s.dirty = true
		s.logger.Debug().Str("account", string(name)).Str("last_action_date", progress.LastActionDate).Msg("reset daily counters")
	}
}

func (s *ProgressStore) ensureLoaded() {
	if s.loaded {
		return
	}
	s.state = domain.NewProgressState(s.clock.Now())
	s.loaded = true
}

func (s *ProgressStore) progressLocked(name domain.AccountName) domain.AccountProgress {
	s.ensureLoaded()
	progress, ok := s.state.Accounts[name]
	if !ok {
		s.state.Accounts[name] = progress
		s.dirty = true
	}
	return progress
}

// GetProgress returns the account's counters, registering a zero entry on first
// reference without persisting it.
func (s *ProgressStore) GetProgress(name domain.AccountName) domain.AccountProgress {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.progressLocked(name)
}

// CanGiveToday reports whether the account is under its daily limit and how many
// actions it may still give.
func (s *ProgressStore) CanGiveToday(name domain.AccountName) (bool, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ensureLoaded()
	s.rolloverLocked()
	progress := s.progressLocked(name)
	remaining := max(0, s.state.Settings.DailyLimitPerAccount-progress.TotalGivenToday())
	return remaining > 0, remaining
}

func (s *ProgressStore) NeedsBless(name domain.AccountName) (bool, int) {
	return s.needs(name, domain.ActionBless)
}

func (s *ProgressStore) NeedsCurse(name domain.AccountName) (bool, int) {
	return s.needs(name, domain.ActionCurse)
}

func (s *ProgressStore) needs(name domain.AccountName, kind domain.ActionKind) (bool, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	progress := s.progressLocked(name)
	remaining := max(0, s.state.Settings.Target(kind)-progress.Received(kind))
	return remaining > 0, remaining
}

// RecordAction is the only path that increments counters. Calling it twice for
// one real action counts it twice.
func (s *ProgressStore) RecordAction(ctx context.Context, giver, receiver domain.AccountName, kind domain.ActionKind, success bool) error {
	if !kind.Valid() {
		return fmt.Errorf("record action: %w: %q", domain.ErrUnknownAction, kind)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.ensureLoaded()
	now := s.clock.Now()
	today := now.Format(domain.DateLayout)
	s.rolloverLocked()

	giverProgress := s.progressLocked(giver)
	giverProgress.LastActionDate = today
	giverProgress.LastActionTime = now.Format(domain.TimeLayout)
	if success {
		switch kind {
		case domain.ActionBless:
			giverProgress.BlessGivenToday++
		case domain.ActionCurse:
			giverProgress.CurseGivenToday++
		}
	}
	s.state.Accounts[giver] = giverProgress

	if success {
		receiverProgress := s.progressLocked(receiver)
		switch kind {
		case domain.ActionBless:
			receiverProgress.BlessReceived++
		case domain.ActionCurse:
			receiverProgress.CurseReceived++
		}
		s.state.Accounts[receiver] = receiverProgress
	}

	stats, ok := s.state.DailyStats[today]
	if !ok {
		stats = domain.DailyStats{Date: today}
	}
	stats.Append(domain.ActionLogEntry{
		Time:     giverProgress.LastActionTime,
		Giver:    giver,
		Receiver: receiver,
		Action:   kind,
		Success:  success,
	})
	s.state.DailyStats[today] = stats
	s.dirty = true

	return s.persistLocked(ctx)
}

// UpdateSettings merges the non-nil fields of patch and persists.
func (s *ProgressStore) UpdateSettings(ctx context.Context, patch domain.SettingsPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ensureLoaded()
	if patch.IsEmpty() {
		return nil
	}
	s.state.Settings = s.state.Settings.Apply(patch)
	s.dirty = true

	return s.persistLocked(ctx)
}

func (s *ProgressStore) Settings() domain.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ensureLoaded()
	return s.state.Settings
}

// SaveIfDirty persists registrations made by GetProgress or rollover.
func (s *ProgressStore) SaveIfDirty(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.dirty {
		return nil
	}
	return s.persistLocked(ctx)
}

// Snapshot returns a deep copy of the current state.
func (s *ProgressStore) Snapshot() domain.ProgressState {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ensureLoaded()
	return cloneState(s.state)
}

func (s *ProgressStore) persistLocked(ctx context.Context) error {
	s.state.LastUpdated = s.clock.Now()
	if err := s.repo.Save(ctx, cloneState(s.state)); err != nil {
		s.logger.Error().Err(err).Msg("persist progress state")
		return fmt.Errorf("%w: save progress state: %w", domain.ErrPersistence, err)
	}
	s.dirty = false
	return nil
}

func cloneState(state domain.ProgressState) domain.ProgressState {
	out := state
	out.Accounts = make(map[domain.AccountName]domain.AccountProgress, len(state.Accounts))
	for name, progress := range state.Accounts {
		out.Accounts[name] = progress
	}
	out.DailyStats = make(map[string]domain.DailyStats, len(state.DailyStats))
	for date, stats := range state.DailyStats {
		stats.AccountsProcessed = append([]domain.AccountName(nil), stats.AccountsProcessed...)
		stats.Actions = append([]domain.ActionLogEntry(nil), stats.Actions...)
		out.DailyStats[date] = stats
	}
	return out
}
