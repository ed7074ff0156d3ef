package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/bnema/ritual-rpa/internal/domain"
	"github.com/bnema/ritual-rpa/internal/ports"
	"github.com/rs/zerolog"
)

var ErrInvalidRoster = errors.New("invalid account roster")

// Service is the entry point the CLI drives: it loads state, plans by mode and
// hands the plan to the orchestrator.
type Service struct {
	roster       ports.RosterSource
	progress     *ProgressStore
	registry     *AccountRegistry
	planner      *PairPlanner
	orchestrator *SessionOrchestrator
	clock        ports.Clock
	logger       zerolog.Logger
}

type ServiceDeps struct {
	Roster       ports.RosterSource
	Progress     *ProgressStore
	Registry     *AccountRegistry
	Planner      *PairPlanner
	Orchestrator *SessionOrchestrator
	Clock        ports.Clock
	Logger       zerolog.Logger
}

func NewService(deps ServiceDeps) *Service {
	clock := deps.Clock
	if clock == nil {
		clock = ports.SystemClock{}
	}

	return &Service{
		roster:       deps.Roster,
		progress:     deps.Progress,
		registry:     deps.Registry,
		planner:      deps.Planner,
		orchestrator: deps.Orchestrator,
		clock:        clock,
		logger:       deps.Logger,
	}
}

// Prepare loads progress, block lists and the roster. It must run before Plan,
// Run or Report.
func (s *Service) Prepare(ctx context.Context) ([]string, error) {
	if err := s.LoadState(ctx); err != nil {
		return nil, err
	}
	return s.LoadRoster(ctx)
}

// LoadState loads progress and block lists without touching the roster.
func (s *Service) LoadState(ctx context.Context) error {
	if err := s.progress.Load(ctx); err != nil {
		return fmt.Errorf("load progress: %w", err)
	}
	if err := s.registry.Load(ctx); err != nil {
		return fmt.Errorf("load block lists: %w", err)
	}
	return nil
}

func (s *Service) LoadRoster(ctx context.Context) ([]string, error) {
	entries, err := s.roster.Entries(ctx)
	if err != nil {
		return nil, fmt.Errorf("read roster: %w", err)
	}

	accounts, warnings, err := domain.BuildRoster(entries)
	for _, warning := range warnings {
		s.logger.Warn().Msg(warning)
	}
	if err != nil {
		return warnings, fmt.Errorf("%w: %w", ErrInvalidRoster, err)
	}
	if len(accounts) == 0 {
		return warnings, fmt.Errorf("%w: no accounts configured", ErrInvalidRoster)
	}

	s.registry.SetAccounts(accounts)
	s.logger.Info().Int("accounts", len(accounts)).Msg("roster loaded")
	return warnings, nil
}

func (s *Service) Plan(ctx context.Context, cmd RunCommand) ([]domain.PlanItem, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	if !cmd.Settings.IsEmpty() {
		if err := s.progress.UpdateSettings(ctx, cmd.Settings); err != nil {
			return nil, fmt.Errorf("apply settings: %w", err)
		}
	}

	roster := s.registry.Accounts()
	blocked := s.registry.IsBlocked
	switch cmd.Mode {
	case ModeSmart:
		return s.planner.PlanPairs(ctx, roster, cmd.MaxActions, blocked)
	case ModeChain:
		return PlanChain(roster, cmd.MaxActions, blocked), nil
	case ModeTarget:
		return PlanSingleTarget(roster, cmd.Target, nil, cmd.MaxActions, blocked)
	case ModePairs:
		return PlanExplicit(roster, cmd.Pairs, cmd.MaxActions, blocked)
	default:
		return nil, fmt.Errorf("unknown run mode %q", cmd.Mode)
	}
}

// Run plans and executes. An empty plan is not an error.
func (s *Service) Run(ctx context.Context, cmd RunCommand) (RunResult, []domain.PlanItem, error) {
	items, err := s.Plan(ctx, cmd)
	if err != nil {
		return RunResult{}, nil, err
	}
	if len(items) == 0 || cmd.DryRun {
		return RunResult{Planned: len(items)}, items, nil
	}

	orchestrator := s.orchestrator
	if cmd.Execution != nil {
		orchestrator = orchestrator.WithExecution(*cmd.Execution)
	}
	result, err := orchestrator.Run(ctx, items)
	return result, items, err
}

func (s *Service) Report() ProgressReport {
	today := s.clock.Now().Format(domain.DateLayout)
	return BuildReport(s.progress.Snapshot(), s.registry.Accounts(), s.registry, today)
}

func (s *Service) UpdateSettings(ctx context.Context, patch domain.SettingsPatch) (domain.Settings, error) {
	if err := s.progress.UpdateSettings(ctx, patch); err != nil {
		return domain.Settings{}, err
	}
	return s.progress.Settings(), nil
}

func (s *Service) Settings() domain.Settings {
	return s.progress.Settings()
}

func (s *Service) Blocked(categories ...domain.BlockCategory) []domain.BlockRecord {
	return s.registry.Blocked(categories...)
}

func (s *Service) Unblock(ctx context.Context, name domain.AccountName, categories ...domain.BlockCategory) (bool, error) {
	return s.registry.Unblock(ctx, name, categories...)
}

func (s *Service) Accounts() []domain.Account {
	return s.registry.Accounts()
}
