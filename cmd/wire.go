package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/bnema/ritual-rpa/internal/adapters/adspower"
	"github.com/bnema/ritual-rpa/internal/adapters/discord"
	statusadapter "github.com/bnema/ritual-rpa/internal/adapters/render/status"
	"github.com/bnema/ritual-rpa/internal/adapters/repo/jsonfile"
	tomlrepo "github.com/bnema/ritual-rpa/internal/adapters/repo/toml"
	chainstore "github.com/bnema/ritual-rpa/internal/adapters/secrets/chain"
	"github.com/bnema/ritual-rpa/internal/adapters/sheets"
	"github.com/bnema/ritual-rpa/internal/application"
	"github.com/bnema/ritual-rpa/internal/config"
	"github.com/bnema/ritual-rpa/internal/domain"
	"github.com/bnema/ritual-rpa/internal/logging"
	"github.com/bnema/ritual-rpa/internal/ports"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

type app struct {
	cfg       config.Config
	logger    zerolog.Logger
	accounts  *tomlrepo.Repository
	roster    ports.RosterSource
	secrets   ports.SecretStore
	launcher  *adspower.Client
	executor  *discord.Executor
	progress  *application.ProgressStore
	registry  *application.AccountRegistry
	planner   *application.PairPlanner
	pacer     *application.Pacer
	execution application.ExecutionConfig
	clock     ports.Clock

	// service answers queries; runs build their own through newService.
	service        *application.Service
	statusRenderer func(application.ProgressReport, statusadapter.RenderOptions) (string, error)
	now            func() time.Time
	closeLog       func() error
}

type wireOptions struct {
	ConfigPath string
	LogLevel   string
	Stderr     io.Writer
}

func wireApp(opts wireOptions) (*app, error) {
	v := viper.New()
	cfg, err := config.Load(v, opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		cfg.Log.Level = level
	}

	logger, closeLog, err := logging.New(logging.Config{Level: cfg.Log.Level, File: cfg.Log.File, Console: opts.Stderr})
	if err != nil {
		return nil, fmt.Errorf("wire logger: %w", err)
	}

	clock := ports.SystemClock{}
	progressRepo, err := jsonfile.NewProgressRepository(cfg.State.Dir)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("wire progress repository: %w", err), closeLog())
	}
	blockRepo, err := jsonfile.NewBlockRepository(cfg.State.Dir, clock)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("wire block repository: %w", err), closeLog())
	}
	accounts, err := tomlrepo.NewRepository(v)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("wire account repository: %w", err), closeLog())
	}

	var roster ports.RosterSource = accounts
	if url := strings.TrimSpace(cfg.Sheets.URL); url != "" {
		source, err := sheets.NewSource(url, nil, logger)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("wire sheet roster: %w", err), closeLog())
		}
		roster = source
	}

	secretStore, err := chainstore.NewPassFirstWithFileFallback(cfg.Secrets.Dir)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("wire secret store chain: %w", err), closeLog())
	}

	launcher := adspower.NewClient(adspower.Config{
		APIURL:        cfg.AdsPower.APIURL,
		APIKey:        cfg.AdsPower.APIKey,
		KeyLookup:     secretLookup(secretStore, cfg.AdsPower.APIKeyRef),
		RatePerSecond: cfg.AdsPower.RatePerSec,
		StartRetries:  cfg.AdsPower.StartRetries,
		StartTimeout:  cfg.AdsPower.StartTimeout,
		StopRetries:   cfg.AdsPower.StopRetries,
		StopTimeout:   cfg.AdsPower.StopTimeout,
	}, nil, logger.With().Str("component", "adspower").Logger())

	progress := application.NewProgressStore(progressRepo, clock, logger)
	a := &app{
		cfg:      cfg,
		logger:   logger,
		accounts: accounts,
		roster:   roster,
		secrets:  secretStore,
		launcher: launcher,
		executor: discord.NewExecutor(executorTiming(cfg.Timing), discord.DefaultSelectors(), logger.With().Str("component", "discord").Logger()),
		progress: progress,
		registry: application.NewAccountRegistry(blockRepo, clock, logger),
		planner:  application.NewPairPlanner(progress, logger),
		pacer: application.NewPacer(application.PacingConfig{
			Settle:      cfg.Pacing.SettleDelay,
			Action:      application.DelayRange{Min: cfg.Pacing.ActionDelayMin, Max: cfg.Pacing.ActionDelayMax},
			Account:     application.DelayRange{Min: cfg.Pacing.AccountDelayMin, Max: cfg.Pacing.AccountDelayMax},
			ExtraChance: cfg.Pacing.ExtraPauseChance,
			Extra:       application.DelayRange{Min: cfg.Pacing.ExtraPauseMin, Max: cfg.Pacing.ExtraPauseMax},
		}),
		execution: application.ExecutionConfig{
			ChannelURL:           cfg.ChannelURL,
			Parallel:             cfg.Execution.Parallel,
			MaxConcurrent:        cfg.Execution.MaxConcurrent,
			MaxActionsPerSession: cfg.Execution.MaxActionsPerSession,
			StopTimeout:          cfg.AdsPower.StopTimeout,
			DisableBlocking:      !cfg.Blocking.Enabled,
		},
		clock:          clock,
		statusRenderer: statusadapter.Render,
		now:            time.Now,
		closeLog:       closeLog,
	}
	a.service = a.newService(application.NewShutdownCoordinator(launcher, logger))

	return a, nil
}

// newService builds a service around a fresh shutdown coordinator, since a
// coordinator only cleans up once.
func (a *app) newService(shutdown *application.ShutdownCoordinator) *application.Service {
	orchestrator := application.NewSessionOrchestrator(application.OrchestratorDeps{
		Launcher: a.launcher,
		Executor: a.executor,
		Progress: a.progress,
		Registry: a.registry,
		Shutdown: shutdown,
		Pacer:    a.pacer,
		Logger:   a.logger,
	}, a.execution)

	return application.NewService(application.ServiceDeps{
		Roster:       a.roster,
		Progress:     a.progress,
		Registry:     a.registry,
		Planner:      a.planner,
		Orchestrator: orchestrator,
		Clock:        a.clock,
		Logger:       a.logger,
	})
}

// execute runs one plan. Cancelling ctx stops new sessions; every profile still
// open afterwards is stopped before returning.
func (a *app) execute(ctx context.Context, command application.RunCommand) (application.RunResult, []domain.PlanItem, error) {
	shutdown := application.NewShutdownCoordinator(a.launcher, a.logger)
	stop := context.AfterFunc(ctx, shutdown.RequestShutdown)
	defer stop()
	defer shutdown.Cleanup(context.WithoutCancel(ctx))

	return a.newService(shutdown).Run(ctx, command)
}

// smartPatch carries the smart.* config overrides into persisted settings.
func (a *app) smartPatch() domain.SettingsPatch {
	return domain.SettingsPatch{
		DailyLimitPerAccount: a.cfg.Smart.DailyLimit,
		TargetBless:          a.cfg.Smart.TargetBless,
		TargetCurse:          a.cfg.Smart.TargetCurse,
	}
}

func (a *app) Close() error {
	if a == nil {
		return nil
	}
	return errors.Join(a.launcher.Close(), a.closeLog())
}

func secretLookup(store ports.SecretStore, ref string) func(context.Context) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil
	}
	return func(ctx context.Context) (string, error) {
		return store.Get(ctx, ref)
	}
}

func executorTiming(cfg config.TimingConfig) discord.Timing {
	timing := discord.DefaultTiming()
	if cfg.TypingDelayMin > 0 || cfg.TypingDelayMax > 0 {
		timing.TypingDelayMin = cfg.TypingDelayMin
		timing.TypingDelayMax = cfg.TypingDelayMax
	}
	if cfg.AutocompleteWait > 0 {
		timing.AutocompleteWait = cfg.AutocompleteWait
	}
	if cfg.CommandSubmitWait > 0 {
		timing.CommandSubmitWait = cfg.CommandSubmitWait
	}
	if cfg.NavigationTimeout > 0 {
		timing.NavigationTimeout = cfg.NavigationTimeout
	}
	return timing
}
