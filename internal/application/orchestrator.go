package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bnema/ritual-rpa/internal/domain"
	"github.com/bnema/ritual-rpa/internal/ports"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// MaxConcurrentSessions caps parallel profile sessions regardless of configuration.
const MaxConcurrentSessions = 10

const defaultStopTimeout = 15 * time.Second

type ExecutionConfig struct {
	ChannelURL           string
	Parallel             bool
	MaxConcurrent        int
	MaxActionsPerSession int
	StopTimeout          time.Duration
	// DisableBlocking keeps failed givers out of the block lists.
	DisableBlocking      bool
}

// Concurrency is the effective worker count after clamping.
func (c ExecutionConfig) Concurrency() int {
	if !c.Parallel {
		return 1
	}
	return min(max(c.MaxConcurrent, 1), MaxConcurrentSessions)
}

type RunResult struct {
	RunID     string
	Planned   int
	Sessions  int
	Completed int
	Failed    int
	Skipped   int
	Blocked   int
}

type sessionOutcome struct {
	completed int
	failed    int
	skipped   int
	blocked   bool
	err       error
}

func (s sessionOutcome) handled() int { return s.completed + s.failed + s.skipped }

func (r *RunResult) add(out sessionOutcome) {
	r.Sessions++
	r.Completed += out.completed
	r.Failed += out.failed
	r.Skipped += out.skipped
	if out.blocked {
		r.Blocked++
	}
}

// SessionOrchestrator executes a plan one giver session at a time, or several at
// once in parallel mode.
type SessionOrchestrator struct {
	launcher ports.ProfileLauncher
	executor ports.ActionExecutor
	progress *ProgressStore
	registry *AccountRegistry
	shutdown *ShutdownCoordinator
	pacer    *Pacer
	cfg      ExecutionConfig
	logger   zerolog.Logger
	newRunID func() string
}

type OrchestratorDeps struct {
	Launcher ports.ProfileLauncher
	Executor ports.ActionExecutor
	Progress *ProgressStore
	Registry *AccountRegistry
	Shutdown *ShutdownCoordinator
	Pacer    *Pacer
	Logger   zerolog.Logger
}

func NewSessionOrchestrator(deps OrchestratorDeps, cfg ExecutionConfig) *SessionOrchestrator {
	pacer := deps.Pacer
	if pacer == nil {
		pacer = NoPacing()
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = defaultStopTimeout
	}

	return &SessionOrchestrator{
		launcher: deps.Launcher,
		executor: deps.Executor,
		progress: deps.Progress,
		registry: deps.Registry,
		shutdown: deps.Shutdown,
		pacer:    pacer,
		cfg:      cfg,
		logger:   deps.Logger,
		newRunID: func() string { return uuid.NewString() },
	}
}

// WithExecution returns a copy that runs under cfg. An empty channel or stop
// timeout keeps the current value.
func (o *SessionOrchestrator) WithExecution(cfg ExecutionConfig) *SessionOrchestrator {
	if cfg.ChannelURL == "" {
		cfg.ChannelURL = o.cfg.ChannelURL
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = o.cfg.StopTimeout
	}
	clone := *o
	clone.cfg = cfg
	return &clone
}

func (o *SessionOrchestrator) Execution() ExecutionConfig {
	return o.cfg
}

func (o *SessionOrchestrator) cancelled(ctx context.Context) bool {
	return ctx.Err() != nil || o.shutdown.ShutdownRequested()
}

// Run executes items and returns aggregate counts. Persistence failures are
// joined into the returned error; other session failures only show in counts.
func (o *SessionOrchestrator) Run(ctx context.Context, items []domain.PlanItem) (RunResult, error) {
	result := RunResult{RunID: o.newRunID(), Planned: len(items)}
	logger := o.logger.With().Str("run_id", result.RunID).Logger()

	batches := domain.GroupByGiver(items, o.cfg.MaxActionsPerSession)
	logger.Info().
		Int("actions", len(items)).
		Int("sessions", len(batches)).
		Int("concurrency", o.cfg.Concurrency()).
		Msg("starting run")

	var err error
	if o.cfg.Concurrency() > 1 {
		err = o.runParallel(ctx, logger, batches, &result)
	} else {
		err = o.runSequential(ctx, logger, batches, &result)
	}

	logger.Info().
		Int("completed", result.Completed).
		Int("failed", result.Failed).
		Int("skipped", result.Skipped).
		Int("blocked", result.Blocked).
		Msg("run finished")
	return result, err
}

func (o *SessionOrchestrator) runSequential(ctx context.Context, logger zerolog.Logger, batches []domain.GiverBatch, result *RunResult) error {
	var errs []error
	for i, batch := range batches {
		if i > 0 && !o.cancelled(ctx) {
			// A cancelled wait falls through to the check below.
			_ = o.pacer.BetweenSessions(ctx)
		}
		if o.cancelled(ctx) {
			result.Skipped += remainingItems(batches[i:])
			logger.Warn().Int("skipped", remainingItems(batches[i:])).Msg("run cancelled")
			break
		}

		out := o.runSession(ctx, logger, batch)
		result.add(out)
		if out.err != nil {
			errs = append(errs, out.err)
		}
	}
	return errors.Join(errs...)
}

// runParallel gives each giver one worker that runs that giver's sessions in
// order, so a profile never has two sessions open at once.
func (o *SessionOrchestrator) runParallel(ctx context.Context, logger zerolog.Logger, batches []domain.GiverBatch, result *RunResult) error {
	sem := semaphore.NewWeighted(int64(o.cfg.Concurrency()))
	var (
		group errgroup.Group
		mu    sync.Mutex
		errs  []error
	)

	lanes := giverLanes(batches)
	for i, lane := range lanes {
		if o.cancelled(ctx) || sem.Acquire(ctx, 1) != nil {
			skipped := 0
			for _, rest := range lanes[i:] {
				skipped += remainingItems(rest)
			}
			mu.Lock()
			result.Skipped += skipped
			mu.Unlock()
			logger.Warn().Int("skipped", skipped).Msg("run cancelled")
			break
		}

		group.Go(func() error {
			defer sem.Release(1)

			for j, batch := range lane {
				if j > 0 && !o.cancelled(ctx) {
					_ = o.pacer.BetweenSessions(ctx)
				}
				if o.cancelled(ctx) {
					mu.Lock()
					result.Skipped += remainingItems(lane[j:])
					mu.Unlock()
					return nil
				}

				out := o.runSessionRecovered(ctx, logger, batch)
				mu.Lock()
				result.add(out)
				if out.err != nil {
					errs = append(errs, out.err)
				}
				mu.Unlock()
			}
			return nil
		})
	}

	_ = group.Wait()
	return errors.Join(errs...)
}

// runSessionRecovered turns a panic inside one session into failed counts for
// the items that session had not finished.
func (o *SessionOrchestrator) runSessionRecovered(ctx context.Context, logger zerolog.Logger, batch domain.GiverBatch) (out sessionOutcome) {
	progress := &sessionOutcome{}
	defer func() {
		if r := recover(); r != nil {
			logger.Error().
				Str("giver", string(batch.Giver.Name)).
				Interface("panic", r).
				Msg("session worker panicked")
			out = *progress
			out.failed += len(batch.Items) - progress.handled()
		}
	}()

	return o.runSessionInto(ctx, logger, batch, progress)
}

func (o *SessionOrchestrator) runSession(ctx context.Context, logger zerolog.Logger, batch domain.GiverBatch) sessionOutcome {
	return o.runSessionInto(ctx, logger, batch, &sessionOutcome{})
}

func (o *SessionOrchestrator) runSessionInto(ctx context.Context, logger zerolog.Logger, batch domain.GiverBatch, out *sessionOutcome) sessionOutcome {
	giver := batch.Giver
	logger = logger.With().
		Str("session", uuid.NewString()[:8]).
		Str("giver", string(giver.Name)).
		Str("profile", giver.Profile.Display()).
		Logger()

	// Outcomes of work already done are persisted even after cancellation.
	persistCtx := context.WithoutCancel(ctx)

	if record, blocked := o.registry.BlockRecord(giver); blocked {
		logger.Info().Str("category", string(record.Category)).Str("reason", record.Reason).Msg("giver blocked, skipping session")
		out.skipped += len(batch.Items)
		return *out
	}

	conn, err := o.launcher.Start(ctx, giver.Profile)
	if err != nil {
		sessionErr := &domain.SessionError{Kind: domain.ErrLaunchFailed, Giver: giver.Name, Err: err}
		logger.Error().Err(sessionErr).Msg("launch failed")
		o.recordFailed(persistCtx, batch.Items, out)
		return *out
	}

	o.shutdown.Register(giver.Profile)
	defer o.closeProfile(ctx, logger, giver.Profile)

	if err := o.pacer.Settle(ctx); err != nil {
		out.skipped += len(batch.Items)
		return *out
	}

	session, err := o.executor.Connect(ctx, conn)
	if err != nil {
		if o.cancelled(ctx) {
			out.skipped += len(batch.Items)
			return *out
		}
		logger.Warn().Err(err).Msg("connect to profile failed")
		o.recordFailed(persistCtx, batch.Items, out)
		return *out
	}
	defer func() {
		if err := session.Disconnect(); err != nil {
			logger.Debug().Err(err).Msg("disconnect session")
		}
	}()

	authenticated, err := session.VerifyAuthenticated(ctx)
	switch {
	case o.cancelled(ctx):
		out.skipped += len(batch.Items)
		logger.Warn().Int("skipped", len(batch.Items)).Msg("session cancelled")
		return *out
	case err != nil:
		// Unknown login state: fail the session, leave the account unblocked.
		logger.Warn().Err(&domain.SessionError{Kind: domain.ErrTransientAction, Giver: giver.Name, Reason: "login check failed", Err: err}).Msg("aborting session")
		o.recordFailed(persistCtx, batch.Items, out)
		return *out
	case !authenticated:
		reason := "session is not logged in"
		o.blockGiver(persistCtx, logger, out, domain.BlockUnauthorized, giver, reason)
		sessionErr := &domain.SessionError{Kind: domain.ErrUnauthorized, Giver: giver.Name, Reason: reason}
		logger.Warn().Err(sessionErr).Msg("aborting session")
		out.failed += len(batch.Items) - out.handled()
		return *out
	}

	for i, item := range batch.Items {
		if o.cancelled(ctx) {
			out.skipped += len(batch.Items) - i
			logger.Warn().Int("skipped", len(batch.Items)-i).Msg("session cancelled")
			return *out
		}

		if sessionErr := o.navigate(ctx, session, giver); sessionErr != nil {
			if o.cancelled(ctx) {
				out.skipped += len(batch.Items) - i
				logger.Warn().Int("skipped", len(batch.Items)-i).Msg("session cancelled")
				return *out
			}
			switch {
			case errors.Is(sessionErr.Kind, domain.ErrUnauthorized):
				o.blockGiver(persistCtx, logger, out, domain.BlockUnauthorized, giver, sessionErr.Reason)
			case errors.Is(sessionErr.Kind, domain.ErrAccessDenied):
				o.blockGiver(persistCtx, logger, out, domain.BlockChannel, giver, sessionErr.Reason)
			}
			logger.Warn().Err(sessionErr).Msg("aborting session")
			out.failed += len(batch.Items) - i
			return *out
		}

		itemLogger := logger.With().
			Str("receiver", string(item.Receiver.Name)).
			Str("action", string(item.Action)).
			Int("index", item.Index).
			Int("total", item.Total).
			Logger()

		ok, err := session.PerformAction(ctx, item.Action, item.Receiver.Target)
		if err != nil {
			itemLogger.Warn().Err(&domain.SessionError{Kind: domain.ErrTransientAction, Giver: giver.Name, Err: err}).Msg("action failed")
			ok = false
		}
		if recErr := o.progress.RecordAction(persistCtx, giver.Name, item.Receiver.Name, item.Action, ok); recErr != nil {
			itemLogger.Error().Err(recErr).Msg("record action")
			out.err = errors.Join(out.err, recErr)
			if ok {
				out.completed++
			} else {
				out.failed++
			}
			out.failed += len(batch.Items) - i - 1
			return *out
		}

		if ok {
			out.completed++
			itemLogger.Info().Msg("action completed")
		} else {
			out.failed++
			itemLogger.Warn().Msg("action not confirmed")
		}

		if i < len(batch.Items)-1 {
			if err := o.pacer.BetweenActions(ctx); err != nil {
				out.skipped += len(batch.Items) - i - 1
				return *out
			}
		}
	}

	return *out
}

// navigate classifies a failed navigation. A login redirect is unauthorized;
// explicit access text or a loaded page without an input is access denied;
// anything else is transient.
func (o *SessionOrchestrator) navigate(ctx context.Context, session ports.ActionSession, giver domain.Account) *domain.SessionError {
	loaded, err := session.NavigateToDestination(ctx, o.cfg.ChannelURL)
	if err == nil && loaded {
		return nil
	}
	if errors.Is(err, domain.ErrUnauthorized) {
		return &domain.SessionError{Kind: domain.ErrUnauthorized, Giver: giver.Name, Reason: err.Error()}
	}

	if reason, denied := session.CheckAccessError(ctx); denied {
		return &domain.SessionError{Kind: domain.ErrAccessDenied, Giver: giver.Name, Reason: reason, Err: err}
	}
	if err == nil {
		return &domain.SessionError{Kind: domain.ErrAccessDenied, Giver: giver.Name, Reason: "message input not found in channel"}
	}
	return &domain.SessionError{Kind: domain.ErrTransientAction, Giver: giver.Name, Reason: "navigation failed", Err: err}
}

func (o *SessionOrchestrator) blockGiver(ctx context.Context, logger zerolog.Logger, out *sessionOutcome, category domain.BlockCategory, giver domain.Account, reason string) {
	if o.cfg.DisableBlocking {
		logger.Info().Str("category", string(category)).Str("reason", reason).Msg("blocking disabled, not blocking giver")
		return
	}
	created, err := o.registry.Block(ctx, category, giver, reason)
	if err != nil {
		logger.Error().Err(err).Msg("persist block record")
		out.err = errors.Join(out.err, err)
	}
	out.blocked = created
}

// recordFailed logs every item of a session that never got to act as a failed
// action.
func (o *SessionOrchestrator) recordFailed(ctx context.Context, items []domain.PlanItem, out *sessionOutcome) {
	for _, item := range items {
		if err := o.progress.RecordAction(ctx, item.Giver.Name, item.Receiver.Name, item.Action, false); err != nil {
			out.err = errors.Join(out.err, err)
		}
		out.failed++
	}
}

// closeProfile stops the profile even when ctx is already cancelled, then
// unregisters it whatever the stop result.
func (o *SessionOrchestrator) closeProfile(ctx context.Context, logger zerolog.Logger, profile domain.ProfileRef) {
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.StopTimeout)
	defer cancel()

	stopped, err := o.launcher.Stop(stopCtx, profile)
	switch {
	case err != nil:
		logger.Error().Err(fmt.Errorf("stop profile: %w", err)).Msg("close session")
	case !stopped:
		logger.Debug().Msg("profile was already stopped")
	}
	o.shutdown.Unregister(profile)
}

// giverLanes groups the consecutive batches GroupByGiver emits for each giver.
func giverLanes(batches []domain.GiverBatch) [][]domain.GiverBatch {
	var lanes [][]domain.GiverBatch
	for _, batch := range batches {
		last := len(lanes) - 1
		if last >= 0 && lanes[last][0].Giver.Name == batch.Giver.Name {
			lanes[last] = append(lanes[last], batch)
			continue
		}
		lanes = append(lanes, []domain.GiverBatch{batch})
	}
	return lanes
}

func remainingItems(batches []domain.GiverBatch) int {
	total := 0
	for _, batch := range batches {
		total += len(batch.Items)
	}
	return total
}
