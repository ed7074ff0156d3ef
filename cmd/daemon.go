package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bnema/ritual-rpa/internal/application"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

func newDaemonCmd(app *app) *cobra.Command {
	var (
		spec string
		now  bool
	)

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run smart mode on a cron schedule until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("cron") {
				spec = app.cfg.Daemon.Cron
			}
			spec = strings.TrimSpace(spec)
			schedule, err := cronParser.Parse(spec)
			if err != nil {
				return fmt.Errorf("parse cron %q: %w", spec, err)
			}
			if err := app.cfg.Validate(); err != nil {
				return err
			}

			return runDaemon(cmd.Context(), app, spec, schedule, now)
		},
	}

	cmd.Flags().StringVar(&spec, "cron", "", "Cron schedule (default daemon.cron, \"0 */6 * * *\")")
	cmd.Flags().BoolVar(&now, "now", false, "Also run once immediately")

	return cmd
}

func runDaemon(ctx context.Context, app *app, spec string, schedule cron.Schedule, immediate bool) error {
	logger := app.logger.With().Str("component", "daemon").Logger()
	cronLog := cronLogger{logger: logger}

	c := cron.New(
		cron.WithParser(cronParser),
		cron.WithLocation(time.Local),
		cron.WithLogger(cronLog),
	)
	job := scheduledJob(cronLog, func() { runScheduled(ctx, app, logger) })
	if _, err := c.AddJob(spec, job); err != nil {
		return fmt.Errorf("schedule smart run: %w", err)
	}

	c.Start()
	logger.Info().Str("cron", spec).Time("next", schedule.Next(app.now())).Msg("daemon started")
	if immediate {
		job.Run()
	}

	<-ctx.Done()
	logger.Info().Msg("daemon stopping")
	<-c.Stop().Done()
	return nil
}

// scheduledJob wraps run so ticks and --now share one overlap guard.
func scheduledJob(logger cron.Logger, run func()) cron.Job {
	return cron.NewChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)).Then(cron.FuncJob(run))
}

// runScheduled performs one smart run. Failures are logged so the next tick
// still happens.
func runScheduled(ctx context.Context, app *app, logger zerolog.Logger) {
	if ctx.Err() != nil {
		return
	}

	if _, err := app.service.Prepare(ctx); err != nil {
		logger.Error().Err(err).Msg("scheduled run: prepare")
		return
	}
	if err := app.launcher.CheckConnection(ctx); err != nil {
		logger.Error().Err(err).Msg("scheduled run: launcher unavailable")
		return
	}

	execution := app.execution
	result, items, err := app.execute(ctx, application.RunCommand{
		Mode:       application.ModeSmart,
		MaxActions: app.cfg.Execution.MaxActions,
		Settings:   app.smartPatch(),
		Execution:  &execution,
	})
	if err != nil {
		logger.Error().Err(err).Msg("scheduled run failed")
	}
	logger.Info().
		Int("planned", len(items)).
		Int("completed", result.Completed).
		Int("failed", result.Failed).
		Int("skipped", result.Skipped).
		Msg("scheduled run finished")
}

// cronLogger routes cron's own logging into zerolog.
type cronLogger struct {
	logger zerolog.Logger
}

var _ cron.Logger = cronLogger{}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
