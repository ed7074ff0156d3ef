package cmd

import (
	"errors"
	"fmt"
	"strings"

	statusadapter "github.com/bnema/ritual-rpa/internal/adapters/render/status"
	"github.com/bnema/ritual-rpa/internal/application"
	"github.com/bnema/ritual-rpa/internal/domain"
	"github.com/spf13/cobra"
)

type runOptions struct {
	mode          string
	maxActions    int
	parallel      bool
	maxConcurrent int
	perSession    int
	target        string
	pairs         []string
	dryRun        bool
}

func newRunCmd(app *app) *cobra.Command {
	opts := runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Plan and send bless/curse commands",
		Long: `Plan bless/curse actions and send them from each giver's browser profile.

Modes:
  smart   pair accounts that still need actions with givers that have daily budget left
  chain   every account acts on the next one in roster order
  target  every other account acts on --target
  pairs   only the --pair GIVER:RECEIVER[:bless|curse] entries`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			command, err := opts.command(cmd, app)
			if err != nil {
				return err
			}
			if !command.DryRun {
				if err := app.cfg.Validate(); err != nil {
					return err
				}
			}

			if _, err := app.service.Prepare(cmd.Context()); err != nil {
				return err
			}
			if !command.DryRun {
				if err := app.launcher.CheckConnection(cmd.Context()); err != nil {
					return err
				}
			}

			result, items, runErr := app.execute(cmd.Context(), command)
			if len(items) > 0 || runErr == nil {
				if err := writeRunOutput(cmd, app, result, items); err != nil {
					return errors.Join(runErr, err)
				}
			}
			return runErr
		},
	}

	cmd.Flags().StringVar(&opts.mode, "mode", string(application.ModeSmart), "Run mode: smart, chain, target, pairs")
	cmd.Flags().IntVar(&opts.maxActions, "max-actions", 0, "Cap on planned actions (0 uses execution.max_actions)")
	cmd.Flags().BoolVar(&opts.parallel, "parallel", false, "Run several giver sessions at once")
	cmd.Flags().IntVar(&opts.maxConcurrent, "max-concurrent", 0, "Parallel session count (capped at 10)")
	cmd.Flags().IntVar(&opts.perSession, "per-session", 0, "Max actions per giver session before the profile is restarted")
	cmd.Flags().StringVar(&opts.target, "target", "", "Receiver account name for target mode")
	cmd.Flags().StringArrayVar(&opts.pairs, "pair", nil, "GIVER:RECEIVER[:bless|curse] for pairs mode (repeatable)")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Print the plan without opening any profile")

	return cmd
}

// command merges flags over the configured defaults.
func (o runOptions) command(cmd *cobra.Command, app *app) (application.RunCommand, error) {
	command := application.RunCommand{
		Mode:       application.RunMode(strings.ToLower(strings.TrimSpace(o.mode))),
		MaxActions: app.cfg.Execution.MaxActions,
		Target:     domain.AccountName(strings.TrimSpace(o.target)),
		DryRun:     o.dryRun,
	}
	if cmd.Flags().Changed("max-actions") {
		command.MaxActions = o.maxActions
	}
	if command.Mode == application.ModeSmart {
		command.Settings = app.smartPatch()
	}

	for _, raw := range o.pairs {
		pair, err := application.ParseExplicitPair(raw)
		if err != nil {
			return application.RunCommand{}, err
		}
		command.Pairs = append(command.Pairs, pair)
	}

	execution := app.execution
	if cmd.Flags().Changed("parallel") {
		execution.Parallel = o.parallel
	}
	if cmd.Flags().Changed("max-concurrent") {
		if o.maxConcurrent < 1 {
			return application.RunCommand{}, fmt.Errorf("--max-concurrent must be at least 1, got %d", o.maxConcurrent)
		}
		execution.MaxConcurrent = o.maxConcurrent
	}
	if cmd.Flags().Changed("per-session") {
		if o.perSession < 0 {
			return application.RunCommand{}, fmt.Errorf("--per-session must not be negative, got %d", o.perSession)
		}
		execution.MaxActionsPerSession = o.perSession
	}
	command.Execution = &execution

	if err := command.Validate(); err != nil {
		return application.RunCommand{}, err
	}
	return command, nil
}

func writeRunOutput(cmd *cobra.Command, app *app, result application.RunResult, items []domain.PlanItem) error {
	rendered, err := statusadapter.RenderRun(result, items, statusadapter.RenderOptions{Now: app.now()})
	if err != nil {
		return fmt.Errorf("render run: %w", err)
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)
	return err
}
