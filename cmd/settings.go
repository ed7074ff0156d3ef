package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bnema/ritual-rpa/internal/domain"
	"github.com/spf13/cobra"
)

func newSettingsCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change daily limit and targets",
	}

	cmd.AddCommand(
		newSettingsShowCmd(app),
		newSettingsSetCmd(app),
	)

	return cmd
}

func newSettingsShowCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print persisted settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := app.service.LoadState(cmd.Context()); err != nil {
				return err
			}
			return writeSettings(cmd, app.service.Settings())
		},
	}
}

func newSettingsSetCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set key=value...",
		Short: "Change settings: daily_limit, target_bless, target_curse",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			patch, unknown, err := parseSettingsPatch(args)
			if err != nil {
				return err
			}
			for _, key := range unknown {
				app.logger.Warn().Str("key", key).Msg("ignoring unknown setting")
			}
			if patch.IsEmpty() {
				return fmt.Errorf("no known settings given")
			}

			if err := app.service.LoadState(cmd.Context()); err != nil {
				return err
			}
			settings, err := app.service.UpdateSettings(cmd.Context(), patch)
			if err != nil {
				return err
			}
			return writeSettings(cmd, settings)
		},
	}
}

func parseSettingsPatch(args []string) (domain.SettingsPatch, []string, error) {
	var (
		patch   domain.SettingsPatch
		unknown []string
	)

	for _, arg := range args {
		key, raw, ok := strings.Cut(arg, "=")
		if !ok {
			return domain.SettingsPatch{}, nil, fmt.Errorf("invalid setting %q: expected key=value", arg)
		}
		key = strings.ToLower(strings.TrimSpace(key))

		var field **int
		switch key {
		case "daily_limit", "daily_limit_per_account":
			field = &patch.DailyLimitPerAccount
		case "target_bless":
			field = &patch.TargetBless
		case "target_curse":
			field = &patch.TargetCurse
		default:
			unknown = append(unknown, key)
			continue
		}

		value, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil || value < 0 {
			return domain.SettingsPatch{}, nil, fmt.Errorf("invalid value for %s: %q is not a non-negative integer", key, raw)
		}
		*field = &value
	}

	return patch, unknown, nil
}

func writeSettings(cmd *cobra.Command, settings domain.Settings) error {
	_, err := fmt.Fprintf(cmd.OutOrStdout(), "daily_limit\t%d\ntarget_bless\t%d\ntarget_curse\t%d\n",
		settings.DailyLimitPerAccount, settings.TargetBless, settings.TargetCurse)
	return err
}
