package cmd

import (
	"fmt"
	"strings"

	"github.com/bnema/ritual-rpa/internal/domain"
	"github.com/spf13/cobra"
)

func newAccountsCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "accounts",
		Aliases: []string{"account"},
		Short:   "Manage the account roster",
	}

	cmd.AddCommand(
		newAccountsListCmd(app),
		newAccountsValidateCmd(app),
		newAccountsAddCmd(app),
	)

	return cmd
}

func newAccountsListCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := app.service.LoadRoster(cmd.Context()); err != nil {
				return err
			}

			for _, account := range app.service.Accounts() {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", account.Name, account.Profile.Display(), account.Target)
			}

			return nil
		},
	}
}

func newAccountsValidateCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the roster for missing or placeholder values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			entries, err := app.roster.Entries(cmd.Context())
			if err != nil {
				return fmt.Errorf("read roster: %w", err)
			}

			accounts, warnings, err := domain.BuildRoster(entries)
			for _, warning := range warnings {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "warning: %s\n", warning)
			}
			if err != nil {
				return err
			}
			if len(accounts) == 0 {
				return fmt.Errorf("no accounts configured")
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%d accounts valid\n", len(accounts))
			return err
		},
	}
}

func newAccountsAddCmd(app *app) *cobra.Command {
	var entry domain.RosterEntry

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add or replace an account in accounts.toml",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			entry.Target = strings.TrimPrefix(strings.TrimSpace(entry.Target), "@")
			if _, _, err := domain.BuildRoster([]domain.RosterEntry{entry}); err != nil {
				return err
			}

			if err := app.accounts.Save(cmd.Context(), entry); err != nil {
				return fmt.Errorf("save account: %w", err)
			}

			_, err := fmt.Fprintf(cmd.OutOrStdout(), "saved %s to %s\n", strings.TrimSpace(entry.Name), app.accounts.Path())
			return err
		},
	}

	cmd.Flags().StringVar(&entry.Name, "name", "", "Account name")
	cmd.Flags().StringVar(&entry.Profile, "profile", "", "AdsPower profile id, or serial number when numeric")
	cmd.Flags().StringVar(&entry.Target, "target", "", "Discord username other accounts mention")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("profile")
	_ = cmd.MarkFlagRequired("target")

	return cmd
}
