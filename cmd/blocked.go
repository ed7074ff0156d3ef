package cmd

import (
	"fmt"
	"strings"

	statusadapter "github.com/bnema/ritual-rpa/internal/adapters/render/status"
	"github.com/bnema/ritual-rpa/internal/domain"
	"github.com/spf13/cobra"
)

func newBlockedCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "blocked",
		Short: "Inspect and clear blocked accounts",
	}

	cmd.AddCommand(
		newBlockedListCmd(app),
		newBlockedUnblockCmd(app),
	)

	return cmd
}

func newBlockedListCmd(app *app) *cobra.Command {
	var category string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List blocked accounts with their reasons",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			categories, err := parseCategoryFlag(category)
			if err != nil {
				return err
			}
			if err := app.service.LoadState(cmd.Context()); err != nil {
				return err
			}

			rendered, err := statusadapter.RenderBlocked(app.service.Blocked(categories...), statusadapter.RenderOptions{Now: app.now()})
			if err != nil {
				return fmt.Errorf("render blocked accounts: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)
			return err
		},
	}

	cmd.Flags().StringVar(&category, "category", "", "Only this category: unauthorized or channel")

	return cmd
}

func newBlockedUnblockCmd(app *app) *cobra.Command {
	var category string

	cmd := &cobra.Command{
		Use:   "unblock NAME",
		Short: "Remove an account from the block lists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			categories, err := parseCategoryFlag(category)
			if err != nil {
				return err
			}
			if err := app.service.LoadState(cmd.Context()); err != nil {
				return err
			}

			name := domain.AccountName(strings.TrimSpace(args[0]))
			removed, err := app.service.Unblock(cmd.Context(), name, categories...)
			if err != nil {
				return err
			}
			if !removed {
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s is not blocked\n", name)
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "unblocked %s\n", name)
			return err
		},
	}

	cmd.Flags().StringVar(&category, "category", "", "Only this category: unauthorized or channel")

	return cmd
}

func parseCategoryFlag(raw string) ([]domain.BlockCategory, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	category, err := domain.ParseBlockCategory(raw)
	if err != nil {
		return nil, err
	}
	return []domain.BlockCategory{category}, nil
}
