package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/bnema/ritual-rpa/internal/domain"
	"github.com/spf13/cobra"
)

func newSecretCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Store credentials such as the AdsPower API key in pass or ~/.ritual/secrets",
	}

	cmd.AddCommand(
		newSecretSetCmd(app),
		newSecretDeleteCmd(app),
		newSecretCheckCmd(app),
	)

	return cmd
}

func newSecretSetCmd(app *app) *cobra.Command {
	var (
		value     string
		fromStdin bool
	)

	cmd := &cobra.Command{
		Use:   "set KEY",
		Short: "Store a secret (the API key lives at adspower/api_key)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if fromStdin {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read secret from stdin: %w", err)
				}
				value = string(data)
			}
			value = strings.TrimSpace(value)
			if value == "" {
				return errors.New("secret value is empty: pass --value or --stdin")
			}

			if err := app.secrets.Put(cmd.Context(), args[0], value); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "stored %s\n", args[0])
			return err
		},
	}

	cmd.Flags().StringVar(&value, "value", "", "Secret value")
	cmd.Flags().BoolVar(&fromStdin, "stdin", false, "Read the secret value from stdin")
	cmd.MarkFlagsMutuallyExclusive("value", "stdin")

	return cmd
}

func newSecretDeleteCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete KEY",
		Short: "Remove a secret from every store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.secrets.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return err
		},
	}
}

func newSecretCheckCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check KEY",
		Short: "Report whether a secret is stored, without printing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := app.secrets.Get(cmd.Context(), args[0])
			switch {
			case errors.Is(err, domain.ErrSecretNotFound):
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s is not set\n", args[0])
				return err
			case err != nil:
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s is set\n", args[0])
			return err
		},
	}
}
