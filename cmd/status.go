package cmd

import (
	"encoding/json"
	"fmt"

	statusadapter "github.com/bnema/ritual-rpa/internal/adapters/render/status"
	"github.com/bnema/ritual-rpa/internal/application"
	"github.com/spf13/cobra"
)

func newStatusCmd(app *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show bless/curse progress for every account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := loadForQuery(cmd, app); err != nil {
				return err
			}
			return writeReportOutput(cmd, app, app.service.Report(), asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")

	return cmd
}

// loadForQuery loads persisted state and, when it can, the roster. A broken
// roster only costs the profile column, so it is logged rather than returned.
func loadForQuery(cmd *cobra.Command, app *app) error {
	if err := app.service.LoadState(cmd.Context()); err != nil {
		return err
	}
	if _, err := app.service.LoadRoster(cmd.Context()); err != nil {
		app.logger.Warn().Err(err).Msg("roster unavailable, showing persisted accounts only")
	}
	return nil
}

func writeReportOutput(cmd *cobra.Command, app *app, report application.ProgressReport, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	rendered, err := app.statusRenderer(report, statusadapter.RenderOptions{Now: app.now()})
	if err != nil {
		return fmt.Errorf("render status: %w", err)
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)
	return err
}
