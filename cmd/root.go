package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"
)

func Execute() error {
	return ExecuteContext(context.Background())
}

func ExecuteContext(ctx context.Context) error {
	return newRootCmd().ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		logLevel   string
	)

	// Filled in by PersistentPreRunE once flags are parsed.
	app := &app{}
	wired := false

	rootCmd := &cobra.Command{
		Use:           "ritual",
		Short:         "Ritual: bless/curse automation over AdsPower browser profiles",
		Long:          "ritual plans bless and curse slash commands between your Discord accounts, drives each account's AdsPower browser profile to send them, and keeps per-account progress toward daily limits and lifetime targets.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if configPath == "" {
				configPath = os.Getenv("RITUAL_CONFIG")
			}
			built, err := wireApp(wireOptions{ConfigPath: configPath, LogLevel: logLevel, Stderr: cmd.ErrOrStderr()})
			if err != nil {
				return err
			}
			*app = *built
			wired = true
			return nil
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			if !wired {
				return nil
			}
			return app.Close()
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ~/.ritual/config.toml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: trace, debug, info, warn, error")

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(app),
		newDaemonCmd(app),
		newStatusCmd(app),
		newBlockedCmd(app),
		newAccountsCmd(app),
		newSettingsCmd(app),
		newSecretCmd(app),
	)

	return rootCmd
}
