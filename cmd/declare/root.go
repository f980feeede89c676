package main

import (
	"github.com/jason-s-yu/declare/internal/config"
	"github.com/jason-s-yu/declare/internal/logging"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	cfg := &config.Config{}
	var envFile string

	cmd := &cobra.Command{
		Use:           "declare",
		Short:         "Multiplayer Declare card game server.",
		Args:          cobra.NoArgs,
		Version:       releaseVersion,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadDotEnv(envFile); err != nil {
				return err
			}
			config.Bind(cmd.Flags())
			return nil
		},
	}
	pf := cmd.PersistentFlags()
	pf.StringVar(&envFile, "env-file", ".env", "optional dotenv file loaded before reading DECLARE_* variables")
	cfg.AddLogFlags(pf)

	cmd.AddCommand(newServeCmd(cfg), newSimulateCmd(cfg))

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("declare v{{.Version}}\n")
	return cmd
}

func newLogger(cfg *config.Config) (*logrus.Logger, error) {
	return logging.New(nil, cfg.LogLevel, cfg.LogFormat)
}
