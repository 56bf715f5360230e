package main

import (
	"github.com/spf13/cobra"
)

type globalFlags struct {
	configFile string
	envFile    string
}

// NewRootCmd creates the root command with every subcommand attached.
func NewRootCmd() *cobra.Command {
	flags := &globalFlags{}
	cmd := &cobra.Command{
		Use:           "portalauth",
		Short:         "PREM Properties admin and member authentication",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.PersistentFlags().StringVar(&flags.configFile, "config", "", "YAML config file path")
	cmd.PersistentFlags().StringVar(&flags.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")

	cmd.AddCommand(NewServeCmd(flags))
	cmd.AddCommand(NewMigratePasswordsCmd(flags))
	cmd.AddCommand(NewHashPasswordCmd())

	return cmd
}
