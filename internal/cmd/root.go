package cmd

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the cappit root command with every subcommand attached
func NewRootCmd(version string) *cobra.Command {
	return newRootCmd(NewApp(), version)
}

func newRootCmd(a *App, version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "cappit",
		Short: "CTF challenge container manager",
		Long: `Cappit builds, runs and tracks Docker containers for CTF challenges,
assigning each challenge a stable public port from a fixed range.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&a.ConfigFile, "config", "c", "", "Extra config file merged over .cappit.config")
	flags.String("state", "", "Registry state file (default challs.json)")
	flags.String("storage", "", "Registry backend: json or sqlite")
	flags.BoolP("verbose", "v", false, "Enable debug logging")
	flags.Bool("log-json", false, "Log as JSON")

	_ = a.Viper.BindPFlag("state_path", flags.Lookup("state"))
	_ = a.Viper.BindPFlag("storage", flags.Lookup("storage"))
	_ = a.Viper.BindPFlag("verbose", flags.Lookup("verbose"))
	_ = a.Viper.BindPFlag("log_json", flags.Lookup("log-json"))

	rootCmd.AddCommand(NewListCmd(a))
	rootCmd.AddCommand(NewRunCmd(a))
	rootCmd.AddCommand(NewStartCmd(a))
	rootCmd.AddCommand(NewRestartCmd(a))
	rootCmd.AddCommand(NewStopCmd(a))
	rootCmd.AddCommand(NewRemoveCmd(a))
	rootCmd.AddCommand(NewClearCmd(a))
	rootCmd.AddCommand(NewBindCmd(a))
	rootCmd.AddCommand(NewInfoCmd(a))
	rootCmd.AddCommand(NewLogsCmd(a))
	rootCmd.AddCommand(NewMenuCmd(a))

	return rootCmd
}
