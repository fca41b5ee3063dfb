package cli

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile    string
	appVersion string // set in Execute, used by serve for telemetry
)

// Execute creates the root command tree and runs it.
func Execute(version, commit, date string) error {
	appVersion = version
	rootCmd := newRootCmd(version, commit, date)
	return rootCmd.Execute()
}

func newRootCmd(version, commit, date string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "airwave",
		Short: "Authorization gateway for the radio directory API",
		Long: `Airwave guards the radio directory API. Every request passes through one
pipeline: resolve the caller's credential, charge their rate budget, and
check their scopes against what the route requires.

The serve command runs the HTTP gateway; the token and session commands
manage credentials from the shell.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./airwave.yaml)")

	cobra.OnInitialize(initConfig)

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newVersionCmd(version, commit, date))
	cmd.AddCommand(newTokenCmd())
	cmd.AddCommand(newSessionCmd())

	return cmd
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("airwave")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.airwave")
	}

	viper.SetEnvPrefix("AIRWAVE")
	viper.AutomaticEnv()
	viper.ReadInConfig() // Ignore error - config file is optional
}
