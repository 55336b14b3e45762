package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/andrewwormald/stepflow/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "provisioner",
	Short: "Provisions file gateways in newly created AWS accounts",
	Long: `provisioner deploys the gateway network stack, activates a file gateway against the
provisioned host, attaches its cache disk and records the result. Executions are durable and
are advanced by a poller started with "provisioner run".`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to a yaml config file, PROVISIONER_ env variables override it")
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	return config.Load(path)
}
