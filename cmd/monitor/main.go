package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile string

	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "logmon",
	Short: "Tail a log file and send alerts for critical lines",
	Long: `logmon watches an append-only log file, remembers how far it has read
in a durable offset record, and sends a notification for every new line
containing the alert marker.

Examples:
  logmon init-config --config config.yaml
  logmon run --config config.yaml
  logmon offset show --config config.yaml
  logmon test-alert --config config.yaml`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("logmon %s\n", Version)
		fmt.Printf("Commit: %s\n", Commit)
		fmt.Printf("Built:  %s\n", BuildTime)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml or ./configs/config.yaml)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(initConfigCmd)
	rootCmd.AddCommand(offsetCmd)
	rootCmd.AddCommand(testAlertCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
