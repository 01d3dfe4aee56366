package main

import (
	"fmt"
	"os"

	"github.com/cuemby/strata/pkg/log"
	"github.com/cuemby/strata/pkg/metrics"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "strata",
	Short: "Strata - convergent configuration for Ceph nodes",
	Long: `Strata brings a Ceph node to the state described by its attributes:
packages, OSD devices, the mgr daemon and federated radosgw zones.

Every run is idempotent. Resources that are already in the desired
state are left alone, so strata can be run repeatedly or as a daemon.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level, _ := cmd.Flags().GetString("log-level")
		jsonOutput, _ := cmd.Flags().GetBool("log-json")
		log.Init(log.Config{
			Level:      log.Level(level),
			JSONOutput: jsonOutput,
		})
		metrics.SetVersion(Version)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "Strata version %s\nCommit: %s\nBuilt: %s\n", Version, Commit, BuildTime)
	},
}

func init() {
	// Set version template
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Strata version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	// Add subcommands
	rootCmd.AddCommand(convergeCmd)
	rootCmd.AddCommand(attrCmd)
	rootCmd.AddCommand(versionCmd)
}
