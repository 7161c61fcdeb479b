package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/trickstertwo/xtrack"
	"github.com/trickstertwo/xtrack/internal/log"
)

var (
	// Set via ldflags during build
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "xtrack",
		Short: "xtrack - send tracking events to a collector",
		Long: `xtrack builds tracking events (page views, structured events,
self-describing events, screen views and ecommerce transactions) and
delivers them to a collector over HTTP GET or POST.

It also runs a stub collector that records what it receives, for local
development.`,
		Version:       xtrack.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level, _ := cmd.Flags().GetString("log-level")
			jsonOutput, _ := cmd.Flags().GetBool("log-json")
			log.Init(log.Config{
				Level:      log.ParseLevel(level),
				JSONOutput: jsonOutput,
				Output:     cmd.ErrOrStderr(),
			})
		},
	}

	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"xtrack version %s\nTracker: %s\nCommit: %s\nBuilt: %s\n",
		xtrack.Version, xtrack.TrackerVersion(), Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Write logs as JSON")

	rootCmd.AddCommand(newTrackCmd())
	rootCmd.AddCommand(newCollectorCmd())
	return rootCmd
}
