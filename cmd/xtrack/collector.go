package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/trickstertwo/xtrack/internal/log"
	"github.com/trickstertwo/xtrack/internal/stubcollector"
)

func newCollectorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "collector",
		Short: "Run a stub collector that records received events",
		Long: `Run a stub collector for local development.

It accepts GET requests on the event path and POST payload_data envelopes
on the tp2 path, logs every event at debug level and exposes request
counters on /metrics.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, _ := cmd.Flags().GetString("addr")
			getPath, _ := cmd.Flags().GetString("get-path")
			postPath, _ := cmd.Flags().GetString("post-path")

			c := stubcollector.New(stubcollector.Config{
				GetPath:  getPath,
				PostPath: postPath,
				Logger:   log.WithComponent("collector"),
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return stubcollector.ListenAndServe(ctx, addr, c)
		},
	}
	cmd.Flags().String("addr", ":9090", "Listen address")
	cmd.Flags().String("get-path", stubcollector.DefaultGetPath, "Path accepting GET events")
	cmd.Flags().String("post-path", stubcollector.DefaultPostPath, "Path accepting POST batches")
	return cmd
}
