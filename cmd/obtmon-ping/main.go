// obtmon-ping is an obtmon monitor: it pings HOST and fails when fewer than
// half of the packets come back.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/osbits/obtmon/internal/helper"
	"github.com/osbits/obtmon/internal/probe"
)

const defaultCount = 2

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	return helper.Execute(newCmd(stderr), args, stdout, stderr)
}

func newCmd(stderr io.Writer) *cobra.Command {
	logger := helper.Logger(stderr)
	var opts probe.PingOptions
	cmd := &cobra.Command{
		Use:   "obtmon-ping [flags] HOST",
		Short: "Ping HOST and fail when fewer than half of the packets are received",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Count <= 0 {
				return fmt.Errorf("count must be positive, got %d", opts.Count)
			}
			host := args[0]
			stats, err := probe.Ping(cmd.Context(), host, opts)
			if err != nil {
				logger.Error("ping failed", "host", host, "error", err)
				return helper.ErrFailed
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d packets transmitted, %d received, %.0f%% packet loss, avg %s\n",
				host, stats.Sent, stats.Received, stats.PacketLoss, stats.AvgRtt)
			if err := probe.CheckPing(opts.Count, stats); err != nil {
				logger.Error(err.Error(), "host", host)
				return helper.ErrFailed
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.IntVarP(&opts.Count, "count", "c", defaultCount, "send COUNT packets")
	f.DurationVarP(&opts.Timeout, "timeout", "W", 0, "overall timeout (default COUNT+1 seconds)")
	f.BoolVar(&opts.Privileged, "privileged", false, "use raw ICMP sockets instead of unprivileged UDP")
	return cmd
}
