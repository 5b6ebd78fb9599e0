package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/osbits/obtmon/internal/observability"
	"github.com/osbits/obtmon/internal/schedule"
	"github.com/osbits/obtmon/internal/server"
)

func newWatchCmd() *cobra.Command {
	opts := &options{}
	var (
		cron   string
		listen string
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Repeat the run on a cron schedule until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.setup(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if cmd.Flags().Changed("schedule") {
				a.cfg.Schedule.Cron = cron
			}
			if cmd.Flags().Changed("listen") {
				a.cfg.Server.Listen = listen
			}
			if a.cfg.Schedule.Cron == "" {
				return usageError(errors.New("no schedule given, use --schedule or schedule.cron"))
			}
			if err := schedule.Validate(a.cfg.Schedule.Cron); err != nil {
				return usageError(err)
			}
			allow, err := server.ParseAllowlist(a.cfg.Server.Allow)
			if err != nil {
				return usageError(err)
			}

			rb := observability.SetupRollbar(a.logger, a.cfg.Service.Name)
			defer rb.Flush()
			defer rb.CapturePanic()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			var status *server.App
			if a.cfg.Server.Listen != "" {
				var history server.History
				if a.store != nil {
					history = a.store
				}
				status = server.New(history, a.collector.Handler(), a.logger)
				status.Restrict(allow)
				a.engine.Observers = append(a.engine.Observers, status)
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return schedule.Run(gctx, a.cfg.Schedule.Cron, a.location, a.logger, func(runCtx context.Context) {
					defer rb.RecoverRun()
					a.engine.Run(runCtx)
				})
			})
			if status != nil {
				g.Go(func() error {
					return status.Serve(gctx, a.cfg.Server.Listen)
				})
			}
			err = g.Wait()
			if err != nil && !errors.Is(err, context.Canceled) {
				return &exitError{code: exitFailed, err: err}
			}
			a.logger.Info("watch stopped")
			return nil
		},
	}
	opts.register(cmd)
	cmd.Flags().StringVar(&cron, "schedule", "", `cron expression, e.g. "*/5 * * * *"`)
	cmd.Flags().StringVar(&listen, "listen", "", "serve /healthz, /metrics and the history API on this address")
	return cmd
}
