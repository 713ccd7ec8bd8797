package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"darkroom/internal/daemon"
	"darkroom/internal/monitoring"
	"darkroom/internal/monitoring/alerts"
)

func newWatchCommand(cctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Run the background daemon: watch the inbox and import automatically",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := cctx.newLogger()
			if err != nil {
				return err
			}
			store, err := cctx.openStore()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			// The daemon provides the health snapshot, so wire monitoring
			// to it after construction.
			var d *daemon.Daemon
			monitor, err := monitoring.NewService(ctx, logger, cfg, store.DB(), func(sampleCtx context.Context) (alerts.Snapshot, error) {
				if d == nil {
					return alerts.Snapshot{}, errors.New("daemon not started")
				}
				return d.HealthSnapshot(sampleCtx)
			})
			if err != nil {
				_ = store.Close()
				return err
			}

			d, err = daemon.New(cfg, logger, store, monitor)
			if err != nil {
				_ = store.Close()
				return err
			}
			defer d.Close()

			if err := d.Start(ctx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Watching %s (ctrl-c to stop)\n", cfg.Paths.InboxDir)

			<-ctx.Done()
			d.Stop()
			return nil
		},
	}
}
