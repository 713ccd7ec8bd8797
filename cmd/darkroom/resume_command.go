package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"darkroom/internal/importer"
	"darkroom/internal/session"
)

func newResumeCommand(cctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "resume <session-id>",
		Short: "Resume a paused import session",
		Args:  cobra.ExactArgs(1),
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
			defer store.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			orch := importer.NewOrchestrator(logger, cfg, store, store, nil, nil)
			return runImport(ctx, cmd, jsonOutput, func(opts importer.Options) (*session.Session, error) {
				return orch.Resume(ctx, args[0], opts)
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit progress and completion events as JSON lines")
	return cmd
}
