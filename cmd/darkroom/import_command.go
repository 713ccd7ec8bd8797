package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"darkroom/internal/config"
	"darkroom/internal/importer"
	"darkroom/internal/preflight"
	"darkroom/internal/session"
)

func newImportCommand(cctx *commandContext) *cobra.Command {
	var (
		skipPreflight bool
		archiveRoot   string
		jsonOutput    bool
	)

	cmd := &cobra.Command{
		Use:   "import <source>...",
		Short: "Import media from one or more source paths into the archive",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cctx.ensureConfig()
			if err != nil {
				return err
			}

			sources := make([]string, 0, len(args))
			for _, arg := range args {
				abs, err := filepath.Abs(arg)
				if err != nil {
					return fmt.Errorf("resolve source path %q: %w", arg, err)
				}
				sources = append(sources, abs)
			}

			destRoot := cfg.Paths.ArchiveRoot
			if archiveRoot != "" {
				if destRoot, err = config.ExpandPath(archiveRoot); err != nil {
					return fmt.Errorf("resolve archive root %q: %w", archiveRoot, err)
				}
			}

			if !skipPreflight {
				results := preflight.RunAll(destRoot, 0)
				for _, result := range results {
					if !result.Passed {
						return fmt.Errorf("preflight failed: %s: %s", result.Name, result.Detail)
					}
				}
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
				opts.SourcePaths = sources
				opts.ArchiveRoot = destRoot
				return orch.Start(ctx, opts)
			})
		},
	}

	cmd.Flags().BoolVar(&skipPreflight, "skip-preflight", false, "Skip archive access and free-space checks")
	cmd.Flags().StringVar(&archiveRoot, "archive", "", "Archive root for this batch (defaults to paths.archive_root)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit progress and completion events as JSON lines")
	return cmd
}

// runImport drives one orchestrator run, rendering progress on a
// terminal or emitting events as JSON lines, and prints the completion
// summary.
func runImport(
	ctx context.Context,
	cmd *cobra.Command,
	jsonOutput bool,
	run func(importer.Options) (*session.Session, error),
) error {
	out := cmd.OutOrStdout()
	interactive := !jsonOutput && isatty.IsTerminal(os.Stdout.Fd())
	enc := json.NewEncoder(out)

	var lastLine time.Time
	opts := importer.Options{
		OnProgress: func(event importer.ProgressEvent) {
			if jsonOutput {
				_ = enc.Encode(event)
				return
			}
			if !interactive {
				return
			}
			// Redrawing on every file floods slow terminals.
			if time.Since(lastLine) < 100*time.Millisecond && event.Percent < 100 {
				return
			}
			lastLine = time.Now()
			fmt.Fprintf(out, "\r\033[K[%s] %5.1f%%  %s / %s  %s",
				event.Step,
				event.Percent,
				humanize.Bytes(uint64(event.BytesProcessed)),
				humanize.Bytes(uint64(event.BytesTotal)),
				event.CurrentFile,
			)
		},
		OnComplete: func(event importer.CompletionEvent) {
			if jsonOutput {
				_ = enc.Encode(event)
				return
			}
			if interactive {
				fmt.Fprint(out, "\r\033[K")
			}
			fmt.Fprintf(out, "Session %s %s: %d imported, %d duplicates, %d errors in %s\n",
				event.SessionID,
				event.Status,
				event.TotalImported,
				event.TotalDuplicates,
				event.TotalErrors,
				(time.Duration(event.TotalDurationMs) * time.Millisecond).Round(time.Millisecond),
			)
		},
	}

	sess, err := run(opts)
	if err != nil {
		return err
	}
	if jsonOutput {
		return nil
	}
	switch sess.Status {
	case session.StatusPaused:
		fmt.Fprintf(out, "Network unavailable; resume later with: darkroom resume %s\n", sess.ID)
	case session.StatusCancelled:
		fmt.Fprintln(out, "Import cancelled")
	}
	return nil
}
