package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newStatusCommand(cctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status <session-id>",
		Short: "Show one session in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := cctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			sess, err := store.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if sess == nil {
				return fmt.Errorf("session %s not found", args[0])
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Session:    %s\n", sess.ID)
			fmt.Fprintf(out, "Status:     %s\n", sess.Status)
			fmt.Fprintf(out, "Resumed:    %s\n", yesNo(sess.Resumed))
			fmt.Fprintf(out, "Resumable:  %s\n", yesNo(sess.Resumable()))
			fmt.Fprintf(out, "Sources:    %v\n", sess.SourcePaths)
			fmt.Fprintf(out, "Archive:    %s\n", sess.ArchiveRoot)
			fmt.Fprintf(out, "Files:      %d\n", sess.FilesTotal)
			fmt.Fprintf(out, "Bytes:      %s of %s copied\n",
				humanize.Bytes(uint64(sess.BytesProcessed)), humanize.Bytes(uint64(sess.BytesTotal)))
			fmt.Fprintf(out, "Duplicates: %d\n", sess.Duplicates)
			fmt.Fprintf(out, "Errors:     %d\n", sess.Errors)
			if sess.LastError != "" {
				fmt.Fprintf(out, "Last error: %s\n", sess.LastError)
			}
			fmt.Fprintf(out, "Created:    %s\n", humanize.Time(sess.CreatedAt))
			if sess.CompletedAt != nil {
				fmt.Fprintf(out, "Completed:  %s\n", humanize.Time(*sess.CompletedAt))
			}

			snapshot, err := sess.GetSnapshot()
			if err != nil {
				return err
			}
			if len(snapshot.Validated) > 0 {
				var invalid int
				for _, file := range snapshot.Validated {
					if !file.IsValid && file.ValidationError != "" {
						invalid++
						fmt.Fprintf(out, "  failed: %s (%s)\n", file.Filename, file.ValidationError)
					}
				}
				if invalid == 0 {
					fmt.Fprintln(out, "All copied files verified")
				}
			}
			return nil
		},
	}
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
