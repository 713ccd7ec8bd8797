package main

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"darkroom/internal/session"
)

func newSessionsCommand(cctx *commandContext) *cobra.Command {
	var statusFilter string

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List import sessions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := cctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			var filters []session.Status
			if statusFilter != "" {
				status, ok := session.ParseStatus(statusFilter)
				if !ok {
					return fmt.Errorf("unknown status %q", statusFilter)
				}
				filters = append(filters, status)
			}

			sessions, err := store.List(cmd.Context(), filters...)
			if err != nil {
				return err
			}
			if len(sessions) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No sessions found")
				return nil
			}

			rows := make([][]string, 0, len(sessions))
			for _, sess := range sessions {
				rows = append(rows, []string{
					sess.ID,
					string(sess.Status),
					strconv.Itoa(sess.FilesTotal),
					humanize.Bytes(uint64(sess.BytesTotal)),
					strconv.Itoa(sess.Duplicates),
					strconv.Itoa(sess.Errors),
					humanize.Time(sess.CreatedAt),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Status", "Files", "Size", "Dups", "Errors", "Created"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().StringVarP(&statusFilter, "status", "s", "", "Only show sessions with this status")
	return cmd
}
