package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/notesync/auth-service/internal/app"
	"github.com/notesync/auth-service/internal/tools/common"
)

func newCleanupCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Remove expired sessions and aged revocation records once",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, flush, err := opts.load(cmd.Context())
			if err != nil {
				return err
			}
			defer flush()
			m, closeStores, err := app.InitializeMaintenance(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer closeStores()

			report, err := m.Sessions.CleanupExpired(cmd.Context())
			details := []string{
				fmt.Sprintf("expired_sessions=%d", report.ExpiredSessions),
				fmt.Sprintf("aged_tombstones=%d", report.AgedTombstones),
			}
			if opts.ci {
				common.PrintCIResult(err == nil, "cleanup", details, err)
				return err
			}
			if err != nil {
				return err
			}
			for _, line := range details {
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		},
	}
}
