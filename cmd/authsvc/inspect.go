package main

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"github.com/notesync/auth-service/internal/app"
	"github.com/notesync/auth-service/internal/tools/common"
	"github.com/notesync/auth-service/internal/tools/inspect"
)

func newInspectCommand(opts *options) *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show an account's sessions, features and permissions",
		RunE: func(cmd *cobra.Command, args []string) error {
			email = strings.TrimSpace(email)
			if email == "" {
				return errors.New("--user is required")
			}
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

			collector := inspect.NewCollector(m.Users, m.Sessions, m.Features, m.Permissions)
			if !opts.ci {
				return inspect.Run(cmd.Context(), email, collector)
			}
			snap, err := collector.Collect(cmd.Context(), email)
			var details []string
			if err == nil {
				details = inspect.Summary(snap)
			}
			common.PrintCIResult(err == nil, "inspect "+email, details, err)
			return err
		},
	}
	cmd.Flags().StringVar(&email, "user", "", "email of the account to inspect")
	return cmd
}
