package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/notesync/auth-service/internal/app"
	"github.com/notesync/auth-service/internal/config"
	"github.com/notesync/auth-service/internal/observability"
)

func newServeCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and consume subscription events",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := config.LoadFile(opts.envFile)
			if err != nil {
				return err
			}
			logger, lp, err := observability.NewLogger(ctx, cfg, os.Stdout)
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			a, cleanup, err := app.InitializeApp(ctx, cfg, logger, lp)
			if err != nil {
				logger.Error("startup failed", "error", err)
				return err
			}
			defer cleanup()
			return a.Run(ctx)
		},
	}
}
