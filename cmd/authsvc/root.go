package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/notesync/auth-service/internal/config"
	"github.com/notesync/auth-service/internal/observability"
)

type options struct {
	envFile string
	ci      bool
}

func newRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "authsvc",
		Short:         "Session and entitlement service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "optional env file read before the process environment")
	cmd.PersistentFlags().BoolVar(&opts.ci, "ci", false, "non-interactive machine-readable output")
	cmd.AddCommand(
		newServeCommand(opts),
		newMigrateCommand(opts),
		newCleanupCommand(opts),
		newInspectCommand(opts),
	)
	return cmd
}

// load reads config and builds a stderr logger for the one-shot commands. The
// returned func flushes exported log records.
func (o *options) load(ctx context.Context) (*config.Config, *slog.Logger, func(), error) {
	cfg, err := config.LoadFile(o.envFile)
	if err != nil {
		return nil, nil, nil, err
	}
	logger, lp, err := observability.NewLogger(ctx, cfg, os.Stderr)
	if err != nil {
		return nil, nil, nil, err
	}
	flush := func() {
		if lp == nil {
			return
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownObservabilityTimeout)
		defer cancel()
		_ = lp.Shutdown(shutdownCtx)
	}
	return cfg, logger, flush, nil
}
