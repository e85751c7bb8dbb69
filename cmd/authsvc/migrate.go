package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/notesync/auth-service/internal/config"
	"github.com/notesync/auth-service/internal/db"
	"github.com/notesync/auth-service/internal/db/migrate"
	"github.com/notesync/auth-service/internal/tools/common"
)

func newMigrateCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{Use: "migrate", Short: "Apply or roll back schema migrations"}
	cmd.AddCommand(
		newMigrateDirectionCommand(opts, migrate.DirectionUp, "Apply all pending migrations"),
		newMigrateDirectionCommand(opts, migrate.DirectionDown, "Roll back all migrations"),
		newMigrateVersionCommand(opts),
	)
	return cmd
}

func newMigrateDirectionCommand(opts *options, direction, short string) *cobra.Command {
	return &cobra.Command{
		Use:   direction,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, flush, err := opts.load(cmd.Context())
			if err != nil {
				return err
			}
			defer flush()
			if cfg.DBDriver == "sqlite" {
				err = migrateSQLite(cmd.Context(), cfg, direction)
			} else {
				err = migrate.Run(cfg.DatabaseURL, direction)
			}
			if opts.ci {
				common.PrintCIResult(err == nil, "migrate "+direction, []string{"driver=" + cfg.DBDriver}, err)
			}
			if err != nil {
				return err
			}
			logger.Info("migrations applied", "direction", direction, "driver", cfg.DBDriver)
			return nil
		},
	}
}

// migrateSQLite builds the schema from the models; there is no down path.
func migrateSQLite(ctx context.Context, cfg *config.Config, direction string) error {
	if direction != migrate.DirectionUp {
		return errors.New("sqlite schemas only migrate up")
	}
	gdb, err := db.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close(gdb) }()
	return db.AutoMigrate(gdb)
}

func newMigrateVersionCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the applied migration version",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, flush, err := opts.load(cmd.Context())
			if err != nil {
				return err
			}
			defer flush()
			if cfg.DBDriver != "postgres" {
				return fmt.Errorf("migration versions are tracked for postgres only, driver is %s", cfg.DBDriver)
			}
			version, dirty, err := migrate.Version(cfg.DatabaseURL)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version=%d dirty=%t\n", version, dirty)
			return nil
		},
	}
}
