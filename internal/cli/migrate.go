package cli

import (
	"fmt"
	"strconv"

	"github.com/field-worklog-bot/internal/database"
	"github.com/spf13/cobra"
)

// NewMigrateCommand creates the migrate command with its up, down and to subcommands.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back database migrations",
	}
	cmd.PersistentFlags().StringVar(&path, "path", "", "migrations directory (default: MIGRATIONS_PATH)")

	run := func(cmd *cobra.Command, fn func(db *database.DB, path string) error) error {
		cfg, log, err := rootOpts.setup(cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		if path == "" {
			path = cfg.Database.MigrationsPath
		}
		db, err := database.New(&cfg.Database, log)
		if err != nil {
			return err
		}
		defer db.Close()
		return fn(db, path)
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(db *database.DB, path string) error {
				return db.RunMigrations(path)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the last migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(db *database.DB, path string) error {
				return db.MigrateDown(path)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "to <version>",
		Short: "Migrate up or down to a specific version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.ParseUint(args[0], 10, 32)
			if err != nil {
				return fmt.Errorf("invalid version %q", args[0])
			}
			return run(cmd, func(db *database.DB, path string) error {
				return db.MigrateToVersion(path, uint(version))
			})
		},
	})

	return cmd
}
