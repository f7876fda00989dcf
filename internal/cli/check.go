package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/field-worklog-bot/internal/database"
	"github.com/spf13/cobra"
)

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify the configuration and the database connection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := rootOpts.setup(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			db, err := database.New(&cfg.Database, log)
			if err != nil {
				return err
			}
			defer db.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			if err := db.HealthCheck(ctx); err != nil {
				return fmt.Errorf("database unreachable: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: database %s@%s, sheets backend %s\n",
				cfg.Database.Name, cfg.Database.Host, cfg.Sheets.Backend)
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "database ping timeout")

	return cmd
}
