package cli

import (
	"encoding/json"
	"fmt"

	"github.com/field-worklog-bot/internal/app"
	"github.com/field-worklog-bot/internal/service"
	"github.com/spf13/cobra"
)

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Run one spreadsheet sync and print its result",
		Long: `Mirror the report store into the monthly spreadsheets once.

Fails if another run, local or on another replica sharing Redis, holds the sync lock.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := rootOpts.setup(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			a, err := app.New(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.Services.Sync.Run(cmd.Context())
			if service.IsInProgress(err) {
				return fmt.Errorf("an export is already running")
			}
			if err != nil {
				return fmt.Errorf("export failed: %w", err)
			}

			out := cmd.OutOrStdout()
			if rootOpts.Format == "json" {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			fmt.Fprintf(out, "run %s: %s\n", res.RunID, res.Summary())
			for _, e := range res.Errors {
				fmt.Fprintf(out, "  error: %s\n", e)
			}
			return nil
		},
	}
}
