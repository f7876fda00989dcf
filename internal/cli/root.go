// Package cli implements worklogctl, the operator command line of the bot.
package cli

import (
	"fmt"
	"io"

	"github.com/field-worklog-bot/internal/config"
	"github.com/field-worklog-bot/pkg/logger"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Format string // "json" | "text"

	// load is replaced in tests
	load func() (*config.Config, error)
}

var validFormats = []string{"text", "json"}

// NewRootCommand creates the root command of worklogctl.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{load: config.Load})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worklogctl",
		Short: "Operate the field work-log bot",
		Long:  "Run spreadsheet exports and database migrations outside the bot server.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			for _, f := range validFormats {
				if f == opts.Format {
					return nil
				}
			}
			return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, validFormats)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewExportCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewCheckCommand(opts))

	return cmd
}

// setup loads the configuration and a logger writing to stderr, so stdout
// carries only command output
func (o *RootOptions) setup(stderr io.Writer) (*config.Config, zerolog.Logger, error) {
	cfg, err := o.load()
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	log := logger.New(cfg.Log).Output(zerolog.ConsoleWriter{Out: stderr})
	return cfg, log, nil
}
