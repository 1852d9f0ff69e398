package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/casediff/internal/logging"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose  bool
	Format   string // "json" | "text"
	LogLevel string
	LogJSON  bool

	open BackendOpener
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the casediff CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(OpenBackends)
}

func newRootCommand(open BackendOpener) *cobra.Command {
	opts := &RootOptions{open: open}

	cmd := &cobra.Command{
		Use:   "casediff",
		Short: "casediff - reconcile cases between storage backends",
		Long: `Diff cases and stock ledgers held in the legacy document store against
the relational store they are being migrated to, explain what a rebuild
from form history accounts for, and record the rest for review.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			if _, err := logging.ParseLevel(opts.LogLevel); err != nil {
				return WrapExitError(ExitCommandError, "invalid --log-level", err)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "info", "log level (debug|info|warn|error)")
	cmd.PersistentFlags().BoolVar(&opts.LogJSON, "log-json", false, "log one JSON object per line")

	cmd.AddCommand(NewDiffCommand(opts))
	cmd.AddCommand(NewReportCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))
	cmd.AddCommand(NewVersionCommand(opts))

	return cmd
}

// formatter returns the output formatter for a command.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// logger builds the session logger writing to w. --verbose lowers the
// level to debug.
func (o *RootOptions) logger(w io.Writer) (*slog.Logger, error) {
	level := o.LogLevel
	if o.Verbose {
		level = "debug"
	}
	return logging.New(w, logging.Options{Level: level, JSON: o.LogJSON})
}
