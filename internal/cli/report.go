package cli

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/roach88/casediff/internal/config"
	"github.com/roach88/casediff/internal/engine"
	"github.com/roach88/casediff/internal/ir"
)

// ReportOptions holds flags for the report command.
type ReportOptions struct {
	*RootOptions
	ConfigPath string
	State      string
	FailOnDiff bool
}

// NewReportCommand creates the report command.
func NewReportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print what the state store holds",
		Long: `Print the unresolved diffs, explained changes and missing docs saved
by earlier diff sessions, and how many cases have been diffed.

The state store is read from --config, or from --state alone.

Exit codes:
  0 - Report printed (clean, or --fail-on-diff not set)
  1 - --fail-on-diff set and the report is not clean
  2 - Command error (bad config, state store unreachable)

Examples:
  casediff report --state casediff.db
  casediff report --config casediff.cue --format json
  casediff report --state redis://localhost:6379 --fail-on-diff`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "session config file")
	cmd.Flags().StringVar(&opts.State, "state", "", "state store: a SQLite path or redis://host:port")
	cmd.Flags().BoolVar(&opts.FailOnDiff, "fail-on-diff", false, "exit 1 when the report is not clean")

	return cmd
}

// stateConfig resolves which state store to read.
func (o *ReportOptions) stateConfig() (config.State, error) {
	st := defaultState()
	if o.ConfigPath != "" {
		cfg, err := config.Load(o.ConfigPath)
		if err != nil {
			return st, err
		}
		st = cfg.State
	} else if o.State == "" {
		return st, NewExitError(ExitCommandError, "one of --config or --state is required")
	}
	if o.State != "" {
		applyStateFlag(&st, o.State)
	}
	return st, nil
}

func runReport(cmd *cobra.Command, opts *ReportOptions) error {
	ctx := cmd.Context()
	out := opts.formatter(cmd)

	st, err := opts.stateConfig()
	if err != nil {
		out.Error(CodeConfig, err.Error(), nil)
		return WrapExitError(ExitCommandError, "resolve state store", err)
	}

	state, closeState, err := OpenState(ctx, st)
	if err != nil {
		out.Error(CodeBackend, err.Error(), nil)
		return WrapExitError(ExitCommandError, "open state store", err)
	}
	defer closeState()

	report, err := engine.LoadReport(ctx, state)
	if err != nil {
		out.Error(CodeBackend, err.Error(), nil)
		return WrapExitError(ExitCommandError, "load report", err)
	}

	if opts.Format == "json" {
		data, err := ir.MarshalCanonical(report.Object())
		if err != nil {
			return WrapExitError(ExitCommandError, "encode report", err)
		}
		err = out.Success(json.RawMessage(data))
		if err != nil {
			return WrapExitError(ExitCommandError, "write report", err)
		}
	} else if err := out.Success(report); err != nil {
		return WrapExitError(ExitCommandError, "write report", err)
	}

	if opts.FailOnDiff && !report.Clean() {
		return NewExitError(ExitFailure, "report has unresolved diffs or missing docs")
	}
	return nil
}
