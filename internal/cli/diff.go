package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/casediff/internal/config"
	"github.com/roach88/casediff/internal/engine"
	"github.com/roach88/casediff/internal/ir"
	"github.com/roach88/casediff/internal/rebuild"
)

// DiffOptions holds flags for the diff command.
type DiffOptions struct {
	*RootOptions
	ConfigPath  string
	Domain      string
	State       string
	Concurrency int
	MetricsAddr string
	Cases       []string
}

// DiffSummary is what a diff session reports when it finishes.
type DiffSummary struct {
	Session    string `json:"session"`
	Domain     string `json:"domain"`
	Batches    int    `json:"batches"`
	Cases      int    `json:"cases"`
	Deferred   int    `json:"deferred"`
	Unresolved int    `json:"unresolved"`
	Changes    int    `json:"changes"`
	Missing    int    `json:"missing"`
}

// Clean reports whether the session found nothing to review.
func (s DiffSummary) Clean() bool {
	return s.Unresolved == 0 && s.Missing == 0
}

// WriteText prints the summary for humans.
func (s DiffSummary) WriteText(w io.Writer) error {
	_, err := fmt.Fprintf(w,
		"session %s (domain %s)\n"+
			"  batches:    %d\n"+
			"  cases:      %d\n"+
			"  deferred:   %d\n"+
			"  unresolved: %d\n"+
			"  changes:    %d\n"+
			"  missing:    %d\n",
		s.Session, s.Domain, s.Batches, s.Cases, s.Deferred, s.Unresolved, s.Changes, s.Missing)
	return err
}

// NewDiffCommand creates the diff command.
func NewDiffCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DiffOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "diff",
		Short: "Diff a domain's cases and save the results",
		Long: `Diff every case of a domain, or the cases given with --case, in batches
of batch_size. Each batch is diffed against the relational store and its
diffs, explained changes and missing docs are saved to the state store.

Exit codes:
  0 - No unresolved diffs or missing docs
  1 - Unresolved diffs or missing docs found
  2 - Command error (bad config, backend unreachable, batch aborted)

Examples:
  casediff diff --config casediff.cue
  casediff diff --config casediff.cue --state redis://localhost:6379
  casediff diff --config casediff.cue --case c1 --case c2 --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiff(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "casediff.cue", "session config file")
	cmd.Flags().StringVar(&opts.Domain, "domain", "", "override the configured domain")
	cmd.Flags().StringVar(&opts.State, "state", "", "state store: a SQLite path or redis://host:port")
	cmd.Flags().IntVar(&opts.Concurrency, "concurrency", 0, "override the configured concurrency")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve /metrics on this address while diffing")
	cmd.Flags().StringSliceVar(&opts.Cases, "case", nil, "diff only these case ids")

	return cmd
}

// loadConfig reads the config file and applies flag overrides.
func (o *DiffOptions) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return nil, err
	}
	if o.Domain != "" {
		cfg.Domain = o.Domain
	}
	if o.State != "" {
		applyStateFlag(&cfg.State, o.State)
	}
	if cmd.Flags().Changed("concurrency") {
		cfg.Concurrency = o.Concurrency
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runDiff(cmd *cobra.Command, opts *DiffOptions) error {
	ctx := cmd.Context()
	out := opts.formatter(cmd)

	cfg, err := opts.loadConfig(cmd)
	if err != nil {
		out.Error(CodeConfig, err.Error(), nil)
		return WrapExitError(ExitCommandError, "load config", err)
	}

	logger, err := opts.logger(cmd.ErrOrStderr())
	if err != nil {
		return WrapExitError(ExitCommandError, "create logger", err)
	}

	reg := prometheus.NewRegistry()
	if opts.MetricsAddr != "" {
		srv, err := startMetricsServer(opts.MetricsAddr, reg, logger)
		if err != nil {
			return WrapExitError(ExitCommandError, "start metrics server", err)
		}
		defer srv.Stop()
	}

	backends, err := opts.open(ctx, cfg)
	if err != nil {
		out.Error(CodeBackend, err.Error(), nil)
		return WrapExitError(ExitCommandError, "open backends", err)
	}
	defer func() {
		if err := backends.Close(); err != nil {
			logger.Warn("closing backends", "error", err)
		}
	}()

	ws, err := cfg.WorkerState()
	if err != nil {
		return WrapExitError(ExitCommandError, "create worker state", err)
	}

	rec := engine.New(backends.Docs, backends.SQL,
		rebuild.DocumentStrategy{Docs: backends.Docs, Mode: cfg.RebuildMode()},
		rebuild.RelationalStrategy{SQL: backends.SQL, Docs: backends.Docs},
		append(cfg.ReconcilerOptions(),
			engine.WithLogger(logger),
			engine.WithMetrics(engine.NewMetrics(reg)),
		)...,
	)

	summary, err := diffSession(ctx, rec, ws, backends, cfg.BatchSize, opts.Cases, logger, out)
	if err != nil {
		out.Error(CodeBatch, err.Error(), map[string]string{"session": ws.SessionID})
		return WrapExitError(ExitCommandError, "diff session", err)
	}
	if err := out.Success(summary); err != nil {
		return WrapExitError(ExitCommandError, "write summary", err)
	}
	if !summary.Clean() {
		return NewExitError(ExitFailure,
			fmt.Sprintf("%d unresolved diffs, %d missing docs", summary.Unresolved, summary.Missing))
	}
	return nil
}

// diffSession diffs ids, or the whole domain when ids is empty, one batch
// at a time. A failed batch stops the session; earlier batches stay saved.
func diffSession(ctx context.Context, rec *engine.Reconciler, ws *engine.WorkerState, b *Backends,
	batchSize int, ids []string, logger *slog.Logger, out *OutputFormatter) (DiffSummary, error) {
	summary := DiffSummary{Session: ws.SessionID, Domain: ws.Domain}

	if len(ids) == 0 {
		var err error
		ids, err = b.Docs.CaseIDs(ctx, ws.Domain)
		if err != nil {
			return summary, fmt.Errorf("list case ids: %w", err)
		}
	} else {
		ids = slices.Clone(ids)
		slices.Sort(ids)
		ids = slices.Compact(ids)
	}
	if batchSize < 1 {
		batchSize = 1
	}

	total := (len(ids) + batchSize - 1) / batchSize
	for chunk := range slices.Chunk(ids, batchSize) {
		summary.Batches++
		out.VerboseLog("batch %d of %d: %d cases", summary.Batches, total, len(chunk))

		docCases, err := loadBatch(ctx, b.Docs, chunk, logger)
		if err != nil {
			return summary, err
		}
		data, err := rec.DiffCasesAndSaveState(ctx, ws, docCases, b.State)
		if err != nil {
			return summary, fmt.Errorf("batch %d: %w", summary.Batches, err)
		}

		summary.Cases += len(data.DocIDs)
		summary.Deferred += len(data.Deferred)
		summary.Unresolved += len(data.UnresolvedDiffs())
		summary.Changes += len(data.ExplainedChanges())
		for _, m := range data.MissingDocs {
			summary.Missing += len(m.DocIDs)
		}
	}
	return summary, nil
}

// loadBatch fetches the document cases of one batch keyed by id.
func loadBatch(ctx context.Context, docs engine.DocumentStore, ids []string, logger *slog.Logger) (map[string]ir.CaseRecord, error) {
	cases, err := docs.GetCases(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load document cases: %w", err)
	}
	out := make(map[string]ir.CaseRecord, len(cases))
	for _, c := range cases {
		out[c.CaseID] = c
	}
	for _, id := range ids {
		if _, ok := out[id]; !ok {
			logger.Warn("case not found in document store", "case_id", id)
		}
	}
	return out, nil
}
