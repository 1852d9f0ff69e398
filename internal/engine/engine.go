package engine

import (
	"fmt"
	"log/slog"

	"github.com/roach88/casediff/internal/jsondiff"
	"github.com/roach88/casediff/internal/logging"
)

// DefaultStockCacheSize bounds the number of cases whose stock transaction
// logs are kept in memory per batch.
const DefaultStockCacheSize = 1024

// Reconciler diffs batches of cases between the document store and the
// relational store.
//
// Thread-safety: a Reconciler holds no per-batch state and may serve
// several batches concurrently. Per-batch caches live in the batch call.
type Reconciler struct {
	docs        DocumentStore
	sql         RelationalStore
	caseRebuild RebuildStrategy
	sqlRebuild  RebuildStrategy

	caseDiff     StructuralDiff
	ledgerDiff   StructuralDiff
	caseIgnore   []string
	ledgerIgnore []string

	metrics        *Metrics
	logger         *slog.Logger
	logCases       bool
	stockCacheSize int
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithLogger sets the logger. Default: discard.
func WithLogger(l *slog.Logger) Option {
	return func(r *Reconciler) {
		r.logger = l
	}
}

// WithMetrics sets the counters. Default: unregistered counters.
func WithMetrics(m *Metrics) Option {
	return func(r *Reconciler) {
		r.metrics = m
	}
}

// WithCaseIgnorePaths adds paths to the default case filter.
func WithCaseIgnorePaths(paths ...string) Option {
	return func(r *Reconciler) {
		r.caseIgnore = append(r.caseIgnore, paths...)
	}
}

// WithLedgerIgnorePaths adds paths to the default ledger filter.
func WithLedgerIgnorePaths(paths ...string) Option {
	return func(r *Reconciler) {
		r.ledgerIgnore = append(r.ledgerIgnore, paths...)
	}
}

// WithCaseDiff replaces the case differ entirely.
func WithCaseDiff(d StructuralDiff) Option {
	return func(r *Reconciler) {
		r.caseDiff = d
	}
}

// WithLedgerDiff replaces the ledger differ entirely.
func WithLedgerDiff(d StructuralDiff) Option {
	return func(r *Reconciler) {
		r.ledgerDiff = d
	}
}

// WithCaseLogging logs one line per diffed case with its diff and change
// counts.
func WithCaseLogging(enabled bool) Option {
	return func(r *Reconciler) {
		r.logCases = enabled
	}
}

// WithStockCacheSize bounds the per-batch stock transaction cache.
func WithStockCacheSize(n int) Option {
	return func(r *Reconciler) {
		r.stockCacheSize = n
	}
}

// New creates a Reconciler.
//
// caseRebuild rebuilds a document case from its forms; sqlRebuild rebuilds
// the relational projection of a case. Either may be nil, in which case
// that rebuild step is skipped and the diff stays unresolved.
func New(docs DocumentStore, sql RelationalStore, caseRebuild, sqlRebuild RebuildStrategy, opts ...Option) *Reconciler {
	r := &Reconciler{
		docs:           docs,
		sql:            sql,
		caseRebuild:    caseRebuild,
		sqlRebuild:     sqlRebuild,
		stockCacheSize: DefaultStockCacheSize,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = logging.NewNop()
	}
	if r.metrics == nil {
		r.metrics = NewMetrics(nil)
	}
	if r.ledgerDiff == nil {
		r.ledgerDiff = jsondiff.New(jsondiff.LedgerRules(r.ledgerIgnore))
	}
	return r
}

// caseDiffer returns the case differ for a session. The default filter
// depends on the session's no-action forms.
func (r *Reconciler) caseDiffer(ws *WorkerState) (StructuralDiff, error) {
	if r.caseDiff != nil {
		return r.caseDiff, nil
	}
	forms, err := ws.NoActionCaseFormIDs()
	if err != nil {
		return nil, fmt.Errorf("case differ: %w", err)
	}
	return jsondiff.New(jsondiff.CaseRules(r.caseIgnore, forms)), nil
}

// batchLogger scopes the logger to a session.
func (r *Reconciler) batchLogger(ws *WorkerState) *slog.Logger {
	return r.logger.With("domain", ws.Domain, "session", ws.SessionID)
}
