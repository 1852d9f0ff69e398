package harness

import (
	"bytes"
	"context"
	"fmt"

	"github.com/roach88/casediff/internal/engine"
	"github.com/roach88/casediff/internal/logging"
	"github.com/roach88/casediff/internal/rebuild"
	"github.com/roach88/casediff/internal/store"
	"github.com/roach88/casediff/internal/testutil"
)

// Harness runs scenarios against in-memory backends with a deterministic
// clock and session ids.
type Harness struct {
	state    engine.StateStore
	clock    *testutil.DeterministicClock
	sessions engine.SessionIDGenerator
	logLevel string
}

// Option configures a Harness.
type Option func(*Harness)

// WithState runs the batch against state instead of a fresh in-memory
// SQLite store.
func WithState(state engine.StateStore) Option {
	return func(h *Harness) {
		h.state = state
	}
}

// WithSessionIDs replaces the session id generator. Default: a
// testutil.SequentialSessionGenerator prefixed with the scenario name.
func WithSessionIDs(gen engine.SessionIDGenerator) Option {
	return func(h *Harness) {
		h.sessions = gen
	}
}

// WithLogLevel sets the level of the captured log. Default: info.
func WithLogLevel(level string) Option {
	return func(h *Harness) {
		h.logLevel = level
	}
}

// Run executes a scenario: it seeds both stores, diffs one batch through
// the reconciler with both rebuild strategies wired, saves the result and
// checks it against the scenario's expectations.
//
// The returned error covers harness failures only (bad fixtures, a state
// store that cannot be opened or read). A failing batch is an outcome and
// is checked against expect.error.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	h := &Harness{
		clock:    testutil.NewDeterministicClock(),
		logLevel: "info",
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.sessions == nil {
		h.sessions = testutil.NewSequentialSessionGenerator(scenario.Name)
	}
	if h.state == nil {
		st, err := store.Open(":memory:", store.WithClock(h.clock.Now))
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory store: %w", err)
		}
		defer st.Close()
		h.state = st
	}
	return h.run(ctx, scenario)
}

func (h *Harness) run(ctx context.Context, scenario *Scenario) (*Result, error) {
	docs, docCases, err := seedDocument(scenario)
	if err != nil {
		return nil, err
	}
	sql, err := seedRelational(scenario, docCases)
	if err != nil {
		return nil, err
	}
	mode, err := rebuild.ParseMode(scenario.Rebuild)
	if err != nil {
		return nil, err
	}

	wsOpts := []engine.WorkerStateOption{
		engine.WithSessionIDs(h.sessions),
		engine.WithNoActionCaseForms(scenario.NoActionCaseForms...),
		// one case at a time keeps the captured log in a stable order
		engine.WithConcurrency(1),
	}
	if scenario.Cutoff != nil {
		wsOpts = append(wsOpts, engine.WithCutoff(scenario.Cutoff.UTC()))
	}
	ws, err := engine.NewWorkerState(scenario.Domain, wsOpts...)
	if err != nil {
		return nil, err
	}

	var logBuf bytes.Buffer
	logger, err := logging.New(&logBuf, logging.Options{Level: h.logLevel, NoTimestamp: true})
	if err != nil {
		return nil, err
	}

	r := engine.New(docs, sql,
		rebuild.DocumentStrategy{Docs: docs, Mode: mode},
		rebuild.RelationalStrategy{SQL: sql, Docs: docs},
		engine.WithLogger(logger),
		engine.WithCaseLogging(true),
	)

	result := NewResult(scenario.Name, ws.SessionID)
	data, batchErr := r.DiffCasesAndSaveState(ctx, ws, batch(scenario, docCases), h.state)
	if batchErr != nil {
		logger.Error("batch failed", "error", batchErr)
	}
	result.Data = data
	result.BatchErr = batchErr

	report, err := engine.LoadReport(ctx, h.state)
	if err != nil {
		return nil, err
	}
	result.Report = report
	result.Log = logBuf.String()

	checkExpectations(scenario.Expect, result)
	return result, nil
}
