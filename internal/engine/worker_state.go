package engine

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/casediff/internal/ir"
)

// DefaultConcurrency is the number of cases diffed in parallel when the
// worker state does not say otherwise.
const DefaultConcurrency = 4

// SessionIDGenerator produces the id stamped on a diff session.
// Implemented by UUIDv7Generator (production) and FixedGenerator (tests).
type SessionIDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 session ids.
// Stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 string.
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator always returns the same id. Used for deterministic logs
// and reports in tests.
type FixedGenerator string

// Generate returns the fixed id.
func (g FixedGenerator) Generate() string {
	return string(g)
}

// WorkerState is the per-session context shared by every reconciliation
// call: the domain being migrated, the optional cutoff, and the forms known
// to leave no trace on the relational side.
//
// A WorkerState is read-only after NewWorkerState returns and is passed
// explicitly to every call; there is no package-level state. The no-action
// form resolver runs at most once.
type WorkerState struct {
	Domain      string
	CutoffDate  *time.Time
	SessionID   string
	Concurrency int

	formsFn   func() ([]string, error)
	formsOnce sync.Once
	forms     map[string]bool
	formsErr  error
}

// WorkerStateOption configures a WorkerState.
type WorkerStateOption func(*WorkerState)

// WithCutoff sets the cutoff: only cases last modified before it are diffed.
func WithCutoff(cutoff time.Time) WorkerStateOption {
	return func(ws *WorkerState) {
		c := cutoff
		ws.CutoffDate = &c
	}
}

// WithNoActionCaseForms sets a fixed list of no-action form ids.
func WithNoActionCaseForms(formIDs ...string) WorkerStateOption {
	ids := append([]string(nil), formIDs...)
	return func(ws *WorkerState) {
		ws.formsFn = func() ([]string, error) { return ids, nil }
	}
}

// WithNoActionCaseFormsFunc sets a resolver that is called lazily, once,
// the first time the no-action forms are needed.
func WithNoActionCaseFormsFunc(fn func() ([]string, error)) WorkerStateOption {
	return func(ws *WorkerState) {
		ws.formsFn = fn
	}
}

// WithConcurrency sets how many cases are diffed in parallel.
func WithConcurrency(n int) WorkerStateOption {
	return func(ws *WorkerState) {
		ws.Concurrency = n
	}
}

// WithSessionIDs sets the session id generator.
func WithSessionIDs(gen SessionIDGenerator) WorkerStateOption {
	return func(ws *WorkerState) {
		ws.SessionID = gen.Generate()
	}
}

// NewWorkerState creates the worker state for one diff session.
func NewWorkerState(domain string, opts ...WorkerStateOption) (*WorkerState, error) {
	if domain == "" {
		return nil, fmt.Errorf("worker state: domain is required")
	}
	ws := &WorkerState{
		Domain:      domain,
		Concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(ws)
	}
	if ws.SessionID == "" {
		ws.SessionID = UUIDv7Generator{}.Generate()
	}
	if ws.Concurrency < 1 {
		ws.Concurrency = 1
	}
	return ws, nil
}

// ShouldDiff reports whether the case is due for diffing now. Cases
// modified at or after the cutoff are still in flux and are deferred.
// Without a cutoff every case is due.
func (ws *WorkerState) ShouldDiff(c ir.CaseRecord) bool {
	if ws.CutoffDate == nil || c.ServerModifiedOn == nil {
		return true
	}
	return c.ServerModifiedOn.Before(*ws.CutoffDate)
}

// NoActionCaseForms returns the set of form ids that touch cases without
// any case action.
func (ws *WorkerState) NoActionCaseForms() (map[string]bool, error) {
	ws.formsOnce.Do(func() {
		ws.forms = map[string]bool{}
		if ws.formsFn == nil {
			return
		}
		ids, err := ws.formsFn()
		if err != nil {
			ws.formsErr = fmt.Errorf("resolve no-action case forms: %w", err)
			return
		}
		for _, id := range ids {
			ws.forms[id] = true
		}
	})
	return ws.forms, ws.formsErr
}

// NoActionCaseFormIDs returns the no-action form ids in sorted order.
func (ws *WorkerState) NoActionCaseFormIDs() ([]string, error) {
	forms, err := ws.NoActionCaseForms()
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(forms))
	for id := range forms {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}
