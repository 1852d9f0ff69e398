package engine

import (
	"context"

	"github.com/roach88/casediff/internal/ir"
)

// StructuralDiff compares two comparison views and returns the remaining
// differences after noise filtering. Implemented by *jsondiff.Differ.
type StructuralDiff interface {
	Diff(a, b ir.IRValue) []ir.DiffEntry
}

// RebuildStrategy reconstructs a case from its transaction history. The
// result is held in memory only and never written back to either store.
type RebuildStrategy interface {
	Rebuild(ctx context.Context, ws *WorkerState, caseID string) (ir.CaseRecord, error)
}

// RelationalStore is the read side of the relational backend.
// Lookups take id lists and return whatever exists; absent ids are simply
// missing from the result.
type RelationalStore interface {
	GetCases(ctx context.Context, ids []string) ([]ir.CaseRecord, error)
	GetLedgerValues(ctx context.Context, caseIDs []string) ([]ir.LedgerValue, error)
	GetCaseTransactions(ctx context.Context, caseID string) ([]ir.CaseTransaction, error)
}

// DocumentStore is the read side of the legacy document backend. The
// bool results report whether the record exists; an error always means
// the backend failed.
type DocumentStore interface {
	GetCases(ctx context.Context, ids []string) ([]ir.CaseRecord, error)
	GetStockStates(ctx context.Context, caseIDs []string) ([]ir.StockState, error)
	GetStockTransactions(ctx context.Context, caseID string) ([]ir.StockTransaction, error)
	GetForm(ctx context.Context, formID string) (ir.Form, bool, error)
	GetCaseLocation(ctx context.Context, caseID string) (string, bool, error)
}

// StateStore persists reconciliation results.
//
// ReplaceCaseDiffs and ReplaceCaseChanges have replace semantics per
// (kind, doc_id): existing rows for every pair in the argument are
// removed and the new non-empty entries written. AddDiffedCases is
// idempotent. RemoveMissingDocs drops the ids under every doc type.
type StateStore interface {
	AddDiffedCases(ctx context.Context, caseIDs []string) error
	ReplaceCaseDiffs(ctx context.Context, diffs []ir.DiffRecord) error
	ReplaceCaseChanges(ctx context.Context, changes []ir.ChangeRecord) error
	AddMissingDocs(ctx context.Context, docType string, docIDs []string) error
	RemoveMissingDocs(ctx context.Context, docIDs []string) error

	GetDiffs(ctx context.Context) ([]ir.DiffRecord, error)
	GetChanges(ctx context.Context) ([]ir.ChangeRecord, error)
	GetMissingDocs(ctx context.Context) ([]ir.MissingDocs, error)
	CountDiffedCases(ctx context.Context) (int, error)
}
