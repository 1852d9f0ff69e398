package engine

import (
	"context"
	"fmt"

	"github.com/roach88/casediff/internal/ir"
)

// ResultSaver persists the results of a batch.
type ResultSaver func(ctx context.Context, data *DiffData) error

// NewResultSaver returns a saver writing to state. countCases, if not nil,
// is called with the number of cases marked diffed.
//
// Cases are marked diffed even when nothing diverged. Diffs and changes
// replace whatever was stored for the same (kind, doc_id), so re-running a
// batch leaves only the latest results. Cases the relational store now has
// are no longer reported missing.
func NewResultSaver(state StateStore, countCases func(n int)) ResultSaver {
	return func(ctx context.Context, data *DiffData) error {
		if err := state.AddDiffedCases(ctx, data.DocIDs); err != nil {
			return fmt.Errorf("add diffed cases: %w", err)
		}
		if err := state.ReplaceCaseDiffs(ctx, data.Diffs); err != nil {
			return fmt.Errorf("replace case diffs: %w", err)
		}
		if err := state.ReplaceCaseChanges(ctx, data.Changes); err != nil {
			return fmt.Errorf("replace case changes: %w", err)
		}
		if err := state.RemoveMissingDocs(ctx, foundCaseIDs(data)); err != nil {
			return fmt.Errorf("remove missing docs: %w", err)
		}
		for _, m := range data.MissingDocs {
			if err := state.AddMissingDocs(ctx, m.DocType, m.DocIDs); err != nil {
				return fmt.Errorf("add missing %s docs: %w", m.DocType, err)
			}
		}
		if countCases != nil {
			countCases(len(data.DocIDs))
		}
		return nil
	}
}

// foundCaseIDs lists the cases that were diffed against a relational row.
func foundCaseIDs(data *DiffData) []string {
	var ids []string
	for _, rec := range data.Diffs {
		if rec.Kind == ir.KindCase {
			ids = append(ids, rec.DocID)
		}
	}
	return ids
}
