package rebuild

import (
	"context"
	"slices"

	"github.com/roach88/casediff/internal/engine"
	"github.com/roach88/casediff/internal/ir"
)

// RelationalStrategy rebuilds the relational projection of a case from
// its case transactions. Form bodies come from the document store.
type RelationalStrategy struct {
	SQL  engine.RelationalStore
	Docs engine.DocumentStore
}

var _ engine.RebuildStrategy = RelationalStrategy{}

// Rebuild replays the non-revoked transactions in server date order.
func (s RelationalStrategy) Rebuild(ctx context.Context, ws *engine.WorkerState, caseID string) (ir.CaseRecord, error) {
	cases, err := s.SQL.GetCases(ctx, []string{caseID})
	if err != nil {
		return ir.CaseRecord{}, engine.NewRebuildError(caseID, err)
	}
	if len(cases) == 0 {
		return ir.CaseRecord{}, engine.NewRebuildError(caseID, engine.NewNotFoundError("case", caseID))
	}

	txs, err := s.SQL.GetCaseTransactions(ctx, caseID)
	if err != nil {
		return ir.CaseRecord{}, engine.NewRebuildError(caseID, err)
	}
	txs = slices.DeleteFunc(slices.Clone(txs), func(tx ir.CaseTransaction) bool { return tx.Revoked })
	slices.SortStableFunc(txs, func(a, b ir.CaseTransaction) int { return a.ServerDate.Compare(b.ServerDate) })

	c := Blank(cases[0])
	for _, tx := range txs {
		if err := ctx.Err(); err != nil {
			return ir.CaseRecord{}, err
		}
		form, err := loadForm(ctx, s.Docs, caseID, tx.FormID)
		if err != nil {
			return ir.CaseRecord{}, err
		}
		Replay(&c, form, tx.ServerDate)
	}
	return c, nil
}
