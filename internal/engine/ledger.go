package engine

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/roach88/casediff/internal/ir"
)

// DiffLedgers reconciles the ledger state of the given cases.
//
// Every ledger yields one DiffRecord and one ChangeRecord, each empty when
// there is nothing to report, so saving clears earlier results. A ledger
// with no materialized document state is reconstructed from the stock
// transaction log; when there is no log either, the first difference is
// recorded as a "missing stock transactions" change. A
// mismatch that disappears once a duplicated stock write is discounted is
// recorded as a "duplicate stock transaction" change. Document states with
// no relational counterpart are reported as unresolved diffs.
func (r *Reconciler) DiffLedgers(ctx context.Context, ws *WorkerState, caseIDs []string) ([]ir.DiffRecord, []ir.ChangeRecord, error) {
	log := r.batchLogger(ws)
	loader, err := NewStockTransactionLoader(ws, r.docs, log, r.stockCacheSize)
	if err != nil {
		return nil, nil, err
	}
	return r.diffLedgers(ctx, ws, log, loader, caseIDs)
}

func (r *Reconciler) diffLedgers(ctx context.Context, ws *WorkerState, log *slog.Logger, loader *StockTransactionLoader, caseIDs []string) ([]ir.DiffRecord, []ir.ChangeRecord, error) {
	diffs := []ir.DiffRecord{}
	changes := []ir.ChangeRecord{}
	if len(caseIDs) == 0 {
		return diffs, changes, nil
	}

	states, err := r.docs.GetStockStates(ctx, caseIDs)
	if err != nil {
		return nil, nil, fmt.Errorf("get stock states: %w", err)
	}
	docStates := make(map[ir.LedgerReference]ir.StockState, len(states))
	for _, s := range states {
		docStates[s.Ref] = s
	}

	values, err := r.sql.GetLedgerValues(ctx, caseIDs)
	if err != nil {
		return nil, nil, fmt.Errorf("get ledger values: %w", err)
	}
	values = slices.Clone(values)
	slices.SortFunc(values, func(a, b ir.LedgerValue) int { return a.Ref.Compare(b.Ref) })

	for _, value := range values {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		ref := value.Ref
		count(r.metrics.ledgerDiffed, ws.Domain, 1)

		state, found := docStates[ref]
		delete(docStates, ref)
		if !found {
			count(r.metrics.ledgerRebuild, ws.Domain, 1)
			state, found = loader.GetStockState(ctx, ref)
		}

		docView := ir.IRObject{}
		if found {
			docView = state.View()
		}
		entries := r.ledgerDiff.Diff(docView, value.View())

		change := ir.DiffsToChanges(ir.KindStockState, ref.ID(), "", nil)
		switch {
		case !found:
			change = ir.DiffsToChanges(ir.KindStockState, ref.ID(), ReasonMissingStockTransactions, entries[:min(1, len(entries))])
			entries = []ir.DiffEntry{}
		case len(entries) > 0:
			if dedup, ok := loader.DedupStockState(ctx, ref); ok && len(r.ledgerDiff.Diff(dedup.View(), value.View())) == 0 {
				change = ir.DiffsToChanges(ir.KindStockState, ref.ID(), ReasonDuplicateStockTransaction, entries)
				entries = []ir.DiffEntry{}
			}
		}

		if len(entries) > 0 {
			count(r.metrics.ledgerHasDiff, ws.Domain, 1)
			log.Debug("ledger has diffs", "ledger", ref.ID(), "diffs", len(entries))
		}
		diffs = append(diffs, ir.DiffRecord{Kind: ir.KindStockState, DocID: ref.ID(), Diffs: entries})
		changes = append(changes, change)
	}

	docOnly := make([]ir.LedgerReference, 0, len(docStates))
	for ref := range docStates {
		docOnly = append(docOnly, ref)
	}
	slices.SortFunc(docOnly, ir.LedgerReference.Compare)
	for _, ref := range docOnly {
		entries := r.ledgerDiff.Diff(docStates[ref].View(), ir.IRObject{})
		count(r.metrics.ledgerDiffed, ws.Domain, 1)
		count(r.metrics.ledgerHasDiff, ws.Domain, 1)
		diffs = append(diffs, ir.DiffRecord{Kind: ir.KindStockState, DocID: ref.ID(), Diffs: entries})
		changes = append(changes, ir.DiffsToChanges(ir.KindStockState, ref.ID(), "", nil))
	}

	return diffs, changes, nil
}
