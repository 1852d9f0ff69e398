package engine

import (
	"context"
	"log/slog"

	"github.com/roach88/casediff/internal/ir"
)

// Reasons attached to explained changes.
const (
	ReasonRebuildCase               = "rebuild case"
	ReasonMissingStockTransactions  = "missing stock transactions"
	ReasonDuplicateStockTransaction = "duplicate stock transaction"
)

// CaseResult is the outcome of reconciling one case.
//
// At most one of Diffs and Changes is non-empty: either the case is left
// with unresolved differences, or all of them were explained by a rebuild.
type CaseResult struct {
	// Diffs are the unresolved differences.
	Diffs []ir.DiffEntry

	// Changes are the differences between the original document case and
	// the relational case that a rebuild explained.
	Changes []ir.DiffEntry

	// Rebuilt is true when the document rebuild succeeded.
	Rebuilt bool
}

// DiffCase reconciles one case pair.
//
// The domain check runs first and short-circuits everything else. When the
// views differ the document case is rebuilt from its forms (in memory) and
// re-diffed; if differences remain, the relational projection is rebuilt
// too. Differences that a rebuild makes disappear are reported as changes
// with reason "rebuild case". Rebuild failures are logged and leave the
// diffs unresolved; only context cancellation is returned as an error.
func (r *Reconciler) DiffCase(ctx context.Context, ws *WorkerState, sqlCase, docCase ir.CaseRecord) (CaseResult, error) {
	d, err := r.caseDiffer(ws)
	if err != nil {
		return CaseResult{}, err
	}
	return r.diffCase(ctx, ws, d, r.batchLogger(ws), sqlCase, docCase)
}

func (r *Reconciler) diffCase(ctx context.Context, ws *WorkerState, d StructuralDiff, log *slog.Logger, sqlCase, docCase ir.CaseRecord) (CaseResult, error) {
	caseID := docCase.CaseID
	res := CaseResult{Diffs: []ir.DiffEntry{}, Changes: []ir.DiffEntry{}}

	if diffs := checkDomains(ws, d, log, sqlCase, docCase); len(diffs) > 0 {
		res.Diffs = diffs
		return res, nil
	}

	docView := docCase.View()
	sqlView := sqlCase.View()
	diffs := d.Diff(docView, sqlView)
	if len(diffs) == 0 || r.caseRebuild == nil {
		res.Diffs = diffs
		return res, nil
	}

	count(r.metrics.caseRebuild, ws.Domain, 1)
	rebuilt, err := r.caseRebuild.Rebuild(ctx, ws, caseID)
	if err != nil {
		if ctx.Err() != nil {
			return CaseResult{}, ctx.Err()
		}
		count(r.metrics.caseRebuildError, ws.Domain, 1)
		log.Warn("case rebuild failed", "case_id", caseID, "error", err)
		res.Diffs = diffs
		return res, nil
	}
	res.Rebuilt = true

	rebuiltView := rebuilt.View()
	diffs = d.Diff(rebuiltView, sqlView)
	if len(diffs) > 0 && r.sqlRebuild != nil {
		sqlRebuilt, err := r.sqlRebuild.Rebuild(ctx, ws, caseID)
		switch {
		case err != nil && ctx.Err() != nil:
			return CaseResult{}, ctx.Err()
		case err != nil:
			log.Warn("relational case rebuild failed", "case_id", caseID, "error", err)
		default:
			sqlView = sqlRebuilt.View()
			diffs = d.Diff(rebuiltView, sqlView)
		}
	}

	if len(diffs) == 0 {
		res.Changes = d.Diff(docView, sqlView)
		return res, nil
	}

	res.Diffs = diffs
	if len(d.Diff(docView, sqlView)) == 0 {
		log.Warn("original document case matches rebuilt relational case (unexpected, rebuild not saved)",
			"case_id", caseID)
	}
	return res, nil
}

// checkDomains returns a single "domain" diff when either side belongs to
// a different domain than the session, nil otherwise.
func checkDomains(ws *WorkerState, d StructuralDiff, log *slog.Logger, sqlCase, docCase ir.CaseRecord) []ir.DiffEntry {
	var diffs []ir.DiffEntry
	switch {
	case docCase.Domain != ws.Domain:
		log.Warn("document case has wrong domain", "case_id", docCase.CaseID, "case_domain", docCase.Domain)
		diffs = d.Diff(
			ir.IRObject{"domain": ir.IRString(docCase.Domain)},
			ir.IRObject{"domain": ir.IRString(ws.Domain)},
		)
	case sqlCase.Domain != ws.Domain:
		log.Warn("relational case has wrong domain", "case_id", sqlCase.CaseID, "case_domain", sqlCase.Domain)
		diffs = d.Diff(
			ir.IRObject{"domain": ir.IRString(ws.Domain)},
			ir.IRObject{"domain": ir.IRString(sqlCase.Domain)},
		)
	default:
		return nil
	}
	if len(diffs) == 0 {
		// the differ filtered the domain out; report it anyway
		diffs = []ir.DiffEntry{{Type: ir.DiffTypeDiff, Path: []string{"domain"}, Old: ir.IRString(docCase.Domain), New: ir.IRString(sqlCase.Domain)}}
	}
	return diffs
}
