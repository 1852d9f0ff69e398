package engine

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/casediff/internal/ir"
)

// DiffData accumulates the results of one batch.
//
// Diffs carries one record per reconciled case and ledger, empty when the
// record matched, so that saving clears stale results. Changes carries one
// record per reconciled case plus one per explained ledger.
type DiffData struct {
	DocIDs      []string          `json:"doc_ids"`
	Diffs       []ir.DiffRecord   `json:"diffs"`
	Changes     []ir.ChangeRecord `json:"changes"`
	MissingDocs []ir.MissingDocs  `json:"missing_docs"`

	// Deferred lists cases skipped because they were modified at or after
	// the cutoff. They are not marked diffed.
	Deferred []string `json:"deferred"`
}

// NewDiffData returns an empty DiffData with non-nil slices.
func NewDiffData() *DiffData {
	return &DiffData{
		DocIDs:      []string{},
		Diffs:       []ir.DiffRecord{},
		Changes:     []ir.ChangeRecord{},
		MissingDocs: []ir.MissingDocs{},
		Deferred:    []string{},
	}
}

// UnresolvedDiffs returns the diff records that have entries.
func (d *DiffData) UnresolvedDiffs() []ir.DiffRecord {
	out := []ir.DiffRecord{}
	for _, rec := range d.Diffs {
		if len(rec.Diffs) > 0 {
			out = append(out, rec)
		}
	}
	return out
}

// ExplainedChanges returns the change records that have entries.
func (d *DiffData) ExplainedChanges() []ir.ChangeRecord {
	out := []ir.ChangeRecord{}
	for _, rec := range d.Changes {
		if len(rec.Diffs) > 0 {
			out = append(out, rec)
		}
	}
	return out
}

// DiffCases reconciles a batch of document-store cases, keyed by case id,
// against the relational store.
//
// Cases are processed in id order and diffed in parallel up to
// ws.Concurrency; ledgers are reconciled once for the whole batch, then
// cases missing from the relational store are accounted for. A case id
// appears in DocIDs at most once.
//
// Backend read errors and invariant violations abort the batch; nothing
// is returned for a partial batch.
func (r *Reconciler) DiffCases(ctx context.Context, ws *WorkerState, docCases map[string]ir.CaseRecord) (*DiffData, error) {
	log := r.batchLogger(ws)
	data := NewDiffData()

	d, err := r.caseDiffer(ws)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(docCases))
	for id := range docCases {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	due := make(map[string]ir.CaseRecord, len(docCases))
	dueIDs := make([]string, 0, len(ids))
	for _, id := range ids {
		if !ws.ShouldDiff(docCases[id]) {
			data.Deferred = append(data.Deferred, id)
			continue
		}
		due[id] = docCases[id]
		dueIDs = append(dueIDs, id)
	}
	if len(dueIDs) == 0 {
		return data, nil
	}

	sqlCases, err := r.sql.GetCases(ctx, dueIDs)
	if err != nil {
		return nil, fmt.Errorf("get relational cases: %w", err)
	}
	sqlCases = slices.Clone(sqlCases)
	slices.SortFunc(sqlCases, func(a, b ir.CaseRecord) int { return strings.Compare(a.CaseID, b.CaseID) })
	sqlIDs := make([]string, len(sqlCases))
	for i, c := range sqlCases {
		sqlIDs[i] = c.CaseID
	}

	onlyInDoc, missing, err := r.missingDocs(ctx, ws, log, due, sqlIDs)
	if err != nil {
		return nil, err
	}

	results := make([]CaseResult, len(sqlCases))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ws.Concurrency)
	for i, sqlCase := range sqlCases {
		g.Go(func() error {
			count(r.metrics.caseDiffed, ws.Domain, 1)
			res, err := r.diffCase(gctx, ws, d, log, sqlCase, due[sqlCase.CaseID])
			if err != nil {
				return fmt.Errorf("diff case %s: %w", sqlCase.CaseID, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, sqlCase := range sqlCases {
		id := sqlCase.CaseID
		res := results[i]
		if len(res.Diffs) > 0 {
			count(r.metrics.caseHasDiff, ws.Domain, 1)
		}
		data.DocIDs = append(data.DocIDs, id)
		data.Diffs = append(data.Diffs, ir.DiffRecord{Kind: ir.KindCase, DocID: id, Diffs: res.Diffs})
		change := ir.DiffsToChanges(ir.KindCase, id, "", res.Changes)
		if len(res.Changes) > 0 {
			change.Reason = ReasonRebuildCase
		}
		data.Changes = append(data.Changes, change)
		if r.logCases {
			log.Info("case diffed", "case_id", id, "diffs", len(res.Diffs), "changes", len(res.Changes), "rebuilt", res.Rebuilt)
		}
	}

	loader, err := NewStockTransactionLoader(ws, r.docs, log, r.stockCacheSize)
	if err != nil {
		return nil, err
	}
	ledgerDiffs, ledgerChanges, err := r.diffLedgers(ctx, ws, log, loader, dueIDs)
	if err != nil {
		return nil, err
	}
	data.Diffs = append(data.Diffs, ledgerDiffs...)
	data.Changes = append(data.Changes, ledgerChanges...)

	data.DocIDs = append(data.DocIDs, onlyInDoc...)
	data.MissingDocs = missing

	log.Info("batch diffed",
		"cases", len(dueIDs),
		"deferred", len(data.Deferred),
		"unresolved", len(data.UnresolvedDiffs()),
		"changes", len(data.ExplainedChanges()),
		"missing", len(onlyInDoc),
	)
	return data, nil
}

// DiffCasesAndSaveState diffs a batch and persists the result. Nothing is
// saved when the diff fails.
func (r *Reconciler) DiffCasesAndSaveState(ctx context.Context, ws *WorkerState, docCases map[string]ir.CaseRecord, state StateStore) (*DiffData, error) {
	data, err := r.DiffCases(ctx, ws, docCases)
	if err != nil {
		return nil, err
	}
	if err := NewResultSaver(state, nil)(ctx, data); err != nil {
		return nil, err
	}
	return data, nil
}
