package engine

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/roach88/casediff/internal/ir"
)

// MissingDocs accounts for cases present in only one store.
//
// A case that only the relational store has is an invariant violation and
// aborts the batch. Cases only the document store has are returned in
// onlyInDoc (they count as diffed) and, unless orphaned, grouped by
// document type in missing.
func (r *Reconciler) MissingDocs(ctx context.Context, ws *WorkerState, docCases map[string]ir.CaseRecord, sqlIDs []string) (onlyInDoc []string, missing []ir.MissingDocs, err error) {
	return r.missingDocs(ctx, ws, r.batchLogger(ws), docCases, sqlIDs)
}

func (r *Reconciler) missingDocs(ctx context.Context, ws *WorkerState, log *slog.Logger, docCases map[string]ir.CaseRecord, sqlIDs []string) ([]string, []ir.MissingDocs, error) {
	inSQL := make(map[string]bool, len(sqlIDs))
	var onlyInSQL []string
	for _, id := range sqlIDs {
		inSQL[id] = true
		if _, ok := docCases[id]; !ok {
			onlyInSQL = append(onlyInSQL, id)
		}
	}
	if len(onlyInSQL) > 0 {
		slices.Sort(onlyInSQL)
		return nil, nil, NewInvariantError(
			"cases present only in the relational store",
			map[string]string{"case_ids": strings.Join(onlyInSQL, ",")},
		)
	}

	onlyInDoc := []string{}
	for id := range docCases {
		if !inSQL[id] {
			onlyInDoc = append(onlyInDoc, id)
		}
	}
	slices.Sort(onlyInDoc)
	count(r.metrics.caseMissing, ws.Domain, len(onlyInDoc))

	byType := map[string][]string{}
	for _, id := range onlyInDoc {
		c := docCases[id]
		orphaned, err := r.isOrphaned(ctx, c)
		if err != nil {
			return nil, nil, err
		}
		if orphaned {
			log.Info("ignoring orphaned case", "case_id", id)
			continue
		}
		docType := c.DocType
		if docType == "" {
			docType = ir.DocTypeCase
		}
		byType[docType] = append(byType[docType], id)
	}

	missing := make([]ir.MissingDocs, 0, len(byType))
	for docType, ids := range byType {
		missing = append(missing, ir.MissingDocs{DocType: docType, DocIDs: ids})
	}
	slices.SortFunc(missing, func(a, b ir.MissingDocs) int { return strings.Compare(a.DocType, b.DocType) })
	return onlyInDoc, missing, nil
}

// isOrphaned reports whether no form supports the case: every form in its
// history is missing, undecodable, or does not mention the case. Such a
// case could never have been migrated and is not worth reporting.
func (r *Reconciler) isOrphaned(ctx context.Context, c ir.CaseRecord) (bool, error) {
	for _, formID := range c.XFormIDs {
		form, found, err := r.docs.GetForm(ctx, formID)
		if err != nil {
			return false, fmt.Errorf("orphan check for case %s: get form %s: %w", c.CaseID, formID, err)
		}
		if found && form.References(c.CaseID) {
			return false, nil
		}
	}
	return true, nil
}
