package rebuild

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/casediff/internal/engine"
	"github.com/roach88/casediff/internal/ir"
)

// DocumentStrategy rebuilds a document case from the forms it lists.
type DocumentStrategy struct {
	Docs engine.DocumentStore
	Mode Mode
}

var _ engine.RebuildStrategy = DocumentStrategy{}

// Rebuild replays the case's forms onto a blank case.
//
// A form that cannot be loaded or decoded fails the rebuild; the caller
// then keeps the original diffs.
func (s DocumentStrategy) Rebuild(ctx context.Context, ws *engine.WorkerState, caseID string) (ir.CaseRecord, error) {
	cases, err := s.Docs.GetCases(ctx, []string{caseID})
	if err != nil {
		return ir.CaseRecord{}, engine.NewRebuildError(caseID, err)
	}
	if len(cases) == 0 {
		return ir.CaseRecord{}, engine.NewRebuildError(caseID, engine.NewNotFoundError("case", caseID))
	}
	stored := cases[0]

	forms := make([]ir.Form, 0, len(stored.XFormIDs))
	for _, formID := range stored.XFormIDs {
		if err := ctx.Err(); err != nil {
			return ir.CaseRecord{}, err
		}
		form, err := loadForm(ctx, s.Docs, caseID, formID)
		if err != nil {
			return ir.CaseRecord{}, err
		}
		forms = append(forms, form)
	}

	if s.Mode == Patched {
		if forms, err = patchForms(ws, forms); err != nil {
			return ir.CaseRecord{}, engine.NewRebuildError(caseID, err)
		}
	}

	c := Blank(stored)
	for _, form := range forms {
		Replay(&c, form, form.ReceivedOn)
	}
	return c, nil
}

// patchForms drops forms the relational store would not have applied and
// orders the rest by receipt time.
func patchForms(ws *engine.WorkerState, forms []ir.Form) ([]ir.Form, error) {
	noAction, err := ws.NoActionCaseForms()
	if err != nil {
		return nil, err
	}
	out := slices.DeleteFunc(slices.Clone(forms), func(f ir.Form) bool {
		return f.Domain != ws.Domain || noAction[f.FormID]
	})
	slices.SortStableFunc(out, func(a, b ir.Form) int {
		return cmp.Or(a.ReceivedOn.Compare(b.ReceivedOn), strings.Compare(a.FormID, b.FormID))
	})
	return out, nil
}

func loadForm(ctx context.Context, docs engine.DocumentStore, caseID, formID string) (ir.Form, error) {
	form, found, err := docs.GetForm(ctx, formID)
	switch {
	case err != nil:
		return ir.Form{}, engine.NewRebuildError(caseID, fmt.Errorf("get form %s: %w", formID, err))
	case !found:
		return ir.Form{}, engine.NewRebuildError(caseID, engine.NewNotFoundError("form", formID))
	case form.Undecodable:
		return ir.Form{}, engine.NewRebuildError(caseID, fmt.Errorf("form %s is undecodable", formID))
	}
	return form, nil
}
