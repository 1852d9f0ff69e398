package engine

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/roach88/casediff/internal/ir"
)

// Report is a snapshot of everything a state store holds.
type Report struct {
	DiffedCases int
	Diffs       []ir.DiffRecord
	Changes     []ir.ChangeRecord
	MissingDocs []ir.MissingDocs
}

// LoadReport reads the full report from state.
func LoadReport(ctx context.Context, state StateStore) (*Report, error) {
	n, err := state.CountDiffedCases(ctx)
	if err != nil {
		return nil, fmt.Errorf("count diffed cases: %w", err)
	}
	diffs, err := state.GetDiffs(ctx)
	if err != nil {
		return nil, fmt.Errorf("get diffs: %w", err)
	}
	changes, err := state.GetChanges(ctx)
	if err != nil {
		return nil, fmt.Errorf("get changes: %w", err)
	}
	missing, err := state.GetMissingDocs(ctx)
	if err != nil {
		return nil, fmt.Errorf("get missing docs: %w", err)
	}
	return &Report{DiffedCases: n, Diffs: diffs, Changes: changes, MissingDocs: missing}, nil
}

// Clean reports whether nothing is left to look at: no unresolved diffs
// and no missing documents. Explained changes do not count.
func (r *Report) Clean() bool {
	return len(r.Diffs) == 0 && len(r.MissingDocs) == 0
}

// Object renders the report for canonical JSON output.
func (r *Report) Object() ir.IRObject {
	diffs := make(ir.IRArray, len(r.Diffs))
	for i, rec := range r.Diffs {
		diffs[i] = ir.IRObject{
			"kind":   ir.IRString(rec.Kind),
			"doc_id": ir.IRString(rec.DocID),
			"diffs":  entriesArray(rec.Diffs),
		}
	}
	changes := make(ir.IRArray, len(r.Changes))
	for i, rec := range r.Changes {
		changes[i] = ir.IRObject{
			"kind":   ir.IRString(rec.Kind),
			"doc_id": ir.IRString(rec.DocID),
			"reason": ir.IRString(rec.Reason),
			"diffs":  entriesArray(rec.Diffs),
		}
	}
	missing := make(ir.IRArray, len(r.MissingDocs))
	for i, m := range r.MissingDocs {
		ids := make(ir.IRArray, len(m.DocIDs))
		for j, id := range m.DocIDs {
			ids[j] = ir.IRString(id)
		}
		missing[i] = ir.IRObject{"doc_type": ir.IRString(m.DocType), "doc_ids": ids}
	}
	return ir.IRObject{
		"diffed_cases": ir.IRInt(r.DiffedCases),
		"diffs":        diffs,
		"changes":      changes,
		"missing_docs": missing,
	}
}

func entriesArray(entries []ir.DiffEntry) ir.IRArray {
	out := make(ir.IRArray, len(entries))
	for i, e := range entries {
		out[i] = e.Object()
	}
	return out
}

// WriteText writes a human readable rendering of the report.
func (r *Report) WriteText(w io.Writer) error {
	var b strings.Builder
	fmt.Fprintf(&b, "diffed cases: %d\n", r.DiffedCases)

	fmt.Fprintf(&b, "unresolved diffs: %d\n", len(r.Diffs))
	for _, rec := range r.Diffs {
		fmt.Fprintf(&b, "  %s %s\n", rec.Kind, rec.DocID)
		writeEntries(&b, rec.Diffs)
	}

	fmt.Fprintf(&b, "explained changes: %d\n", len(r.Changes))
	for _, rec := range r.Changes {
		fmt.Fprintf(&b, "  %s %s (%s)\n", rec.Kind, rec.DocID, rec.Reason)
		writeEntries(&b, rec.Diffs)
	}

	fmt.Fprintf(&b, "missing docs: %d\n", len(r.MissingDocs))
	for _, m := range r.MissingDocs {
		fmt.Fprintf(&b, "  %s: %s\n", m.DocType, strings.Join(m.DocIDs, ", "))
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func writeEntries(b *strings.Builder, entries []ir.DiffEntry) {
	for _, e := range entries {
		fmt.Fprintf(b, "    %s %s: %s -> %s\n", e.Type, e.PathString(), renderValue(e.Old), renderValue(e.New))
	}
}

func renderValue(v ir.IRValue) string {
	if v == nil {
		return "<absent>"
	}
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return "<" + err.Error() + ">"
	}
	return string(data)
}
