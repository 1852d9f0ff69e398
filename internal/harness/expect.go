package harness

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/casediff/internal/ir"
)

// Expectation names, used as the Type of an ExpectationError.
const (
	ExpectError       = "error"
	ExpectUnresolved  = "unresolved"
	ExpectChanges     = "changes"
	ExpectMissing     = "missing"
	ExpectDeferred    = "deferred"
	ExpectDiffedCases = "diffed_cases"
)

// ExpectationError describes one expectation that did not hold.
type ExpectationError struct {
	Type     string
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *ExpectationError) Error() string {
	return fmt.Sprintf("expectation failed: %s\n  Expected: %s\n  Actual: %s", e.Type, e.Expected, e.Actual)
}

// checkExpectations compares the result with exp and records every
// mismatch on the result.
func checkExpectations(exp Expect, result *Result) {
	checks := []func(Expect, *Result) error{
		checkError,
		checkUnresolved,
		checkChanges,
		checkMissing,
		checkDeferred,
		checkDiffedCases,
	}
	for _, check := range checks {
		if err := check(exp, result); err != nil {
			result.AddError(err.Error())
		}
	}
}

func checkError(exp Expect, result *Result) error {
	switch {
	case exp.Error == "" && result.BatchErr != nil:
		return &ExpectationError{Type: ExpectError, Expected: "no error", Actual: result.BatchErr.Error()}
	case exp.Error != "" && result.BatchErr == nil:
		return &ExpectationError{Type: ExpectError, Expected: fmt.Sprintf("error containing %q", exp.Error), Actual: "no error"}
	case exp.Error != "" && !strings.Contains(result.BatchErr.Error(), exp.Error):
		return &ExpectationError{Type: ExpectError, Expected: fmt.Sprintf("error containing %q", exp.Error), Actual: result.BatchErr.Error()}
	}
	return nil
}

func checkUnresolved(exp Expect, result *Result) error {
	got := make([]string, len(result.Report.Diffs))
	for i, rec := range result.Report.Diffs {
		got[i] = describeRecord(rec.Kind, rec.DocID, "", rec.Diffs, true)
	}
	want := describeExpected(exp.Unresolved, false)
	return compareLists(ExpectUnresolved, want, got, withPaths(exp.Unresolved))
}

func checkChanges(exp Expect, result *Result) error {
	got := make([]string, len(result.Report.Changes))
	for i, rec := range result.Report.Changes {
		got[i] = describeRecord(rec.Kind, rec.DocID, rec.Reason, rec.Diffs, true)
	}
	want := describeExpected(exp.Changes, true)
	return compareLists(ExpectChanges, want, got, withPaths(exp.Changes))
}

func checkMissing(exp Expect, result *Result) error {
	got := make([]string, len(result.Report.MissingDocs))
	for i, m := range result.Report.MissingDocs {
		got[i] = m.DocType + ": " + strings.Join(m.DocIDs, ",")
	}
	slices.Sort(got)
	want := make([]string, len(exp.Missing))
	for i, m := range exp.Missing {
		ids := slices.Clone(m.DocIDs)
		slices.Sort(ids)
		want[i] = m.DocType + ": " + strings.Join(ids, ",")
	}
	slices.Sort(want)
	return compareLists(ExpectMissing, want, got, nil)
}

func checkDeferred(exp Expect, result *Result) error {
	want := slices.Clone(exp.Deferred)
	slices.Sort(want)
	return compareLists(ExpectDeferred, want, result.Deferred(), nil)
}

func checkDiffedCases(exp Expect, result *Result) error {
	if exp.DiffedCases == nil || *exp.DiffedCases == result.Report.DiffedCases {
		return nil
	}
	return &ExpectationError{
		Type:     ExpectDiffedCases,
		Expected: fmt.Sprint(*exp.DiffedCases),
		Actual:   fmt.Sprint(result.Report.DiffedCases),
	}
}

// describeRecord renders a record as "kind doc_id [reason] {paths}" so
// expected and actual records compare as strings.
func describeRecord(kind, docID, reason string, entries []ir.DiffEntry, includePaths bool) string {
	var b strings.Builder
	b.WriteString(kind)
	b.WriteString(" ")
	b.WriteString(docID)
	if reason != "" {
		fmt.Fprintf(&b, " [%s]", reason)
	}
	if includePaths {
		paths := make([]string, len(entries))
		for i, e := range entries {
			paths[i] = e.PathString()
		}
		fmt.Fprintf(&b, " {%s}", strings.Join(paths, ", "))
	}
	return b.String()
}

func describeExpected(records []RecordExpect, withReason bool) []string {
	sorted := slices.Clone(records)
	for i := range sorted {
		if sorted[i].Kind == "" {
			sorted[i].Kind = ir.KindCase
		}
	}
	slices.SortFunc(sorted, func(a, b RecordExpect) int {
		return cmp.Or(strings.Compare(a.Kind, b.Kind), strings.Compare(a.DocID, b.DocID))
	})
	out := make([]string, len(sorted))
	for i, r := range sorted {
		reason := ""
		if withReason {
			reason = r.Reason
		}
		out[i] = describeRecord(r.Kind, r.DocID, reason, nil, false)
		if r.Paths != nil {
			out[i] += " {" + strings.Join(r.Paths, ", ") + "}"
		}
	}
	return out
}

// withPaths reports, per expected record key, whether the paths are
// checked. Actual descriptions of records without path expectations are
// trimmed before comparing.
func withPaths(records []RecordExpect) map[string]bool {
	out := make(map[string]bool, len(records))
	for _, r := range records {
		kind := r.Kind
		if kind == "" {
			kind = ir.KindCase
		}
		out[kind+" "+r.DocID] = r.Paths != nil
	}
	return out
}

func compareLists(typ string, want, got []string, paths map[string]bool) error {
	if paths != nil {
		got = slices.Clone(got)
		for i, g := range got {
			head, _, _ := strings.Cut(g, " {")
			key, _, _ := strings.Cut(head, " [")
			if !paths[key] {
				got[i] = head
			}
		}
	}
	if slices.Equal(want, got) {
		return nil
	}
	return &ExpectationError{
		Type:     typ,
		Expected: "[" + strings.Join(want, "; ") + "]",
		Actual:   "[" + strings.Join(got, "; ") + "]",
	}
}
