package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/casediff/internal/ir"
	"github.com/roach88/casediff/internal/memstore"
)

// abcFixture sets up three cases: a matches, b differs in a way the
// rebuild explains, c really diverges.
type abcFixture struct {
	testBackends
	docCases map[string]ir.CaseRecord
	rebuilds map[string]ir.CaseRecord
}

func newABCFixture() abcFixture {
	f := abcFixture{
		testBackends: newTestBackends(),
		docCases:     map[string]ir.CaseRecord{},
		rebuilds:     map[string]ir.CaseRecord{},
	}

	a := testCase("a", ir.IRObject{"color": ir.IRString("red")})
	f.docCases["a"] = a
	f.sql.PutCase(a)

	b := testCase("b", ir.IRObject{"color": ir.IRString("red")})
	f.docCases["b"] = b
	f.sql.PutCase(withProps(b, ir.IRObject{"color": ir.IRString("blue")}))
	f.rebuilds["b"] = withProps(b, ir.IRObject{"color": ir.IRString("blue")})

	c := testCase("c", ir.IRObject{"color": ir.IRString("red")})
	f.docCases["c"] = c
	f.sql.PutCase(withProps(c, ir.IRObject{"color": ir.IRString("blue")}))
	f.rebuilds["c"] = c

	return f
}

func (f abcFixture) reconciler(opts ...Option) *Reconciler {
	return New(f.docs, f.sql, rebuildFrom(f.rebuilds, nil), nil, opts...)
}

func colorDiff(old, new string) []ir.DiffEntry {
	return []ir.DiffEntry{{
		Type: ir.DiffTypeDiff,
		Path: []string{"properties", "color"},
		Old:  ir.IRString(old),
		New:  ir.IRString(new),
	}}
}

func TestDiffCases_EndToEnd(t *testing.T) {
	f := newABCFixture()
	r := f.reconciler(WithCaseLogging(true))

	data, err := r.DiffCases(context.Background(), newTestWorkerState(t), f.docCases)
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c"}, data.DocIDs)
	assert.Equal(t, []ir.DiffRecord{
		{Kind: ir.KindCase, DocID: "a", Diffs: []ir.DiffEntry{}},
		{Kind: ir.KindCase, DocID: "b", Diffs: []ir.DiffEntry{}},
		{Kind: ir.KindCase, DocID: "c", Diffs: colorDiff("red", "blue")},
	}, data.Diffs)
	assert.Equal(t, []ir.ChangeRecord{
		{Kind: ir.KindCase, DocID: "a", Diffs: []ir.DiffEntry{}},
		{Kind: ir.KindCase, DocID: "b", Reason: ReasonRebuildCase, Diffs: colorDiff("red", "blue")},
		{Kind: ir.KindCase, DocID: "c", Diffs: []ir.DiffEntry{}},
	}, data.Changes)
	assert.Empty(t, data.MissingDocs)
	assert.Empty(t, data.Deferred)

	assert.Len(t, data.UnresolvedDiffs(), 1)
	assert.Len(t, data.ExplainedChanges(), 1)
}

func TestDiffCases_Empty(t *testing.T) {
	f := newABCFixture()
	data, err := f.reconciler().DiffCases(context.Background(), newTestWorkerState(t), nil)
	require.NoError(t, err)
	assert.Equal(t, NewDiffData(), data)
}

func TestDiffCases_DeferredByCutoff(t *testing.T) {
	f := newABCFixture()
	early := t0.Add(-time.Hour)
	a := f.docCases["a"]
	a.ServerModifiedOn = &early
	f.docCases["a"] = a
	f.sql.PutCase(a)

	ws := newTestWorkerState(t, WithCutoff(t0))
	data, err := f.reconciler().DiffCases(context.Background(), ws, f.docCases)
	require.NoError(t, err)

	assert.Equal(t, []string{"a"}, data.DocIDs)
	assert.Equal(t, []string{"b", "c"}, data.Deferred)
	require.Len(t, data.Diffs, 1)
	assert.Equal(t, "a", data.Diffs[0].DocID)
}

func TestDiffCases_MissingFromRelational(t *testing.T) {
	f := newABCFixture()
	m := testCase("m", nil)
	f.docCases["m"] = m
	f.docs.PutForm(caseForm("form-m", "m"))
	orphan := testCase("o", nil)
	f.docCases["o"] = orphan

	data, err := f.reconciler().DiffCases(context.Background(), newTestWorkerState(t), f.docCases)
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c", "m", "o"}, data.DocIDs)
	assert.Equal(t, []ir.MissingDocs{{DocType: ir.DocTypeCase, DocIDs: []string{"m"}}}, data.MissingDocs)
	assert.Len(t, data.Diffs, 3, "missing cases are not diffed")
}

func TestDiffCases_IncludesLedgers(t *testing.T) {
	f := newABCFixture()
	ref := ir.LedgerReference{CaseID: "a", SectionID: "stock", EntryID: "p1"}
	v := ledgerValue(ref, 12, "form-a")
	f.sql.PutLedgerValue(v)
	f.docs.PutStockState(ir.StockState(v))

	data, err := f.reconciler().DiffCases(context.Background(), newTestWorkerState(t), f.docCases)
	require.NoError(t, err)

	require.Len(t, data.Diffs, 4)
	assert.Equal(t, ir.DiffRecord{Kind: ir.KindStockState, DocID: "a/stock/p1", Diffs: []ir.DiffEntry{}}, data.Diffs[3])
	assert.Equal(t, []string{"a", "b", "c"}, data.DocIDs, "ledgers are not doc ids")
}

// extraCaseStore returns a case the batch did not ask about.
type extraCaseStore struct {
	RelationalStore
	extra ir.CaseRecord
}

func (s extraCaseStore) GetCases(ctx context.Context, ids []string) ([]ir.CaseRecord, error) {
	cases, err := s.RelationalStore.GetCases(ctx, ids)
	if err != nil {
		return nil, err
	}
	return append(cases, s.extra), nil
}

func TestDiffCases_InvariantAbortsBatch(t *testing.T) {
	f := newABCFixture()
	state := memstore.NewState()
	sql := extraCaseStore{RelationalStore: f.sql, extra: testCase("zzz", nil)}
	r := New(f.docs, sql, rebuildFrom(f.rebuilds, nil), nil)

	_, err := r.DiffCasesAndSaveState(context.Background(), newTestWorkerState(t), f.docCases, state)
	require.Error(t, err)
	assert.True(t, IsInvariantError(err))

	n, err := state.CountDiffedCases(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n, "nothing saved")
}

func TestDiffCases_BackendErrorAbortsBatch(t *testing.T) {
	f := newABCFixture()
	f.sql.Fail(memstore.OpGetCases, assert.AnError)

	_, err := f.reconciler().DiffCases(context.Background(), newTestWorkerState(t), f.docCases)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestDiffCases_ConcurrencyDoesNotChangeResults(t *testing.T) {
	f := newABCFixture()
	for _, id := range []string{"d", "e", "f", "g", "h"} {
		c := testCase(id, ir.IRObject{"n": ir.IRString(id)})
		f.docCases[id] = c
		f.sql.PutCase(withProps(c, ir.IRObject{"n": ir.IRString("x")}))
	}
	r := f.reconciler()

	serial, err := r.DiffCases(context.Background(), newTestWorkerState(t, WithConcurrency(1)), f.docCases)
	require.NoError(t, err)
	parallel, err := r.DiffCases(context.Background(), newTestWorkerState(t, WithConcurrency(8)), f.docCases)
	require.NoError(t, err)

	assert.Equal(t, serial, parallel)
}

func TestDiffCasesAndSaveState_Idempotent(t *testing.T) {
	ctx := context.Background()
	f := newABCFixture()
	state := memstore.NewState()
	r := f.reconciler()
	ws := newTestWorkerState(t)

	for i := 0; i < 2; i++ {
		_, err := r.DiffCasesAndSaveState(ctx, ws, f.docCases, state)
		require.NoError(t, err)
	}

	diffs, err := state.GetDiffs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []ir.DiffRecord{{Kind: ir.KindCase, DocID: "c", Diffs: colorDiff("red", "blue")}}, diffs)

	changes, err := state.GetChanges(ctx)
	require.NoError(t, err)
	assert.Equal(t, []ir.ChangeRecord{
		{Kind: ir.KindCase, DocID: "b", Reason: ReasonRebuildCase, Diffs: colorDiff("red", "blue")},
	}, changes)

	n, err := state.CountDiffedCases(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// a later write fixes c; re-diffing clears the stale result
	f.sql.PutCase(f.docCases["c"])
	_, err = r.DiffCasesAndSaveState(ctx, ws, f.docCases, state)
	require.NoError(t, err)

	diffs, err = state.GetDiffs(ctx)
	require.NoError(t, err)
	assert.Empty(t, diffs)
}

func stockChanges(t *testing.T, state StateStore) []ir.ChangeRecord {
	t.Helper()
	changes, err := state.GetChanges(context.Background())
	require.NoError(t, err)
	out := []ir.ChangeRecord{}
	for _, c := range changes {
		if c.Kind == ir.KindStockState {
			out = append(out, c)
		}
	}
	return out
}

func stockDiffs(t *testing.T, state StateStore) []ir.DiffRecord {
	t.Helper()
	diffs, err := state.GetDiffs(context.Background())
	require.NoError(t, err)
	out := []ir.DiffRecord{}
	for _, d := range diffs {
		if d.Kind == ir.KindStockState {
			out = append(out, d)
		}
	}
	return out
}

func TestDiffCasesAndSaveState_LedgerResultsAreReplaced(t *testing.T) {
	ctx := context.Background()
	f := newABCFixture()
	ref := ir.LedgerReference{CaseID: "a", SectionID: "stock", EntryID: "p1"}
	f.sql.PutLedgerValue(ledgerValue(ref, 10, "f1"))
	f.docs.PutStockState(ir.StockState(ledgerValue(ref, 20, "f1")))
	f.docs.SetLocation("a", "loc-1")
	f.docs.PutForm(stockForm("f1", ref))
	f.docs.AddStockTransaction(ir.StockTransaction{FormID: "f1", Type: "balance", Ref: ref, Balance: 10, Timestamp: t0})
	f.docs.AddStockTransaction(ir.StockTransaction{FormID: "f1", Type: "balance", Ref: ref, Balance: 20, Timestamp: t0})
	state := memstore.NewState()
	r := f.reconciler()
	ws := newTestWorkerState(t)

	_, err := r.DiffCasesAndSaveState(ctx, ws, f.docCases, state)
	require.NoError(t, err)
	changes := stockChanges(t, state)
	require.Len(t, changes, 1)
	assert.Equal(t, ReasonDuplicateStockTransaction, changes[0].Reason)
	assert.Empty(t, stockDiffs(t, state))

	// the duplicate no longer explains the balance
	f.sql.PutLedgerValue(ledgerValue(ref, 5, "f1"))
	_, err = r.DiffCasesAndSaveState(ctx, ws, f.docCases, state)
	require.NoError(t, err)
	assert.Empty(t, stockChanges(t, state), "diffs and changes never share a ledger")
	require.Len(t, stockDiffs(t, state), 1)

	f.sql.PutLedgerValue(ledgerValue(ref, 20, "f1"))
	_, err = r.DiffCasesAndSaveState(ctx, ws, f.docCases, state)
	require.NoError(t, err)
	assert.Empty(t, stockChanges(t, state))
	assert.Empty(t, stockDiffs(t, state))
}

func TestDiffCasesAndSaveState_MigratedCaseIsNoLongerMissing(t *testing.T) {
	ctx := context.Background()
	f := newABCFixture()
	m := testCase("m", ir.IRObject{"color": ir.IRString("red")})
	f.docCases["m"] = m
	f.docs.PutForm(caseForm("form-m", "m"))
	state := memstore.NewState()
	r := f.reconciler()
	ws := newTestWorkerState(t)

	_, err := r.DiffCasesAndSaveState(ctx, ws, f.docCases, state)
	require.NoError(t, err)
	missing, err := state.GetMissingDocs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []ir.MissingDocs{{DocType: ir.DocTypeCase, DocIDs: []string{"m"}}}, missing)

	f.sql.PutCase(m)
	_, err = r.DiffCasesAndSaveState(ctx, ws, f.docCases, state)
	require.NoError(t, err)
	missing, err = state.GetMissingDocs(ctx)
	require.NoError(t, err)
	assert.Empty(t, missing)
}
