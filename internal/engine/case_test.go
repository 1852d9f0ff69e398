package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/casediff/internal/ir"
)

func TestDiffCase_Match(t *testing.T) {
	b := newTestBackends()
	calls := map[string]int{}
	r := New(b.docs, b.sql, rebuildFrom(nil, calls), nil)
	ws := newTestWorkerState(t)

	c := testCase("a", ir.IRObject{"color": ir.IRString("red")})
	res, err := r.DiffCase(context.Background(), ws, c, c)
	require.NoError(t, err)

	assert.Empty(t, res.Diffs)
	assert.Empty(t, res.Changes)
	assert.False(t, res.Rebuilt)
	assert.Zero(t, calls["a"], "matching case is not rebuilt")
}

func TestDiffCase_DomainMismatch(t *testing.T) {
	b := newTestBackends()
	calls := map[string]int{}
	r := New(b.docs, b.sql, rebuildFrom(nil, calls), nil)
	ws := newTestWorkerState(t)

	doc := testCase("a", ir.IRObject{"color": ir.IRString("red")})
	doc.Domain = "other"
	sql := testCase("a", ir.IRObject{"color": ir.IRString("blue")})

	res, err := r.DiffCase(context.Background(), ws, sql, doc)
	require.NoError(t, err)

	require.Len(t, res.Diffs, 1)
	assert.Equal(t, ir.DiffEntry{
		Type: ir.DiffTypeDiff,
		Path: []string{"domain"},
		Old:  ir.IRString("other"),
		New:  ir.IRString(testDomain),
	}, res.Diffs[0])
	assert.Empty(t, res.Changes)
	assert.Zero(t, calls["a"], "rebuild is not attempted on domain mismatch")
}

func TestDiffCase_RelationalDomainMismatch(t *testing.T) {
	b := newTestBackends()
	r := New(b.docs, b.sql, nil, nil)
	ws := newTestWorkerState(t)

	doc := testCase("a", ir.IRObject{})
	sql := testCase("a", ir.IRObject{})
	sql.Domain = "other"

	res, err := r.DiffCase(context.Background(), ws, sql, doc)
	require.NoError(t, err)
	require.Len(t, res.Diffs, 1)
	assert.Equal(t, []string{"domain"}, res.Diffs[0].Path)
	assert.Equal(t, ir.IRString("other"), res.Diffs[0].New)
}

func TestDiffCase_ExplainedByRebuild(t *testing.T) {
	b := newTestBackends()
	doc := testCase("a", ir.IRObject{"color": ir.IRString("red")})
	sql := withProps(doc, ir.IRObject{"color": ir.IRString("blue")})
	rebuilt := withProps(doc, ir.IRObject{"color": ir.IRString("blue")})

	r := New(b.docs, b.sql, rebuildFrom(map[string]ir.CaseRecord{"a": rebuilt}, nil), nil)
	ws := newTestWorkerState(t)

	res, err := r.DiffCase(context.Background(), ws, sql, doc)
	require.NoError(t, err)

	assert.Empty(t, res.Diffs)
	require.Len(t, res.Changes, 1)
	assert.Equal(t, ir.DiffEntry{
		Type: ir.DiffTypeDiff,
		Path: []string{"properties", "color"},
		Old:  ir.IRString("red"),
		New:  ir.IRString("blue"),
	}, res.Changes[0])
	assert.True(t, res.Rebuilt)
	assert.Equal(t, 1.0, testutil.ToFloat64(r.metrics.caseRebuild.WithLabelValues(testDomain)))
}

func TestDiffCase_RealDivergence(t *testing.T) {
	b := newTestBackends()
	doc := testCase("a", ir.IRObject{"color": ir.IRString("red")})
	sql := withProps(doc, ir.IRObject{"color": ir.IRString("blue")})

	// rebuilding reproduces the document state
	r := New(b.docs, b.sql, rebuildFrom(map[string]ir.CaseRecord{"a": doc}, nil), nil)
	ws := newTestWorkerState(t)

	res, err := r.DiffCase(context.Background(), ws, sql, doc)
	require.NoError(t, err)

	require.Len(t, res.Diffs, 1)
	assert.Equal(t, []string{"properties", "color"}, res.Diffs[0].Path)
	assert.Empty(t, res.Changes)
}

func TestDiffCase_NoRebuildStrategy(t *testing.T) {
	b := newTestBackends()
	r := New(b.docs, b.sql, nil, nil)
	ws := newTestWorkerState(t)

	doc := testCase("a", ir.IRObject{"color": ir.IRString("red")})
	sql := withProps(doc, ir.IRObject{"color": ir.IRString("blue")})

	res, err := r.DiffCase(context.Background(), ws, sql, doc)
	require.NoError(t, err)
	assert.Len(t, res.Diffs, 1)
	assert.False(t, res.Rebuilt)
}

func TestDiffCase_RebuildFailureKeepsDiffs(t *testing.T) {
	b := newTestBackends()
	r := New(b.docs, b.sql, rebuildFrom(nil, nil), nil)
	ws := newTestWorkerState(t)

	doc := testCase("a", ir.IRObject{"color": ir.IRString("red")})
	sql := withProps(doc, ir.IRObject{"color": ir.IRString("blue")})

	res, err := r.DiffCase(context.Background(), ws, sql, doc)
	require.NoError(t, err, "rebuild failure degrades to an unresolved diff")

	assert.Len(t, res.Diffs, 1)
	assert.Empty(t, res.Changes)
	assert.False(t, res.Rebuilt)
	assert.Equal(t, 1.0, testutil.ToFloat64(r.metrics.caseRebuildError.WithLabelValues(testDomain)))
}

func TestDiffCase_RelationalRebuildResolves(t *testing.T) {
	b := newTestBackends()
	doc := testCase("a", ir.IRObject{"color": ir.IRString("red")})
	sql := withProps(doc, ir.IRObject{"color": ir.IRString("blue")})
	docRebuilt := withProps(doc, ir.IRObject{"color": ir.IRString("green")})
	sqlRebuilt := withProps(doc, ir.IRObject{"color": ir.IRString("green")})

	r := New(b.docs, b.sql,
		rebuildFrom(map[string]ir.CaseRecord{"a": docRebuilt}, nil),
		rebuildFrom(map[string]ir.CaseRecord{"a": sqlRebuilt}, nil),
	)
	ws := newTestWorkerState(t)

	res, err := r.DiffCase(context.Background(), ws, sql, doc)
	require.NoError(t, err)

	assert.Empty(t, res.Diffs)
	require.Len(t, res.Changes, 1)
	assert.Equal(t, ir.IRString("red"), res.Changes[0].Old)
	assert.Equal(t, ir.IRString("green"), res.Changes[0].New)
}

func TestDiffCase_RelationalRebuildFailure(t *testing.T) {
	b := newTestBackends()
	doc := testCase("a", ir.IRObject{"color": ir.IRString("red")})
	sql := withProps(doc, ir.IRObject{"color": ir.IRString("blue")})
	docRebuilt := withProps(doc, ir.IRObject{"color": ir.IRString("green")})

	r := New(b.docs, b.sql,
		rebuildFrom(map[string]ir.CaseRecord{"a": docRebuilt}, nil),
		rebuildFrom(nil, nil),
	)
	ws := newTestWorkerState(t)

	res, err := r.DiffCase(context.Background(), ws, sql, doc)
	require.NoError(t, err)

	require.Len(t, res.Diffs, 1)
	assert.Equal(t, ir.IRString("green"), res.Diffs[0].Old)
	assert.Equal(t, ir.IRString("blue"), res.Diffs[0].New)
}

func TestDiffCase_OriginalMatchesRebuiltRelational(t *testing.T) {
	b := newTestBackends()
	doc := testCase("a", ir.IRObject{"color": ir.IRString("red")})
	sql := withProps(doc, ir.IRObject{"color": ir.IRString("blue")})
	docRebuilt := withProps(doc, ir.IRObject{"color": ir.IRString("green")})
	sqlRebuilt := withProps(doc, ir.IRObject{"color": ir.IRString("red")})

	r := New(b.docs, b.sql,
		rebuildFrom(map[string]ir.CaseRecord{"a": docRebuilt}, nil),
		rebuildFrom(map[string]ir.CaseRecord{"a": sqlRebuilt}, nil),
	)
	ws := newTestWorkerState(t)

	res, err := r.DiffCase(context.Background(), ws, sql, doc)
	require.NoError(t, err)

	// nothing is explained; the rebuilt document still disagrees
	require.Len(t, res.Diffs, 1)
	assert.Equal(t, ir.IRString("green"), res.Diffs[0].Old)
	assert.Equal(t, ir.IRString("red"), res.Diffs[0].New)
	assert.Empty(t, res.Changes)
}

func TestDiffCase_CancelledDuringRebuild(t *testing.T) {
	b := newTestBackends()
	ctx, cancel := context.WithCancel(context.Background())
	r := New(b.docs, b.sql, rebuildFunc(func(ctx context.Context, ws *WorkerState, caseID string) (ir.CaseRecord, error) {
		cancel()
		return ir.CaseRecord{}, ctx.Err()
	}), nil)
	ws := newTestWorkerState(t)

	doc := testCase("a", ir.IRObject{"color": ir.IRString("red")})
	sql := withProps(doc, ir.IRObject{"color": ir.IRString("blue")})

	_, err := r.DiffCase(ctx, ws, sql, doc)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Zero(t, testutil.ToFloat64(r.metrics.caseRebuildError.WithLabelValues(testDomain)))
}

func TestDiffCase_LenientNoise(t *testing.T) {
	b := newTestBackends()
	r := New(b.docs, b.sql, nil, nil)
	ws := newTestWorkerState(t)

	doc := testCase("a", ir.IRObject{"age": ir.IRInt(5), "note": ir.IRString("")})
	doc.Extra = ir.IRObject{"_rev": ir.IRString("3-abc"), "computed_": ir.IRObject{}}
	doc.XFormIDs = []string{"f2", "f1"}
	sql := testCase("a", ir.IRObject{"age": ir.IRString("5")})
	sql.XFormIDs = []string{"f1", "f2"}

	res, err := r.DiffCase(context.Background(), ws, sql, doc)
	require.NoError(t, err)
	assert.Empty(t, res.Diffs)
}
