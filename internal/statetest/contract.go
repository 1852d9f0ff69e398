// Package statetest holds the behavioral contract every StateStore
// backend must satisfy.
package statetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/casediff/internal/engine"
	"github.com/roach88/casediff/internal/ir"
)

// Factory returns an empty store. It is called once per subtest.
type Factory func(t *testing.T) engine.StateStore

func propDiff(prop, old, new string) ir.DiffEntry {
	return ir.DiffEntry{
		Type: ir.DiffTypeDiff,
		Path: []string{"properties", prop},
		Old:  ir.IRString(old),
		New:  ir.IRString(new),
	}
}

// RunStateStoreContract runs the StateStore contract against stores made
// by newStore.
func RunStateStoreContract(t *testing.T, newStore Factory) {
	ctx := context.Background()

	t.Run("empty store", func(t *testing.T) {
		store := newStore(t)

		diffs, err := store.GetDiffs(ctx)
		require.NoError(t, err)
		assert.Empty(t, diffs)
		assert.NotNil(t, diffs, "empty result must be a slice, not nil")

		changes, err := store.GetChanges(ctx)
		require.NoError(t, err)
		assert.Empty(t, changes)
		assert.NotNil(t, changes)

		missing, err := store.GetMissingDocs(ctx)
		require.NoError(t, err)
		assert.Empty(t, missing)
		assert.NotNil(t, missing)

		n, err := store.CountDiffedCases(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})

	t.Run("diffed cases are idempotent", func(t *testing.T) {
		store := newStore(t)

		require.NoError(t, store.AddDiffedCases(ctx, []string{"a", "b"}))
		require.NoError(t, store.AddDiffedCases(ctx, []string{"b", "c"}))
		require.NoError(t, store.AddDiffedCases(ctx, nil))

		n, err := store.CountDiffedCases(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, n)
	})

	t.Run("diffs round trip", func(t *testing.T) {
		store := newStore(t)

		rec := ir.DiffRecord{
			Kind:  ir.KindCase,
			DocID: "case-1",
			Diffs: []ir.DiffEntry{
				propDiff("color", "red", "blue"),
				{Type: ir.DiffTypeMissing, Path: []string{"properties", "size"}, Old: ir.IRInt(3)},
				{Type: ir.DiffTypeType, Path: []string{"closed"}, Old: ir.IRBool(true), New: ir.IRString("true")},
			},
		}
		require.NoError(t, store.ReplaceCaseDiffs(ctx, []ir.DiffRecord{rec}))

		got, err := store.GetDiffs(ctx)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, rec, got[0])
	})

	t.Run("replace overwrites and clears", func(t *testing.T) {
		store := newStore(t)

		first := []ir.DiffRecord{
			{Kind: ir.KindCase, DocID: "a", Diffs: []ir.DiffEntry{propDiff("x", "1", "2")}},
			{Kind: ir.KindCase, DocID: "b", Diffs: []ir.DiffEntry{propDiff("y", "1", "2")}},
			{Kind: ir.KindStockState, DocID: "a/stock/p1", Diffs: []ir.DiffEntry{propDiff("z", "1", "2")}},
		}
		require.NoError(t, store.ReplaceCaseDiffs(ctx, first))

		second := []ir.DiffRecord{
			{Kind: ir.KindCase, DocID: "a", Diffs: []ir.DiffEntry{}},
			{Kind: ir.KindCase, DocID: "b", Diffs: []ir.DiffEntry{propDiff("y", "1", "3")}},
		}
		require.NoError(t, store.ReplaceCaseDiffs(ctx, second))

		got, err := store.GetDiffs(ctx)
		require.NoError(t, err)
		assert.Equal(t, []ir.DiffRecord{
			{Kind: ir.KindCase, DocID: "b", Diffs: []ir.DiffEntry{propDiff("y", "1", "3")}},
			{Kind: ir.KindStockState, DocID: "a/stock/p1", Diffs: []ir.DiffEntry{propDiff("z", "1", "2")}},
		}, got)
	})

	t.Run("replacing twice leaves the latest result", func(t *testing.T) {
		store := newStore(t)

		recs := []ir.DiffRecord{{Kind: ir.KindCase, DocID: "a", Diffs: []ir.DiffEntry{propDiff("x", "1", "2")}}}
		require.NoError(t, store.ReplaceCaseDiffs(ctx, recs))
		require.NoError(t, store.ReplaceCaseDiffs(ctx, recs))

		got, err := store.GetDiffs(ctx)
		require.NoError(t, err)
		assert.Equal(t, recs, got)
	})

	t.Run("changes keep their reason", func(t *testing.T) {
		store := newStore(t)

		changes := []ir.ChangeRecord{
			{Kind: ir.KindCase, DocID: "a", Reason: "rebuild case", Diffs: []ir.DiffEntry{propDiff("x", "1", "2")}},
			{Kind: ir.KindCase, DocID: "b", Reason: "", Diffs: []ir.DiffEntry{}},
			{Kind: ir.KindStockState, DocID: "a/stock/p1", Reason: "duplicate stock transaction", Diffs: []ir.DiffEntry{
				{Type: ir.DiffTypeDiff, Path: []string{"balance"}, Old: ir.IRInt(10), New: ir.IRInt(5)},
			}},
		}
		require.NoError(t, store.ReplaceCaseChanges(ctx, changes))

		got, err := store.GetChanges(ctx)
		require.NoError(t, err)
		assert.Equal(t, []ir.ChangeRecord{changes[0], changes[2]}, got)

		require.NoError(t, store.ReplaceCaseChanges(ctx, []ir.ChangeRecord{
			{Kind: ir.KindCase, DocID: "a", Diffs: []ir.DiffEntry{}},
		}))
		got, err = store.GetChanges(ctx)
		require.NoError(t, err)
		assert.Equal(t, []ir.ChangeRecord{changes[2]}, got)
	})

	t.Run("diffs and changes are independent", func(t *testing.T) {
		store := newStore(t)

		require.NoError(t, store.ReplaceCaseDiffs(ctx, []ir.DiffRecord{
			{Kind: ir.KindCase, DocID: "a", Diffs: []ir.DiffEntry{propDiff("x", "1", "2")}},
		}))
		require.NoError(t, store.ReplaceCaseChanges(ctx, []ir.ChangeRecord{
			{Kind: ir.KindCase, DocID: "a", Reason: "rebuild case", Diffs: []ir.DiffEntry{}},
		}))

		diffs, err := store.GetDiffs(ctx)
		require.NoError(t, err)
		assert.Len(t, diffs, 1)
	})

	t.Run("missing docs are grouped and deduplicated", func(t *testing.T) {
		store := newStore(t)

		require.NoError(t, store.AddMissingDocs(ctx, ir.DocTypeCase, []string{"c2", "c1"}))
		require.NoError(t, store.AddMissingDocs(ctx, ir.DocTypeCase, []string{"c1", "c3"}))
		require.NoError(t, store.AddMissingDocs(ctx, ir.DocTypeDeletedCase, []string{"d1"}))
		require.NoError(t, store.AddMissingDocs(ctx, "Empty", nil))

		got, err := store.GetMissingDocs(ctx)
		require.NoError(t, err)
		assert.Equal(t, []ir.MissingDocs{
			{DocType: ir.DocTypeCase, DocIDs: []string{"c1", "c2", "c3"}},
			{DocType: ir.DocTypeDeletedCase, DocIDs: []string{"d1"}},
		}, got)
	})

	t.Run("removed missing docs are forgotten under every type", func(t *testing.T) {
		store := newStore(t)

		require.NoError(t, store.AddMissingDocs(ctx, ir.DocTypeCase, []string{"c1", "c2"}))
		require.NoError(t, store.AddMissingDocs(ctx, ir.DocTypeDeletedCase, []string{"c1"}))
		require.NoError(t, store.RemoveMissingDocs(ctx, []string{"c1", "zz"}))
		require.NoError(t, store.RemoveMissingDocs(ctx, nil))

		got, err := store.GetMissingDocs(ctx)
		require.NoError(t, err)
		assert.Equal(t, []ir.MissingDocs{
			{DocType: ir.DocTypeCase, DocIDs: []string{"c2"}},
		}, got)
	})
}
