package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func entry(prop string) DiffEntry {
	return DiffEntry{Type: DiffTypeMissing, Path: []string{"properties", prop}, Old: IRString(prop)}
}

func TestMergeDiffs(t *testing.T) {
	in := []DiffRecord{
		{Kind: KindCase, DocID: "b", Diffs: []DiffEntry{entry("x")}},
		{Kind: KindCase, DocID: "a", Diffs: []DiffEntry{}},
		{Kind: KindCase, DocID: "b", Diffs: []DiffEntry{entry("y")}},
		{Kind: KindStockState, DocID: "b", Diffs: []DiffEntry{entry("z")}},
	}

	got := MergeDiffs(in)

	assert.Equal(t, []DiffRecord{
		{Kind: KindCase, DocID: "b", Diffs: []DiffEntry{entry("x"), entry("y")}},
		{Kind: KindCase, DocID: "a", Diffs: []DiffEntry{}},
		{Kind: KindStockState, DocID: "b", Diffs: []DiffEntry{entry("z")}},
	}, got)
	assert.Len(t, in[0].Diffs, 1, "input must not be modified")
}

func TestMergeChangesFirstReasonWins(t *testing.T) {
	got := MergeChanges([]ChangeRecord{
		{Kind: KindCase, DocID: "a", Diffs: []DiffEntry{}},
		{Kind: KindCase, DocID: "a", Reason: "rebuild case", Diffs: []DiffEntry{entry("x")}},
		{Kind: KindCase, DocID: "a", Reason: "other", Diffs: []DiffEntry{entry("y")}},
	})

	assert.Equal(t, []ChangeRecord{
		{Kind: KindCase, DocID: "a", Reason: "rebuild case", Diffs: []DiffEntry{entry("x"), entry("y")}},
	}, got)
}

func TestDiffsToChangesNeverNil(t *testing.T) {
	got := DiffsToChanges(KindCase, "a", "", nil)
	assert.NotNil(t, got.Diffs)
	assert.Empty(t, got.Diffs)
}
