package jsondiff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/casediff/internal/ir"
)

func TestDiffIdentical(t *testing.T) {
	d := New(Rules{})
	v := ir.IRObject{"a": ir.IRInt(1), "b": ir.IRArray{ir.IRString("x")}}

	diffs := d.Diff(v, v)
	assert.NotNil(t, diffs)
	assert.Empty(t, diffs)
}

func TestDiffKinds(t *testing.T) {
	d := New(Rules{})

	diffs := d.Diff(
		ir.IRObject{"name": ir.IRString("Ada"), "age": ir.IRInt(3), "only_doc": ir.IRBool(true)},
		ir.IRObject{"name": ir.IRString("Eve"), "age": ir.IRString("3"), "only_sql": ir.IRNull{}},
	)

	require.Len(t, diffs, 4)
	// keys walk in sorted order: age, name, only_doc, only_sql
	assert.Equal(t, ir.DiffEntry{Type: ir.DiffTypeType, Path: []string{"age"}, Old: ir.IRInt(3), New: ir.IRString("3")}, diffs[0])
	assert.Equal(t, ir.DiffEntry{Type: ir.DiffTypeDiff, Path: []string{"name"}, Old: ir.IRString("Ada"), New: ir.IRString("Eve")}, diffs[1])
	assert.Equal(t, ir.DiffEntry{Type: ir.DiffTypeMissing, Path: []string{"only_doc"}, Old: ir.IRBool(true)}, diffs[2])
	assert.Equal(t, ir.DiffEntry{Type: ir.DiffTypeMissing, Path: []string{"only_sql"}, New: ir.IRNull{}}, diffs[3])
}

func TestDiffTracksListIndices(t *testing.T) {
	d := New(Rules{})

	diffs := d.Diff(
		ir.IRObject{"l": ir.IRArray{ir.IRInt(1), ir.IRInt(2), ir.IRInt(3)}},
		ir.IRObject{"l": ir.IRArray{ir.IRInt(1), ir.IRInt(5)}},
	)

	require.Len(t, diffs, 2)
	assert.Equal(t, []string{"l", "1"}, diffs[0].Path)
	assert.Equal(t, ir.DiffTypeDiff, diffs[0].Type)
	assert.Equal(t, []string{"l", "2"}, diffs[1].Path)
	assert.Equal(t, ir.DiffTypeMissing, diffs[1].Type)
	assert.Equal(t, ir.IRInt(3), diffs[1].Old)
}

func TestDiffHidesListIndices(t *testing.T) {
	d := New(Rules{HideListIndices: true})

	diffs := d.Diff(
		ir.IRObject{"indices": ir.IRArray{ir.IRObject{"id": ir.IRString("p1")}}},
		ir.IRObject{"indices": ir.IRArray{ir.IRObject{"id": ir.IRString("p2")}}},
	)

	require.Len(t, diffs, 1)
	assert.Equal(t, []string{"indices", ListWildcard, "id"}, diffs[0].Path)
}

func TestDiffAgainstEmptyObject(t *testing.T) {
	d := New(Rules{})

	diffs := d.Diff(ir.IRObject{"a": ir.IRInt(1), "b": ir.IRInt(2)}, ir.IRObject{})
	require.Len(t, diffs, 2)
	for _, e := range diffs {
		assert.Equal(t, ir.DiffTypeMissing, e.Type)
		assert.Nil(t, e.New)
	}
}

func TestCaseRulesIgnoreBookkeeping(t *testing.T) {
	d := New(CaseRules([]string{"opened_by"}, nil))

	diffs := d.Diff(
		ir.IRObject{
			"_rev":                        ir.IRString("4-abc"),
			"doc_type":                    ir.IRString("CommCareCase"),
			"computed_modified_on_":       ir.IRString("x"),
			"actions":                     ir.IRArray{ir.IRObject{"action_type": ir.IRString("create")}},
			"initial_processing_complete": ir.IRBool(true),
			"opened_by":                   ir.IRString("u1"),
		},
		ir.IRObject{"doc_type": ir.IRString("CommCareCase-Deleted")},
	)

	assert.Empty(t, diffs)
}

func TestCaseRulesXFormIDsUnordered(t *testing.T) {
	d := New(CaseRules(nil, []string{"noop-form"}))

	assert.Empty(t, d.Diff(
		ir.IRObject{"xform_ids": ir.IRArray{ir.IRString("f1"), ir.IRString("f2"), ir.IRString("noop-form")}},
		ir.IRObject{"xform_ids": ir.IRArray{ir.IRString("f2"), ir.IRString("f1")}},
	))

	diffs := d.Diff(
		ir.IRObject{"xform_ids": ir.IRArray{ir.IRString("f1"), ir.IRString("f3")}},
		ir.IRObject{"xform_ids": ir.IRArray{ir.IRString("f1")}},
	)
	require.Len(t, diffs, 1)
	assert.Equal(t, []string{"xform_ids"}, diffs[0].Path)
}

func TestCaseRulesLenientProperties(t *testing.T) {
	d := New(CaseRules(nil, nil))

	assert.Empty(t, d.Diff(
		ir.IRObject{"properties": ir.IRObject{"age": ir.IRInt(5), "note": ir.IRString(""), "flag": ir.IRBool(true)}},
		ir.IRObject{"properties": ir.IRObject{"age": ir.IRString("5"), "flag": ir.IRString("true")}},
	))

	diffs := d.Diff(
		ir.IRObject{"properties": ir.IRObject{"age": ir.IRInt(5)}},
		ir.IRObject{"properties": ir.IRObject{"age": ir.IRString("6")}},
	)
	require.Len(t, diffs, 1)
	assert.Equal(t, ir.DiffTypeType, diffs[0].Type)
	assert.Equal(t, "properties.age", diffs[0].PathString())
}

func TestEquivalentTimes(t *testing.T) {
	d := New(LedgerRules(nil))

	assert.Empty(t, d.Diff(
		ir.IRObject{"last_modified": ir.IRString("2024-01-01T10:00:00.000000Z")},
		ir.IRObject{"last_modified": ir.IRString("2024-01-01T12:00:00+02:00")},
	))
	assert.Len(t, d.Diff(
		ir.IRObject{"last_modified": ir.IRString("2024-01-01T10:00:00.000000Z")},
		ir.IRObject{"last_modified": ir.IRString("2024-01-01T10:00:01Z")},
	), 1)
}

func TestPatternMatching(t *testing.T) {
	tests := []struct {
		pattern string
		path    []string
		prefix  bool
		exact   bool
	}{
		{"actions", []string{"actions", "0", "date"}, true, false},
		{"properties.*", []string{"properties", "age"}, true, true},
		{"properties.*", []string{"properties"}, false, false},
		{"computed_*", []string{"computed_modified_on_"}, true, true},
		{"indices.*.doc_type", []string{"indices", "1", "doc_type"}, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			p := splitPattern(tt.pattern)
			assert.Equal(t, tt.prefix, p.matchesPrefix(tt.path))
			assert.Equal(t, tt.exact, p.matchesExact(tt.path))
		})
	}
}

func TestCompiledRulesUnordered(t *testing.T) {
	c := compile(Rules{Unordered: []string{"xform_ids", "indices.*.tags"}})

	assert.True(t, c.isUnordered([]string{"xform_ids"}))
	assert.True(t, c.isUnordered([]string{"indices", "0", "tags"}))
	assert.False(t, c.isUnordered([]string{"xform_ids", "0"}))
	assert.False(t, c.isUnordered([]string{"properties"}))
}
