package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunWithGolden(t *testing.T) {
	for _, name := range []string{"abc_batch", "duplicate_stock", "missing_and_orphan", "cutoff_deferred"} {
		t.Run(name, func(t *testing.T) {
			result, err := RunWithGolden(t, loadScenario(t, name))
			require.NoError(t, err)
			requirePass(t, result)
		})
	}
}

func TestAssertGolden_FromResult(t *testing.T) {
	result, err := Run(context.Background(), loadScenario(t, "duplicate_stock"))
	require.NoError(t, err)
	require.NoError(t, AssertGolden(t, "duplicate_stock", result))
}

func TestSnapshot_Deterministic(t *testing.T) {
	scenario := loadScenario(t, "abc_batch")

	var snapshots []string
	for range 3 {
		result, err := Run(context.Background(), scenario)
		require.NoError(t, err)
		data, err := Snapshot(result)
		require.NoError(t, err)
		snapshots = append(snapshots, string(data))
	}
	assert.Equal(t, snapshots[0], snapshots[1])
	assert.Equal(t, snapshots[0], snapshots[2])
}

func TestSnapshot_Shape(t *testing.T) {
	result, err := Run(context.Background(), loadScenario(t, "cutoff_deferred"))
	require.NoError(t, err)

	data, err := Snapshot(result)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"deferred": ["e", "f"],
		"report": {"changes": [], "diffed_cases": 1, "diffs": [], "missing_docs": []},
		"scenario": "cutoff_deferred",
		"session": "cutoff_deferred-0001"
	}`, string(data))
}
