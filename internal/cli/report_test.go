package cli

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/casediff/internal/engine"
	"github.com/roach88/casediff/internal/ir"
	"github.com/roach88/casediff/internal/redisstore"
	"github.com/roach88/casediff/internal/store"
)

func saveSample(t *testing.T, state engine.StateStore) {
	t.Helper()
	data := engine.NewDiffData()
	data.DocIDs = []string{"a", "c"}
	data.Diffs = []ir.DiffRecord{{
		Kind:  ir.KindCase,
		DocID: "c",
		Diffs: []ir.DiffEntry{{
			Type: ir.DiffTypeDiff,
			Path: []string{"properties", "color"},
			Old:  ir.IRString("red"),
			New:  ir.IRString("blue"),
		}},
	}}
	require.NoError(t, engine.NewResultSaver(state, nil)(context.Background(), data))
}

func sqliteState(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.db")
	st, err := store.Open(path)
	require.NoError(t, err)
	saveSample(t, st)
	require.NoError(t, st.Close())
	return path
}

func TestReportCommand_Text(t *testing.T) {
	path := sqliteState(t)

	out, _, err := execute(t, OpenBackends, "report", "--state", path)
	require.NoError(t, err)

	want := `diffed cases: 2
unresolved diffs: 1
  case c
    diff properties.color: "red" -> "blue"
explained changes: 0
missing docs: 0
`
	assert.Equal(t, want, out)
}

func TestReportCommand_JSON(t *testing.T) {
	path := sqliteState(t)

	out, _, err := execute(t, OpenBackends, "report", "--state", path, "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.JSONEq(t, `{
		"changes": [],
		"diffed_cases": 2,
		"diffs": [{"diffs": [{"new": "blue", "old": "red", "path": ["properties", "color"], "type": "diff"}], "doc_id": "c", "kind": "case"}],
		"missing_docs": []
	}`, string(resp.Data))
}

func TestReportCommand_FailOnDiff(t *testing.T) {
	path := sqliteState(t)

	_, _, err := execute(t, OpenBackends, "report", "--state", path, "--fail-on-diff")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	clean := filepath.Join(t.TempDir(), "clean.db")
	_, _, err = execute(t, OpenBackends, "report", "--state", clean, "--fail-on-diff")
	require.NoError(t, err)
}

func TestReportCommand_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	state := redisstore.New(mr.Addr(), "", 0)
	saveSample(t, state)
	require.NoError(t, state.Close())

	out, _, err := execute(t, OpenBackends, "report", "--state", "redis://"+mr.Addr())
	require.NoError(t, err)
	assert.Contains(t, out, "diffed cases: 2\n")
	assert.Contains(t, out, "  case c\n")
}

func TestReportCommand_FromConfig(t *testing.T) {
	mr := miniredis.RunT(t)
	state := redisstore.New(mr.Addr(), "", 0, redisstore.WithPrefix("run-1:"))
	saveSample(t, state)
	require.NoError(t, state.Close())

	cfg := writeConfig(t, `domain: "demo"
state: {
	driver:     "redis"
	redis_addr: "`+mr.Addr()+`"
	prefix:     "run-1:"
}
`)
	out, _, err := execute(t, OpenBackends, "report", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "unresolved diffs: 1\n")
}

func TestReportCommand_NeedsState(t *testing.T) {
	out, _, err := execute(t, OpenBackends, "report")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "one of --config or --state is required")
}

func TestReportCommand_UnreachableRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, _, err := execute(t, OpenBackends, "report", "--state", "redis://"+addr)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "open redis state")
}
