package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/casediff/internal/ir"
)

// Snapshot renders the reproducible part of a result as canonical JSON:
// scenario name, session id, deferred cases and the stored report.
func Snapshot(result *Result) ([]byte, error) {
	deferred := result.Deferred()
	ids := make(ir.IRArray, len(deferred))
	for i, id := range deferred {
		ids[i] = ir.IRString(id)
	}
	obj := ir.IRObject{
		"scenario": ir.IRString(result.Scenario),
		"session":  ir.IRString(result.SessionID),
		"deferred": ids,
		"report":   result.Report.Object(),
	}
	return ir.MarshalCanonical(obj)
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario, opts ...Option) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario, opts...)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against a golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	data, err := Snapshot(result)
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}
