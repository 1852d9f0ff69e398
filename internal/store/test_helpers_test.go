package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/casediff/internal/ir"
	"github.com/roach88/casediff/internal/testutil"
)

// createTestStore creates a new store in a temp dir with a deterministic
// clock.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, WithClock(testutil.NewDeterministicClock().Now))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestDiff creates a one-entry property diff record.
func createTestDiff(kind, docID, prop, old, new string) ir.DiffRecord {
	return ir.DiffRecord{
		Kind:  kind,
		DocID: docID,
		Diffs: []ir.DiffEntry{{
			Type: ir.DiffTypeDiff,
			Path: []string{"properties", prop},
			Old:  ir.IRString(old),
			New:  ir.IRString(new),
		}},
	}
}
