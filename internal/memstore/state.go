package memstore

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/roach88/casediff/internal/ir"
)

type recordKey struct {
	kind  string
	docID string
}

func compareKeys(a, b recordKey) int {
	return cmp.Or(strings.Compare(a.kind, b.kind), strings.Compare(a.docID, b.docID))
}

// State is an in-memory state store.
type State struct {
	mu      sync.RWMutex
	diffed  map[string]bool
	diffs   map[recordKey][]ir.DiffEntry
	changes map[recordKey]ir.ChangeRecord
	missing map[string]map[string]bool
}

// NewState creates an empty state store.
func NewState() *State {
	return &State{
		diffed:  map[string]bool{},
		diffs:   map[recordKey][]ir.DiffEntry{},
		changes: map[recordKey]ir.ChangeRecord{},
		missing: map[string]map[string]bool{},
	}
}

// AddDiffedCases marks cases as diffed.
func (s *State) AddDiffedCases(ctx context.Context, caseIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range caseIDs {
		s.diffed[id] = true
	}
	return nil
}

// ReplaceCaseDiffs replaces the stored diffs of every (kind, doc_id) in
// diffs. Records with no entries only clear.
func (s *State) ReplaceCaseDiffs(ctx context.Context, diffs []ir.DiffRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range diffs {
		delete(s.diffs, recordKey{rec.Kind, rec.DocID})
	}
	for _, rec := range diffs {
		if len(rec.Diffs) == 0 {
			continue
		}
		key := recordKey{rec.Kind, rec.DocID}
		s.diffs[key] = append(s.diffs[key], rec.Diffs...)
	}
	return nil
}

// ReplaceCaseChanges replaces the stored changes of every (kind, doc_id)
// in changes. Records with no entries only clear.
func (s *State) ReplaceCaseChanges(ctx context.Context, changes []ir.ChangeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range changes {
		delete(s.changes, recordKey{rec.Kind, rec.DocID})
	}
	for _, rec := range changes {
		if len(rec.Diffs) == 0 {
			continue
		}
		key := recordKey{rec.Kind, rec.DocID}
		stored, ok := s.changes[key]
		if !ok {
			stored = ir.ChangeRecord{Kind: rec.Kind, DocID: rec.DocID, Reason: rec.Reason, Diffs: []ir.DiffEntry{}}
		}
		stored.Diffs = append(stored.Diffs, rec.Diffs...)
		s.changes[key] = stored
	}
	return nil
}

// AddMissingDocs records documents missing from the relational store.
func (s *State) AddMissingDocs(ctx context.Context, docType string, docIDs []string) error {
	if len(docIDs) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ids, ok := s.missing[docType]
	if !ok {
		ids = map[string]bool{}
		s.missing[docType] = ids
	}
	for _, id := range docIDs {
		ids[id] = true
	}
	return nil
}

// RemoveMissingDocs forgets docIDs under every doc type.
func (s *State) RemoveMissingDocs(ctx context.Context, docIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for docType, ids := range s.missing {
		for _, id := range docIDs {
			delete(ids, id)
		}
		if len(ids) == 0 {
			delete(s.missing, docType)
		}
	}
	return nil
}

// GetDiffs returns the stored diffs ordered by kind, then doc id.
func (s *State) GetDiffs(ctx context.Context) ([]ir.DiffRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]recordKey, 0, len(s.diffs))
	for k := range s.diffs {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeys)
	out := make([]ir.DiffRecord, len(keys))
	for i, k := range keys {
		out[i] = ir.DiffRecord{Kind: k.kind, DocID: k.docID, Diffs: slices.Clone(s.diffs[k])}
	}
	return out, nil
}

// GetChanges returns the stored changes ordered by kind, then doc id.
func (s *State) GetChanges(ctx context.Context) ([]ir.ChangeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]recordKey, 0, len(s.changes))
	for k := range s.changes {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeys)
	out := make([]ir.ChangeRecord, len(keys))
	for i, k := range keys {
		rec := s.changes[k]
		rec.Diffs = slices.Clone(rec.Diffs)
		out[i] = rec
	}
	return out, nil
}

// GetMissingDocs returns missing documents grouped by type, types and ids
// sorted.
func (s *State) GetMissingDocs(ctx context.Context) ([]ir.MissingDocs, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ir.MissingDocs, 0, len(s.missing))
	for docType, set := range s.missing {
		ids := make([]string, 0, len(set))
		for id := range set {
			ids = append(ids, id)
		}
		slices.Sort(ids)
		out = append(out, ir.MissingDocs{DocType: docType, DocIDs: ids})
	}
	slices.SortFunc(out, func(a, b ir.MissingDocs) int { return strings.Compare(a.DocType, b.DocType) })
	return out, nil
}

// CountDiffedCases returns the number of distinct cases marked diffed.
func (s *State) CountDiffedCases(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.diffed), nil
}
