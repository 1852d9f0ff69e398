package ir

import (
	"fmt"
	"strings"
)

// Record kinds used for diffs and changes.
const (
	KindCase       = "case"
	KindStockState = "stock state"
)

// Diff entry types.
const (
	DiffTypeDiff       = "diff"
	DiffTypeType       = "type"
	DiffTypeMissing    = "missing"
	DiffTypeListLength = "list_length"
)

// DiffEntry is a single structural difference between the document view
// (Old) and the relational view (New). A nil Old or New means the path is
// absent on that side.
type DiffEntry struct {
	Type string   `json:"type"`
	Path []string `json:"path"`
	Old  IRValue  `json:"old,omitempty"`
	New  IRValue  `json:"new,omitempty"`
}

// PathString joins the path with dots.
func (e DiffEntry) PathString() string {
	return strings.Join(e.Path, ".")
}

// Object renders the entry as an IRObject; absent sides are omitted.
func (e DiffEntry) Object() IRObject {
	path := make(IRArray, len(e.Path))
	for i, p := range e.Path {
		path[i] = IRString(p)
	}
	obj := IRObject{
		"type": IRString(e.Type),
		"path": path,
	}
	if e.Old != nil {
		obj["old"] = e.Old
	}
	if e.New != nil {
		obj["new"] = e.New
	}
	return obj
}

// DiffEntryFromObject is the inverse of Object.
func DiffEntryFromObject(obj IRObject) (DiffEntry, error) {
	typ, ok := obj["type"].(IRString)
	if !ok {
		return DiffEntry{}, fmt.Errorf("diff entry: missing type")
	}
	rawPath, ok := obj["path"].(IRArray)
	if !ok {
		return DiffEntry{}, fmt.Errorf("diff entry: missing path")
	}
	path := make([]string, len(rawPath))
	for i, p := range rawPath {
		s, ok := p.(IRString)
		if !ok {
			return DiffEntry{}, fmt.Errorf("diff entry: path[%d] is %s", i, TypeName(p))
		}
		path[i] = string(s)
	}
	return DiffEntry{Type: string(typ), Path: path, Old: obj["old"], New: obj["new"]}, nil
}

// MarshalJSON renders the entry canonically.
func (e DiffEntry) MarshalJSON() ([]byte, error) {
	return MarshalCanonical(e.Object())
}

// UnmarshalJSON implements json.Unmarshaler for DiffEntry.
func (e *DiffEntry) UnmarshalJSON(data []byte) error {
	var obj IRObject
	if err := obj.UnmarshalJSON(data); err != nil {
		return err
	}
	entry, err := DiffEntryFromObject(obj)
	if err != nil {
		return err
	}
	*e = entry
	return nil
}

// DiffRecord holds the unresolved differences for one record. A record
// with no entries means the record was reconciled and matched; saving it
// clears whatever was stored before.
type DiffRecord struct {
	Kind  string      `json:"kind"`
	DocID string      `json:"doc_id"`
	Diffs []DiffEntry `json:"diffs"`
}

// ChangeRecord holds differences explained by a known backend behavior.
type ChangeRecord struct {
	Kind   string      `json:"kind"`
	DocID  string      `json:"doc_id"`
	Reason string      `json:"reason"`
	Diffs  []DiffEntry `json:"diffs"`
}

// MissingDocs lists records of one document type that exist only in the
// document store.
type MissingDocs struct {
	DocType string   `json:"doc_type"`
	DocIDs  []string `json:"doc_ids"`
}

// DiffsToChanges attaches a reason to a set of diff entries.
func DiffsToChanges(kind, docID, reason string, diffs []DiffEntry) ChangeRecord {
	if diffs == nil {
		diffs = []DiffEntry{}
	}
	return ChangeRecord{Kind: kind, DocID: docID, Reason: reason, Diffs: diffs}
}

type recordKey struct {
	kind  string
	docID string
}

// MergeDiffs folds records sharing a (kind, doc_id) into one, keeping the
// order in which keys first appear. Entries are copied.
func MergeDiffs(recs []DiffRecord) []DiffRecord {
	index := map[recordKey]int{}
	out := make([]DiffRecord, 0, len(recs))
	for _, rec := range recs {
		key := recordKey{rec.Kind, rec.DocID}
		if i, ok := index[key]; ok {
			out[i].Diffs = append(out[i].Diffs, rec.Diffs...)
			continue
		}
		index[key] = len(out)
		rec.Diffs = append([]DiffEntry{}, rec.Diffs...)
		out = append(out, rec)
	}
	return out
}

// MergeChanges is MergeDiffs for change records. The first non-empty
// reason wins.
func MergeChanges(recs []ChangeRecord) []ChangeRecord {
	index := map[recordKey]int{}
	out := make([]ChangeRecord, 0, len(recs))
	for _, rec := range recs {
		key := recordKey{rec.Kind, rec.DocID}
		if i, ok := index[key]; ok {
			out[i].Diffs = append(out[i].Diffs, rec.Diffs...)
			if out[i].Reason == "" {
				out[i].Reason = rec.Reason
			}
			continue
		}
		index[key] = len(out)
		rec.Diffs = append([]DiffEntry{}, rec.Diffs...)
		out = append(out, rec)
	}
	return out
}
