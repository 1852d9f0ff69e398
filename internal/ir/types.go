package ir

import (
	"slices"
	"strings"
	"time"
)

// Default document types for case records.
const (
	DocTypeCase        = "CommCareCase"
	DocTypeDeletedCase = "CommCareCase-Deleted"
)

// CaseIndex links a case to another case (parent, host, ...).
type CaseIndex struct {
	Identifier     string `json:"identifier" yaml:"identifier"`
	ReferencedType string `json:"referenced_type" yaml:"referenced_type"`
	ReferencedID   string `json:"referenced_id" yaml:"referenced_id"`
	Relationship   string `json:"relationship" yaml:"relationship"`
}

// CaseRecord is the backend-neutral form of a case. Each backend adapter
// decodes into its own row/document type and converts to CaseRecord;
// comparisons run on View().
type CaseRecord struct {
	CaseID           string      `json:"case_id"`
	DocType          string      `json:"doc_type"`
	Domain           string      `json:"domain"`
	Type             string      `json:"type"`
	Name             string      `json:"name"`
	OwnerID          string      `json:"owner_id"`
	Closed           bool        `json:"closed"`
	Properties       IRObject    `json:"properties"`
	XFormIDs         []string    `json:"xform_ids"`
	Indices          []CaseIndex `json:"indices"`
	ServerModifiedOn *time.Time  `json:"server_modified_on,omitempty"`

	// Extra holds backend bookkeeping that is carried into the view so the
	// diff filters can see (and discard) it.
	Extra IRObject `json:"extra,omitempty"`
}

// Clone returns a deep enough copy for in-memory rebuilds: slices and
// maps are copied, values are shared.
func (c CaseRecord) Clone() CaseRecord {
	out := c
	out.Properties = c.Properties.Clone()
	out.XFormIDs = slices.Clone(c.XFormIDs)
	out.Indices = slices.Clone(c.Indices)
	if c.Extra != nil {
		out.Extra = c.Extra.Clone()
	}
	if c.ServerModifiedOn != nil {
		t := *c.ServerModifiedOn
		out.ServerModifiedOn = &t
	}
	return out
}

// View renders the case as the common comparison view.
func (c CaseRecord) View() IRObject {
	obj := make(IRObject, len(c.Extra)+11)
	for k, v := range c.Extra {
		obj[k] = v
	}

	xforms := make(IRArray, len(c.XFormIDs))
	for i, id := range c.XFormIDs {
		xforms[i] = IRString(id)
	}

	indices := slices.Clone(c.Indices)
	slices.SortFunc(indices, func(a, b CaseIndex) int {
		return strings.Compare(a.Identifier, b.Identifier)
	})
	idx := make(IRArray, len(indices))
	for i, index := range indices {
		idx[i] = IRObject{
			"identifier":      IRString(index.Identifier),
			"referenced_type": IRString(index.ReferencedType),
			"referenced_id":   IRString(index.ReferencedID),
			"relationship":    IRString(index.Relationship),
		}
	}

	props := c.Properties
	if props == nil {
		props = IRObject{}
	}

	var modified IRValue = IRNull{}
	if c.ServerModifiedOn != nil {
		modified = IRString(FormatTime(*c.ServerModifiedOn))
	}

	obj["case_id"] = IRString(c.CaseID)
	obj["doc_type"] = IRString(c.DocType)
	obj["domain"] = IRString(c.Domain)
	obj["type"] = IRString(c.Type)
	obj["name"] = IRString(c.Name)
	obj["owner_id"] = IRString(c.OwnerID)
	obj["closed"] = IRBool(c.Closed)
	obj["properties"] = props.Clone()
	obj["xform_ids"] = xforms
	obj["indices"] = idx
	obj["server_modified_on"] = modified
	return obj
}

// LedgerReference identifies one ledger: a product (entry) in a section of
// a supply-point case.
type LedgerReference struct {
	CaseID    string `json:"case_id" yaml:"case_id"`
	SectionID string `json:"section_id" yaml:"section_id"`
	EntryID   string `json:"entry_id" yaml:"entry_id"`
}

// ID renders the reference as "case/section/entry".
func (r LedgerReference) ID() string {
	return r.CaseID + "/" + r.SectionID + "/" + r.EntryID
}

// Compare orders references by case, section, entry.
func (r LedgerReference) Compare(o LedgerReference) int {
	if c := strings.Compare(r.CaseID, o.CaseID); c != 0 {
		return c
	}
	if c := strings.Compare(r.SectionID, o.SectionID); c != 0 {
		return c
	}
	return strings.Compare(r.EntryID, o.EntryID)
}

// LedgerValue is the relational store's ledger state for one reference.
type LedgerValue struct {
	Ref                LedgerReference `json:"ref"`
	Balance            int64           `json:"balance"`
	LastModified       time.Time       `json:"last_modified"`
	LastModifiedFormID string          `json:"last_modified_form_id"`
	LocationID         string          `json:"location_id"`
}

// View renders the ledger value as the common comparison view.
func (v LedgerValue) View() IRObject {
	return IRObject{
		"case_id":               IRString(v.Ref.CaseID),
		"section_id":            IRString(v.Ref.SectionID),
		"entry_id":              IRString(v.Ref.EntryID),
		"balance":               IRInt(v.Balance),
		"last_modified":         IRString(FormatTime(v.LastModified)),
		"last_modified_form_id": IRString(v.LastModifiedFormID),
		"location_id":           IRString(v.LocationID),
	}
}

// StockState is the document store's materialized ledger state. It has
// the same shape as LedgerValue so the two compare field by field.
type StockState LedgerValue

// View renders the stock state as the common comparison view.
func (s StockState) View() IRObject {
	return LedgerValue(s).View()
}

// StockTransaction is one entry of the document store's stock log.
type StockTransaction struct {
	FormID    string          `json:"form_id"`
	Type      string          `json:"type"`
	Ref       LedgerReference `json:"ref"`
	Balance   int64           `json:"balance"`
	Timestamp time.Time       `json:"timestamp"`
	Seq       int64           `json:"seq"`
}

// CompareNewestFirst orders transactions most recent first: by timestamp
// descending, then storage sequence descending.
func CompareNewestFirst(a, b StockTransaction) int {
	if c := b.Timestamp.Compare(a.Timestamp); c != 0 {
		return c
	}
	switch {
	case a.Seq > b.Seq:
		return -1
	case a.Seq < b.Seq:
		return 1
	}
	return 0
}

// CaseCreate carries the create action of a case block.
type CaseCreate struct {
	Type    string `json:"type" yaml:"type"`
	Name    string `json:"name" yaml:"name"`
	OwnerID string `json:"owner_id" yaml:"owner_id"`
}

// CaseBlock is the part of a form that acts on one case.
type CaseBlock struct {
	CaseID  string            `json:"case_id" yaml:"case_id"`
	Create  *CaseCreate       `json:"create,omitempty" yaml:"create,omitempty"`
	Update  map[string]string `json:"update,omitempty" yaml:"update,omitempty"`
	Close   bool              `json:"close,omitempty" yaml:"close,omitempty"`
	Indices []CaseIndex       `json:"indices,omitempty" yaml:"indices,omitempty"`
}

// StockEntry is a single product line of a stock report.
type StockEntry struct {
	Ref      LedgerReference `json:"ref" yaml:"ref"`
	Quantity int64           `json:"quantity" yaml:"quantity"`
}

// StockReport is a balance or transfer report inside a form.
type StockReport struct {
	Type    string       `json:"type" yaml:"type"`
	Date    time.Time    `json:"date" yaml:"date"`
	Entries []StockEntry `json:"entries" yaml:"entries"`
}

// Form is a submitted transaction (form) as stored in the document store.
// Undecodable is set when the stored body could not be parsed; such a
// form cannot be replayed and does not count as referencing any case.
type Form struct {
	FormID       string        `json:"form_id"`
	Domain       string        `json:"domain"`
	ReceivedOn   time.Time     `json:"received_on"`
	Undecodable  bool          `json:"undecodable,omitempty"`
	CaseBlocks   []CaseBlock   `json:"case_blocks,omitempty"`
	StockReports []StockReport `json:"stock_reports,omitempty"`
}

// References reports whether one of the form's case blocks names caseID.
func (f Form) References(caseID string) bool {
	if f.Undecodable {
		return false
	}
	for _, b := range f.CaseBlocks {
		if b.CaseID == caseID {
			return true
		}
	}
	return false
}

// CountLedgerRefs counts the stock entries in the form that touch ref.
func (f Form) CountLedgerRefs(ref LedgerReference) int {
	n := 0
	for _, report := range f.StockReports {
		for _, e := range report.Entries {
			if e.Ref == ref {
				n++
			}
		}
	}
	return n
}

// CaseTransaction is the relational store's record that a form touched a
// case.
type CaseTransaction struct {
	CaseID     string    `json:"case_id"`
	FormID     string    `json:"form_id"`
	ServerDate time.Time `json:"server_date"`
	Revoked    bool      `json:"revoked"`
}
