package document

import (
	"fmt"
	"reflect"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/roach88/casediff/internal/ir"
)

type indexDoc struct {
	Identifier     string `mapstructure:"identifier"`
	ReferencedType string `mapstructure:"referenced_type"`
	ReferencedID   string `mapstructure:"referenced_id"`
	Relationship   string `mapstructure:"relationship"`
}

type caseDoc struct {
	CaseID           string         `mapstructure:"case_id"`
	DocType          string         `mapstructure:"doc_type"`
	Domain           string         `mapstructure:"domain"`
	Type             string         `mapstructure:"type"`
	Name             string         `mapstructure:"name"`
	OwnerID          string         `mapstructure:"owner_id"`
	Closed           bool           `mapstructure:"closed"`
	Properties       map[string]any `mapstructure:"properties"`
	XFormIDs         []string       `mapstructure:"xform_ids"`
	Indices          []indexDoc     `mapstructure:"indices"`
	ServerModifiedOn *time.Time     `mapstructure:"server_modified_on"`
	Extra            map[string]any `mapstructure:",remain"`
}

type stockStateDoc struct {
	CaseID             string    `mapstructure:"case_id"`
	SectionID          string    `mapstructure:"section_id"`
	EntryID            string    `mapstructure:"entry_id"`
	StockOnHand        int64     `mapstructure:"stock_on_hand"`
	LastModifiedDate   time.Time `mapstructure:"last_modified_date"`
	LastModifiedFormID string    `mapstructure:"last_modified_form_id"`
	LocationID         string    `mapstructure:"location_id"`
}

type stockTransactionDoc struct {
	FormID      string    `mapstructure:"form_id"`
	Type        string    `mapstructure:"type"`
	CaseID      string    `mapstructure:"case_id"`
	SectionID   string    `mapstructure:"section_id"`
	EntryID     string    `mapstructure:"entry_id"`
	StockOnHand int64     `mapstructure:"stock_on_hand"`
	ReportDate  time.Time `mapstructure:"report_date"`
	Seq         int64     `mapstructure:"seq"`
}

type caseCreateDoc struct {
	Type    string `mapstructure:"case_type"`
	Name    string `mapstructure:"case_name"`
	OwnerID string `mapstructure:"owner_id"`
}

type caseBlockDoc struct {
	CaseID  string            `mapstructure:"case_id"`
	Create  *caseCreateDoc    `mapstructure:"create"`
	Update  map[string]string `mapstructure:"update"`
	Close   bool              `mapstructure:"close"`
	Indices []indexDoc        `mapstructure:"index"`
}

type stockEntryDoc struct {
	SectionID string `mapstructure:"section_id"`
	EntryID   string `mapstructure:"entry_id"`
	Quantity  int64  `mapstructure:"quantity"`
}

type stockReportDoc struct {
	Type    string          `mapstructure:"type"`
	Date    time.Time       `mapstructure:"date"`
	CaseID  string          `mapstructure:"case_id"`
	Entries []stockEntryDoc `mapstructure:"entries"`
}

type formDoc struct {
	FormID       string           `mapstructure:"form_id"`
	Domain       string           `mapstructure:"domain"`
	ReceivedOn   time.Time        `mapstructure:"received_on"`
	CaseBlocks   []caseBlockDoc   `mapstructure:"case_blocks"`
	StockReports []stockReportDoc `mapstructure:"stock_reports"`
}

// timeHook accepts RFC 3339 strings, SurrealDB datetimes and values that
// are already times.
func timeHook(from, to reflect.Type, data any) (any, error) {
	if to != reflect.TypeOf(time.Time{}) {
		return data, nil
	}
	switch v := data.(type) {
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil, err
		}
		return t.UTC(), nil
	case time.Time:
		return v.UTC(), nil
	case models.CustomDateTime:
		return v.Time.UTC(), nil
	case *models.CustomDateTime:
		if v == nil {
			return time.Time{}, nil
		}
		return v.Time.UTC(), nil
	}
	return data, nil
}

// decode decodes a raw document into out.
func decode(raw any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       timeHook,
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(raw)
}

// recordKeys are SurrealDB bookkeeping fields that never reach the view.
var recordKeys = []string{"id"}

func decodeCase(raw map[string]any) (ir.CaseRecord, error) {
	var doc caseDoc
	if err := decode(raw, &doc); err != nil {
		return ir.CaseRecord{}, fmt.Errorf("decode case: %w", err)
	}

	c := ir.CaseRecord{
		CaseID:           doc.CaseID,
		DocType:          doc.DocType,
		Domain:           doc.Domain,
		Type:             doc.Type,
		Name:             doc.Name,
		OwnerID:          doc.OwnerID,
		Closed:           doc.Closed,
		Properties:       ir.IRObject{},
		XFormIDs:         doc.XFormIDs,
		Indices:          make([]ir.CaseIndex, len(doc.Indices)),
		ServerModifiedOn: doc.ServerModifiedOn,
	}
	if c.DocType == "" {
		c.DocType = ir.DocTypeCase
	}
	if c.XFormIDs == nil {
		c.XFormIDs = []string{}
	}
	for i, idx := range doc.Indices {
		c.Indices[i] = ir.CaseIndex(idx)
	}
	if len(doc.Properties) > 0 {
		v, err := ir.FromAny(doc.Properties)
		if err != nil {
			return ir.CaseRecord{}, fmt.Errorf("case %s properties: %w", doc.CaseID, err)
		}
		c.Properties = v.(ir.IRObject)
	}

	for _, k := range recordKeys {
		delete(doc.Extra, k)
	}
	if len(doc.Extra) > 0 {
		v, err := ir.FromAny(doc.Extra)
		if err != nil {
			return ir.CaseRecord{}, fmt.Errorf("case %s: %w", doc.CaseID, err)
		}
		c.Extra = v.(ir.IRObject)
	}
	return c, nil
}

func decodeStockState(raw map[string]any) (ir.StockState, error) {
	var doc stockStateDoc
	if err := decode(raw, &doc); err != nil {
		return ir.StockState{}, fmt.Errorf("decode stock state: %w", err)
	}
	return ir.StockState{
		Ref:                ir.LedgerReference{CaseID: doc.CaseID, SectionID: doc.SectionID, EntryID: doc.EntryID},
		Balance:            doc.StockOnHand,
		LastModified:       doc.LastModifiedDate,
		LastModifiedFormID: doc.LastModifiedFormID,
		LocationID:         doc.LocationID,
	}, nil
}

func decodeStockTransaction(raw map[string]any) (ir.StockTransaction, error) {
	var doc stockTransactionDoc
	if err := decode(raw, &doc); err != nil {
		return ir.StockTransaction{}, fmt.Errorf("decode stock transaction: %w", err)
	}
	return ir.StockTransaction{
		FormID:    doc.FormID,
		Type:      doc.Type,
		Ref:       ir.LedgerReference{CaseID: doc.CaseID, SectionID: doc.SectionID, EntryID: doc.EntryID},
		Balance:   doc.StockOnHand,
		Timestamp: doc.ReportDate,
		Seq:       doc.Seq,
	}, nil
}

// decodeForm decodes a form. A body that cannot be decoded yields a form
// marked Undecodable rather than an error; only the id is kept.
func decodeForm(formID string, raw map[string]any) ir.Form {
	var doc formDoc
	if err := decode(raw, &doc); err != nil {
		return ir.Form{FormID: formID, Undecodable: true}
	}

	f := ir.Form{
		FormID:     formID,
		Domain:     doc.Domain,
		ReceivedOn: doc.ReceivedOn,
	}
	for _, b := range doc.CaseBlocks {
		block := ir.CaseBlock{
			CaseID: b.CaseID,
			Update: b.Update,
			Close:  b.Close,
		}
		if b.Create != nil {
			block.Create = &ir.CaseCreate{Type: b.Create.Type, Name: b.Create.Name, OwnerID: b.Create.OwnerID}
		}
		for _, idx := range b.Indices {
			block.Indices = append(block.Indices, ir.CaseIndex(idx))
		}
		f.CaseBlocks = append(f.CaseBlocks, block)
	}
	for _, r := range doc.StockReports {
		report := ir.StockReport{Type: r.Type, Date: r.Date}
		for _, e := range r.Entries {
			report.Entries = append(report.Entries, ir.StockEntry{
				Ref:      ir.LedgerReference{CaseID: r.CaseID, SectionID: e.SectionID, EntryID: e.EntryID},
				Quantity: e.Quantity,
			})
		}
		f.StockReports = append(f.StockReports, report)
	}
	return f
}
