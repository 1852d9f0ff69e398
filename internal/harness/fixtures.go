package harness

import (
	"fmt"
	"slices"

	"github.com/roach88/casediff/internal/ir"
	"github.com/roach88/casediff/internal/memstore"
)

// caseRecord converts a fixture, filling in the scenario domain and the
// default document type.
func (c CaseFixture) caseRecord(domain string) (ir.CaseRecord, error) {
	props := ir.IRObject{}
	for k, v := range c.Properties {
		val, err := ir.FromAny(v)
		if err != nil {
			return ir.CaseRecord{}, fmt.Errorf("case %s: property %q: %w", c.CaseID, k, err)
		}
		props[k] = val
	}
	rec := ir.CaseRecord{
		CaseID:     c.CaseID,
		DocType:    c.DocType,
		Domain:     c.Domain,
		Type:       c.Type,
		Name:       c.Name,
		OwnerID:    c.OwnerID,
		Closed:     c.Closed,
		Properties: props,
		XFormIDs:   slices.Clone(c.XFormIDs),
		Indices:    slices.Clone(c.Indices),
	}
	if rec.XFormIDs == nil {
		rec.XFormIDs = []string{}
	}
	if rec.Indices == nil {
		rec.Indices = []ir.CaseIndex{}
	}
	if rec.DocType == "" {
		rec.DocType = ir.DocTypeCase
	}
	if rec.Domain == "" {
		rec.Domain = domain
	}
	if c.ServerModifiedOn != nil {
		t := c.ServerModifiedOn.UTC()
		rec.ServerModifiedOn = &t
	}
	return rec, nil
}

func (f FormFixture) form(domain string) ir.Form {
	form := ir.Form{
		FormID:       f.FormID,
		Domain:       f.Domain,
		ReceivedOn:   f.ReceivedOn.UTC(),
		Undecodable:  f.Undecodable,
		CaseBlocks:   f.CaseBlocks,
		StockReports: f.StockReports,
	}
	if form.Domain == "" {
		form.Domain = domain
	}
	return form
}

func (l LedgerFixture) ledgerValue() ir.LedgerValue {
	return ir.LedgerValue{
		Ref:                l.Ref,
		Balance:            l.Balance,
		LastModified:       l.LastModified.UTC(),
		LastModifiedFormID: l.LastModifiedFormID,
		LocationID:         l.LocationID,
	}
}

func (t StockTransactionFixture) stockTransaction() ir.StockTransaction {
	return ir.StockTransaction{
		FormID:    t.FormID,
		Type:      t.Type,
		Ref:       t.Ref,
		Balance:   t.Balance,
		Timestamp: t.Timestamp.UTC(),
	}
}

// seedDocument builds the document store of a scenario.
func seedDocument(s *Scenario) (*memstore.Document, map[string]ir.CaseRecord, error) {
	docs := memstore.NewDocument()
	cases := make(map[string]ir.CaseRecord, len(s.Document.Cases))
	for _, c := range s.Document.Cases {
		rec, err := c.caseRecord(s.Domain)
		if err != nil {
			return nil, nil, fmt.Errorf("document: %w", err)
		}
		docs.PutCase(rec)
		cases[rec.CaseID] = rec
	}
	for _, f := range s.Document.Forms {
		docs.PutForm(f.form(s.Domain))
	}
	for _, st := range s.Document.StockStates {
		docs.PutStockState(ir.StockState(st.ledgerValue()))
	}
	// the store assigns sequence numbers in insertion order
	for _, tx := range s.Document.StockTransactions {
		docs.AddStockTransaction(tx.stockTransaction())
	}
	for caseID, loc := range s.Document.Locations {
		docs.SetLocation(caseID, loc)
	}
	return docs, cases, nil
}

// seedRelational builds the relational store of a scenario.
func seedRelational(s *Scenario, docCases map[string]ir.CaseRecord) (*memstore.Relational, error) {
	sql := memstore.NewRelational()
	for _, id := range s.Relational.FromDocument {
		sql.PutCase(docCases[id].Clone())
	}
	for _, c := range s.Relational.Cases {
		rec, err := c.caseRecord(s.Domain)
		if err != nil {
			return nil, fmt.Errorf("relational: %w", err)
		}
		sql.PutCase(rec)
	}
	for _, tx := range s.Relational.Transactions {
		sql.AddCaseTransaction(ir.CaseTransaction{
			CaseID:     tx.CaseID,
			FormID:     tx.FormID,
			ServerDate: tx.ServerDate.UTC(),
			Revoked:    tx.Revoked,
		})
	}
	for _, v := range s.Relational.LedgerValues {
		sql.PutLedgerValue(v.ledgerValue())
	}
	return sql, nil
}

// batch selects the document cases the scenario diffs.
func batch(s *Scenario, docCases map[string]ir.CaseRecord) map[string]ir.CaseRecord {
	if len(s.Batch) == 0 {
		return docCases
	}
	out := make(map[string]ir.CaseRecord, len(s.Batch))
	for _, id := range s.Batch {
		out[id] = docCases[id]
	}
	return out
}
