package memstore

import (
	"context"
	"slices"
	"sync"

	"github.com/roach88/casediff/internal/ir"
)

// Operation names accepted by Fail.
const (
	OpCaseIDs              = "CaseIDs"
	OpGetCases             = "GetCases"
	OpGetStockStates       = "GetStockStates"
	OpGetStockTransactions = "GetStockTransactions"
	OpGetForm              = "GetForm"
	OpGetCaseLocation      = "GetCaseLocation"
	OpGetLedgerValues      = "GetLedgerValues"
	OpGetCaseTransactions  = "GetCaseTransactions"
)

// failures makes chosen operations return an error.
type failures struct {
	mu   sync.RWMutex
	errs map[string]error
}

// Fail makes every later call to op return err. A nil err clears it.
func (f *failures) Fail(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.errs == nil {
		f.errs = map[string]error{}
	}
	if err == nil {
		delete(f.errs, op)
		return
	}
	f.errs[op] = err
}

func (f *failures) err(op string) error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.errs[op]
}

// Document is an in-memory document store.
type Document struct {
	failures

	mu           sync.RWMutex
	cases        map[string]ir.CaseRecord
	forms        map[string]ir.Form
	stockStates  map[ir.LedgerReference]ir.StockState
	transactions map[string][]ir.StockTransaction
	locations    map[string]string
	seq          int64
}

// NewDocument creates an empty document store.
func NewDocument() *Document {
	return &Document{
		cases:        map[string]ir.CaseRecord{},
		forms:        map[string]ir.Form{},
		stockStates:  map[ir.LedgerReference]ir.StockState{},
		transactions: map[string][]ir.StockTransaction{},
		locations:    map[string]string{},
	}
}

// PutCase stores or replaces a case.
func (d *Document) PutCase(c ir.CaseRecord) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cases[c.CaseID] = c.Clone()
}

// PutForm stores or replaces a form.
func (d *Document) PutForm(f ir.Form) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.forms[f.FormID] = f
}

// PutStockState stores or replaces the materialized state of a ledger.
func (d *Document) PutStockState(s ir.StockState) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stockStates[s.Ref] = s
}

// AddStockTransaction appends to the stock log. A zero Seq is replaced by
// the next storage sequence number.
func (d *Document) AddStockTransaction(tx ir.StockTransaction) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seq++
	if tx.Seq == 0 {
		tx.Seq = d.seq
	}
	d.transactions[tx.Ref.CaseID] = append(d.transactions[tx.Ref.CaseID], tx)
}

// SetLocation sets the location of a supply-point case.
func (d *Document) SetLocation(caseID, locationID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.locations[caseID] = locationID
}

// Cases returns every stored case keyed by id.
func (d *Document) Cases() map[string]ir.CaseRecord {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]ir.CaseRecord, len(d.cases))
	for id, c := range d.cases {
		out[id] = c.Clone()
	}
	return out
}

// CaseIDs lists the ids of every case in a domain, in id order.
func (d *Document) CaseIDs(ctx context.Context, domain string) ([]string, error) {
	if err := d.err(OpCaseIDs); err != nil {
		return nil, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	ids := []string{}
	for id, c := range d.cases {
		if c.Domain == domain {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

// GetCases returns the stored cases among ids, in id order.
func (d *Document) GetCases(ctx context.Context, ids []string) ([]ir.CaseRecord, error) {
	if err := d.err(OpGetCases); err != nil {
		return nil, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := []ir.CaseRecord{}
	for _, id := range sortedUnique(ids) {
		if c, ok := d.cases[id]; ok {
			out = append(out, c.Clone())
		}
	}
	return out, nil
}

// GetStockStates returns the materialized states of every ledger of the
// given cases, ordered by reference.
func (d *Document) GetStockStates(ctx context.Context, caseIDs []string) ([]ir.StockState, error) {
	if err := d.err(OpGetStockStates); err != nil {
		return nil, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	want := make(map[string]bool, len(caseIDs))
	for _, id := range caseIDs {
		want[id] = true
	}
	out := []ir.StockState{}
	for ref, s := range d.stockStates {
		if want[ref.CaseID] {
			out = append(out, s)
		}
	}
	slices.SortFunc(out, func(a, b ir.StockState) int { return a.Ref.Compare(b.Ref) })
	return out, nil
}

// GetStockTransactions returns the stock log of a case in insertion order.
func (d *Document) GetStockTransactions(ctx context.Context, caseID string) ([]ir.StockTransaction, error) {
	if err := d.err(OpGetStockTransactions); err != nil {
		return nil, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.Clone(d.transactions[caseID]), nil
}

// GetForm returns a form by id.
func (d *Document) GetForm(ctx context.Context, formID string) (ir.Form, bool, error) {
	if err := d.err(OpGetForm); err != nil {
		return ir.Form{}, false, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	f, ok := d.forms[formID]
	return f, ok, nil
}

// GetCaseLocation returns the location of a supply-point case.
func (d *Document) GetCaseLocation(ctx context.Context, caseID string) (string, bool, error) {
	if err := d.err(OpGetCaseLocation); err != nil {
		return "", false, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	loc, ok := d.locations[caseID]
	return loc, ok, nil
}

func sortedUnique(ids []string) []string {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}
