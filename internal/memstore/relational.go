package memstore

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/roach88/casediff/internal/ir"
)

// Relational is an in-memory relational store.
type Relational struct {
	failures

	mu           sync.RWMutex
	cases        map[string]ir.CaseRecord
	ledgers      map[ir.LedgerReference]ir.LedgerValue
	transactions map[string][]ir.CaseTransaction
}

// NewRelational creates an empty relational store.
func NewRelational() *Relational {
	return &Relational{
		cases:        map[string]ir.CaseRecord{},
		ledgers:      map[ir.LedgerReference]ir.LedgerValue{},
		transactions: map[string][]ir.CaseTransaction{},
	}
}

// PutCase stores or replaces a case.
func (r *Relational) PutCase(c ir.CaseRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cases[c.CaseID] = c.Clone()
}

// PutLedgerValue stores or replaces a ledger value.
func (r *Relational) PutLedgerValue(v ir.LedgerValue) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ledgers[v.Ref] = v
}

// AddCaseTransaction appends to the transaction history of a case.
func (r *Relational) AddCaseTransaction(tx ir.CaseTransaction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transactions[tx.CaseID] = append(r.transactions[tx.CaseID], tx)
}

// GetCases returns the stored cases among ids, in id order.
func (r *Relational) GetCases(ctx context.Context, ids []string) ([]ir.CaseRecord, error) {
	if err := r.err(OpGetCases); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []ir.CaseRecord{}
	for _, id := range sortedUnique(ids) {
		if c, ok := r.cases[id]; ok {
			out = append(out, c.Clone())
		}
	}
	return out, nil
}

// GetLedgerValues returns every ledger value of the given cases, ordered
// by reference.
func (r *Relational) GetLedgerValues(ctx context.Context, caseIDs []string) ([]ir.LedgerValue, error) {
	if err := r.err(OpGetLedgerValues); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	want := make(map[string]bool, len(caseIDs))
	for _, id := range caseIDs {
		want[id] = true
	}
	out := []ir.LedgerValue{}
	for ref, v := range r.ledgers {
		if want[ref.CaseID] {
			out = append(out, v)
		}
	}
	slices.SortFunc(out, func(a, b ir.LedgerValue) int { return a.Ref.Compare(b.Ref) })
	return out, nil
}

// GetCaseTransactions returns the transactions of a case ordered by
// server date, then form id.
func (r *Relational) GetCaseTransactions(ctx context.Context, caseID string) ([]ir.CaseTransaction, error) {
	if err := r.err(OpGetCaseTransactions); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := slices.Clone(r.transactions[caseID])
	slices.SortStableFunc(out, func(a, b ir.CaseTransaction) int {
		if c := a.ServerDate.Compare(b.ServerDate); c != 0 {
			return c
		}
		return strings.Compare(a.FormID, b.FormID)
	})
	if out == nil {
		out = []ir.CaseTransaction{}
	}
	return out, nil
}
