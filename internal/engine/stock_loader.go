package engine

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	lru "github.com/hashicorp/golang-lru"

	"github.com/roach88/casediff/internal/ir"
)

// StockTransactionLoader reconstructs document-store stock state from the
// stock transaction log when the materialized state is missing or
// suspect.
//
// Per case it loads the whole transaction log once, ordered most recent
// first and grouped by ledger reference, and keeps it in a bounded cache.
// Case locations and per-form ledger reference counts are cached too.
// Every lookup fails soft: a backend error is logged and treated as "no
// data".
//
// A loader belongs to one batch. It is safe for concurrent use.
type StockTransactionLoader struct {
	ws   *WorkerState
	docs DocumentStore
	log  *slog.Logger

	transactions *lru.ARCCache // case id -> map[ir.LedgerReference][]ir.StockTransaction
	locations    *lru.ARCCache // case id -> string

	mu        sync.Mutex
	forms     map[string]ir.Form
}

// NewStockTransactionLoader creates a loader caching up to cacheSize cases.
func NewStockTransactionLoader(ws *WorkerState, docs DocumentStore, log *slog.Logger, cacheSize int) (*StockTransactionLoader, error) {
	if cacheSize < 1 {
		cacheSize = DefaultStockCacheSize
	}
	txCache, err := lru.NewARC(cacheSize)
	if err != nil {
		return nil, fmt.Errorf("stock transaction cache: %w", err)
	}
	locCache, err := lru.NewARC(cacheSize)
	if err != nil {
		return nil, fmt.Errorf("case location cache: %w", err)
	}
	return &StockTransactionLoader{
		ws:           ws,
		docs:         docs,
		log:          log,
		transactions: txCache,
		locations:    locCache,
		forms:        map[string]ir.Form{},
	}, nil
}

// GetStockState builds the stock state from the latest transaction for
// ref. It reports false when the ledger has no transactions.
func (l *StockTransactionLoader) GetStockState(ctx context.Context, ref ir.LedgerReference) (ir.StockState, bool) {
	txs := l.Transactions(ctx, ref)
	if len(txs) == 0 {
		return ir.StockState{}, false
	}
	return l.newStockState(ctx, ref, txs[0]), true
}

// DedupStockState recomputes the stock state as if a duplicated write had
// not happened. It applies only when the ledger has exactly two
// transactions, both from the same form with the same type, and that form
// touches the ledger exactly once; the state then comes from the earlier
// of the two.
func (l *StockTransactionLoader) DedupStockState(ctx context.Context, ref ir.LedgerReference) (ir.StockState, bool) {
	txs := l.Transactions(ctx, ref)
	if len(txs) != 2 {
		l.log.Warn("possible duplicate stock", "ledger", ref.ID(), "transactions", len(txs))
		return ir.StockState{}, false
	}
	if !l.isDuplicated(ctx, ref, txs[0], txs[1]) {
		return ir.StockState{}, false
	}
	return l.newStockState(ctx, ref, txs[1]), true
}

func (l *StockTransactionLoader) isDuplicated(ctx context.Context, ref ir.LedgerReference, latest, earlier ir.StockTransaction) bool {
	if latest.FormID != earlier.FormID || latest.Type != earlier.Type {
		return false
	}
	return l.CountLedgerRefs(ctx, latest.FormID, ref) == 1
}

// Transactions returns the transactions for ref, most recent first.
func (l *StockTransactionLoader) Transactions(ctx context.Context, ref ir.LedgerReference) []ir.StockTransaction {
	if cached, ok := l.transactions.Get(ref.CaseID); ok {
		return cached.(map[ir.LedgerReference][]ir.StockTransaction)[ref]
	}

	txs, err := l.docs.GetStockTransactions(ctx, ref.CaseID)
	if err != nil {
		l.log.Warn("load stock transactions failed", "case_id", ref.CaseID, "error", err)
		return nil
	}
	txs = slices.Clone(txs)
	slices.SortStableFunc(txs, ir.CompareNewestFirst)

	byRef := map[ir.LedgerReference][]ir.StockTransaction{}
	for _, tx := range txs {
		byRef[tx.Ref] = append(byRef[tx.Ref], tx)
	}
	l.transactions.Add(ref.CaseID, byRef)
	return byRef[ref]
}

// CountLedgerRefs counts how many stock entries of the form touch ref.
// Forms are memoized. A missing form, an undecodable form or a form from
// another domain counts as zero.
func (l *StockTransactionLoader) CountLedgerRefs(ctx context.Context, formID string, ref ir.LedgerReference) int {
	l.mu.Lock()
	form, ok := l.forms[formID]
	l.mu.Unlock()
	if ok {
		return form.CountLedgerRefs(ref)
	}

	form, found, err := l.docs.GetForm(ctx, formID)
	switch {
	case err != nil:
		l.log.Warn("load form failed", "form_id", formID, "error", err)
		return 0
	case !found:
		l.log.Warn("form not found", "form_id", formID)
		form = ir.Form{FormID: formID}
	case form.Domain != l.ws.Domain:
		l.log.Warn("form has wrong domain", "form_id", formID, "form_domain", form.Domain)
		form = ir.Form{FormID: formID}
	}

	l.mu.Lock()
	l.forms[formID] = form
	l.mu.Unlock()
	return form.CountLedgerRefs(ref)
}

// Location returns the location of a supply-point case, "" when it has
// none.
func (l *StockTransactionLoader) Location(ctx context.Context, caseID string) string {
	if cached, ok := l.locations.Get(caseID); ok {
		return cached.(string)
	}
	loc, found, err := l.docs.GetCaseLocation(ctx, caseID)
	if err != nil {
		l.log.Warn("load case location failed", "case_id", caseID, "error", err)
		return ""
	}
	if !found {
		loc = ""
	}
	l.locations.Add(caseID, loc)
	return loc
}

func (l *StockTransactionLoader) newStockState(ctx context.Context, ref ir.LedgerReference, tx ir.StockTransaction) ir.StockState {
	return ir.StockState{
		Ref:                ref,
		Balance:            tx.Balance,
		LastModified:       tx.Timestamp,
		LastModifiedFormID: tx.FormID,
		LocationID:         l.Location(ctx, ref.CaseID),
	}
}
