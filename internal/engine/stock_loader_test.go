package engine

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/casediff/internal/ir"
	"github.com/roach88/casediff/internal/logging"
	"github.com/roach88/casediff/internal/memstore"
)

var testRef = ir.LedgerReference{CaseID: "sp-1", SectionID: "stock", EntryID: "prod-1"}

func discardLogger() *slog.Logger {
	return logging.NewNop()
}

func newTestLoader(t *testing.T, docs DocumentStore) *StockTransactionLoader {
	t.Helper()
	l, err := NewStockTransactionLoader(newTestWorkerState(t), docs, discardLogger(), 16)
	require.NoError(t, err)
	return l
}

func stockForm(formID string, refs ...ir.LedgerReference) ir.Form {
	entries := make([]ir.StockEntry, len(refs))
	for i, ref := range refs {
		entries[i] = ir.StockEntry{Ref: ref, Quantity: 10}
	}
	return ir.Form{
		FormID:       formID,
		Domain:       testDomain,
		ReceivedOn:   t0,
		StockReports: []ir.StockReport{{Type: "balance", Date: t0, Entries: entries}},
	}
}

func TestStockLoader_TransactionsNewestFirst(t *testing.T) {
	docs := memstore.NewDocument()
	docs.AddStockTransaction(ir.StockTransaction{FormID: "f1", Ref: testRef, Balance: 1, Timestamp: t0})
	docs.AddStockTransaction(ir.StockTransaction{FormID: "f3", Ref: testRef, Balance: 3, Timestamp: t0.Add(time.Hour)})
	docs.AddStockTransaction(ir.StockTransaction{FormID: "f2", Ref: testRef, Balance: 2, Timestamp: t0})
	other := testRef
	other.EntryID = "prod-2"
	docs.AddStockTransaction(ir.StockTransaction{FormID: "f4", Ref: other, Balance: 4, Timestamp: t0})

	l := newTestLoader(t, docs)
	txs := l.Transactions(context.Background(), testRef)

	require.Len(t, txs, 3)
	assert.Equal(t, "f3", txs[0].FormID)
	assert.Equal(t, "f2", txs[1].FormID, "same timestamp: later sequence first")
	assert.Equal(t, "f1", txs[2].FormID)
}

func TestStockLoader_CachesPerCase(t *testing.T) {
	ctx := context.Background()
	docs := memstore.NewDocument()
	docs.AddStockTransaction(ir.StockTransaction{FormID: "f1", Ref: testRef, Balance: 1, Timestamp: t0})

	l := newTestLoader(t, docs)
	require.Len(t, l.Transactions(ctx, testRef), 1)

	docs.Fail(memstore.OpGetStockTransactions, assert.AnError)
	assert.Len(t, l.Transactions(ctx, testRef), 1, "served from cache")

	other := testRef
	other.EntryID = "prod-2"
	assert.Empty(t, l.Transactions(ctx, other), "same case, cached log has no entries for it")
}

func TestStockLoader_FailsSoft(t *testing.T) {
	ctx := context.Background()
	docs := memstore.NewDocument()
	docs.Fail(memstore.OpGetStockTransactions, assert.AnError)
	docs.Fail(memstore.OpGetForm, assert.AnError)
	docs.Fail(memstore.OpGetCaseLocation, assert.AnError)

	l := newTestLoader(t, docs)

	_, ok := l.GetStockState(ctx, testRef)
	assert.False(t, ok)
	_, ok = l.DedupStockState(ctx, testRef)
	assert.False(t, ok)
	assert.Zero(t, l.CountLedgerRefs(ctx, "f1", testRef))
	assert.Empty(t, l.Location(ctx, "sp-1"))
}

func TestStockLoader_GetStockState(t *testing.T) {
	ctx := context.Background()
	docs := memstore.NewDocument()
	docs.SetLocation("sp-1", "loc-1")
	docs.AddStockTransaction(ir.StockTransaction{FormID: "f1", Type: "balance", Ref: testRef, Balance: 5, Timestamp: t0})
	docs.AddStockTransaction(ir.StockTransaction{FormID: "f2", Type: "balance", Ref: testRef, Balance: 8, Timestamp: t0.Add(time.Minute)})

	l := newTestLoader(t, docs)
	state, ok := l.GetStockState(ctx, testRef)

	require.True(t, ok)
	assert.Equal(t, ir.StockState{
		Ref:                testRef,
		Balance:            8,
		LastModified:       t0.Add(time.Minute),
		LastModifiedFormID: "f2",
		LocationID:         "loc-1",
	}, state)
}

func TestStockLoader_DedupStockState(t *testing.T) {
	other := testRef
	other.EntryID = "prod-2"

	tests := []struct {
		name string
		txs  []ir.StockTransaction
		form ir.Form
		ok   bool
	}{
		{
			name: "same form written twice",
			txs: []ir.StockTransaction{
				{FormID: "f1", Type: "balance", Balance: 10, Timestamp: t0},
				{FormID: "f1", Type: "balance", Balance: 20, Timestamp: t0},
			},
			form: stockForm("f1", testRef, other),
			ok:   true,
		},
		{
			name: "different forms",
			txs: []ir.StockTransaction{
				{FormID: "f1", Type: "balance", Balance: 10, Timestamp: t0},
				{FormID: "f2", Type: "balance", Balance: 20, Timestamp: t0},
			},
			form: stockForm("f1", testRef),
		},
		{
			name: "different types",
			txs: []ir.StockTransaction{
				{FormID: "f1", Type: "receipts", Balance: 10, Timestamp: t0},
				{FormID: "f1", Type: "consumption", Balance: 20, Timestamp: t0},
			},
			form: stockForm("f1", testRef),
		},
		{
			name: "form touches the ledger twice",
			txs: []ir.StockTransaction{
				{FormID: "f1", Type: "balance", Balance: 10, Timestamp: t0},
				{FormID: "f1", Type: "balance", Balance: 20, Timestamp: t0},
			},
			form: stockForm("f1", testRef, testRef),
		},
		{
			name: "three transactions",
			txs: []ir.StockTransaction{
				{FormID: "f1", Type: "balance", Balance: 10, Timestamp: t0},
				{FormID: "f1", Type: "balance", Balance: 20, Timestamp: t0},
				{FormID: "f1", Type: "balance", Balance: 30, Timestamp: t0},
			},
			form: stockForm("f1", testRef),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docs := memstore.NewDocument()
			docs.PutForm(tt.form)
			for _, tx := range tt.txs {
				tx.Ref = testRef
				docs.AddStockTransaction(tx)
			}

			l := newTestLoader(t, docs)
			state, ok := l.DedupStockState(context.Background(), testRef)

			assert.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, int64(10), state.Balance, "state comes from the earlier write")
				assert.Equal(t, "f1", state.LastModifiedFormID)
			}
		})
	}
}

func TestStockLoader_CountLedgerRefs(t *testing.T) {
	ctx := context.Background()
	docs := memstore.NewDocument()
	docs.PutForm(stockForm("f1", testRef, testRef))
	foreign := stockForm("f2", testRef)
	foreign.Domain = "other"
	docs.PutForm(foreign)

	l := newTestLoader(t, docs)

	assert.Equal(t, 2, l.CountLedgerRefs(ctx, "f1", testRef))
	assert.Zero(t, l.CountLedgerRefs(ctx, "f2", testRef), "wrong domain")
	assert.Zero(t, l.CountLedgerRefs(ctx, "missing", testRef))

	docs.Fail(memstore.OpGetForm, assert.AnError)
	assert.Equal(t, 2, l.CountLedgerRefs(ctx, "f1", testRef), "memoized")
}

func TestStockLoader_LocationCached(t *testing.T) {
	ctx := context.Background()
	docs := memstore.NewDocument()
	docs.SetLocation("sp-1", "loc-1")

	l := newTestLoader(t, docs)
	assert.Equal(t, "loc-1", l.Location(ctx, "sp-1"))
	assert.Empty(t, l.Location(ctx, "sp-2"))

	docs.Fail(memstore.OpGetCaseLocation, assert.AnError)
	assert.Equal(t, "loc-1", l.Location(ctx, "sp-1"))
}

func TestNewStockTransactionLoader_DefaultCacheSize(t *testing.T) {
	l, err := NewStockTransactionLoader(newTestWorkerState(t), memstore.NewDocument(), discardLogger(), 0)
	require.NoError(t, err)
	assert.NotNil(t, l)
}
