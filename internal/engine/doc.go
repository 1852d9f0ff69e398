// Package engine reconciles case records and ledger state between the
// legacy document store and the relational store.
//
// A Reconciler processes one batch of document cases at a time:
//
// 1. Cases modified at or after the session cutoff are deferred.
// 2. The relational counterparts are fetched; cases only the relational
//    store has abort the batch (INVARIANT_VIOLATION).
// 3. Each pair is diffed. Differences are retried against a document
//    rebuild and, if needed, a relational rebuild; whatever a rebuild
//    explains becomes a change with reason "rebuild case".
// 4. Ledgers of every case in the batch are diffed once, with stock state
//    reconstructed from the transaction log where it is missing and a
//    duplicate-write heuristic for a known document-store defect.
// 5. Cases only the document store has are reported as missing, unless
//    no form supports them.
//
// The result is a DiffData, which a ResultSaver writes to a StateStore.
//
// DETERMINISM:
// Cases are diffed in parallel up to WorkerState.Concurrency, but results
// are assembled in case id order, ledgers in reference order. Two runs on
// the same inputs produce the same DiffData.
//
// STATE:
// Nothing here writes to the document or relational store. Rebuilds are
// held in memory. The only per-session state is the WorkerState passed to
// every call.
package engine
