// Package store provides SQLite-backed reconciliation state.
//
// The store keeps:
//   - Diffed cases: every case a batch has checked, with or without diffs
//   - Diffs: unresolved differences, one row per (kind, doc_id)
//   - Changes: explained differences with their reason, one row per (kind, doc_id)
//   - Missing docs: documents only the document store has, per doc type
//
// # Replace Semantics
//
// Saving a batch replaces (never appends to) what was stored for the same
// (kind, doc_id). A record with no entries deletes the row, so a case that
// was fixed and re-diffed leaves no stale result. Each replace runs in one
// transaction.
//
// # Deterministic Reads
//
// Every read orders by its key columns with COLLATE BINARY and returns
// empty slices rather than nil.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Entry lists are stored as RFC 8785 canonical JSON next to a
// domain-separated SHA-256 fingerprint (internal/ir/hash.go).
package store
