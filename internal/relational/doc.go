// Package relational reads cases, case transactions and ledger values from
// the relational backend through GORM.
//
// Each table has a typed row struct (CaseRow, CaseIndexRow,
// CaseTransactionRow, LedgerValueRow) that is converted to the ir types the
// engine compares. Lookups by id list are chunked so a large batch never
// exceeds the driver's bind parameter limit.
//
// The engine only reads. The Seed* methods exist to load fixtures.
package relational
