// Package document reads the legacy document store, SurrealDB.
//
// Records are fetched with parameterized SurrealQL as generic maps and
// decoded with mapstructure into typed document structs (caseDoc, formDoc,
// ...), which are then converted to ir types. Case fields the decoder does
// not know are kept as Extra so they reach the comparison view.
//
// Tables: cases, forms, stock_states, stock_transactions, supply_points.
package document
