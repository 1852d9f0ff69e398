// Package memstore provides in-memory document, relational and state
// stores. They back the scenario harness and unit tests, and are safe for
// concurrent use.
package memstore
