// Package ir defines the backend-neutral records and the common comparison
// view used to reconcile the document store against the relational store.
//
// Both backends decode into their own typed structs and convert into the
// records here. Records expose View(), an IRObject built from a sealed set
// of value types, and every comparison, stored diff value and golden report
// goes through that view.
//
// ir imports nothing internal. All other internal packages import ir.
//
// Constraints:
//   - no float type in the view; see FromAny
//   - a nil IRValue means "absent", IRNull means an explicit null
//   - timestamps compare as UTC RFC 3339 strings with microsecond precision
//   - JSON tags use snake_case
package ir
