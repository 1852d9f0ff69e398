// Package rebuild reconstructs cases from their form history.
//
// Rebuilds are pure: the result lives in memory and is never written back
// to either store. Two strategies are provided:
//
//   - DocumentStrategy replays the forms listed on the document case. In
//     Default mode it follows the document store's own order; in Patched
//     mode it behaves like the relational store (forms ordered by receipt
//     time, no-action forms and forms from other domains skipped).
//   - RelationalStrategy replays the relational store's non-revoked case
//     transactions in server date order.
//
// Both replay the same case blocks through Replay, so any remaining
// difference between the two results comes from the history they were
// given, not from how it was applied.
package rebuild
