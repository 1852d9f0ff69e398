// Package harness runs reconciliation scenarios described in YAML.
//
// A scenario lists what the document store and the relational store hold
// before a batch, then what the batch should leave behind in the state
// store:
//
//	name: rebuild_explained
//	description: "materialized case is stale, the forms agree with SQL"
//	domain: demo
//	document:
//	  cases:
//	    - case_id: b
//	      properties: { color: red }
//	      xform_ids: [fb1]
//	  forms:
//	    - form_id: fb1
//	      received_on: 2024-03-01T12:00:00Z
//	      case_blocks:
//	        - case_id: b
//	          update: { color: blue }
//	relational:
//	  cases:
//	    - case_id: b
//	      properties: { color: blue }
//	      xform_ids: [fb1]
//	expect:
//	  changes:
//	    - doc_id: b
//	      reason: rebuild case
//	      paths: [properties.color]
//
// Both stores are in memory. The batch runs through the real reconciler
// with both rebuild strategies wired and is saved to an in-memory SQLite
// state store stamped by a testutil.DeterministicClock. Session ids come
// from a testutil.SequentialSessionGenerator, so snapshots are identical
// across runs and can be compared with golden files.
package harness
