// Package harness runs archive conformance scenarios.
//
// A scenario declares document kinds, a restore mode and a sequence of
// steps against a fresh in-memory database. After the steps run, the live
// and archive collections are dumped and compared against a golden file.
//
// # Scenario Format
//
//	name: retention_window
//	description: "Six saves keep the three newest snapshots"
//	mode: destructive
//	kinds:
//	  - name: note
//	    collection: notes
//	    retention_count: 3
//	steps:
//	  - op: save
//	    kind: note
//	    id: n1
//	    set: { body: "Value 0" }
//	  - op: rollback
//	    kind: note
//	    id: n1
//	    to: 1
//	    expect: CONCURRENCY
//	assertions:
//	  - type: archived_versions
//	    kind: note
//	    id: n1
//	    versions: [2, 3, 4]
//
// # Steps
//
//   - save: merges set into the live document (or a new one) and saves it
//   - rollback: destructive restore, to the newest snapshot or to
//   - revert: append restore, to the previous version or to
//   - restore: restore to using the scenario mode
//
// as_of replaces the version the step reads, simulating a caller holding a
// stale copy. expect names the outcome: ok (the default), STALE, or an
// archive error code.
//
// # Assertion Types
//
//   - live_version: the live document is at version
//   - live_field: a live field equals value
//   - archived_versions: the archive holds exactly versions, ascending
//   - provenance_count: count restores were recorded
//
// # Golden Files
//
// RunWithGolden writes one line per step followed by every live and archive
// collection and the recorded restores, in canonical JSON. Archive and
// provenance _id values are random and are left out of the dump. Provenance
// timestamps come from a testutil.DeterministicClock.
//
//	go test ./internal/harness -update
package harness
