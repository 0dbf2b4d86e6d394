// Package archive keeps a bounded history of every update to tracked
// documents and restores prior states on demand.
//
// The Archiver hooks into the datastore write path. Before a live document
// at version V is replaced, its persisted state is copied into the archive
// collection, re-keyed from _id to _aid and tagged with V. After the write
// commits, snapshots with a tag at or below V minus the retention count are
// pruned, either inline or on a bounded worker pool.
//
// Restores come in two modes:
//
//   - destructive: the live document is overwritten in place with the
//     snapshot (guarded by a conditional write on the current version) and
//     archive entries at or above the target version are deleted.
//   - append: the snapshot payload is written as an ordinary tracked save,
//     so the live version keeps increasing and the reverted-away state is
//     archived like any other.
//
// Every restore is recorded in the provenance collection.
package archive
