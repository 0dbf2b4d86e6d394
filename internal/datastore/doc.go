// Package datastore maps Go values onto documents and owns the tracked write
// path of the live store.
//
// Entities are structs whose json tags name the stored fields. The identity
// field is the one tagged json:"_id"; the optimistic-concurrency counter is
// the field tagged doc:"version". Reflection happens here and nowhere else:
// the archive engine sees only Mappings and Documents.
//
// Save is the only write path that bumps versions. An update matches on
// (_id, version = V) and writes V+1 in one statement; a miss means another
// writer got there first and surfaces as ErrStaleVersion. Hooks registered
// with AddHook run before the conditional write (and can veto it) and after
// it succeeds.
package datastore
