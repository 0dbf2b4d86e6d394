// Package store provides a SQLite-backed document store.
//
// Documents are JSON objects grouped into named collections. The store offers
// the primitives the archive engine is written against: FindOne, Find,
// Insert, Update, Remove, Count and CreateIndex.
//
// # Layout
//
// All collections live in a single documents table. A document's identity is
// its _id field; doc_id holds the canonical JSON of that value so string and
// integer identities never collide. Bodies are canonical JSON
// (internal/document) and are queried with json_extract.
//
// # Critical Patterns
//
// Deterministic results: every query orders by the requested sort keys and
// then by seq ASC, so ties resolve in insertion order.
//
// Parameterized values: filter values are always bound, never interpolated.
// Field names are interpolated into json_extract paths and must pass
// document.ValidFieldName.
//
// Uniqueness: CreateIndex builds partial expression indexes scoped to one
// collection. A violated UNIQUE index surfaces as ErrDuplicateKey.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
