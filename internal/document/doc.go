// Package document defines the value model shared by the document store and
// the archive engine.
//
// A Document is a JSON object held as map[string]any. Bodies are persisted
// in canonical form so that equal documents are byte-equal on disk:
//   - Object keys sorted by UTF-16 code units (RFC 8785)
//   - No HTML escaping
//   - Strings NFC normalized
//   - Integers kept as int64 end to end (never routed through float64)
//
// Decode reverses the encoding and preserves integer-ness, which matters for
// version counters: a version read back from the store is always an int64.
package document
