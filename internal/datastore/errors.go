package datastore

import (
	"errors"

	"github.com/roach88/archivist/internal/store"
)

var (
	// ErrStaleVersion is returned when a conditional write matched no
	// document: the caller's version is no longer current.
	ErrStaleVersion = errors.New("stale version")

	// ErrUnknownKind is returned for kinds with no registered mapping.
	ErrUnknownKind = errors.New("unknown kind")

	// ErrNoIdentity is returned for entity types without an _id field, or
	// when an operation needs an identity the document does not carry.
	ErrNoIdentity = errors.New("no identity")

	// ErrMultipleVersionFields is returned when a type tags more than one
	// field as its version counter.
	ErrMultipleVersionFields = errors.New("more than one version field")

	// ErrNotFound is returned when no live document has the identity.
	ErrNotFound = store.ErrNotFound
)
