package datastore

import (
	"context"

	"github.com/roach88/archivist/internal/document"
)

// WriteEvent describes one tracked write.
type WriteEvent struct {
	Kind    string
	Mapping *Mapping
	// Identity is the _id of the document being written.
	Identity any
	// Insert is true when the document did not exist before the write.
	Insert bool
	// Versioned is false for kinds without a version field.
	Versioned bool
	// PriorVersion is the version being superseded. Meaningless on insert.
	PriorVersion int64
	// Version is the version the write produces.
	Version int64
	// Document is the document being written, version already bumped.
	Document document.Document
}

// Hook observes the tracked write path.
//
// BeforeWrite runs before the conditional write; a non-nil error aborts the
// write and is returned to the caller of Save. AfterWrite runs only after
// the write succeeded and cannot fail it.
type Hook interface {
	BeforeWrite(ctx context.Context, ev *WriteEvent) error
	AfterWrite(ctx context.Context, ev *WriteEvent)
}

// DeleteEvent describes a removed live document.
type DeleteEvent struct {
	Kind     string
	Mapping  *Mapping
	Identity any
}

// DeleteHook is implemented by hooks that also track deletes. AfterDelete
// runs once the live document is gone. Its error is returned to the caller
// of Delete, but the delete itself stays committed.
type DeleteHook interface {
	AfterDelete(ctx context.Context, ev *DeleteEvent) error
}
