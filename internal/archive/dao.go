package archive

import (
	"context"

	"github.com/roach88/archivist/internal/datastore"
	"github.com/roach88/archivist/internal/document"
)

// DAO exposes the restore operations on Go entities. T is normally a
// pointer to a mapped struct; results are written back into the argument.
type DAO[T datastore.Entity] struct {
	archiver *Archiver
}

// NewDAO creates a DAO over a.
func NewDAO[T datastore.Entity](a *Archiver) *DAO[T] {
	return &DAO[T]{archiver: a}
}

func (d *DAO[T]) live(e T) (string, document.Document, error) {
	m, err := d.archiver.ds.Map(e)
	if err != nil {
		return "", nil, err
	}
	doc, err := d.archiver.ds.Serialize(e)
	if err != nil {
		return "", nil, err
	}
	return m.Kind, doc, nil
}

func (d *DAO[T]) apply(e T, op func(kind string, live document.Document) (document.Document, error)) error {
	kind, live, err := d.live(e)
	if err != nil {
		return err
	}
	out, err := op(kind, live)
	if err != nil {
		return err
	}
	return d.archiver.ds.Deserialize(out, e)
}

// Rollback rolls e back to its newest snapshot.
func (d *DAO[T]) Rollback(ctx context.Context, e T) error {
	return d.apply(e, func(kind string, live document.Document) (document.Document, error) {
		return d.archiver.Rollback(ctx, kind, live)
	})
}

// RollbackToVersion rolls e back to the snapshot tagged version.
func (d *DAO[T]) RollbackToVersion(ctx context.Context, e T, version int64) error {
	return d.apply(e, func(kind string, live document.Document) (document.Document, error) {
		return d.archiver.RollbackToVersion(ctx, kind, live, version)
	})
}

// Revert reverts e to its previous version as a new write.
func (d *DAO[T]) Revert(ctx context.Context, e T) error {
	return d.apply(e, func(kind string, live document.Document) (document.Document, error) {
		return d.archiver.Revert(ctx, kind, live)
	})
}

// RevertToVersion reverts e to the snapshot tagged version as a new write.
func (d *DAO[T]) RevertToVersion(ctx context.Context, e T, version int64) error {
	return d.apply(e, func(kind string, live document.Document) (document.Document, error) {
		return d.archiver.RevertToVersion(ctx, kind, live, version)
	})
}

// Restore applies the snapshot tagged version using the archiver's mode.
func (d *DAO[T]) Restore(ctx context.Context, e T, version int64) error {
	return d.apply(e, func(kind string, live document.Document) (document.Document, error) {
		return d.archiver.Restore(ctx, kind, live, version)
	})
}

// FindArchivedVersion loads the snapshot of e tagged version into into,
// carrying e's current version.
func (d *DAO[T]) FindArchivedVersion(ctx context.Context, e T, version int64, into T) error {
	kind, live, err := d.live(e)
	if err != nil {
		return err
	}
	doc, err := d.archiver.FindArchivedVersion(ctx, kind, live, version)
	if err != nil {
		return err
	}
	return d.archiver.ds.Deserialize(doc, into)
}

// CountVersions returns the number of archived snapshots of e.
func (d *DAO[T]) CountVersions(ctx context.Context, e T) (int64, error) {
	kind, live, err := d.live(e)
	if err != nil {
		return 0, err
	}
	return d.archiver.CountVersions(ctx, kind, live)
}
