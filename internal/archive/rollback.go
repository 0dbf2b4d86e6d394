package archive

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/archivist/internal/datastore"
	"github.com/roach88/archivist/internal/document"
	"github.com/roach88/archivist/internal/store"
)

// target is a resolved restore request.
type target struct {
	reg      *Registration
	identity any
	current  int64
}

func (a *Archiver) resolveLive(ctx context.Context, kind string, live document.Document) (*target, error) {
	reg, err := a.registry.Resolve(ctx, kind)
	if err != nil {
		return nil, err
	}
	if !reg.Enabled {
		return nil, configError(kind, "kind is not archived")
	}
	id, err := IdentityOf(reg, live)
	if err != nil {
		// Never saved, so never archived.
		return nil, &Error{Code: CodeNotFound, Message: "document has no identity and no history", Kind: kind, Err: err}
	}
	v, err := CurrentVersion(reg, live)
	if err != nil {
		return nil, err
	}
	return &target{reg: reg, identity: id, current: v}, nil
}

// snapshotAt returns the archive document of t.identity tagged version.
// Versions at or above the current one are never restorable.
func (a *Archiver) snapshotAt(ctx context.Context, t *target, version int64) (document.Document, error) {
	if version >= t.current || version < 0 {
		return nil, notFoundError(t.reg.Kind, t.identity, version)
	}
	snap, err := a.store.FindOne(ctx, t.reg.ArchiveCollection, store.Where(
		store.Eq(IdentityField, t.identity),
		store.Eq(t.reg.VersionField, version),
	), store.FindOptions{})
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFoundError(t.reg.Kind, t.identity, version)
	}
	if err != nil {
		return nil, fmt.Errorf("find snapshot %s %v@%d: %w", t.reg.Kind, t.identity, version, err)
	}
	return snap, nil
}

// RollbackToVersion overwrites the live document with the snapshot tagged
// version and deletes the archive entries at or above it. live must be the
// caller's view of the document; if the stored version has moved on the
// rollback fails with a CONCURRENCY error and nothing changes.
//
// The live version afterwards equals version.
func (a *Archiver) RollbackToVersion(ctx context.Context, kind string, live document.Document, version int64) (document.Document, error) {
	t, err := a.resolveLive(ctx, kind, live)
	if err != nil {
		return nil, err
	}
	snap, err := a.snapshotAt(ctx, t, version)
	if err != nil {
		return nil, err
	}

	restored := toLive(snap)
	matched, err := a.ds.ReplaceIfVersion(ctx, kind, t.identity, t.current, restored)
	if err != nil {
		return nil, fmt.Errorf("rollback %s %v: %w", kind, t.identity, err)
	}
	if matched == 0 {
		return nil, concurrencyError(kind, t.identity, t.current)
	}

	// The live replace has committed. Nothing below may fail the rollback.
	expected := t.current - version
	removed, err := a.store.Remove(ctx, t.reg.ArchiveCollection, store.Where(
		store.Eq(IdentityField, t.identity),
		store.Gte(t.reg.VersionField, version),
	))
	switch {
	case err != nil:
		a.logger.Warn("rollback committed but superseded snapshots were not removed",
			"kind", kind, "identity", t.identity, "version", version, "error", err)
	case removed > expected:
		a.logger.Warn("rollback removed more snapshots than expected, possible concurrent writer",
			"kind", kind, "identity", t.identity, "version", version,
			"expected", expected, "removed", removed)
	}

	a.metrics.restored(kind, ModeDestructive)
	a.recordProvenance(ctx, ModeDestructive, t, version, version)
	a.logger.Info("rolled back", "kind", kind, "identity", t.identity, "from", t.current, "to", version)
	return restored, nil
}

// Rollback rolls back to the newest archived snapshot.
func (a *Archiver) Rollback(ctx context.Context, kind string, live document.Document) (document.Document, error) {
	t, err := a.resolveLive(ctx, kind, live)
	if err != nil {
		return nil, err
	}
	newest, err := a.store.FindOne(ctx, t.reg.ArchiveCollection, store.Where(
		store.Eq(IdentityField, t.identity),
		store.Lt(t.reg.VersionField, t.current),
	), store.FindOptions{
		Projection: []string{t.reg.VersionField},
		Sort:       []store.SortKey{store.Desc(t.reg.VersionField)},
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFoundError(kind, t.identity, t.current-1)
	}
	if err != nil {
		return nil, fmt.Errorf("rollback %s %v: %w", kind, t.identity, err)
	}
	version, err := tagOf(t.reg, newest)
	if err != nil {
		return nil, err
	}
	return a.RollbackToVersion(ctx, kind, live, version)
}

// RevertToVersion writes the payload archived at version as a new version of
// the live document. The state being reverted away from is archived like
// any other update. Returns the live document at its new version.
func (a *Archiver) RevertToVersion(ctx context.Context, kind string, live document.Document, version int64) (document.Document, error) {
	t, err := a.resolveLive(ctx, kind, live)
	if err != nil {
		return nil, err
	}
	snap, err := a.snapshotAt(ctx, t, version)
	if err != nil {
		return nil, err
	}

	restored := toLive(snap)
	restored[t.reg.VersionField] = t.current
	saved, err := a.ds.SaveDocument(ctx, kind, restored)
	if errors.Is(err, datastore.ErrStaleVersion) {
		ce := concurrencyError(kind, t.identity, t.current)
		ce.Err = err
		return nil, ce
	}
	if err != nil {
		return nil, fmt.Errorf("revert %s %v: %w", kind, t.identity, err)
	}

	a.metrics.restored(kind, ModeAppend)
	a.recordProvenance(ctx, ModeAppend, t, version, t.current+1)
	a.logger.Info("reverted", "kind", kind, "identity", t.identity, "source", version, "version", t.current+1)
	return saved, nil
}

// Revert reverts to the version immediately before the current one.
func (a *Archiver) Revert(ctx context.Context, kind string, live document.Document) (document.Document, error) {
	t, err := a.resolveLive(ctx, kind, live)
	if err != nil {
		return nil, err
	}
	return a.RevertToVersion(ctx, kind, live, t.current-1)
}

// Restore applies the snapshot at version using the configured Mode.
func (a *Archiver) Restore(ctx context.Context, kind string, live document.Document, version int64) (document.Document, error) {
	if a.mode == ModeAppend {
		return a.RevertToVersion(ctx, kind, live, version)
	}
	return a.RollbackToVersion(ctx, kind, live, version)
}

// FindArchivedVersion returns the snapshot at version in live shape. Its
// version field carries the caller's current version, so saving it is an
// ordinary update of the live document.
func (a *Archiver) FindArchivedVersion(ctx context.Context, kind string, live document.Document, version int64) (document.Document, error) {
	t, err := a.resolveLive(ctx, kind, live)
	if err != nil {
		return nil, err
	}
	snap, err := a.snapshotAt(ctx, t, version)
	if err != nil {
		return nil, err
	}
	restored := toLive(snap)
	restored[t.reg.VersionField] = t.current
	return restored, nil
}

// CountVersions returns the number of archived snapshots of live.
func (a *Archiver) CountVersions(ctx context.Context, kind string, live document.Document) (int64, error) {
	reg, err := a.registry.Resolve(ctx, kind)
	if err != nil {
		return 0, err
	}
	if !reg.Enabled {
		return 0, nil
	}
	id, err := IdentityOf(reg, live)
	if err != nil {
		return 0, err
	}
	n, err := a.store.Count(ctx, reg.ArchiveCollection, store.Where(store.Eq(IdentityField, id)))
	if err != nil {
		return 0, fmt.Errorf("count versions %s %v: %w", kind, id, err)
	}
	return n, nil
}

// History returns the archived snapshots of live in ascending version
// order, each in live shape with the version field set to its tag.
func (a *Archiver) History(ctx context.Context, kind string, live document.Document) ([]document.Document, error) {
	reg, err := a.registry.Resolve(ctx, kind)
	if err != nil {
		return nil, err
	}
	if !reg.Enabled {
		return []document.Document{}, nil
	}
	id, err := IdentityOf(reg, live)
	if err != nil {
		return nil, err
	}
	snaps, err := a.store.Find(ctx, reg.ArchiveCollection, store.Where(store.Eq(IdentityField, id)), store.FindOptions{
		Sort: []store.SortKey{store.Asc(reg.VersionField)},
	})
	if err != nil {
		return nil, fmt.Errorf("history %s %v: %w", kind, id, err)
	}
	out := make([]document.Document, len(snaps))
	for i, s := range snaps {
		out[i] = toLive(s)
	}
	return out, nil
}
