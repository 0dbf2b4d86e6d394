package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/roach88/archivist/internal/document"
	"github.com/roach88/archivist/internal/store"
)

// Snapshot is an archived copy of a live document.
type Snapshot struct {
	Identity any
	Version  int64
	// Document is the archive document: payload, _aid, version tag and a
	// fresh _id.
	Document document.Document
}

// SnapshotWriter copies persisted live documents into their archive
// collection.
type SnapshotWriter struct {
	store   *store.Store
	logger  *slog.Logger
	metrics *Metrics
}

// NewSnapshotWriter creates a SnapshotWriter.
func NewSnapshotWriter(st *store.Store, logger *slog.Logger, metrics *Metrics) *SnapshotWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &SnapshotWriter{store: st, logger: logger, metrics: metrics}
}

// Capture archives the persisted state of identity. It reads the live store,
// never the value about to be written.
//
// Returns nil and no error when there is nothing to archive: the kind is not
// archived, no live document exists, or the version was archived already.
func (w *SnapshotWriter) Capture(ctx context.Context, reg *Registration, identity any) (*Snapshot, error) {
	if !reg.Enabled {
		return nil, nil
	}

	live, err := w.store.FindOne(ctx, reg.LiveCollection, store.Where(store.Eq(document.IDField, identity)), store.FindOptions{})
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("capture %s %v: %w", reg.Kind, identity, err)
	}

	version, err := CurrentVersion(reg, live)
	if err != nil {
		return nil, err
	}

	snap := toArchive(live)
	if _, err := w.store.Insert(ctx, reg.ArchiveCollection, snap); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			dup := &Error{
				Code:     CodeDuplicateArchive,
				Message:  fmt.Sprintf("version %d already archived", version),
				Kind:     reg.Kind,
				Identity: identity,
				Version:  version,
				Err:      err,
			}
			w.logger.Debug("snapshot already archived", "kind", reg.Kind, "identity", identity, "version", version, "error", dup)
			w.metrics.duplicate(reg.Kind)
			return nil, nil
		}
		return nil, fmt.Errorf("capture %s %v: %w", reg.Kind, identity, err)
	}

	w.metrics.snapshot(reg.Kind)
	w.logger.Debug("snapshot archived", "kind", reg.Kind, "identity", identity, "version", version)
	return &Snapshot{Identity: identity, Version: version, Document: snap}, nil
}

// toArchive converts a live document into archive shape.
func toArchive(live document.Document) document.Document {
	snap := live.Clone()
	snap.Rename(document.IDField, IdentityField)
	snap[document.IDField] = uuid.Must(uuid.NewV7()).String()
	return snap
}

// toLive converts an archive document back into live shape.
func toLive(snap document.Document) document.Document {
	live := snap.Clone()
	delete(live, document.IDField)
	live.Rename(IdentityField, document.IDField)
	return live
}
