package archive

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/archivist/internal/datastore"
	"github.com/roach88/archivist/internal/store"
)

// Mode selects how Restore applies a snapshot.
type Mode string

const (
	// ModeDestructive overwrites the live document in place and deletes the
	// archive entries it supersedes.
	ModeDestructive Mode = "destructive"

	// ModeAppend writes the snapshot payload as a new version.
	ModeAppend Mode = "append"
)

// ParseMode parses a mode name. Empty means ModeDestructive.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeDestructive:
		return ModeDestructive, nil
	case ModeAppend:
		return ModeAppend, nil
	default:
		return "", fmt.Errorf("unknown restore mode %q", s)
	}
}

// Options configures an Archiver.
type Options struct {
	// Declarations are explicit per-kind archive configurations.
	Declarations []Declaration

	// Mode is the mode used by Restore. Defaults to ModeDestructive.
	Mode Mode

	// Pruner runs retention passes. Defaults to an InlinePruner.
	Pruner Pruner

	Logger  *slog.Logger
	Metrics *Metrics

	// Now stamps provenance records. Defaults to time.Now.
	Now func() time.Time
}

// Archiver is the archive engine. It is registered as a hook on the
// datastore so every tracked update of an archived kind is captured and
// pruned, and it exposes the explicit restore operations.
//
// Thread-safety: all methods are safe for concurrent use.
type Archiver struct {
	ds       *datastore.Datastore
	store    *store.Store
	registry *Registry
	writer   *SnapshotWriter
	pruner   Pruner
	mode     Mode
	logger   *slog.Logger
	metrics  *Metrics
	now      func() time.Time
}

// New creates an Archiver and registers it on ds.
func New(ds *datastore.Datastore, opts Options) (*Archiver, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Mode == "" {
		opts.Mode = ModeDestructive
	}
	if _, err := ParseMode(string(opts.Mode)); err != nil {
		return nil, err
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	st := ds.Store()
	registry, err := NewRegistry(st, ds, opts.Declarations, opts.Logger)
	if err != nil {
		return nil, err
	}
	if opts.Pruner == nil {
		opts.Pruner = NewInlinePruner(st, opts.Logger, opts.Metrics)
	}

	a := &Archiver{
		ds:       ds,
		store:    st,
		registry: registry,
		writer:   NewSnapshotWriter(st, opts.Logger, opts.Metrics),
		pruner:   opts.Pruner,
		mode:     opts.Mode,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		now:      opts.Now,
	}
	ds.AddHook(a)
	return a, nil
}

// Registry returns the archive registry.
func (a *Archiver) Registry() *Registry {
	return a.registry
}

// Mode returns the mode used by Restore.
func (a *Archiver) Mode() Mode {
	return a.mode
}

// BeforeWrite captures the persisted state of the document about to be
// replaced. A capture failure aborts the write, so no version reaches the
// live store without its predecessor in the archive.
func (a *Archiver) BeforeWrite(ctx context.Context, ev *datastore.WriteEvent) error {
	if ev.Insert || !ev.Versioned {
		return nil
	}
	reg, err := a.registry.Resolve(ctx, ev.Kind)
	if err != nil {
		return err
	}
	_, err = a.writer.Capture(ctx, reg, ev.Identity)
	return err
}

// AfterWrite submits the retention pass for the version just archived.
func (a *Archiver) AfterWrite(ctx context.Context, ev *datastore.WriteEvent) {
	if ev.Insert || !ev.Versioned {
		return
	}
	reg, err := a.registry.Resolve(ctx, ev.Kind)
	if err != nil || !reg.Enabled {
		return
	}
	a.pruner.Prune(ctx, taskFor(reg, ev.Identity, ev.PriorVersion))
}

// AfterDelete removes the archived history of a deleted document. A later
// insert reusing the identity starts from an empty archive instead of
// colliding with, or restoring, the deleted record's snapshots. Provenance
// records are kept.
func (a *Archiver) AfterDelete(ctx context.Context, ev *datastore.DeleteEvent) error {
	reg, err := a.registry.Resolve(ctx, ev.Kind)
	if err != nil {
		return err
	}
	if reg.ArchiveCollection == "" {
		return nil
	}
	removed, err := a.store.Remove(ctx, reg.ArchiveCollection, store.Where(store.Eq(IdentityField, ev.Identity)))
	if err != nil {
		return fmt.Errorf("purge archive %s %v: %w", ev.Kind, ev.Identity, err)
	}
	a.metrics.pruned(reg.ArchiveCollection, removed)
	a.logger.Debug("archive purged after delete",
		"kind", ev.Kind,
		"identity", ev.Identity,
		"removed", removed)
	return nil
}
