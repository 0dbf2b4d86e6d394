package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/roach88/archivist/internal/datastore"
	"github.com/roach88/archivist/internal/document"
	"github.com/roach88/archivist/internal/store"
)

const (
	// IdentityField holds the live identity inside an archive document.
	IdentityField = "_aid"

	// IndexName names the unique (identity, version) index on every archive
	// collection.
	IndexName = "archiveId"

	archiveSuffix = "_archive"
)

// Declaration is an explicit archive configuration for one kind.
type Declaration struct {
	Kind string `json:"kind" yaml:"kind"`

	// ArchiveCollection defaults to "<live collection>_archive".
	ArchiveCollection string `json:"archive_collection,omitempty" yaml:"archive_collection,omitempty"`

	// RetentionCount is the number of snapshots kept per identity. Zero
	// disables archiving for the kind.
	RetentionCount int `json:"retention_count" yaml:"retention_count"`

	// VersionField, when set, must name the kind's version field.
	VersionField string `json:"version_field,omitempty" yaml:"version_field,omitempty"`
}

// Registration is the resolved archive policy of one kind.
type Registration struct {
	Kind              string
	LiveCollection    string
	ArchiveCollection string
	Count             int
	VersionField      string
	// Enabled is false for kinds without archiving. Capture and prune are
	// no-ops for them.
	Enabled bool
}

// Mappings supplies entity mappings. *datastore.Datastore implements it.
type Mappings interface {
	MappingFor(kind string) (*datastore.Mapping, error)
}

type resolved struct {
	reg *Registration
	err error
}

// Registry resolves and caches archive registrations.
//
// Thread-safety: Resolve is safe for concurrent use. Cached kinds resolve
// under a read lock. Concurrent first resolutions of one kind share a single
// call, and resolutions of different kinds do not wait on each other.
type Registry struct {
	store    *store.Store
	mappings Mappings
	decls    map[string]Declaration
	logger   *slog.Logger

	group singleflight.Group
	mu    sync.RWMutex
	cache map[string]resolved
}

// NewRegistry creates a Registry. Declarations take precedence over
// type-level archive declarations. Declaring the same kind twice is a
// configuration error.
func NewRegistry(st *store.Store, mappings Mappings, decls []Declaration, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	byKind := make(map[string]Declaration, len(decls))
	for _, d := range decls {
		if d.Kind == "" {
			return nil, configError("", "declaration without kind")
		}
		if _, dup := byKind[d.Kind]; dup {
			return nil, configError(d.Kind, "declared more than once")
		}
		byKind[d.Kind] = d
	}
	return &Registry{
		store:    st,
		mappings: mappings,
		decls:    byKind,
		logger:   logger,
		cache:    make(map[string]resolved),
	}, nil
}

// Resolve returns the registration for kind. The first successful
// resolution of an archived kind provisions the archive index.
//
// Configuration errors are cached like successful results. Unknown kinds and
// index provisioning failures are not cached, so a later call may succeed.
func (r *Registry) Resolve(ctx context.Context, kind string) (*Registration, error) {
	if res, ok := r.cached(kind); ok {
		return res.reg, res.err
	}
	v, err, _ := r.group.Do(kind, func() (any, error) {
		return r.resolve(ctx, kind)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Registration), nil
}

func (r *Registry) cached(kind string) (resolved, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, ok := r.cache[kind]
	return res, ok
}

func (r *Registry) remember(kind string, res resolved) {
	r.mu.Lock()
	r.cache[kind] = res
	r.mu.Unlock()
}

// resolve runs outside r.mu, so index provisioning never blocks readers.
func (r *Registry) resolve(ctx context.Context, kind string) (*Registration, error) {
	// A call that finished between the cache miss and this one already
	// stored the outcome.
	if res, ok := r.cached(kind); ok {
		return res.reg, res.err
	}

	m, err := r.mappings.MappingFor(kind)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", kind, err)
	}

	reg, err := r.derive(m)
	if err != nil {
		r.remember(kind, resolved{err: err})
		r.logger.Error("archive configuration rejected", "kind", kind, "error", err)
		return nil, err
	}

	if reg.Enabled {
		keys := []store.IndexKey{store.Asc(IdentityField), store.Desc(reg.VersionField)}
		err := r.store.CreateIndex(ctx, reg.ArchiveCollection, keys, store.IndexOptions{Name: IndexName, Unique: true})
		if err != nil {
			return nil, fmt.Errorf("resolve %s: provision archive index: %w", kind, err)
		}
		r.logger.Debug("archive registered",
			"kind", kind,
			"collection", reg.ArchiveCollection,
			"count", reg.Count,
			"version_field", reg.VersionField)
	}

	r.remember(kind, resolved{reg: reg})
	return reg, nil
}

func (r *Registry) derive(m *datastore.Mapping) (*Registration, error) {
	reg := &Registration{Kind: m.Kind, LiveCollection: m.Collection}

	decl, explicit := r.decls[m.Kind]
	if !explicit {
		if m.Archive == nil {
			return reg, nil
		}
		decl = Declaration{
			Kind:              m.Kind,
			ArchiveCollection: m.Archive.Collection,
			RetentionCount:    m.Archive.Count,
		}
	}

	if decl.RetentionCount < 0 {
		return nil, configError(m.Kind, "negative retention count %d", decl.RetentionCount)
	}

	versionField, err := m.VersionField()
	if err != nil {
		if errors.Is(err, datastore.ErrMultipleVersionFields) {
			return nil, &Error{Code: CodeConfiguration, Kind: m.Kind, Message: "more than one version field", Err: err}
		}
		return nil, err
	}
	if versionField == "" {
		return nil, configError(m.Kind, "archiving declared but the kind has no version field")
	}
	if decl.VersionField != "" && decl.VersionField != versionField {
		return nil, configError(m.Kind, "declared version field %q does not match the kind's version field %q",
			decl.VersionField, versionField)
	}
	if versionField == IdentityField || versionField == document.IDField {
		return nil, configError(m.Kind, "version field %q collides with an identity field", versionField)
	}

	reg.VersionField = versionField
	reg.Count = decl.RetentionCount
	reg.ArchiveCollection = decl.ArchiveCollection
	if reg.ArchiveCollection == "" {
		reg.ArchiveCollection = m.Collection + archiveSuffix
	}
	if reg.ArchiveCollection == m.Collection {
		return nil, configError(m.Kind, "archive collection %q is the live collection", reg.ArchiveCollection)
	}
	reg.Enabled = reg.Count > 0
	return reg, nil
}
