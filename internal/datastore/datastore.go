package datastore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/roach88/archivist/internal/document"
	"github.com/roach88/archivist/internal/store"
)

// Datastore is the object-document mapper over a store.Store.
//
// Thread-safety: all methods are safe for concurrent use. Hooks must be
// registered before concurrent writes begin.
type Datastore struct {
	store  *store.Store
	logger *slog.Logger

	mu     sync.RWMutex
	byKind map[string]*Mapping
	byType map[reflect.Type]*Mapping
	hooks  []Hook
}

// New creates a Datastore. A nil logger uses slog.Default().
func New(st *store.Store, logger *slog.Logger) *Datastore {
	if logger == nil {
		logger = slog.Default()
	}
	return &Datastore{
		store:  st,
		logger: logger,
		byKind: make(map[string]*Mapping),
		byType: make(map[reflect.Type]*Mapping),
	}
}

// Store returns the underlying document store.
func (d *Datastore) Store() *store.Store {
	return d.store
}

// AddHook registers h on the tracked write path.
func (d *Datastore) AddHook(h Hook) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hooks = append(d.hooks, h)
}

// Map registers the mapping for e's type and returns it. Mapping the same
// type again returns the cached mapping.
func (d *Datastore) Map(e Entity) (*Mapping, error) {
	t := reflect.TypeOf(e)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	d.mu.RLock()
	m, ok := d.byType[t]
	d.mu.RUnlock()
	if ok {
		return m, nil
	}

	m, err := mappingFromType(e)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if existing, ok := d.byType[t]; ok {
		return existing, nil
	}
	if existing, ok := d.byKind[m.Kind]; ok && existing.typ != t {
		return nil, fmt.Errorf("map %s: kind already registered for another type", m.Kind)
	}
	d.byType[t] = m
	d.byKind[m.Kind] = m
	return m, nil
}

// RegisterMapping registers a mapping for a kind that has no Go type, such as
// kinds declared only in configuration.
func (d *Datastore) RegisterMapping(m Mapping) (*Mapping, error) {
	if m.Kind == "" || m.Collection == "" {
		return nil, fmt.Errorf("register mapping: kind and collection are required")
	}
	for _, f := range m.VersionFields {
		if !document.ValidFieldName(f) {
			return nil, fmt.Errorf("register mapping %s: invalid version field %q", m.Kind, f)
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if existing, ok := d.byKind[m.Kind]; ok {
		if existing.typ != nil {
			return nil, fmt.Errorf("register mapping %s: kind is bound to type %s", m.Kind, existing.typ)
		}
	}
	stored := m
	stored.typ = nil
	d.byKind[m.Kind] = &stored
	return &stored, nil
}

// MappingFor returns the mapping registered for kind.
func (d *Datastore) MappingFor(kind string) (*Mapping, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	m, ok := d.byKind[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	return m, nil
}

// Kinds returns every registered kind in sorted order.
func (d *Datastore) Kinds() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	kinds := make([]string, 0, len(d.byKind))
	for k := range d.byKind {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Serialize converts e into its stored document form.
func (d *Datastore) Serialize(e Entity) (document.Document, error) {
	if _, err := d.Map(e); err != nil {
		return nil, err
	}
	doc, err := document.FromValue(e)
	if err != nil {
		return nil, fmt.Errorf("serialize %T: %w", e, err)
	}
	return doc, nil
}

// Deserialize overwrites e with the contents of doc. e must be a pointer.
func (d *Datastore) Deserialize(doc document.Document, e Entity) error {
	if reflect.TypeOf(e).Kind() != reflect.Pointer {
		return fmt.Errorf("deserialize into %T: target must be a pointer", e)
	}
	// Reset first so fields absent from doc do not keep stale values.
	v := reflect.ValueOf(e).Elem()
	v.Set(reflect.Zero(v.Type()))
	return doc.Into(e)
}

// Identity returns the _id of e, or nil when unset.
func (d *Datastore) Identity(e Entity) (any, error) {
	doc, err := d.Serialize(e)
	if err != nil {
		return nil, err
	}
	return identityOf(doc), nil
}

// Save writes e through the tracked write path and refreshes e with the
// stored state (assigned identity, bumped version).
func (d *Datastore) Save(ctx context.Context, e Entity) error {
	m, err := d.Map(e)
	if err != nil {
		return err
	}
	doc, err := d.Serialize(e)
	if err != nil {
		return err
	}
	saved, err := d.save(ctx, m, doc)
	if err != nil {
		return err
	}
	return d.Deserialize(saved, e)
}

// SaveDocument writes doc for kind through the tracked write path and returns
// the stored document.
func (d *Datastore) SaveDocument(ctx context.Context, kind string, doc document.Document) (document.Document, error) {
	m, err := d.MappingFor(kind)
	if err != nil {
		return nil, err
	}
	return d.save(ctx, m, doc.Clone())
}

func (d *Datastore) save(ctx context.Context, m *Mapping, doc document.Document) (document.Document, error) {
	versionField, err := m.VersionField()
	if err != nil {
		return nil, err
	}

	id := identityOf(doc)
	exists := false
	if id != nil {
		n, err := d.store.Count(ctx, m.Collection, store.Where(store.Eq(document.IDField, id)))
		if err != nil {
			return nil, fmt.Errorf("save %s: %w", m.Kind, err)
		}
		exists = n > 0
	}

	if !exists {
		return d.insert(ctx, m, versionField, doc)
	}
	return d.update(ctx, m, versionField, id, doc)
}

func (d *Datastore) insert(ctx context.Context, m *Mapping, versionField string, doc document.Document) (document.Document, error) {
	if identityOf(doc) == nil {
		doc[document.IDField] = uuid.Must(uuid.NewV7()).String()
	}
	ev := &WriteEvent{
		Kind:      m.Kind,
		Mapping:   m,
		Identity:  doc[document.IDField],
		Insert:    true,
		Versioned: versionField != "",
		Document:  doc,
	}
	if versionField != "" {
		doc[versionField] = int64(0)
	}

	if err := d.before(ctx, ev); err != nil {
		return nil, err
	}
	stored, err := d.store.Insert(ctx, m.Collection, doc)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			// Lost a race with another creator of the same identity
			return nil, fmt.Errorf("save %s %v: %w", m.Kind, ev.Identity, ErrStaleVersion)
		}
		return nil, fmt.Errorf("save %s: %w", m.Kind, err)
	}
	d.logger.Debug("document inserted", "kind", m.Kind, "identity", ev.Identity)
	d.after(ctx, ev)
	return stored, nil
}

func (d *Datastore) update(ctx context.Context, m *Mapping, versionField string, id any, doc document.Document) (document.Document, error) {
	ev := &WriteEvent{
		Kind:      m.Kind,
		Mapping:   m,
		Identity:  id,
		Versioned: versionField != "",
		Document:  doc,
	}

	filter := store.Where(store.Eq(document.IDField, id))
	if versionField != "" {
		prior, err := doc.Int(versionField)
		if err != nil {
			return nil, fmt.Errorf("save %s %v: %w", m.Kind, id, err)
		}
		ev.PriorVersion = prior
		ev.Version = prior + 1
		doc[versionField] = ev.Version
		filter = append(filter, store.Eq(versionField, prior))
	}

	if err := d.before(ctx, ev); err != nil {
		return nil, err
	}
	matched, err := d.store.Update(ctx, m.Collection, filter, doc)
	if err != nil {
		return nil, fmt.Errorf("save %s %v: %w", m.Kind, id, err)
	}
	if matched == 0 {
		return nil, fmt.Errorf("save %s %v at version %d: %w", m.Kind, id, ev.PriorVersion, ErrStaleVersion)
	}
	d.logger.Debug("document updated", "kind", m.Kind, "identity", id, "version", ev.Version)
	d.after(ctx, ev)
	return doc, nil
}

func (d *Datastore) before(ctx context.Context, ev *WriteEvent) error {
	d.mu.RLock()
	hooks := d.hooks
	d.mu.RUnlock()
	for _, h := range hooks {
		if err := h.BeforeWrite(ctx, ev); err != nil {
			return fmt.Errorf("save %s %v: %w", ev.Kind, ev.Identity, err)
		}
	}
	return nil
}

func (d *Datastore) after(ctx context.Context, ev *WriteEvent) {
	d.mu.RLock()
	hooks := d.hooks
	d.mu.RUnlock()
	for _, h := range hooks {
		h.AfterWrite(ctx, ev)
	}
}

// Get reloads e from the live store by its identity.
func (d *Datastore) Get(ctx context.Context, e Entity) error {
	m, err := d.Map(e)
	if err != nil {
		return err
	}
	id, err := d.Identity(e)
	if err != nil {
		return err
	}
	if id == nil {
		return fmt.Errorf("get %s: %w", m.Kind, ErrNoIdentity)
	}
	doc, err := d.FindByID(ctx, m.Kind, id)
	if err != nil {
		return err
	}
	return d.Deserialize(doc, e)
}

// FindByID returns the live document of kind with the given identity.
// Returns ErrNotFound when absent.
func (d *Datastore) FindByID(ctx context.Context, kind string, id any) (document.Document, error) {
	m, err := d.MappingFor(kind)
	if err != nil {
		return nil, err
	}
	doc, err := d.store.FindOne(ctx, m.Collection, store.Where(store.Eq(document.IDField, id)), store.FindOptions{})
	if err != nil {
		return nil, fmt.Errorf("find %s %v: %w", kind, id, err)
	}
	return doc, nil
}

// Delete removes the live document of kind with the given identity, then
// runs every registered DeleteHook so state keyed by the identity goes with
// it. Hooks do not run when nothing was removed.
func (d *Datastore) Delete(ctx context.Context, kind string, id any) (bool, error) {
	m, err := d.MappingFor(kind)
	if err != nil {
		return false, err
	}
	n, err := d.store.Remove(ctx, m.Collection, store.Where(store.Eq(document.IDField, id)))
	if err != nil {
		return false, fmt.Errorf("delete %s %v: %w", kind, id, err)
	}
	if n == 0 {
		return false, nil
	}
	return true, d.afterDelete(ctx, &DeleteEvent{Kind: kind, Mapping: m, Identity: id})
}

func (d *Datastore) afterDelete(ctx context.Context, ev *DeleteEvent) error {
	d.mu.RLock()
	hooks := d.hooks
	d.mu.RUnlock()
	var errs []error
	for _, h := range hooks {
		dh, ok := h.(DeleteHook)
		if !ok {
			continue
		}
		if err := dh.AfterDelete(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("delete %s %v: %w", ev.Kind, ev.Identity, err)
	}
	return nil
}

// ReplaceIfVersion replaces the live document (id, version) with doc without
// running hooks or bumping the version. Returns the number of documents
// matched; zero means the live version moved on.
func (d *Datastore) ReplaceIfVersion(ctx context.Context, kind string, id any, version int64, doc document.Document) (int64, error) {
	m, err := d.MappingFor(kind)
	if err != nil {
		return 0, err
	}
	versionField, err := m.VersionField()
	if err != nil {
		return 0, err
	}
	if versionField == "" {
		return 0, fmt.Errorf("replace %s: kind has no version field", kind)
	}
	filter := store.Where(store.Eq(document.IDField, id), store.Eq(versionField, version))
	matched, err := d.store.Update(ctx, m.Collection, filter, doc)
	if err != nil {
		return 0, fmt.Errorf("replace %s %v: %w", kind, id, err)
	}
	return matched, nil
}

func identityOf(doc document.Document) any {
	id, ok := doc[document.IDField]
	if !ok || id == nil || id == "" {
		return nil
	}
	return id
}
