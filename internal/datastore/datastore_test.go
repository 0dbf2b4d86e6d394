package datastore

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/archivist/internal/document"
	"github.com/roach88/archivist/internal/store"
)

type note struct {
	ID      string `json:"_id,omitempty"`
	Body    string `json:"body"`
	Version int64  `json:"version" doc:"version"`
}

func (note) CollectionName() string { return "notes" }

type plain struct {
	ID   string `json:"_id,omitempty"`
	Name string `json:"name"`
}

func (plain) CollectionName() string { return "plain" }

type twoVersions struct {
	ID string `json:"_id"`
	A  int64  `json:"a" doc:"version"`
	B  int64  `json:"b" doc:"version"`
}

func (twoVersions) CollectionName() string { return "two" }

type noID struct {
	Name string `json:"name"`
}

func (noID) CollectionName() string { return "noid" }

type declared struct {
	ID  string `json:"_id,omitempty"`
	Rev int64  `json:"rev" doc:"version"`
}

func (declared) CollectionName() string { return "declared" }

func (declared) ArchiveDeclaration() ArchiveSpec {
	return ArchiveSpec{Count: 4}
}

func newTestDatastore(t *testing.T) *Datastore {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return New(st, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

type recordingHook struct {
	before  []WriteEvent
	after   []WriteEvent
	deleted []DeleteEvent
	veto    error
}

func (h *recordingHook) BeforeWrite(_ context.Context, ev *WriteEvent) error {
	h.before = append(h.before, *ev)
	return h.veto
}

func (h *recordingHook) AfterWrite(_ context.Context, ev *WriteEvent) {
	h.after = append(h.after, *ev)
}

func (h *recordingHook) AfterDelete(_ context.Context, ev *DeleteEvent) error {
	h.deleted = append(h.deleted, *ev)
	return h.veto
}

func TestMap_DerivesMappingFromTags(t *testing.T) {
	ds := newTestDatastore(t)

	m, err := ds.Map(&note{})
	require.NoError(t, err)
	assert.Equal(t, "note", m.Kind)
	assert.Equal(t, "notes", m.Collection)
	assert.Equal(t, []string{"version"}, m.VersionFields)
	assert.Equal(t, document.IDField, m.IDField())
	assert.Nil(t, m.Archive)

	again, err := ds.Map(note{})
	require.NoError(t, err)
	assert.Same(t, m, again)

	byKind, err := ds.MappingFor("note")
	require.NoError(t, err)
	assert.Same(t, m, byKind)
}

func TestMap_TypeLevelDeclaration(t *testing.T) {
	ds := newTestDatastore(t)

	m, err := ds.Map(&declared{})
	require.NoError(t, err)
	require.NotNil(t, m.Archive)
	assert.Equal(t, 4, m.Archive.Count)
	assert.Empty(t, m.Archive.Collection)
}

func TestMap_RequiresIdentity(t *testing.T) {
	ds := newTestDatastore(t)

	_, err := ds.Map(&noID{})
	assert.ErrorIs(t, err, ErrNoIdentity)
}

func TestMap_MultipleVersionFields(t *testing.T) {
	ds := newTestDatastore(t)

	m, err := ds.Map(&twoVersions{})
	require.NoError(t, err)
	_, err = m.VersionField()
	assert.ErrorIs(t, err, ErrMultipleVersionFields)
}

func TestMappingFor_UnknownKind(t *testing.T) {
	ds := newTestDatastore(t)

	_, err := ds.MappingFor("missing")
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestRegisterMapping(t *testing.T) {
	ds := newTestDatastore(t)

	m, err := ds.RegisterMapping(Mapping{Kind: "ticket", Collection: "tickets", VersionFields: []string{"rev"}})
	require.NoError(t, err)
	assert.Equal(t, "tickets", m.Collection)

	_, err = ds.RegisterMapping(Mapping{Kind: "bad", Collection: "bad", VersionFields: []string{"a.b"}})
	assert.Error(t, err)

	_, err = ds.Map(&note{})
	require.NoError(t, err)
	_, err = ds.RegisterMapping(Mapping{Kind: "note", Collection: "other"})
	assert.Error(t, err, "kinds bound to Go types cannot be re-registered")
}

func TestKinds_Sorted(t *testing.T) {
	ds := newTestDatastore(t)

	_, err := ds.RegisterMapping(Mapping{Kind: "ticket", Collection: "tickets"})
	require.NoError(t, err)
	_, err = ds.Map(&note{})
	require.NoError(t, err)
	_, err = ds.RegisterMapping(Mapping{Kind: "alert", Collection: "alerts"})
	require.NoError(t, err)

	assert.Equal(t, []string{"alert", "note", "ticket"}, ds.Kinds())
}

func TestSave_InsertStartsAtVersionZero(t *testing.T) {
	ds := newTestDatastore(t)
	ctx := context.Background()

	n := &note{Body: "first"}
	require.NoError(t, ds.Save(ctx, n))
	assert.NotEmpty(t, n.ID)
	assert.Equal(t, int64(0), n.Version)

	loaded := &note{ID: n.ID}
	require.NoError(t, ds.Get(ctx, loaded))
	assert.Equal(t, "first", loaded.Body)
}

func TestSave_UpdateBumpsVersion(t *testing.T) {
	ds := newTestDatastore(t)
	ctx := context.Background()

	n := &note{Body: "v0"}
	require.NoError(t, ds.Save(ctx, n))
	for i := 1; i <= 3; i++ {
		n.Body = "next"
		require.NoError(t, ds.Save(ctx, n))
		assert.Equal(t, int64(i), n.Version)
	}

	doc, err := ds.FindByID(ctx, "note", n.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), doc["version"])
}

func TestSave_StaleVersion(t *testing.T) {
	ds := newTestDatastore(t)
	ctx := context.Background()

	n := &note{Body: "v0"}
	require.NoError(t, ds.Save(ctx, n))

	stale := *n
	n.Body = "v1"
	require.NoError(t, ds.Save(ctx, n))

	stale.Body = "lost update"
	err := ds.Save(ctx, &stale)
	assert.ErrorIs(t, err, ErrStaleVersion)

	doc, err := ds.FindByID(ctx, "note", n.ID)
	require.NoError(t, err)
	assert.Equal(t, "v1", doc["body"])
}

func TestSave_ExplicitIdentityInsert(t *testing.T) {
	ds := newTestDatastore(t)
	ctx := context.Background()

	n := &note{ID: "fixed", Body: "hello"}
	require.NoError(t, ds.Save(ctx, n))
	assert.Equal(t, "fixed", n.ID)
	assert.Equal(t, int64(0), n.Version)
}

func TestSave_UnversionedKindReplaces(t *testing.T) {
	ds := newTestDatastore(t)
	ctx := context.Background()

	p := &plain{Name: "a"}
	require.NoError(t, ds.Save(ctx, p))
	p.Name = "b"
	require.NoError(t, ds.Save(ctx, p))

	loaded := &plain{ID: p.ID}
	require.NoError(t, ds.Get(ctx, loaded))
	assert.Equal(t, "b", loaded.Name)
}

func TestSaveDocument_ByKind(t *testing.T) {
	ds := newTestDatastore(t)
	ctx := context.Background()
	_, err := ds.RegisterMapping(Mapping{Kind: "ticket", Collection: "tickets", VersionFields: []string{"rev"}})
	require.NoError(t, err)

	saved, err := ds.SaveDocument(ctx, "ticket", document.Document{"_id": "t1", "title": "open"})
	require.NoError(t, err)
	assert.Equal(t, int64(0), saved["rev"])

	saved["title"] = "closed"
	saved, err = ds.SaveDocument(ctx, "ticket", saved)
	require.NoError(t, err)
	assert.Equal(t, int64(1), saved["rev"])
}

func TestHooks_RunAroundUpdatesOnly(t *testing.T) {
	ds := newTestDatastore(t)
	ctx := context.Background()
	hook := &recordingHook{}
	ds.AddHook(hook)

	n := &note{Body: "v0"}
	require.NoError(t, ds.Save(ctx, n))
	require.Len(t, hook.before, 1)
	assert.True(t, hook.before[0].Insert)

	n.Body = "v1"
	require.NoError(t, ds.Save(ctx, n))
	require.Len(t, hook.before, 2)
	require.Len(t, hook.after, 2)

	ev := hook.after[1]
	assert.False(t, ev.Insert)
	assert.True(t, ev.Versioned)
	assert.Equal(t, "note", ev.Kind)
	assert.Equal(t, n.ID, ev.Identity)
	assert.Equal(t, int64(0), ev.PriorVersion)
	assert.Equal(t, int64(1), ev.Version)
}

func TestHooks_VetoAbortsWrite(t *testing.T) {
	ds := newTestDatastore(t)
	ctx := context.Background()

	n := &note{Body: "v0"}
	require.NoError(t, ds.Save(ctx, n))

	veto := errors.New("archive unavailable")
	hook := &recordingHook{veto: veto}
	ds.AddHook(hook)

	n.Body = "v1"
	err := ds.Save(ctx, n)
	assert.ErrorIs(t, err, veto)
	assert.Empty(t, hook.after)

	doc, err := ds.FindByID(ctx, "note", n.ID)
	require.NoError(t, err)
	assert.Equal(t, "v0", doc["body"])
	assert.Equal(t, int64(0), doc["version"])
}

func TestHooks_NotCalledAfterStaleWrite(t *testing.T) {
	ds := newTestDatastore(t)
	ctx := context.Background()

	n := &note{Body: "v0"}
	require.NoError(t, ds.Save(ctx, n))
	stale := *n
	n.Body = "v1"
	require.NoError(t, ds.Save(ctx, n))

	hook := &recordingHook{}
	ds.AddHook(hook)
	err := ds.Save(ctx, &stale)
	require.ErrorIs(t, err, ErrStaleVersion)
	assert.Len(t, hook.before, 1)
	assert.Empty(t, hook.after)
}

func TestReplaceIfVersion(t *testing.T) {
	ds := newTestDatastore(t)
	ctx := context.Background()
	hook := &recordingHook{}

	n := &note{Body: "v0"}
	require.NoError(t, ds.Save(ctx, n))
	n.Body = "v1"
	require.NoError(t, ds.Save(ctx, n))
	ds.AddHook(hook)

	replacement := document.Document{"_id": n.ID, "body": "v0", "version": int64(0)}

	matched, err := ds.ReplaceIfVersion(ctx, "note", n.ID, 0, replacement)
	require.NoError(t, err)
	assert.Equal(t, int64(0), matched, "live version is 1")

	matched, err = ds.ReplaceIfVersion(ctx, "note", n.ID, 1, replacement)
	require.NoError(t, err)
	assert.Equal(t, int64(1), matched)
	assert.Empty(t, hook.before)

	doc, err := ds.FindByID(ctx, "note", n.ID)
	require.NoError(t, err)
	assert.Equal(t, "v0", doc["body"])
	assert.Equal(t, int64(0), doc["version"])
}

func TestDelete(t *testing.T) {
	ds := newTestDatastore(t)
	ctx := context.Background()

	n := &note{Body: "gone"}
	require.NoError(t, ds.Save(ctx, n))

	deleted, err := ds.Delete(ctx, "note", n.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	_, err = ds.FindByID(ctx, "note", n.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	deleted, err = ds.Delete(ctx, "note", n.ID)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestDelete_RunsDeleteHooks(t *testing.T) {
	ds := newTestDatastore(t)
	ctx := context.Background()
	hook := &recordingHook{}
	ds.AddHook(hook)

	n := &note{Body: "gone"}
	require.NoError(t, ds.Save(ctx, n))

	deleted, err := ds.Delete(ctx, "note", n.ID)
	require.NoError(t, err)
	assert.True(t, deleted)
	require.Len(t, hook.deleted, 1)
	assert.Equal(t, "note", hook.deleted[0].Kind)
	assert.Equal(t, n.ID, hook.deleted[0].Identity)
	assert.Equal(t, "notes", hook.deleted[0].Mapping.Collection)

	// Nothing removed, nothing to report.
	_, err = ds.Delete(ctx, "note", n.ID)
	require.NoError(t, err)
	assert.Len(t, hook.deleted, 1)
}

func TestDelete_HookErrorKeepsDelete(t *testing.T) {
	ds := newTestDatastore(t)
	ctx := context.Background()

	n := &note{Body: "gone"}
	require.NoError(t, ds.Save(ctx, n))

	boom := errors.New("boom")
	ds.AddHook(&recordingHook{veto: boom})

	deleted, err := ds.Delete(ctx, "note", n.ID)
	assert.True(t, deleted)
	assert.ErrorIs(t, err, boom)

	_, err = ds.FindByID(ctx, "note", n.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGet_NoIdentity(t *testing.T) {
	ds := newTestDatastore(t)

	err := ds.Get(context.Background(), &note{})
	assert.ErrorIs(t, err, ErrNoIdentity)
}
