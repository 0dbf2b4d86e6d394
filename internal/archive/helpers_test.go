package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/archivist/internal/datastore"
	"github.com/roach88/archivist/internal/document"
	"github.com/roach88/archivist/internal/store"
)

type note struct {
	ID      string `json:"_id,omitempty"`
	Body    string `json:"body"`
	Version int64  `json:"version" doc:"version"`
}

func (note) CollectionName() string { return "notes" }

// page declares archiving on the type itself.
type page struct {
	ID    string `json:"_id,omitempty"`
	Title string `json:"title"`
	Rev   int64  `json:"rev" doc:"version"`
}

func (page) CollectionName() string { return "pages" }

func (page) ArchiveDeclaration() datastore.ArchiveSpec {
	return datastore.ArchiveSpec{Collection: "page_history", Count: 2}
}

// tag has no version field.
type tag struct {
	ID   string `json:"_id,omitempty"`
	Name string `json:"name"`
}

func (tag) CollectionName() string { return "tags" }

type twoCounters struct {
	ID string `json:"_id,omitempty"`
	A  int64  `json:"a" doc:"version"`
	B  int64  `json:"b" doc:"version"`
}

func (twoCounters) CollectionName() string { return "counters" }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// syncBuffer is a goroutine-safe log sink.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestDatastore(t *testing.T) *datastore.Datastore {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	ds := datastore.New(st, discardLogger())
	for _, e := range []datastore.Entity{&note{}, &page{}, &tag{}, &twoCounters{}} {
		_, err := ds.Map(e)
		require.NoError(t, err)
	}
	return ds
}

// newTestArchiver archives notes with the given retention count.
func newTestArchiver(t *testing.T, count int, opts Options) (*Archiver, *datastore.Datastore) {
	t.Helper()
	ds := newTestDatastore(t)
	if opts.Declarations == nil {
		opts.Declarations = []Declaration{{Kind: "note", RetentionCount: count}}
	}
	if opts.Logger == nil {
		opts.Logger = discardLogger()
	}
	a, err := New(ds, opts)
	require.NoError(t, err)
	return a, ds
}

// saveValues saves a new note n times with bodies "Value 0".."Value n-1".
func saveValues(t *testing.T, ds *datastore.Datastore, n int) *note {
	t.Helper()
	ctx := context.Background()
	e := &note{}
	for i := 0; i < n; i++ {
		e.Body = fmt.Sprintf("Value %d", i)
		require.NoError(t, ds.Save(ctx, e))
	}
	return e
}

func liveDoc(t *testing.T, ds *datastore.Datastore, e *note) document.Document {
	t.Helper()
	doc, err := ds.FindByID(context.Background(), "note", e.ID)
	require.NoError(t, err)
	return doc
}

func archivedBodies(t *testing.T, a *Archiver, ds *datastore.Datastore, e *note) []string {
	t.Helper()
	history, err := a.History(context.Background(), "note", liveDoc(t, ds, e))
	require.NoError(t, err)
	bodies := make([]string, len(history))
	for i, h := range history {
		bodies[i], _ = h["body"].(string)
	}
	return bodies
}

func archivedVersions(t *testing.T, a *Archiver, ds *datastore.Datastore, e *note) []int64 {
	t.Helper()
	history, err := a.History(context.Background(), "note", liveDoc(t, ds, e))
	require.NoError(t, err)
	versions := make([]int64, len(history))
	for i, h := range history {
		v, err := h.Int("version")
		require.NoError(t, err)
		versions[i] = v
	}
	return versions
}

func datastoreMapping(kind, collection, versionField string) datastore.Mapping {
	return datastore.Mapping{Kind: kind, Collection: collection, VersionFields: []string{versionField}}
}

func slogTo(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
