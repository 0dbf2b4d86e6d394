package archive

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/archivist/internal/datastore"
)

func newTestRegistry(t *testing.T, decls ...Declaration) *Registry {
	t.Helper()
	ds := newTestDatastore(t)
	r, err := NewRegistry(ds.Store(), ds, decls, discardLogger())
	require.NoError(t, err)
	return r
}

func indexExists(t *testing.T, r *Registry, name string) bool {
	t.Helper()
	var n int
	err := r.store.DB().QueryRow(
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND name = ?`, name,
	).Scan(&n)
	require.NoError(t, err)
	return n == 1
}

func TestResolve_DefaultArchiveCollection(t *testing.T) {
	r := newTestRegistry(t, Declaration{Kind: "note", RetentionCount: 3})

	reg, err := r.Resolve(context.Background(), "note")
	require.NoError(t, err)
	assert.Equal(t, &Registration{
		Kind:              "note",
		LiveCollection:    "notes",
		ArchiveCollection: "notes_archive",
		Count:             3,
		VersionField:      "version",
		Enabled:           true,
	}, reg)
	assert.True(t, indexExists(t, r, "idx_notes_archive__archiveId"))
}

func TestResolve_ExplicitCollection(t *testing.T) {
	r := newTestRegistry(t, Declaration{Kind: "note", ArchiveCollection: "note_history", RetentionCount: 1, VersionField: "version"})

	reg, err := r.Resolve(context.Background(), "note")
	require.NoError(t, err)
	assert.Equal(t, "note_history", reg.ArchiveCollection)
	assert.True(t, indexExists(t, r, "idx_note_history__archiveId"))
}

func TestResolve_TypeLevelDeclaration(t *testing.T) {
	r := newTestRegistry(t)

	reg, err := r.Resolve(context.Background(), "page")
	require.NoError(t, err)
	assert.True(t, reg.Enabled)
	assert.Equal(t, "page_history", reg.ArchiveCollection)
	assert.Equal(t, 2, reg.Count)
	assert.Equal(t, "rev", reg.VersionField)
}

func TestResolve_ExplicitDeclarationWins(t *testing.T) {
	r := newTestRegistry(t, Declaration{Kind: "page", RetentionCount: 7})

	reg, err := r.Resolve(context.Background(), "page")
	require.NoError(t, err)
	assert.Equal(t, 7, reg.Count)
	assert.Equal(t, "pages_archive", reg.ArchiveCollection)
}

func TestResolve_NotArchived(t *testing.T) {
	r := newTestRegistry(t)

	reg, err := r.Resolve(context.Background(), "note")
	require.NoError(t, err)
	assert.False(t, reg.Enabled)
	assert.False(t, indexExists(t, r, "idx_notes_archive__archiveId"))
}

func TestResolve_ZeroCountDisables(t *testing.T) {
	r := newTestRegistry(t, Declaration{Kind: "note", RetentionCount: 0})

	reg, err := r.Resolve(context.Background(), "note")
	require.NoError(t, err)
	assert.False(t, reg.Enabled)
}

func TestResolve_ConfigurationErrors(t *testing.T) {
	tests := []struct {
		name string
		decl Declaration
	}{
		{"no version field", Declaration{Kind: "tag", RetentionCount: 2}},
		{"two version fields", Declaration{Kind: "twoCounters", RetentionCount: 2}},
		{"mismatched version field", Declaration{Kind: "note", RetentionCount: 2, VersionField: "rev"}},
		{"negative count", Declaration{Kind: "note", RetentionCount: -1}},
		{"archive is live collection", Declaration{Kind: "note", RetentionCount: 2, ArchiveCollection: "notes"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRegistry(t, tt.decl)
			_, err := r.Resolve(context.Background(), tt.decl.Kind)
			require.Error(t, err)
			assert.True(t, IsConfiguration(err), "got %v", err)
		})
	}
}

func TestResolve_CachesResults(t *testing.T) {
	r := newTestRegistry(t, Declaration{Kind: "note", RetentionCount: 3}, Declaration{Kind: "tag", RetentionCount: 1})
	ctx := context.Background()

	first, err := r.Resolve(ctx, "note")
	require.NoError(t, err)
	second, err := r.Resolve(ctx, "note")
	require.NoError(t, err)
	assert.Same(t, first, second)

	_, err1 := r.Resolve(ctx, "tag")
	_, err2 := r.Resolve(ctx, "tag")
	require.Error(t, err1)
	assert.Same(t, err1, err2)
}

func TestResolve_UnknownKindNotCached(t *testing.T) {
	ds := newTestDatastore(t)
	r, err := NewRegistry(ds.Store(), ds, []Declaration{{Kind: "ticket", RetentionCount: 1}}, discardLogger())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = r.Resolve(ctx, "ticket")
	require.Error(t, err)

	_, err = ds.RegisterMapping(datastoreMapping("ticket", "tickets", "rev"))
	require.NoError(t, err)
	reg, err := r.Resolve(ctx, "ticket")
	require.NoError(t, err)
	assert.Equal(t, "tickets_archive", reg.ArchiveCollection)
}

func TestResolve_ConcurrentCallersShareResult(t *testing.T) {
	r := newTestRegistry(t, Declaration{Kind: "note", RetentionCount: 3})
	ctx := context.Background()

	results := make(chan *Registration, 8)
	for i := 0; i < 8; i++ {
		go func() {
			reg, err := r.Resolve(ctx, "note")
			if err != nil {
				results <- nil
				return
			}
			results <- reg
		}()
	}
	first := <-results
	require.NotNil(t, first)
	for i := 1; i < 8; i++ {
		assert.Same(t, first, <-results)
	}
}

// gatedMappings holds MappingFor for one kind until release is closed.
type gatedMappings struct {
	Mappings
	kind    string
	entered chan struct{}
	release chan struct{}
}

func (g *gatedMappings) MappingFor(kind string) (*datastore.Mapping, error) {
	if kind == g.kind {
		close(g.entered)
		<-g.release
	}
	return g.Mappings.MappingFor(kind)
}

func TestResolve_SlowKindDoesNotBlockOthers(t *testing.T) {
	ds := newTestDatastore(t)
	_, err := ds.Map(&note{})
	require.NoError(t, err)
	_, err = ds.Map(&page{})
	require.NoError(t, err)

	gate := &gatedMappings{Mappings: ds, kind: "page", entered: make(chan struct{}), release: make(chan struct{})}
	r, err := NewRegistry(ds.Store(), gate, []Declaration{{Kind: "note", RetentionCount: 2}}, discardLogger())
	require.NoError(t, err)
	ctx := context.Background()

	cached, err := r.Resolve(ctx, "note")
	require.NoError(t, err)

	slow := make(chan error, 1)
	go func() {
		_, err := r.Resolve(ctx, "page")
		slow <- err
	}()
	<-gate.entered

	done := make(chan *Registration, 1)
	go func() {
		reg, _ := r.Resolve(ctx, "note")
		done <- reg
	}()
	select {
	case reg := <-done:
		assert.Same(t, cached, reg)
	case <-time.After(5 * time.Second):
		t.Fatal("cached resolve waited on another kind's resolution")
	}

	close(gate.release)
	require.NoError(t, <-slow)
	reg, err := r.Resolve(ctx, "page")
	require.NoError(t, err)
	assert.Equal(t, "page_history", reg.ArchiveCollection)
	assert.True(t, indexExists(t, r, "idx_page_history__archiveId"))
}

func TestNewRegistry_RejectsDuplicateDeclarations(t *testing.T) {
	ds := newTestDatastore(t)
	_, err := NewRegistry(ds.Store(), ds, []Declaration{
		{Kind: "note", RetentionCount: 1},
		{Kind: "note", RetentionCount: 2},
	}, discardLogger())
	assert.True(t, IsConfiguration(err))

	_, err = NewRegistry(ds.Store(), ds, []Declaration{{RetentionCount: 1}}, discardLogger())
	assert.True(t, IsConfiguration(err))
}
