package archive

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/archivist/internal/document"
	"github.com/roach88/archivist/internal/store"
)

func seedArchive(t *testing.T, st *store.Store, identity string, versions ...int64) {
	t.Helper()
	for _, v := range versions {
		_, err := st.Insert(context.Background(), "notes_archive", document.Document{
			IdentityField: identity,
			"version":     v,
			"body":        fmt.Sprintf("%s@%d", identity, v),
		})
		require.NoError(t, err)
	}
}

func archiveTags(t *testing.T, st *store.Store, identity string) []int64 {
	t.Helper()
	docs, err := st.Find(context.Background(), "notes_archive", store.Where(store.Eq(IdentityField, identity)),
		store.FindOptions{Sort: []store.SortKey{store.Asc("version")}})
	require.NoError(t, err)
	tags := make([]int64, len(docs))
	for i, d := range docs {
		tags[i], err = d.Int("version")
		require.NoError(t, err)
	}
	return tags
}

func noteTask(identity string, justWritten int64, count int) Task {
	return Task{
		Kind:         "note",
		Collection:   "notes_archive",
		VersionField: "version",
		Identity:     identity,
		JustWritten:  justWritten,
		Count:        count,
	}
}

func TestTask_Threshold(t *testing.T) {
	assert.Equal(t, int64(2), noteTask("a", 5, 3).Threshold())
	assert.Equal(t, int64(-2), noteTask("a", 1, 3).Threshold())
	assert.Equal(t, int64(4), noteTask("a", 4, 0).Threshold())
}

func TestPruneNow_SlidingWindow(t *testing.T) {
	ds := newTestDatastore(t)
	st := ds.Store()
	seedArchive(t, st, "a", 0, 1, 2, 3, 4, 5)

	removed, err := PruneNow(context.Background(), st, noteTask("a", 5, 3))
	require.NoError(t, err)
	assert.Equal(t, int64(3), removed)
	assert.Equal(t, []int64{3, 4, 5}, archiveTags(t, st, "a"))
}

func TestPruneNow_NegativeThresholdPrunesNothing(t *testing.T) {
	ds := newTestDatastore(t)
	st := ds.Store()
	seedArchive(t, st, "a", 0, 1)

	removed, err := PruneNow(context.Background(), st, noteTask("a", 1, 3))
	require.NoError(t, err)
	assert.Zero(t, removed)
	assert.Equal(t, []int64{0, 1}, archiveTags(t, st, "a"))
}

func TestPruneNow_ZeroCountRemovesAll(t *testing.T) {
	ds := newTestDatastore(t)
	st := ds.Store()
	seedArchive(t, st, "a", 0, 1, 2)

	removed, err := PruneNow(context.Background(), st, noteTask("a", 2, 0))
	require.NoError(t, err)
	assert.Equal(t, int64(3), removed)
	assert.Empty(t, archiveTags(t, st, "a"))
}

func TestPruneNow_Idempotent(t *testing.T) {
	ds := newTestDatastore(t)
	st := ds.Store()
	seedArchive(t, st, "a", 0, 1, 2, 3, 4)

	for i := 0; i < 3; i++ {
		_, err := PruneNow(context.Background(), st, noteTask("a", 4, 2))
		require.NoError(t, err)
		assert.Equal(t, []int64{3, 4}, archiveTags(t, st, "a"))
	}

	// A stale pass only removes less.
	_, err := PruneNow(context.Background(), st, noteTask("a", 2, 2))
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 4}, archiveTags(t, st, "a"))
}

func TestPruneNow_OtherIdentitiesUntouched(t *testing.T) {
	ds := newTestDatastore(t)
	st := ds.Store()
	seedArchive(t, st, "a", 0, 1, 2, 3)
	seedArchive(t, st, "b", 0, 1, 2, 3)

	_, err := PruneNow(context.Background(), st, noteTask("a", 3, 1))
	require.NoError(t, err)
	assert.Equal(t, []int64{3}, archiveTags(t, st, "a"))
	assert.Equal(t, []int64{0, 1, 2, 3}, archiveTags(t, st, "b"))
}

func TestInlinePruner_FailureIsLoggedNotReturned(t *testing.T) {
	ds := newTestDatastore(t)
	logs := &syncBuffer{}
	metrics := NewMetrics(nil)
	p := NewInlinePruner(ds.Store(), slogTo(logs), metrics)

	task := noteTask("a", 5, 1)
	task.VersionField = "not a field"
	p.Prune(context.Background(), task)

	assert.Contains(t, logs.String(), "prune failed")
}
