package session

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenStore(filepath.Join(t.TempDir(), "gantry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStoreInsertAndGet(t *testing.T) {
	store := newTestStore(t)

	s := New("search-filters", 3, 3, time.Hour)
	require.NoError(t, store.Insert(s, "/tmp/sessions/"+s.ID))

	entry, err := store.Get(s.ID)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, s.ID, entry.ID)
	assert.Equal(t, "search-filters", entry.IdeaID)
	assert.Equal(t, PhaseInitializing, entry.Phase)
	assert.Equal(t, "/tmp/sessions/"+s.ID, entry.Dir)
	assert.False(t, entry.Degraded)
}

func TestStoreGetMissing(t *testing.T) {
	store := newTestStore(t)

	entry, err := store.Get("no-such-session")
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestStoreUpdate(t *testing.T) {
	store := newTestStore(t)

	s := New("idea", 3, 3, time.Hour)
	require.NoError(t, store.Insert(s, "/tmp/x"))

	s.Phase = PhaseImplementing
	s.Progress = 40
	s.DegradedMode = true
	require.NoError(t, store.Update(s))

	entry, err := store.Get(s.ID)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, PhaseImplementing, entry.Phase)
	assert.Equal(t, 40, entry.Progress)
	assert.True(t, entry.Degraded)
}

func TestStoreLatestResumable(t *testing.T) {
	store := newTestStore(t)

	completed := New("done-idea", 3, 3, time.Hour)
	completed.Phase = PhaseCompleted
	require.NoError(t, store.Insert(completed, "/tmp/a"))
	require.NoError(t, store.Update(completed))

	blocked := New("stuck-idea", 3, 3, time.Hour)
	blocked.Phase = PhaseBlocked
	require.NoError(t, store.Insert(blocked, "/tmp/b"))
	require.NoError(t, store.Update(blocked))

	entry, err := store.LatestResumable()
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, blocked.ID, entry.ID)
	assert.Equal(t, PhaseBlocked, entry.Phase)
}

func TestStoreLatestResumableNone(t *testing.T) {
	store := newTestStore(t)

	s := New("idea", 3, 3, time.Hour)
	s.Phase = PhaseCompleted
	require.NoError(t, store.Insert(s, "/tmp/a"))
	require.NoError(t, store.Update(s))

	entry, err := store.LatestResumable()
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestStoreList(t *testing.T) {
	store := newTestStore(t)

	for _, idea := range []string{"one", "two", "three"} {
		s := New(idea, 3, 3, time.Hour)
		require.NoError(t, store.Insert(s, "/tmp/"+idea))
	}

	entries, err := store.List(2)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	entries, err = store.List(0)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}
