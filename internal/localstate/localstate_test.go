package localstate

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenMissingFileStartsEmpty(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, err)
	assert.Equal(t, Flags{}, store.Get())
}

func TestSetPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")

	store, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, store.Set(func(f *Flags) {
		f.ResumeProfileID = "u42"
		f.TutorialCompleted = true
	}))

	reopened, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, "u42", reopened.Get().ResumeProfileID)
	assert.True(t, reopened.Get().TutorialCompleted)
}

func TestCorruptFileTreatedAsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	store, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, Flags{}, store.Get())
}

func TestSubscribeReceivesChanges(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, err)

	ch, cancel := store.Subscribe()
	defer cancel()

	require.NoError(t, store.Set(func(f *Flags) { f.LastCommunityID = "c1" }))

	select {
	case flags := <-ch:
		assert.Equal(t, "c1", flags.LastCommunityID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for change notification")
	}
}

func TestCancelStopsNotifications(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, err)

	ch, cancel := store.Subscribe()
	cancel()

	require.NoError(t, store.Set(func(f *Flags) { f.TutorialCompleted = true }))

	_, ok := <-ch
	assert.False(t, ok, "channel should be closed after cancel")
}
