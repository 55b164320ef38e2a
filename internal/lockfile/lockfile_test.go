package lockfile

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryLockExcludesSecondHolder(t *testing.T) {
	path := filepath.Join(t.TempDir(), Name("poll", "Main"))

	first, err := TryLock(path)
	require.NoError(t, err)

	_, err = TryLock(path)
	assert.ErrorIs(t, err, ErrHeld)

	held, err := Held(path)
	require.NoError(t, err)
	assert.True(t, held)

	require.NoError(t, first.Unlock())

	held, err = Held(path)
	require.NoError(t, err)
	assert.False(t, held)

	second, err := TryLock(path)
	require.NoError(t, err)
	require.NoError(t, second.Unlock())
}

func TestUnlockTwice(t *testing.T) {
	l, err := TryLock(filepath.Join(t.TempDir(), "x.lock"))
	require.NoError(t, err)
	require.NoError(t, l.Unlock())
	assert.NoError(t, l.Unlock())
}

func TestTryLockMissingDirectory(t *testing.T) {
	_, err := TryLock(filepath.Join(t.TempDir(), "missing", "x.lock"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrHeld)
}

func TestName(t *testing.T) {
	assert.Equal(t, "poll-Main.lock", Name("poll", "Main"))
	assert.Equal(t, "countdown-Main_Server_2.lock", Name("countdown", "Main Server/2"))
}
