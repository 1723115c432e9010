package testutil

import (
	"errors"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryFSWriteAndRead(t *testing.T) {
	m := NewMemoryFS()
	require.NoError(t, m.MkdirAll("/data", 0755))
	require.NoError(t, m.WriteFile("/data/file.txt", []byte("hello"), 0644))

	content, err := m.ReadFile("/data/file.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), content)

	info, err := m.Stat("/data/file.txt")
	require.NoError(t, err)
	assert.False(t, info.IsDir())
	assert.Equal(t, int64(5), info.Size())
}

func TestMemoryFSWriteWithoutParent(t *testing.T) {
	m := NewMemoryFS()
	err := m.WriteFile("/missing/file.txt", nil, 0644)
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestMemoryFSReadDirSorted(t *testing.T) {
	m := NewMemoryFS()
	require.NoError(t, m.MkdirAll("/backup/b", 0755))
	require.NoError(t, m.MkdirAll("/backup/a", 0755))
	require.NoError(t, m.WriteFile("/backup/c.txt", nil, 0644))

	entries, err := m.ReadDir("/backup")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "a", entries[0].Name())
	assert.Equal(t, "b", entries[1].Name())
	assert.Equal(t, "c.txt", entries[2].Name())
	assert.True(t, entries[0].IsDir())
	assert.False(t, entries[2].IsDir())
}

func TestMemoryFSRenameMovesSubtree(t *testing.T) {
	m := NewMemoryFS()
	require.NoError(t, m.MkdirAll("/backup/old/sub", 0755))
	require.NoError(t, m.WriteFile("/backup/old/sub/f.txt", []byte("x"), 0644))

	require.NoError(t, m.Rename("/backup/old", "/backup/new"))

	assert.False(t, m.Exists("/backup/old"))
	assert.True(t, m.Exists("/backup/new/sub/f.txt"))
}

func TestMemoryFSRenameOntoExisting(t *testing.T) {
	m := NewMemoryFS()
	require.NoError(t, m.MkdirAll("/a", 0755))
	require.NoError(t, m.MkdirAll("/b", 0755))
	assert.Error(t, m.Rename("/a", "/b"))
}

func TestMemoryFSRemoveAll(t *testing.T) {
	m := NewMemoryFS()
	require.NoError(t, m.MkdirAll("/backup/x/y", 0755))
	require.NoError(t, m.WriteFile("/backup/x/y/f.txt", nil, 0644))

	require.NoError(t, m.RemoveAll("/backup/x"))
	assert.False(t, m.Exists("/backup/x"))
	assert.False(t, m.Exists("/backup/x/y/f.txt"))
	assert.True(t, m.Exists("/backup"))
}

func TestMemoryFSRemoveNonEmptyDir(t *testing.T) {
	m := NewMemoryFS()
	require.NoError(t, m.MkdirAll("/backup/x", 0755))
	require.NoError(t, m.WriteFile("/backup/x/f.txt", nil, 0644))
	assert.Error(t, m.Remove("/backup/x"))
	require.NoError(t, m.Remove("/backup/x/f.txt"))
	require.NoError(t, m.Remove("/backup/x"))
}

func TestMemoryFSInjectError(t *testing.T) {
	m := NewMemoryFS()
	require.NoError(t, m.MkdirAll("/backup", 0755))
	boom := errors.New("disk on fire")
	m.InjectError("/backup/bad", boom)

	_, err := m.Stat("/backup/bad")
	assert.Equal(t, boom, err)
	assert.Equal(t, boom, m.WriteFile("/backup/bad", nil, 0644))
}
