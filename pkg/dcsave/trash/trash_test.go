package trash

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMoveToTrash(t *testing.T) {
	tmpFile := filepath.Join(t.TempDir(), "DC_storage_backup_20240101_000000.zip")
	require.NoError(t, os.WriteFile(tmpFile, []byte("zip"), 0o644))

	method, err := MoveToTrash(tmpFile)
	require.NoError(t, err)
	assert.NotEmpty(t, method)

	_, err = os.Stat(tmpFile)
	assert.True(t, os.IsNotExist(err))
}

func TestMoveToTrashFallsBackToDelete(t *testing.T) {
	orig := helpers
	helpers = func() []helper {
		return []helper{{MethodGio, "dcsave-no-such-helper", func(p string) []string { return []string{p} }}}
	}
	t.Cleanup(func() { helpers = orig })

	dir := filepath.Join(t.TempDir(), "export")
	require.NoError(t, os.Mkdir(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.png"), []byte("png"), 0o644))

	method, err := MoveToTrash(dir)
	require.NoError(t, err)
	assert.Equal(t, MethodDeleted, method)

	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
}

func TestMoveToTrashNonexistent(t *testing.T) {
	_, err := MoveToTrash(filepath.Join(t.TempDir(), "missing.zip"))
	assert.Error(t, err)
}

func TestDelete(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	require.NoError(t, Delete(path))
	require.NoError(t, Delete(path))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}
