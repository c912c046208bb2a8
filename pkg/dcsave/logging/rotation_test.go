package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRotatingWriterRotatesBySize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dcsave.log")

	w, err := NewRotatingWriter(path, RotationConfig{MaxSize: 16})
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	_, err = w.Write([]byte("0123456789\n"))
	require.NoError(t, err)
	_, err = w.Write([]byte("abcdefghij\n"))
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	current, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "abcdefghij\n", string(current))
}

func TestRotatingWriterFirstWriteNeverRotates(t *testing.T) {
	dir := t.TempDir()
	w, err := NewRotatingWriter(filepath.Join(dir, "big.log"), RotationConfig{MaxSize: 4})
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	_, err = w.Write([]byte("longer than four bytes"))
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestShouldRotateDaily(t *testing.T) {
	w := &RotatingWriter{
		cfg:        RotationConfig{MaxSize: 1 << 20, Daily: true},
		lastRotate: time.Date(2024, 1, 1, 23, 59, 0, 0, time.Local),
	}
	assert.False(t, w.shouldRotate(1, time.Date(2024, 1, 1, 23, 59, 30, 0, time.Local)))
	assert.True(t, w.shouldRotate(1, time.Date(2024, 1, 2, 0, 0, 1, 0, time.Local)))
}

func TestCleanupKeepsMaxBackups(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dcsave.log")

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 4; i++ {
		name := filepath.Join(dir, "dcsave.2024-01-0"+string(rune('1'+i))+"-000000.log")
		require.NoError(t, os.WriteFile(name, []byte("x"), 0o644))
		mt := base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, os.Chtimes(name, mt, mt))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "unrelated.txt"), []byte("x"), 0o644))

	w, err := NewRotatingWriter(path, RotationConfig{MaxSize: 1024, MaxBackups: 2})
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)

	var rotated []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "dcsave.2024") {
			rotated = append(rotated, e.Name())
		}
	}
	assert.ElementsMatch(t, []string{
		"dcsave.2024-01-03-000000.log",
		"dcsave.2024-01-04-000000.log",
	}, rotated)
	assert.FileExists(t, filepath.Join(dir, "unrelated.txt"))
}

func TestWriteAfterClose(t *testing.T) {
	w, err := NewRotatingWriter(filepath.Join(t.TempDir(), "c.log"), RotationConfig{})
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	_, err = w.Write([]byte("late"))
	assert.ErrorIs(t, err, os.ErrClosed)
}
