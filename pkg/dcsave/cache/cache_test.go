package cache_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/dcsave/pkg/dcsave/cache"
)

func writeFile(t *testing.T, path, content string) os.FileInfo {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	info, err := os.Stat(path)
	require.NoError(t, err)
	return info
}

func newCache(t *testing.T, store *cache.Store) *cache.ImageCache {
	t.Helper()
	c, err := cache.NewImageCache(cache.Options{Originals: 5, Thumbnails: 5, Store: store})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestImageCacheHitAndInvalidation(t *testing.T) {
	t.Parallel()

	c := newCache(t, nil)
	path := filepath.Join(t.TempDir(), "DevilConnection_photo_a.sav")
	info := writeFile(t, path, "v1")

	_, ok := c.Get(cache.KindOriginal, path, info)
	assert.False(t, ok)

	c.Put(cache.KindOriginal, path, info, "image/png", []byte("png"))
	got, ok := c.Get(cache.KindOriginal, path, info)
	require.True(t, ok)
	assert.Equal(t, []byte("png"), got.Data)
	assert.Equal(t, "image/png", got.MIME)

	// The thumbnail tier is separate.
	_, ok = c.Get(cache.KindThumb, path, info)
	assert.False(t, ok)

	// A rewritten file no longer matches.
	future := time.Now().Add(time.Hour)
	require.NoError(t, os.WriteFile(path, []byte("version2"), 0o644))
	require.NoError(t, os.Chtimes(path, future, future))
	changed, err := os.Stat(path)
	require.NoError(t, err)
	_, ok = c.Get(cache.KindOriginal, path, changed)
	assert.False(t, ok)

	c.Put(cache.KindOriginal, path, changed, "image/png", []byte("png2"))
	c.Invalidate(path)
	_, ok = c.Get(cache.KindOriginal, path, changed)
	assert.False(t, ok)
}

func TestImageCacheBounded(t *testing.T) {
	t.Parallel()

	c := newCache(t, nil)
	dir := t.TempDir()
	var paths []string
	var infos []os.FileInfo
	for i := 0; i < 20; i++ {
		p := filepath.Join(dir, string(rune('a'+i))+".sav")
		infos = append(infos, writeFile(t, p, "x"))
		paths = append(paths, p)
		c.Put(cache.KindThumb, p, infos[i], "image/jpeg", []byte{byte(i)})
	}

	hits := 0
	for i, p := range paths {
		if _, ok := c.Get(cache.KindThumb, p, infos[i]); ok {
			hits++
		}
	}
	assert.LessOrEqual(t, hits, 5)
}

func TestImageCachePersistsThroughStore(t *testing.T) {
	t.Parallel()

	store, err := cache.OpenStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	path := filepath.Join(t.TempDir(), "DevilConnection_photo_b_thumb.sav")
	info := writeFile(t, path, "thumb")

	first := newCache(t, store)
	first.Put(cache.KindThumb, path, info, "image/jpeg", []byte("jpg"))

	second := newCache(t, store)
	got, ok := second.Get(cache.KindThumb, path, info)
	require.True(t, ok)
	assert.Equal(t, []byte("jpg"), got.Data)

	require.NoError(t, second.Clear(filepath.Dir(path)))
	third := newCache(t, store)
	_, ok = third.Get(cache.KindThumb, path, info)
	assert.False(t, ok)
}

func TestNewImageCacheRejectsZeroBounds(t *testing.T) {
	t.Parallel()

	_, err := cache.NewImageCache(cache.Options{Originals: 0, Thumbnails: 5})
	assert.Error(t, err)
}
