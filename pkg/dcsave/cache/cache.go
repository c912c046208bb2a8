package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/jamesainslie/dcsave/pkg/dcsave/logging"
)

// Kind selects the memory tier an image belongs to.
type Kind int

const (
	// KindOriginal is a full-size screenshot.
	KindOriginal Kind = iota
	// KindThumb is a thumbnail.
	KindThumb
)

// Options bounds the memory tiers. Store is optional.
type Options struct {
	Originals  int
	Thumbnails int
	Store      *Store
}

// ImageCache memoizes decoded screenshot payloads. Entries are keyed by file
// path and only served while the file's size and mtime still match.
type ImageCache struct {
	originals *ristretto.Cache[string, *CachedImage]
	thumbs    *ristretto.Cache[string, *CachedImage]
	store     *Store
}

// NewImageCache creates the memory tiers.
func NewImageCache(opts Options) (*ImageCache, error) {
	if opts.Originals <= 0 || opts.Thumbnails <= 0 {
		return nil, fmt.Errorf("cache bounds must be positive (originals=%d, thumbnails=%d)", opts.Originals, opts.Thumbnails)
	}
	originals, err := newTier(opts.Originals)
	if err != nil {
		return nil, err
	}
	thumbs, err := newTier(opts.Thumbnails)
	if err != nil {
		originals.Close()
		return nil, err
	}
	return &ImageCache{originals: originals, thumbs: thumbs, store: opts.Store}, nil
}

// Each entry costs 1 so MaxCost is the entry bound.
func newTier(maxItems int) (*ristretto.Cache[string, *CachedImage], error) {
	return ristretto.NewCache(&ristretto.Config[string, *CachedImage]{
		NumCounters:        int64(maxItems) * 10,
		MaxCost:            int64(maxItems),
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
}

func (c *ImageCache) tier(kind Kind) *ristretto.Cache[string, *CachedImage] {
	if kind == KindThumb {
		return c.thumbs
	}
	return c.originals
}

// Get returns the cached payload for path if it is still current.
func (c *ImageCache) Get(kind Kind, path string, info fs.FileInfo) (*CachedImage, bool) {
	tier := c.tier(kind)
	if entry, ok := tier.Get(path); ok {
		if entry.Matches(info) {
			return entry, true
		}
		tier.Del(path)
	}

	if c.store == nil {
		return nil, false
	}
	dir, name := filepath.Split(path)
	entry, err := c.store.Get(filepath.Clean(dir), name)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			logging.Get("cache").Warn("reading image cache", "path", path, "error", err)
		}
		return nil, false
	}
	if !entry.Matches(info) {
		return nil, false
	}
	tier.Set(path, entry, 1)
	return entry, true
}

// Put records a decoded payload for path.
func (c *ImageCache) Put(kind Kind, path string, info fs.FileInfo, mime string, data []byte) {
	entry := &CachedImage{
		Version: CacheVersion,
		MIME:    mime,
		Data:    data,
		Size:    info.Size(),
		Mtime:   info.ModTime().UnixNano(),
	}
	tier := c.tier(kind)
	tier.Set(path, entry, 1)
	tier.Wait()

	if c.store == nil {
		return
	}
	dir, name := filepath.Split(path)
	if err := c.store.Put(filepath.Clean(dir), name, entry); err != nil {
		logging.Get("cache").Warn("writing image cache", "path", path, "error", err)
	}
}

// Invalidate drops path from every tier.
func (c *ImageCache) Invalidate(path string) {
	c.originals.Del(path)
	c.thumbs.Del(path)
	if c.store == nil {
		return
	}
	dir, name := filepath.Split(path)
	if err := c.store.Delete(filepath.Clean(dir), name); err != nil {
		logging.Get("cache").Warn("invalidating image cache", "path", path, "error", err)
	}
}

// Clear empties the memory tiers and the persisted entries of dir.
func (c *ImageCache) Clear(dir string) error {
	c.originals.Clear()
	c.thumbs.Clear()
	if c.store == nil {
		return nil
	}
	return c.store.DeletePrefix(dir)
}

// Close releases the memory tiers. The Store is owned by the caller.
func (c *ImageCache) Close() {
	c.originals.Close()
	c.thumbs.Close()
}
