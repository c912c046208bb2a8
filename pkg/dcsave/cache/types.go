package cache

import (
	"bytes"
	"encoding/gob"
	"io/fs"
)

// CacheVersion is incremented when the entry format changes.
const CacheVersion = 1

// KeySeparator separates the storage directory from the file name in keys.
const KeySeparator = '\x00'

// CachedImage is a decoded data URI payload together with the identity of
// the save file it came from.
type CachedImage struct {
	Version int
	MIME    string
	Data    []byte
	Size    int64 // size of the .sav file
	Mtime   int64 // modification time of the .sav file as UnixNano
}

// Encode serializes the entry using gob.
func (e *CachedImage) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(e); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode deserializes data into the entry.
func (e *CachedImage) Decode(data []byte) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(e)
}

// Matches reports whether the entry was produced from the file described by
// info and from the current entry format.
func (e *CachedImage) Matches(info fs.FileInfo) bool {
	if e.Version != CacheVersion || info == nil {
		return false
	}
	return e.Size == info.Size() && e.Mtime == info.ModTime().UnixNano()
}

// MakeKey creates a cache key from a storage directory and a file name.
// Format: <dir>\x00<name>
func MakeKey(dir, name string) []byte {
	return []byte(dir + string(KeySeparator) + name)
}

// ParseKey extracts the storage directory and file name from a key.
func ParseKey(key []byte) (dir, name string) {
	idx := bytes.IndexByte(key, KeySeparator)
	if idx == -1 {
		return string(key), ""
	}
	return string(key[:idx]), string(key[idx+1:])
}

// MakeKeyPrefix returns the prefix shared by every key under dir.
func MakeKeyPrefix(dir string) []byte {
	return []byte(dir + string(KeySeparator))
}
