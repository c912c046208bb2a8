package cache

import (
	"errors"

	"github.com/dgraph-io/badger/v4"
)

// ErrNotFound is returned when a cache entry doesn't exist.
var ErrNotFound = errors.New("cache entry not found")

// Store persists decoded images in Badger so repeated CLI runs skip the
// base64 decode of large screenshot files.
type Store struct {
	db *badger.DB
}

// OpenStore opens or creates a cache store at the given path.
func OpenStore(path string) (*Store, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the store.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get retrieves the cached image for a file in dir.
func (s *Store) Get(dir, name string) (*CachedImage, error) {
	key := MakeKey(dir, name)
	var entry CachedImage

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		return item.Value(entry.Decode)
	})

	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// Put stores an image entry.
func (s *Store) Put(dir, name string, entry *CachedImage) error {
	value, err := entry.Encode()
	if err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(MakeKey(dir, name), value)
	})
}

// Delete removes a cached entry.
func (s *Store) Delete(dir, name string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(MakeKey(dir, name))
	})
}

// DeletePrefix removes every entry of a storage directory. An empty dir
// clears the whole store.
func (s *Store) DeletePrefix(dir string) error {
	var prefix []byte
	if dir != "" {
		prefix = MakeKeyPrefix(dir)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := txn.Delete(it.Item().KeyCopy(nil)); err != nil {
				return err
			}
		}
		return nil
	})
}

// Count returns the number of entries stored for dir.
func (s *Store) Count(dir string) (int, error) {
	var prefix []byte
	if dir != "" {
		prefix = MakeKeyPrefix(dir)
	}

	n := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}
