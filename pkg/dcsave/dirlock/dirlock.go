// Package dirlock serializes mutating operations on a storage directory.
//
// A Lock combines an in-process mutex keyed by the directory's absolute path
// with an advisory file lock, so two dcsave processes cannot rewrite the same
// index at once. The lock file lives under the dcsave runtime directory,
// never inside the storage directory itself.
package dirlock

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/adrg/xdg"

	"github.com/jamesainslie/dcsave/pkg/dcsave/logging"
)

// ErrLocked is returned by TryAcquire when another holder owns the lock.
var ErrLocked = errors.New("storage directory is locked by another operation")

// pollInterval is how often Acquire retries a contended file lock.
const pollInterval = 50 * time.Millisecond

var (
	registryMu sync.Mutex
	registry   = make(map[string]*entry)
)

type entry struct {
	ch   chan struct{}
	refs int
}

// Lock is a held directory lock. Release it exactly once.
type Lock struct {
	dir      string
	file     *os.File
	entry    *entry
	released bool
	mu       sync.Mutex
}

// Dir returns the locked directory.
func (l *Lock) Dir() string { return l.dir }

// LockDir is where lock files are created. Tests may point it elsewhere.
var LockDir = func() string {
	if xdg.RuntimeDir != "" {
		return filepath.Join(xdg.RuntimeDir, "dcsave", "locks")
	}
	return filepath.Join(xdg.DataHome, "dcsave", "locks")
}

// Acquire blocks until the lock for dir is held or ctx is done.
func Acquire(ctx context.Context, dir string) (*Lock, error) {
	return acquire(ctx, dir, true)
}

// TryAcquire returns ErrLocked instead of waiting.
func TryAcquire(dir string) (*Lock, error) {
	return acquire(context.Background(), dir, false)
}

func acquire(ctx context.Context, dir string, wait bool) (*Lock, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", dir, err)
	}
	abs = filepath.Clean(abs)

	e := ref(abs)
	select {
	case e.ch <- struct{}{}:
	default:
		if !wait {
			unref(abs)
			return nil, ErrLocked
		}
		select {
		case e.ch <- struct{}{}:
		case <-ctx.Done():
			unref(abs)
			return nil, ctx.Err()
		}
	}

	f, err := openLockFile(abs)
	if err != nil {
		<-e.ch
		unref(abs)
		return nil, err
	}

	for {
		err = tryLockFile(f)
		if err == nil {
			break
		}
		if !errors.Is(err, errWouldBlock) || !wait {
			_ = f.Close()
			<-e.ch
			unref(abs)
			if errors.Is(err, errWouldBlock) {
				return nil, ErrLocked
			}
			return nil, fmt.Errorf("locking %s: %w", abs, err)
		}
		select {
		case <-time.After(pollInterval):
		case <-ctx.Done():
			_ = f.Close()
			<-e.ch
			unref(abs)
			return nil, ctx.Err()
		}
	}

	logging.Get("dirlock").Debug("lock acquired", "dir", abs)
	return &Lock{dir: abs, file: f, entry: e}, nil
}

// Release drops the lock. Extra calls are no-ops.
func (l *Lock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.released {
		return nil
	}
	l.released = true

	unlockFile(l.file)
	closeErr := l.file.Close()
	<-l.entry.ch
	unref(l.dir)

	logging.Get("dirlock").Debug("lock released", "dir", l.dir)
	return closeErr
}

// With runs fn while holding the lock for dir.
func With(ctx context.Context, dir string, fn func() error) error {
	l, err := Acquire(ctx, dir)
	if err != nil {
		return err
	}
	defer func() { _ = l.Release() }()
	return fn()
}

func ref(dir string) *entry {
	registryMu.Lock()
	defer registryMu.Unlock()
	e, ok := registry[dir]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		registry[dir] = e
	}
	e.refs++
	return e
}

func unref(dir string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	e, ok := registry[dir]
	if !ok {
		return
	}
	e.refs--
	if e.refs == 0 {
		delete(registry, dir)
	}
}

func openLockFile(dir string) (*os.File, error) {
	lockDir := LockDir()
	if err := os.MkdirAll(lockDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}
	sum := sha256.Sum256([]byte(dir))
	name := filepath.Join(lockDir, hex.EncodeToString(sum[:8])+".lock")
	f, err := os.OpenFile(name, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening lock file: %w", err)
	}
	return f, nil
}
