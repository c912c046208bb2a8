package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/jamesainslie/dcsave/pkg/dcsave/logging"
	"github.com/jamesainslie/dcsave/pkg/dcsave/savecodec"
)

// ErrNotFound is returned by Get for unknown ids.
var ErrNotFound = errors.New("entry not found")

// Manifest manages the history directory.
type Manifest struct {
	dir     string
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// Op describes an operation to record.
type Op struct {
	Type       OperationType
	StorageDir string
	Files      []FileRecord
	Detail     string
	Err        error
}

// New creates a Manifest rooted at dir.
// The directory is not created until EnsureDir or the first Log.
func New(dir string) (*Manifest, error) {
	if dir == "" {
		return nil, errors.New("manifest directory cannot be empty")
	}
	return &Manifest{
		dir:     dir,
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}, nil
}

// Dir returns the history directory.
func (m *Manifest) Dir() string { return m.dir }

// EnsureDir creates the history directory if it does not exist.
func (m *Manifest) EnsureDir() error {
	return os.MkdirAll(m.dir, 0o755)
}

// Log persists op and returns the created entry.
func (m *Manifest) Log(op Op) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.EnsureDir(); err != nil {
		return nil, fmt.Errorf("creating manifest directory: %w", err)
	}

	now := time.Now().UTC()
	entry := &Entry{
		ID:         fmt.Sprintf("%s-%s", op.Type, ulid.MustNew(ulid.Timestamp(now), m.entropy)),
		Timestamp:  now,
		Operation:  op.Type,
		StorageDir: op.StorageDir,
		Files:      op.Files,
		Detail:     op.Detail,
	}
	if entry.Files == nil {
		entry.Files = []FileRecord{}
	}
	if op.Err != nil {
		entry.Error = op.Err.Error()
	}
	for _, f := range entry.Files {
		entry.Summary.TotalBytes += f.Size
	}
	entry.Summary.TotalFiles = int64(len(entry.Files))

	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling entry: %w", err)
	}
	if err := savecodec.AtomicWrite(filepath.Join(m.dir, entry.ID+".json"), data); err != nil {
		return nil, fmt.Errorf("writing manifest entry: %w", err)
	}

	logging.Get("manifest").Debug("recorded operation", "id", entry.ID, "files", len(entry.Files))
	return entry, nil
}

// Records stats paths into file records. Paths that no longer exist are
// kept with a zero size.
func Records(paths ...string) []FileRecord {
	out := make([]FileRecord, 0, len(paths))
	for _, p := range paths {
		rec := FileRecord{Path: p}
		if info, err := os.Stat(p); err == nil {
			rec.Size = info.Size()
			rec.ModTime = info.ModTime().UTC()
		}
		out = append(out, rec)
	}
	return out
}

// List returns entries newest first. A limit of 0 or less returns all.
func (m *Manifest) List(limit int) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries, err := m.readAll()
	if err != nil {
		return nil, err
	}

	slices.SortFunc(entries, func(a, b Entry) int {
		if c := b.Timestamp.Compare(a.Timestamp); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// Get retrieves an entry by id.
func (m *Manifest) Get(id string) (*Entry, error) {
	if id == "" {
		return nil, errors.New("entry ID cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	entry, err := m.readEntryFile(id + ".json")
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return entry, err
}

func (m *Manifest) readAll() ([]Entry, error) {
	files, err := os.ReadDir(m.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []Entry{}, nil
		}
		return nil, fmt.Errorf("reading manifest directory: %w", err)
	}

	entries := []Entry{}
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
			continue
		}
		entry, err := m.readEntryFile(f.Name())
		if err != nil {
			logging.Get("manifest").Debug("skipping unreadable entry", "file", f.Name(), "error", err)
			continue
		}
		entries = append(entries, *entry)
	}
	return entries, nil
}

func (m *Manifest) readEntryFile(name string) (*Entry, error) {
	data, err := os.ReadFile(filepath.Join(m.dir, name))
	if err != nil {
		return nil, err
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("unmarshaling %s: %w", name, err)
	}
	return &entry, nil
}

// Cleanup removes entries older than retentionDays and returns how many
// were removed. A retention of 0 or less keeps everything.
func (m *Manifest) Cleanup(retentionDays int) (int, error) {
	if retentionDays <= 0 {
		return 0, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	files, err := os.ReadDir(m.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading manifest directory: %w", err)
	}

	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	removed := 0
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
			continue
		}
		info, err := f.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		path := filepath.Join(m.dir, f.Name())
		if err := os.Remove(path); err != nil {
			logging.Get("manifest").Warn("cannot remove old entry", "path", path, "error", err)
			continue
		}
		removed++
	}
	return removed, nil
}
