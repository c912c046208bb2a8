// Package backup packs a storage directory into a zip archive with a
// manifest entry, lists such archives and restores them.
package backup

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"

	"github.com/jamesainslie/dcsave/pkg/dcsave/dirlock"
	"github.com/jamesainslie/dcsave/pkg/dcsave/logging"
	"github.com/jamesainslie/dcsave/pkg/dcsave/trash"
	"github.com/jamesainslie/dcsave/pkg/dcsave/types"
)

const (
	// ManifestName is the first entry of every archive created here.
	ManifestName = "dcsmINFO.txt"

	// ArchivePrefix starts every generated archive name.
	ArchivePrefix = "DC_storage_backup_"

	// Attribution is the second manifest line.
	Attribution = "This backup .zip was created using dcsave"

	// DefaultCompressionLevel is the deflate level of new archives.
	DefaultCompressionLevel = 7

	// DefaultSampleRatio is the share of files compressed by EstimateSize.
	DefaultSampleRatio = 0.1

	// DefaultCompressionRatio is assumed when the sample is empty.
	DefaultCompressionRatio = 0.7

	archiveTimeLayout  = "20060102_150405"
	manifestTimeLayout = "2006-01-02 15:04:05"
	versionPrefix      = "ver:"
)

var (
	// ErrNoManifest is returned by ReadManifest for foreign archives.
	ErrNoManifest = errors.New("archive has no backup manifest")

	// ErrDestinationExists is returned by Rename when the target exists.
	ErrDestinationExists = errors.New("destination already exists")

	// ErrUnsafePath marks archive entries that would land outside the
	// restore directory.
	ErrUnsafePath = errors.New("unsafe archive entry path")
)

// Options configures archive creation.
type Options struct {
	// Level is the deflate level, 0-9. Zero means DefaultCompressionLevel.
	Level int
	// SampleRatio is the share of files EstimateSize compresses.
	SampleRatio float64
	// Version is written to the manifest.
	Version string
	// Now stamps the manifest and the archive name. Defaults to time.Now.
	Now func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Level <= 0 || o.Level > 9 {
		o.Level = DefaultCompressionLevel
	}
	if o.SampleRatio <= 0 || o.SampleRatio > 1 {
		o.SampleRatio = DefaultSampleRatio
	}
	if o.Version == "" {
		o.Version = "dev"
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Manifest is the parsed manifest entry.
type Manifest struct {
	Timestamp   time.Time
	Attribution string
	Version     string
}

// Info describes one archive in a backup directory.
type Info struct {
	Path        string
	Name        string
	Size        int64
	HasManifest bool
	Timestamp   time.Time // zero when the manifest is absent or unparsable
	Version     string
}

// ArchiveName returns the generated archive name for t.
func ArchiveName(t time.Time) string {
	return ArchivePrefix + t.Format(archiveTimeLayout) + ".zip"
}

// Create packs storageDir into a new archive in backupDir. The archive is
// written to a temporary file and renamed into place.
func Create(ctx context.Context, storageDir, backupDir string, opts Options, progress types.ProgressFunc) (*Info, error) {
	opts = opts.withDefaults()
	info, err := os.Stat(storageDir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s: not a directory", storageDir)
	}
	if err := os.MkdirAll(backupDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating backup directory: %w", err)
	}

	now := opts.Now()
	opts.Now = func() time.Time { return now }
	var (
		target string
		size   int64
	)
	err = dirlock.With(ctx, storageDir, func() (err error) {
		target = uniquePath(filepath.Join(backupDir, ArchiveName(now)))
		tmp, err := os.CreateTemp(backupDir, "."+ArchivePrefix+"*.zip.tmp")
		if err != nil {
			return err
		}
		defer func() {
			if err != nil {
				_ = tmp.Close()
				_ = os.Remove(tmp.Name())
			}
		}()

		if err = Pack(ctx, storageDir, tmp, opts, progress); err != nil {
			return err
		}
		if err = tmp.Sync(); err != nil {
			return err
		}
		st, err := tmp.Stat()
		if err != nil {
			return err
		}
		size = st.Size()
		if err = tmp.Close(); err != nil {
			return err
		}
		return os.Rename(tmp.Name(), target)
	})
	if err != nil {
		return nil, fmt.Errorf("creating backup of %s: %w", storageDir, err)
	}

	logging.Get("backup").Info("created backup", "archive", target, "size", types.FormatSize(size))
	return &Info{
		Path:        target,
		Name:        filepath.Base(target),
		Size:        size,
		HasManifest: true,
		Timestamp:   now.Truncate(time.Second),
		Version:     opts.Version,
	}, nil
}

// uniquePath appends _2, _3, ... before the extension until path is free.
func uniquePath(path string) string {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return path
	}
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s_%d%s", base, i, ext)
		if _, err := os.Stat(candidate); errors.Is(err, os.ErrNotExist) {
			return candidate
		}
	}
}

// ReadManifest parses the manifest entry of r.
func ReadManifest(r *zip.Reader) (Manifest, error) {
	var entry *zip.File
	for _, f := range r.File {
		if f.Name == ManifestName {
			entry = f
			break
		}
	}
	if entry == nil {
		return Manifest{}, ErrNoManifest
	}

	rc, err := entry.Open()
	if err != nil {
		return Manifest{}, fmt.Errorf("opening manifest: %w", err)
	}
	defer rc.Close()

	var m Manifest
	sc := bufio.NewScanner(rc)
	for line := 0; sc.Scan(); line++ {
		text := strings.TrimSpace(sc.Text())
		switch {
		case line == 0:
			if t, err := time.ParseInLocation(manifestTimeLayout, text, time.Local); err == nil {
				m.Timestamp = t
			}
		case strings.HasPrefix(text, versionPrefix):
			m.Version = strings.TrimPrefix(text, versionPrefix)
		case line == 1:
			m.Attribution = text
		}
	}
	if err := sc.Err(); err != nil {
		return m, fmt.Errorf("reading manifest: %w", err)
	}
	return m, nil
}

// Scan lists the *.zip files of backupDir: archives with a dated manifest
// first, newest first, then everything else by name. A missing directory
// yields an empty list.
func Scan(backupDir string) ([]Info, error) {
	entries, err := os.ReadDir(backupDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	log := logging.Get("backup")
	var dated, other []Info
	for _, e := range entries {
		if !e.Type().IsRegular() || !strings.EqualFold(filepath.Ext(e.Name()), ".zip") {
			continue
		}
		path := filepath.Join(backupDir, e.Name())
		info := Info{Path: path, Name: e.Name()}
		if st, err := e.Info(); err == nil {
			info.Size = st.Size()
		}

		if zr, err := zip.OpenReader(path); err != nil {
			log.Warn("cannot open archive", "path", path, "error", err)
		} else {
			m, err := ReadManifest(&zr.Reader)
			_ = zr.Close()
			switch {
			case errors.Is(err, ErrNoManifest):
			case err != nil:
				info.HasManifest = true
				log.Warn("cannot read backup manifest", "path", path, "error", err)
			default:
				info.HasManifest = true
				info.Timestamp = m.Timestamp
				info.Version = m.Version
			}
		}

		if info.HasManifest && !info.Timestamp.IsZero() {
			dated = append(dated, info)
		} else {
			other = append(other, info)
		}
	}

	slices.SortStableFunc(dated, func(a, b Info) int {
		if c := b.Timestamp.Compare(a.Timestamp); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})
	slices.SortFunc(other, func(a, b Info) int { return strings.Compare(a.Name, b.Name) })
	return append(dated, other...), nil
}

// CheckRequiredFiles returns the names in required that r does not contain.
func CheckRequiredFiles(r *zip.Reader, required []string) []string {
	present := make(map[string]bool, len(r.File))
	for _, f := range r.File {
		present[f.Name] = true
	}
	var missing []string
	for _, name := range required {
		if !present[name] {
			missing = append(missing, name)
		}
	}
	return missing
}

// CheckRequiredFilesAt opens the archive at path and checks it.
func CheckRequiredFilesAt(path string, required []string) ([]string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, &RestoreError{Archive: path, Err: err}
	}
	defer zr.Close()
	return CheckRequiredFiles(&zr.Reader, required), nil
}

// Delete moves an archive to the trash and removes the backup directory if
// it is left empty.
func Delete(path string) error {
	if _, err := trash.MoveToTrash(path); err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if entries, err := os.ReadDir(dir); err == nil && len(entries) == 0 {
		if err := os.Remove(dir); err != nil {
			logging.Get("backup").Debug("cannot remove empty backup directory", "dir", dir, "error", err)
		}
	}
	logging.Get("backup").Info("deleted backup", "archive", path)
	return nil
}

// Rename gives an archive a new file name in the same directory. ".zip" is
// appended when missing. It returns the new path.
func Rename(path, name string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		return "", err
	}
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid archive name %q", name)
	}
	if !strings.HasSuffix(strings.ToLower(name), ".zip") {
		name += ".zip"
	}

	target := filepath.Join(filepath.Dir(path), name)
	if target == filepath.Clean(path) {
		return target, nil
	}
	if _, err := os.Stat(target); err == nil {
		return "", fmt.Errorf("%w: %s", ErrDestinationExists, target)
	}
	if err := os.Rename(path, target); err != nil {
		return "", err
	}
	logging.Get("backup").Info("renamed backup", "from", filepath.Base(path), "to", name)
	return target, nil
}
