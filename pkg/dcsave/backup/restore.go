package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"

	"github.com/jamesainslie/dcsave/pkg/dcsave/dirlock"
	"github.com/jamesainslie/dcsave/pkg/dcsave/logging"
	"github.com/jamesainslie/dcsave/pkg/dcsave/types"
)

// RestoreError reports an archive that could not be opened or read.
type RestoreError struct {
	Archive string
	Err     error
}

func (e *RestoreError) Error() string {
	return fmt.Sprintf("restoring %s: %v", e.Archive, e.Err)
}

func (e *RestoreError) Unwrap() error { return e.Err }

// RestoreResult summarizes a restore. Per-entry failures are collected in
// Errors; the remaining entries are still extracted.
type RestoreResult struct {
	Extracted int
	Skipped   []string
	Errors    []error
}

// Err joins the per-entry errors.
func (r *RestoreResult) Err() error { return errors.Join(r.Errors...) }

// Restore replaces the contents of dest with the archive. The archive is
// opened before anything in dest is touched, so an unreadable archive leaves
// dest unchanged. The manifest entry is not extracted. Entries whose paths
// would escape dest are skipped and reported.
func Restore(ctx context.Context, archive, dest string, progress types.ProgressFunc) (*RestoreResult, error) {
	zr, err := zip.OpenReader(archive)
	if err != nil {
		return nil, &RestoreError{Archive: archive, Err: err}
	}
	defer zr.Close()

	res := &RestoreResult{}
	err = dirlock.With(ctx, dest, func() error {
		if err := clearDir(dest, res); err != nil {
			return err
		}
		log := logging.Get("backup")
		total := len(zr.File)
		for i, f := range zr.File {
			if err := ctx.Err(); err != nil {
				return err
			}
			progress.Report(i+1, total)
			if f.Name == ManifestName {
				continue
			}
			target, err := entryPath(dest, f.Name)
			if err != nil {
				log.Warn("skipping archive entry", "entry", f.Name, "error", err)
				res.Skipped = append(res.Skipped, f.Name)
				res.Errors = append(res.Errors, err)
				continue
			}
			if f.FileInfo().IsDir() {
				if err := os.MkdirAll(target, 0o755); err != nil {
					res.Errors = append(res.Errors, err)
				}
				continue
			}
			if err := extract(f, target); err != nil {
				log.Warn("cannot extract archive entry", "entry", f.Name, "error", err)
				res.Errors = append(res.Errors, fmt.Errorf("%s: %w", f.Name, err))
				continue
			}
			res.Extracted++
		}
		return nil
	})
	if err != nil {
		return res, err
	}

	logging.Get("backup").Info("restored backup",
		"archive", archive, "dest", dest, "files", res.Extracted, "errors", len(res.Errors))
	return res, nil
}

// clearDir empties dir, creating it when missing. Entries that cannot be
// removed are logged and recorded.
func clearDir(dir string, res *RestoreResult) error {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return os.MkdirAll(dir, 0o755)
	}
	if err != nil {
		return err
	}
	for _, e := range entries {
		path := filepath.Join(dir, e.Name())
		if err := os.RemoveAll(path); err != nil {
			logging.Get("backup").Warn("cannot remove before restore", "path", path, "error", err)
			res.Errors = append(res.Errors, err)
		}
	}
	return nil
}

// entryPath maps an archive entry name to a path under dest.
func entryPath(dest, name string) (string, error) {
	rel := filepath.FromSlash(strings.TrimSuffix(name, "/"))
	if rel == "" || !filepath.IsLocal(rel) {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, name)
	}
	return filepath.Join(dest, rel), nil
}

func extract(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	src, err := f.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return err
	}
	if err := dst.Close(); err != nil {
		return err
	}
	if !f.Modified.IsZero() {
		_ = os.Chtimes(target, f.Modified, f.Modified)
	}
	return nil
}
