package backup

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/charlievieth/fastwalk"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"

	"github.com/jamesainslie/dcsave/pkg/dcsave/logging"
	"github.com/jamesainslie/dcsave/pkg/dcsave/types"
)

// sourceFile is one regular file under the storage directory.
type sourceFile struct {
	path string // absolute
	name string // slash-separated, relative to the root
	size int64
	info fs.FileInfo
}

// collectFiles walks root and returns its regular files sorted by name.
func collectFiles(root string) ([]sourceFile, error) {
	var (
		mu    sync.Mutex
		files []sourceFile
	)
	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			logging.Get("backup").Debug("skipping unreadable entry", "path", path, "error", err)
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		mu.Lock()
		files = append(files, sourceFile{path: path, name: filepath.ToSlash(rel), size: info.Size(), info: info})
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(files, func(a, b sourceFile) int { return strings.Compare(a.name, b.name) })
	return files, nil
}

func newWriter(w io.Writer, level int) *zip.Writer {
	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, level)
	})
	return zw
}

func manifestText(opts Options) string {
	return fmt.Sprintf("%s\n%s\n%s%s\n",
		opts.Now().Format(manifestTimeLayout), Attribution, versionPrefix, opts.Version)
}

// Pack writes a zip archive of dir to w. The manifest entry comes first,
// followed by every regular file in name order. Progress counts the
// manifest as one step.
func Pack(ctx context.Context, dir string, w io.Writer, opts Options, progress types.ProgressFunc) error {
	opts = opts.withDefaults()
	files, err := collectFiles(dir)
	if err != nil {
		return err
	}

	total := len(files) + 1
	zw := newWriter(w, opts.Level)

	mw, err := zw.CreateHeader(&zip.FileHeader{
		Name:     ManifestName,
		Method:   zip.Deflate,
		Modified: opts.Now(),
	})
	if err != nil {
		return err
	}
	if _, err := io.WriteString(mw, manifestText(opts)); err != nil {
		return err
	}
	progress.Report(1, total)

	for i, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := addFile(zw, f); err != nil {
			return fmt.Errorf("adding %s: %w", f.name, err)
		}
		progress.Report(i+2, total)
	}
	return zw.Close()
}

func addFile(zw *zip.Writer, f sourceFile) error {
	hdr, err := zip.FileInfoHeader(f.info)
	if err != nil {
		return err
	}
	hdr.Name = f.name
	hdr.Method = zip.Deflate

	src, err := os.Open(f.path)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	_, err = io.Copy(dst, src)
	return err
}

// EstimateSize predicts the archive size of dir by compressing a sample of
// its files at the configured level and applying the observed ratio to the
// total. The ratio is clamped to [0.1, 1.0].
func EstimateSize(dir string, opts Options) (int64, error) {
	opts = opts.withDefaults()
	files, err := collectFiles(dir)
	if err != nil {
		return 0, err
	}
	if len(files) == 0 {
		return 0, nil
	}

	var total int64
	for _, f := range files {
		total += f.size
	}

	n := max(1, int(float64(len(files))*opts.SampleRatio))
	sample := files[:n]
	var sampleSize int64
	for _, f := range sample {
		sampleSize += f.size
	}
	if sampleSize == 0 {
		return int64(float64(total) * DefaultCompressionRatio), nil
	}

	ratio := DefaultCompressionRatio
	var buf bytes.Buffer
	zw := newWriter(&buf, opts.Level)
	for _, f := range sample {
		if err = addFile(zw, f); err != nil {
			break
		}
	}
	if err == nil {
		err = zw.Close()
	}
	if err != nil {
		logging.Get("backup").Debug("sample compression failed", "error", err)
	} else {
		ratio = min(max(float64(buf.Len())/float64(sampleSize), 0.1), 1.0)
	}
	return int64(float64(total) * ratio), nil
}
