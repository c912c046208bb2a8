package screenshot

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math/rand/v2"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/jamesainslie/dcsave/pkg/dcsave/cache"
	"github.com/jamesainslie/dcsave/pkg/dcsave/datauri"
	"github.com/jamesainslie/dcsave/pkg/dcsave/dirlock"
	"github.com/jamesainslie/dcsave/pkg/dcsave/imaging"
	"github.com/jamesainslie/dcsave/pkg/dcsave/logging"
	"github.com/jamesainslie/dcsave/pkg/dcsave/savecodec"
	"github.com/jamesainslie/dcsave/pkg/dcsave/types"
)

var (
	// ErrNotFound is returned for ids without the requested file.
	ErrNotFound = errors.New("screenshot not found")

	// ErrIndexMissing is returned by Load when an index file does not exist.
	ErrIndexMissing = errors.New("screenshot index files not found")
)

// Thumbnail defaults.
const (
	DefaultThumbWidth   = 1280
	DefaultThumbHeight  = 960
	DefaultThumbQuality = 90
)

const (
	idLength   = 8
	idAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

	// Screenshots are expected to be 4:3; the height may deviate by this
	// many pixels before Add warns.
	aspectTolerance = 30
)

// Options configures a Store.
type Options struct {
	Naming       Naming
	ThumbWidth   int
	ThumbHeight  int
	ThumbQuality int

	// Cache memoizes decoded images. Optional.
	Cache *cache.ImageCache
}

// DefaultOptions returns the game's defaults.
func DefaultOptions() Options {
	return Options{
		Naming:       DefaultNaming(),
		ThumbWidth:   DefaultThumbWidth,
		ThumbHeight:  DefaultThumbHeight,
		ThumbQuality: DefaultThumbQuality,
	}
}

// Entry joins an index record with its files.
type Entry struct {
	Record
	Position     int
	Files        FilePair
	Missing      bool
	ThumbMissing bool
}

// DeleteResult summarizes a Delete call.
type DeleteResult struct {
	// Removed lists ids whose index entry and files are all gone. An id
	// whose files could not be removed stays behind as an orphan.
	Removed      []string
	FilesRemoved int
	Errors       []error
}

// ExportResult summarizes an Export call.
type ExportResult struct {
	Written []string
	Failed  int
	Err     error
}

// Report describes the consistency of a storage directory.
type Report struct {
	Total        int
	Missing      []string
	ThumbMissing []string
	Orphans      []string
	Reconciled   bool
}

// OK reports whether nothing needs attention.
func (r Report) OK() bool {
	return len(r.Missing) == 0 && len(r.ThumbMissing) == 0 && len(r.Orphans) == 0 && !r.Reconciled
}

// Store binds an Index to the files of a storage directory. Mutating methods
// hold the directory lock for their whole duration.
type Store struct {
	dir   string
	opts  Options
	index *Index
	files map[string]FilePair
}

// Open binds dir. Call Load (or Init for an empty album) before use.
func Open(dir string, opts Options) (*Store, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s: not a directory", dir)
	}
	def := DefaultOptions()
	if opts.Naming.Prefix == "" {
		opts.Naming.Prefix = def.Naming.Prefix
	}
	if opts.Naming.Ext == "" {
		opts.Naming.Ext = def.Naming.Ext
	}
	if opts.ThumbWidth <= 0 || opts.ThumbHeight <= 0 {
		opts.ThumbWidth, opts.ThumbHeight = def.ThumbWidth, def.ThumbHeight
	}
	if opts.ThumbQuality <= 0 {
		opts.ThumbQuality = def.ThumbQuality
	}
	return &Store{dir: filepath.Clean(dir), opts: opts, index: &Index{}, files: map[string]FilePair{}}, nil
}

// Dir returns the storage directory.
func (s *Store) Dir() string { return s.dir }

// Index returns a copy of the current index.
func (s *Store) Index() *Index { return s.index.Clone() }

// Files returns the resolved file pairs.
func (s *Store) Files() map[string]FilePair {
	out := make(map[string]FilePair, len(s.files))
	for id, p := range s.files {
		out[id] = p
	}
	return out
}

func (s *Store) path(name string) string { return filepath.Join(s.dir, name) }

// Load reads both index files and resolves the screenshot files.
func (s *Store) Load() error {
	n := s.opts.Naming
	idsRaw, err := os.ReadFile(s.path(n.IDsName()))
	if err != nil {
		return s.readErr(n.IDsName(), err)
	}
	allRaw, err := os.ReadFile(s.path(n.AllIDsName()))
	if err != nil {
		return s.readErr(n.AllIDsName(), err)
	}

	idx, err := load(idsRaw, allRaw, s.path(n.IDsName()), s.path(n.AllIDsName()))
	if err != nil {
		return err
	}
	files, err := ResolveFiles(s.dir, n)
	if err != nil {
		return err
	}
	s.index, s.files = idx, files
	logging.Get("screenshot").Debug("loaded screenshot index", "dir", s.dir, "records", idx.Len(), "files", len(files))
	return nil
}

func (s *Store) readErr(name string, err error) error {
	if errors.Is(err, os.ErrNotExist) {
		return &IndexFileError{File: s.path(name), Err: ErrIndexMissing}
	}
	return &IndexFileError{File: s.path(name), Err: err}
}

// Init starts an empty index and resolves the files already present. The
// index files are created on the first save.
func (s *Store) Init() error {
	files, err := ResolveFiles(s.dir, s.opts.Naming)
	if err != nil {
		return err
	}
	s.index, s.files = &Index{}, files
	return nil
}

// Save writes both index files.
func (s *Store) Save(ctx context.Context) error {
	return dirlock.With(ctx, s.dir, func() error {
		return s.writeIndex(s.index)
	})
}

func (s *Store) writeIndex(idx *Index) error {
	idsData, err := idx.MarshalIDs()
	if err != nil {
		return err
	}
	allData, err := idx.MarshalAllIDs()
	if err != nil {
		return err
	}
	n := s.opts.Naming
	if err := savecodec.AtomicWrite(s.path(n.IDsName()), idsData); err != nil {
		return &savecodec.FileError{Path: s.path(n.IDsName()), Err: err}
	}
	if err := savecodec.AtomicWrite(s.path(n.AllIDsName()), allData); err != nil {
		return &savecodec.FileError{Path: s.path(n.AllIDsName()), Err: err}
	}
	return nil
}

// mutate applies fn to a copy of the index and persists it. The in-memory
// index only changes when the write succeeds.
func (s *Store) mutate(ctx context.Context, fn func(*Index) error) error {
	return dirlock.With(ctx, s.dir, func() error {
		next := s.index.Clone()
		if err := fn(next); err != nil {
			return err
		}
		next.reconciled = false
		if err := s.writeIndex(next); err != nil {
			return err
		}
		s.index = next
		return nil
	})
}

// SortByDate sorts and saves the index.
func (s *Store) SortByDate(ctx context.Context, ascending bool) error {
	return s.mutate(ctx, func(x *Index) error { return x.SortByDate(ascending) })
}

// Move moves one record and saves the index.
func (s *Store) Move(ctx context.Context, from, to int) error {
	return s.mutate(ctx, func(x *Index) error { return x.Move(from, to) })
}

// Reorder applies a permutation and saves the index.
func (s *Store) Reorder(ctx context.Context, order []int) error {
	return s.mutate(ctx, func(x *Index) error { return x.Reorder(order) })
}

// Entries returns the records in order joined with their files.
func (s *Store) Entries() []Entry {
	out := make([]Entry, 0, s.index.Len())
	for i, r := range s.index.records {
		pair := s.files[r.ID]
		out = append(out, Entry{
			Record:       r,
			Position:     i,
			Files:        pair,
			Missing:      pair.Missing(),
			ThumbMissing: pair.ThumbMissing(),
		})
	}
	return out
}

// Check reports records without files, files without records and whether
// the index was reconciled on load.
func (s *Store) Check() Report {
	rep := Report{Total: s.index.Len(), Reconciled: s.index.Reconciled()}
	for _, e := range s.Entries() {
		if e.Missing {
			rep.Missing = append(rep.Missing, e.ID)
		}
		if e.ThumbMissing {
			rep.ThumbMissing = append(rep.ThumbMissing, e.ID)
		}
	}
	for id := range s.files {
		if !s.index.Has(id) {
			rep.Orphans = append(rep.Orphans, id)
		}
	}
	slices.Sort(rep.Orphans)
	return rep
}

// Add embeds the image at imagePath as a new screenshot appended to the
// index. Both image files are written before the index; if anything fails
// the new files are removed and the index is left as it was.
func (s *Store) Add(ctx context.Context, id, date, imagePath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if id == "" {
		return ErrEmptyID
	}
	if !validID(id) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	rec := Record{ID: id, Date: date}
	if _, err := rec.Time(); err != nil {
		return err
	}

	return dirlock.With(ctx, s.dir, func() error {
		if _, exists := s.files[id]; exists || s.index.Has(id) {
			return fmt.Errorf("%w: %s", ErrDuplicateID, id)
		}

		img, format, raw, err := imaging.Load(imagePath)
		if err != nil {
			return err
		}
		if !AspectRatioOK(img.Bounds().Dx(), img.Bounds().Dy()) {
			logging.Get("screenshot").Warn("image is not 4:3", "path", imagePath,
				"width", img.Bounds().Dx(), "height", img.Bounds().Dy())
		}
		w, h := s.inferThumbSize()

		pair := FilePair{Main: s.opts.Naming.MainName(id), Thumb: s.opts.Naming.ThumbName(id)}
		if err := s.writeImages(pair, img, format, raw, w, h); err != nil {
			s.removeFiles(pair)
			return err
		}

		next := s.index.Clone()
		if err := next.Insert(rec, -1); err != nil {
			s.removeFiles(pair)
			return err
		}
		if err := s.writeIndex(next); err != nil {
			s.removeFiles(pair)
			return err
		}
		s.index = next
		s.files[id] = pair
		logging.Get("screenshot").Info("added screenshot", "id", id, "source", imagePath, "thumb", fmt.Sprintf("%dx%d", w, h))
		return nil
	})
}

// Replace swaps the images of an existing screenshot. The thumbnail keeps
// the size of the one it replaces.
func (s *Store) Replace(ctx context.Context, id, imagePath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return dirlock.With(ctx, s.dir, func() error {
		pair, ok := s.files[id]
		if !ok || pair.Missing() {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}

		img, format, raw, err := imaging.Load(imagePath)
		if err != nil {
			return err
		}

		w, h := s.opts.ThumbWidth, s.opts.ThumbHeight
		if pair.Thumb != "" {
			if tw, th, ok := s.thumbSize(pair.Thumb); ok {
				w, h = tw, th
			}
		} else {
			pair.Thumb = s.opts.Naming.ThumbName(id)
		}

		if err := s.writeImages(pair, img, format, raw, w, h); err != nil {
			return err
		}
		s.files[id] = pair
		logging.Get("screenshot").Info("replaced screenshot", "id", id, "source", imagePath)
		return nil
	})
}

// writeImages stores the main image as a PNG data URI and a JPEG thumbnail.
func (s *Store) writeImages(pair FilePair, img image.Image, format string, raw []byte, w, h int) error {
	pngData := raw
	if format != string(imaging.FormatPNG) {
		var err error
		if pngData, err = imaging.Encode(img, imaging.FormatPNG, 0); err != nil {
			return err
		}
	}
	thumbData, err := imaging.Thumbnail(img, w, h, s.opts.ThumbQuality)
	if err != nil {
		return err
	}

	if err := savecodec.WriteFile(s.path(pair.Main), datauri.Build(datauri.MIMEPNG, pngData)); err != nil {
		return err
	}
	s.invalidate(pair.Main)
	if err := savecodec.WriteFile(s.path(pair.Thumb), datauri.Build(datauri.MIMEJPEG, thumbData)); err != nil {
		return err
	}
	s.invalidate(pair.Thumb)
	return nil
}

func (s *Store) removeFiles(pair FilePair) {
	for _, name := range []string{pair.Main, pair.Thumb} {
		if name == "" {
			continue
		}
		if err := os.Remove(s.path(name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			logging.Get("screenshot").Warn("removing screenshot file", "file", name, "error", err)
		}
		s.invalidate(name)
	}
}

func (s *Store) invalidate(name string) {
	if s.opts.Cache != nil {
		s.opts.Cache.Invalidate(s.path(name))
	}
}

// inferThumbSize returns the size of the first readable existing thumbnail
// in id order, or the configured default.
func (s *Store) inferThumbSize() (int, int) {
	ids := make([]string, 0, len(s.files))
	for id, p := range s.files {
		if p.Thumb != "" {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	for _, id := range ids {
		if w, h, ok := s.thumbSize(s.files[id].Thumb); ok {
			return w, h
		}
	}
	return s.opts.ThumbWidth, s.opts.ThumbHeight
}

func (s *Store) thumbSize(name string) (int, int, bool) {
	img, err := s.readImage(cache.KindThumb, name)
	if err != nil {
		logging.Get("screenshot").Debug("cannot read thumbnail size", "file", name, "error", err)
		return 0, 0, false
	}
	cfg, _, err := imaging.DecodeConfig(img.Data)
	if err != nil || cfg.Width <= 0 || cfg.Height <= 0 {
		return 0, 0, false
	}
	return cfg.Width, cfg.Height, true
}

// Delete removes the index entries and files of ids. Ids unknown to both
// the index and the directory are ignored. The index is written before any
// file is touched, so a failed write returns an error and removes nothing.
// File removal failures are collected in the result.
func (s *Store) Delete(ctx context.Context, ids []string) (DeleteResult, error) {
	var res DeleteResult
	err := dirlock.With(ctx, s.dir, func() error {
		next := s.index.Clone()
		var targets []string
		for _, id := range ids {
			_, hasFiles := s.files[id]
			if next.Delete(id) || hasFiles {
				targets = append(targets, id)
			}
		}
		if len(targets) == 0 {
			return nil
		}

		// The index goes first: a failed write leaves every file in place.
		if err := s.writeIndex(next); err != nil {
			return err
		}
		s.index = next

		for _, id := range targets {
			pair := s.files[id]
			if name := pair.Main; name != "" && s.removeFile(name, &res) {
				pair.Main = ""
			}
			if name := pair.Thumb; name != "" && s.removeFile(name, &res) {
				pair.Thumb = ""
			}
			if pair.Main != "" || pair.Thumb != "" {
				// Left as an orphan for Check to report.
				s.files[id] = pair
				continue
			}
			delete(s.files, id)
			res.Removed = append(res.Removed, id)
		}
		return nil
	})
	if len(res.Errors) > 0 {
		logging.Get("screenshot").Warn("some screenshot files could not be removed", "errors", len(res.Errors))
	}
	return res, err
}

// removeFile deletes one image file, recording a failure in res.
func (s *Store) removeFile(name string, res *DeleteResult) bool {
	if err := os.Remove(s.path(name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		res.Errors = append(res.Errors, err)
		return false
	}
	s.invalidate(name)
	res.FilesRemoved++
	return true
}

// ImageData returns the decoded main image of id.
func (s *Store) ImageData(id string) (datauri.Image, error) {
	pair, ok := s.files[id]
	if !ok || pair.Main == "" {
		return datauri.Image{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s.readImage(cache.KindOriginal, pair.Main)
}

// ThumbData returns the decoded thumbnail of id.
func (s *Store) ThumbData(id string) (datauri.Image, error) {
	pair, ok := s.files[id]
	if !ok || pair.Thumb == "" {
		return datauri.Image{}, fmt.Errorf("%w: thumbnail of %s", ErrNotFound, id)
	}
	return s.readImage(cache.KindThumb, pair.Thumb)
}

func (s *Store) readImage(kind cache.Kind, name string) (datauri.Image, error) {
	path := s.path(name)
	info, err := os.Stat(path)
	if err != nil {
		return datauri.Image{}, err
	}
	if s.opts.Cache != nil {
		if hit, ok := s.opts.Cache.Get(kind, path, info); ok {
			return datauri.Image{MIME: hit.MIME, Data: hit.Data}, nil
		}
	}

	v, err := savecodec.ReadFile(path)
	if err != nil {
		return datauri.Image{}, err
	}
	img, err := datauri.ParseValue(v)
	if err != nil {
		return datauri.Image{}, fmt.Errorf("%s: %w", path, err)
	}
	if s.opts.Cache != nil {
		s.opts.Cache.Put(kind, path, info, img.MIME, img.Data)
	}
	return img, nil
}

// Export writes the main image of every id into destDir as <id><ext> in the
// requested format (PNG or JPEG). A failing item is counted and the batch
// continues; cancellation stops the batch.
func (s *Store) Export(ctx context.Context, ids []string, destDir string, format imaging.Format, progress types.ProgressFunc) ExportResult {
	var res ExportResult
	if format != imaging.FormatPNG && format != imaging.FormatJPEG {
		res.Err = fmt.Errorf("%w: export supports png and jpeg, got %q", imaging.ErrUnsupportedFormat, format)
		res.Failed = len(ids)
		return res
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		res.Err = err
		res.Failed = len(ids)
		return res
	}

	var errs []error
	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			res.Failed += len(ids) - i
			errs = append(errs, err)
			break
		}
		out, err := s.exportOne(id, destDir, format)
		if err != nil {
			res.Failed++
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
		} else {
			res.Written = append(res.Written, out)
		}
		progress.Report(i+1, len(ids))
	}
	res.Err = errors.Join(errs...)
	if res.Failed > 0 {
		logging.Get("screenshot").Warn("export finished with failures", "written", len(res.Written), "failed", res.Failed)
	}
	return res
}

func (s *Store) exportOne(id, destDir string, format imaging.Format) (string, error) {
	src, err := s.ImageData(id)
	if err != nil {
		return "", err
	}

	data := src.Data
	sameFormat := (format == imaging.FormatPNG && src.IsPNG()) || (format == imaging.FormatJPEG && src.IsJPEG())
	if !sameFormat {
		img, _, err := imaging.Decode(src.Data)
		if err != nil {
			return "", err
		}
		if data, err = imaging.Encode(img, format, s.opts.ThumbQuality); err != nil {
			return "", err
		}
	}

	out := filepath.Join(destDir, id+format.Ext())
	if err := savecodec.AtomicWrite(out, data); err != nil {
		return "", err
	}
	return out, nil
}

// GenerateID returns a new 8 character [a-z0-9] id unused by the index and
// the directory.
func (s *Store) GenerateID() string {
	for {
		b := make([]byte, idLength)
		for i := range b {
			b[i] = idAlphabet[rand.IntN(len(idAlphabet))]
		}
		id := string(b)
		if _, used := s.files[id]; !used && !s.index.Has(id) {
			return id
		}
	}
}

// Now returns the current local time in DateLayout.
func Now() string {
	return time.Now().Format(DateLayout)
}

// AspectRatioOK reports whether width x height is 4:3 within tolerance.
func AspectRatioOK(width, height int) bool {
	if width <= 0 || height <= 0 {
		return false
	}
	expected := float64(width) * 3 / 4
	diff := float64(height) - expected
	return diff <= aspectTolerance && diff >= -aspectTolerance
}
