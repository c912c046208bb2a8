package screenshot_test

import (
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/dcsave/pkg/dcsave/cache"
	"github.com/jamesainslie/dcsave/pkg/dcsave/datauri"
	"github.com/jamesainslie/dcsave/pkg/dcsave/dirlock"
	"github.com/jamesainslie/dcsave/pkg/dcsave/imaging"
	"github.com/jamesainslie/dcsave/pkg/dcsave/savecodec"
	"github.com/jamesainslie/dcsave/pkg/dcsave/screenshot"
)

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "screenshot-locks")
	if err != nil {
		panic(err)
	}
	dirlock.LockDir = func() string { return dir }
	code := m.Run()
	_ = os.RemoveAll(dir)
	os.Exit(code)
}

func writeImage(t *testing.T, dir, name string, w, h int, format imaging.Format) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
		}
	}
	data, err := imaging.Encode(img, format, 90)
	require.NoError(t, err)
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func smallOptions() screenshot.Options {
	opts := screenshot.DefaultOptions()
	opts.ThumbWidth, opts.ThumbHeight = 32, 24
	return opts
}

// newStore creates an empty album in a fresh storage directory.
func newStore(t *testing.T, opts screenshot.Options) *screenshot.Store {
	t.Helper()
	s, err := screenshot.Open(t.TempDir(), opts)
	require.NoError(t, err)
	require.NoError(t, s.Init())
	return s
}

func TestStoreLoadMissingIndex(t *testing.T) {
	t.Parallel()

	s, err := screenshot.Open(t.TempDir(), screenshot.DefaultOptions())
	require.NoError(t, err)
	err = s.Load()
	assert.True(t, errors.Is(err, screenshot.ErrIndexMissing))

	var fileErr *screenshot.IndexFileError
	require.True(t, errors.As(err, &fileErr))
	assert.Equal(t, screenshot.IDsFile, filepath.Base(fileErr.File))
}

func TestStoreAddAndReload(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	src := t.TempDir()
	s := newStore(t, smallOptions())

	png := writeImage(t, src, "shot.png", 64, 48, imaging.FormatPNG)
	require.NoError(t, s.Add(ctx, "aaaa1111", "2024/01/01 10:00:00", png))

	jpg := writeImage(t, src, "shot.jpg", 64, 48, imaging.FormatJPEG)
	require.NoError(t, s.Add(ctx, "bbbb2222", "2024/01/02 10:00:00", jpg))

	reloaded, err := screenshot.Open(s.Dir(), smallOptions())
	require.NoError(t, err)
	require.NoError(t, reloaded.Load())

	entries := reloaded.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "aaaa1111", entries[0].ID)
	assert.Equal(t, "bbbb2222", entries[1].ID)
	assert.False(t, entries[1].Missing)
	assert.False(t, entries[1].ThumbMissing)
	assert.True(t, reloaded.Check().OK())

	main, err := reloaded.ImageData("bbbb2222")
	require.NoError(t, err)
	assert.Equal(t, datauri.MIMEPNG, main.MIME)
	_, format, err := imaging.DecodeConfig(main.Data)
	require.NoError(t, err)
	assert.Equal(t, "png", format)

	thumb, err := reloaded.ThumbData("aaaa1111")
	require.NoError(t, err)
	assert.Equal(t, datauri.MIMEJPEG, thumb.MIME)
	cfg, _, err := imaging.DecodeConfig(thumb.Data)
	require.NoError(t, err)
	assert.Equal(t, 32, cfg.Width)
	assert.Equal(t, 24, cfg.Height)
}

func TestStoreAddRejectsWithoutChanges(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	src := t.TempDir()
	s := newStore(t, smallOptions())
	png := writeImage(t, src, "shot.png", 40, 30, imaging.FormatPNG)
	require.NoError(t, s.Add(ctx, "first", "2024/01/01 10:00:00", png))

	err := s.Add(ctx, "first", "2024/01/01 10:00:00", png)
	assert.True(t, errors.Is(err, screenshot.ErrDuplicateID))

	err = s.Add(ctx, "second", "01/01/2024", png)
	assert.True(t, errors.Is(err, screenshot.ErrInvalidDate))

	err = s.Add(ctx, "bad_id", "2024/01/01 10:00:00", png)
	assert.True(t, errors.Is(err, screenshot.ErrInvalidID))

	notImage := filepath.Join(src, "notes.txt")
	require.NoError(t, os.WriteFile(notImage, []byte("hello"), 0o644))
	err = s.Add(ctx, "third", "2024/01/01 10:00:00", notImage)
	assert.Error(t, err)

	assert.Equal(t, []string{"first"}, s.Index().IDs())
	entries, err := os.ReadDir(s.Dir())
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{
		screenshot.IDsFile, screenshot.AllIDsFile,
		"DevilConnection_photo_first.sav", "DevilConnection_photo_first_thumb.sav",
	}, names)
}

func TestStoreThumbSizeInferred(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	src := t.TempDir()
	s := newStore(t, smallOptions())
	png := writeImage(t, src, "shot.png", 64, 48, imaging.FormatPNG)
	require.NoError(t, s.Add(ctx, "one", "2024/01/01 10:00:00", png))

	opts := smallOptions()
	opts.ThumbWidth, opts.ThumbHeight = 16, 12
	other, err := screenshot.Open(s.Dir(), opts)
	require.NoError(t, err)
	require.NoError(t, other.Load())
	require.NoError(t, other.Add(ctx, "two", "2024/01/02 10:00:00", png))

	thumb, err := other.ThumbData("two")
	require.NoError(t, err)
	cfg, _, err := imaging.DecodeConfig(thumb.Data)
	require.NoError(t, err)
	assert.Equal(t, 32, cfg.Width)
	assert.Equal(t, 24, cfg.Height)
}

func TestStoreReplace(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	src := t.TempDir()
	s := newStore(t, smallOptions())
	first := writeImage(t, src, "a.png", 64, 48, imaging.FormatPNG)
	require.NoError(t, s.Add(ctx, "one", "2024/01/01 10:00:00", first))
	before, err := s.ImageData("one")
	require.NoError(t, err)

	second := writeImage(t, src, "b.png", 80, 60, imaging.FormatPNG)
	require.NoError(t, s.Replace(ctx, "one", second))

	after, err := s.ImageData("one")
	require.NoError(t, err)
	assert.NotEqual(t, before.Data, after.Data)
	cfg, _, err := imaging.DecodeConfig(after.Data)
	require.NoError(t, err)
	assert.Equal(t, 80, cfg.Width)

	thumb, err := s.ThumbData("one")
	require.NoError(t, err)
	tcfg, _, err := imaging.DecodeConfig(thumb.Data)
	require.NoError(t, err)
	assert.Equal(t, 32, tcfg.Width)

	assert.True(t, errors.Is(s.Replace(ctx, "nope", second), screenshot.ErrNotFound))
	assert.Equal(t, []string{"one"}, s.Index().IDs())
}

func TestStoreDelete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	src := t.TempDir()
	s := newStore(t, smallOptions())
	png := writeImage(t, src, "a.png", 40, 30, imaging.FormatPNG)
	require.NoError(t, s.Add(ctx, "one", "2024/01/01 10:00:00", png))
	require.NoError(t, s.Add(ctx, "two", "2024/01/02 10:00:00", png))

	res, err := s.Delete(ctx, []string{"one", "unknown"})
	require.NoError(t, err)
	assert.Equal(t, []string{"one"}, res.Removed)
	assert.Equal(t, 2, res.FilesRemoved)
	assert.Empty(t, res.Errors)

	assert.Equal(t, []string{"two"}, s.Index().IDs())
	_, err = os.Stat(filepath.Join(s.Dir(), "DevilConnection_photo_one.sav"))
	assert.True(t, errors.Is(err, os.ErrNotExist))

	idsRaw, err := os.ReadFile(filepath.Join(s.Dir(), screenshot.IDsFile))
	require.NoError(t, err)
	allRaw, err := os.ReadFile(filepath.Join(s.Dir(), screenshot.AllIDsFile))
	require.NoError(t, err)
	onDisk, err := screenshot.Load(idsRaw, allRaw)
	require.NoError(t, err)
	assert.Equal(t, []string{"two"}, onDisk.IDs())
}

func TestStoreDeleteIndexWriteFailureKeepsFiles(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	src := t.TempDir()
	s := newStore(t, smallOptions())
	png := writeImage(t, src, "a.png", 40, 30, imaging.FormatPNG)
	require.NoError(t, s.Add(ctx, "one", "2024/01/01 10:00:00", png))

	// A non-empty directory in place of the ids file makes the rename fail.
	idsPath := filepath.Join(s.Dir(), screenshot.IDsFile)
	require.NoError(t, os.Remove(idsPath))
	require.NoError(t, os.MkdirAll(filepath.Join(idsPath, "blocker"), 0o755))

	res, err := s.Delete(ctx, []string{"one"})
	require.Error(t, err)
	assert.Empty(t, res.Removed)
	assert.Zero(t, res.FilesRemoved)

	assert.Equal(t, []string{"one"}, s.Index().IDs())
	assert.FileExists(t, filepath.Join(s.Dir(), "DevilConnection_photo_one.sav"))
	assert.FileExists(t, filepath.Join(s.Dir(), "DevilConnection_photo_one_thumb.sav"))
	assert.Equal(t, "DevilConnection_photo_one.sav", s.Files()["one"].Main)
}

func TestStoreDeleteKeepsPairWhenRemovalFails(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	src := t.TempDir()
	s := newStore(t, smallOptions())
	png := writeImage(t, src, "a.png", 40, 30, imaging.FormatPNG)
	require.NoError(t, s.Add(ctx, "one", "2024/01/01 10:00:00", png))

	// A non-empty directory cannot be removed with os.Remove.
	main := filepath.Join(s.Dir(), "DevilConnection_photo_one.sav")
	require.NoError(t, os.Remove(main))
	require.NoError(t, os.MkdirAll(filepath.Join(main, "blocker"), 0o755))

	res, err := s.Delete(ctx, []string{"one"})
	require.NoError(t, err)
	assert.Empty(t, res.Removed)
	assert.Equal(t, 1, res.FilesRemoved)
	assert.Len(t, res.Errors, 1)

	assert.Empty(t, s.Index().IDs())
	assert.NoFileExists(t, filepath.Join(s.Dir(), "DevilConnection_photo_one_thumb.sav"))
	assert.Equal(t, screenshot.FilePair{Main: "DevilConnection_photo_one.sav"}, s.Files()["one"])
	assert.Equal(t, []string{"one"}, s.Check().Orphans)
}

func TestStoreSortMoveReorderPersist(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()
	idx, err := screenshot.New(
		screenshot.Record{ID: "a", Date: "2024/01/01 10:00:00"},
		screenshot.Record{ID: "b", Date: "2024/01/03 10:00:00"},
		screenshot.Record{ID: "c", Date: "2024/01/02 10:00:00"},
	)
	require.NoError(t, err)
	idsRaw, err := idx.MarshalIDs()
	require.NoError(t, err)
	allRaw, err := idx.MarshalAllIDs()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, screenshot.IDsFile), idsRaw, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, screenshot.AllIDsFile), allRaw, 0o644))

	s, err := screenshot.Open(dir, screenshot.DefaultOptions())
	require.NoError(t, err)
	require.NoError(t, s.Load())

	require.NoError(t, s.SortByDate(ctx, true))
	assert.Equal(t, []string{"a", "c", "b"}, s.Index().IDs())
	require.NoError(t, s.Move(ctx, 2, 0))
	assert.Equal(t, []string{"b", "a", "c"}, s.Index().IDs())
	assert.True(t, errors.Is(s.Reorder(ctx, []int{0, 0, 1}), screenshot.ErrInvalidPermutation))
	require.NoError(t, s.Reorder(ctx, []int{2, 1, 0}))

	reloaded, err := screenshot.Open(dir, screenshot.DefaultOptions())
	require.NoError(t, err)
	require.NoError(t, reloaded.Load())
	assert.Equal(t, []string{"c", "a", "b"}, reloaded.Index().IDs())

	rep := reloaded.Check()
	assert.ElementsMatch(t, []string{"a", "b", "c"}, rep.Missing)
	assert.False(t, rep.OK())
}

func TestStoreCheckOrphansAndReconcile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	idsRaw, allRaw := encodeIndex(t, []screenshot.Record{{ID: "a", Date: "2024/01/01 10:00:00"}}, []string{"zzz"})
	require.NoError(t, os.WriteFile(filepath.Join(dir, screenshot.IDsFile), idsRaw, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, screenshot.AllIDsFile), allRaw, 0o644))
	require.NoError(t, savecodec.WriteFile(filepath.Join(dir, "DevilConnection_photo_a.sav"), datauri.Build(datauri.MIMEPNG, []byte("p"))))
	require.NoError(t, savecodec.WriteFile(filepath.Join(dir, "DevilConnection_photo_orphan.sav"), datauri.Build(datauri.MIMEPNG, []byte("p"))))

	s, err := screenshot.Open(dir, screenshot.DefaultOptions())
	require.NoError(t, err)
	require.NoError(t, s.Load())

	rep := s.Check()
	assert.True(t, rep.Reconciled)
	assert.Equal(t, []string{"orphan"}, rep.Orphans)
	assert.Equal(t, []string{"a"}, rep.ThumbMissing)
	assert.Empty(t, rep.Missing)

	require.NoError(t, s.Save(context.Background()))
	raw, err := os.ReadFile(filepath.Join(dir, screenshot.AllIDsFile))
	require.NoError(t, err)
	v, err := savecodec.Decode(raw)
	require.NoError(t, err)
	assert.True(t, savecodec.Equal([]any{"a"}, v))
}

func TestStoreExport(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	src := t.TempDir()
	s := newStore(t, smallOptions())
	png := writeImage(t, src, "a.png", 40, 30, imaging.FormatPNG)
	require.NoError(t, s.Add(ctx, "one", "2024/01/01 10:00:00", png))
	require.NoError(t, s.Add(ctx, "two", "2024/01/02 10:00:00", png))

	var calls atomic.Int32
	dest := filepath.Join(t.TempDir(), "out")
	res := s.Export(ctx, []string{"one", "missing", "two"}, dest, imaging.FormatJPEG, func(done, total int) {
		calls.Add(1)
		assert.Equal(t, 3, total)
	})
	assert.Equal(t, 1, res.Failed)
	assert.Len(t, res.Written, 2)
	assert.True(t, errors.Is(res.Err, screenshot.ErrNotFound))
	assert.Equal(t, int32(3), calls.Load())

	data, err := os.ReadFile(filepath.Join(dest, "two.jpg"))
	require.NoError(t, err)
	_, format, err := imaging.DecodeConfig(data)
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)

	res = s.Export(ctx, []string{"one"}, dest, imaging.FormatPNG, nil)
	require.NoError(t, res.Err)
	main, err := s.ImageData("one")
	require.NoError(t, err)
	exported, err := os.ReadFile(filepath.Join(dest, "one.png"))
	require.NoError(t, err)
	assert.Equal(t, main.Data, exported)

	res = s.Export(ctx, []string{"one"}, dest, imaging.FormatBMP, nil)
	assert.Equal(t, 1, res.Failed)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	res = s.Export(cancelled, []string{"one", "two"}, dest, imaging.FormatPNG, nil)
	assert.Equal(t, 2, res.Failed)
	assert.True(t, errors.Is(res.Err, context.Canceled))
}

func TestStoreImageCache(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c, err := cache.NewImageCache(cache.Options{Originals: 4, Thumbnails: 4})
	require.NoError(t, err)
	defer c.Close()

	opts := smallOptions()
	opts.Cache = c
	s := newStore(t, opts)
	png := writeImage(t, t.TempDir(), "a.png", 40, 30, imaging.FormatPNG)
	require.NoError(t, s.Add(ctx, "one", "2024/01/01 10:00:00", png))

	first, err := s.ImageData("one")
	require.NoError(t, err)
	path := filepath.Join(s.Dir(), "DevilConnection_photo_one.sav")
	info, err := os.Stat(path)
	require.NoError(t, err)
	hit, ok := c.Get(cache.KindOriginal, path, info)
	require.True(t, ok)
	assert.Equal(t, first.Data, hit.Data)

	second := writeImage(t, t.TempDir(), "b.png", 48, 36, imaging.FormatPNG)
	require.NoError(t, s.Replace(ctx, "one", second))
	replaced, err := s.ImageData("one")
	require.NoError(t, err)
	assert.NotEqual(t, first.Data, replaced.Data)
}

func TestGenerateIDAndNow(t *testing.T) {
	t.Parallel()

	s := newStore(t, screenshot.DefaultOptions())
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		id := s.GenerateID()
		assert.Regexp(t, `^[a-z0-9]{8}$`, id)
		seen[id] = true
	}
	assert.Greater(t, len(seen), 45)

	_, err := screenshot.Record{ID: "x", Date: screenshot.Now()}.Time()
	assert.NoError(t, err)
}

func TestAspectRatioOK(t *testing.T) {
	t.Parallel()

	assert.True(t, screenshot.AspectRatioOK(1280, 960))
	assert.True(t, screenshot.AspectRatioOK(1280, 980))
	assert.False(t, screenshot.AspectRatioOK(1920, 1080))
	assert.False(t, screenshot.AspectRatioOK(0, 0))
}
