package screenshot_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/dcsave/pkg/dcsave/screenshot"
)

func touch(t *testing.T, dir, name string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
}

func TestResolveFilesMissingMain(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	touch(t, dir, "DevilConnection_photo_a.sav")
	touch(t, dir, "DevilConnection_photo_a_thumb.sav")
	touch(t, dir, "DevilConnection_photo_b_thumb.sav")

	pairs, err := screenshot.ResolveFiles(dir, screenshot.DefaultNaming())
	require.NoError(t, err)
	assert.Equal(t, map[string]screenshot.FilePair{
		"a": {Main: "DevilConnection_photo_a.sav", Thumb: "DevilConnection_photo_a_thumb.sav"},
		"b": {Thumb: "DevilConnection_photo_b_thumb.sav"},
	}, pairs)
	assert.True(t, pairs["b"].Missing())
	assert.False(t, pairs["a"].ThumbMissing())
}

func TestResolveFilesIgnoresUnrelated(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	for _, name := range []string{
		screenshot.IDsFile,
		screenshot.AllIDsFile,
		"DevilConnection_sf.sav",
		"DevilConnection_tyrano_data.sav",
		"DevilConnection_photo_has_underscore.sav",
		"DevilConnection_photo_c.png",
		"DevilConnection_photo_.sav",
		"DevilConnection_photo__thumb.sav",
		"notes.txt",
		"DevilConnection_photo_c.sav",
	} {
		touch(t, dir, name)
	}
	sub := filepath.Join(dir, "DevilConnection_photo_sub.sav")
	require.NoError(t, os.Mkdir(sub, 0o755))
	touch(t, sub, "DevilConnection_photo_d.sav")

	pairs, err := screenshot.ResolveFiles(dir, screenshot.DefaultNaming())
	require.NoError(t, err)
	assert.Equal(t, map[string]screenshot.FilePair{
		"c": {Main: "DevilConnection_photo_c.sav"},
	}, pairs)
}

func TestResolveFilesErrors(t *testing.T) {
	t.Parallel()

	_, err := screenshot.ResolveFiles(filepath.Join(t.TempDir(), "missing"), screenshot.DefaultNaming())
	assert.Error(t, err)

	file := filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	_, err = screenshot.ResolveFiles(file, screenshot.DefaultNaming())
	assert.Error(t, err)
}

func TestNaming(t *testing.T) {
	t.Parallel()

	n := screenshot.Naming{Prefix: "Game_pic", Ext: ".dat"}
	assert.Equal(t, "Game_pic_x1.dat", n.MainName("x1"))
	assert.Equal(t, "Game_pic_x1_thumb.dat", n.ThumbName("x1"))
	assert.Equal(t, "Game_pic_ids.dat", n.IDsName())
	assert.Equal(t, "Game_pic_all_ids.dat", n.AllIDsName())

	tests := []struct {
		name  string
		id    string
		thumb bool
		ok    bool
	}{
		{"Game_pic_x1.dat", "x1", false, true},
		{"Game_pic_x1_thumb.dat", "x1", true, true},
		{"Game_pic_ids.dat", "", false, false},
		{"Game_pic_all_ids.dat", "", false, false},
		{"Game_pic_x1.sav", "", false, false},
		{"Other_pic_x1.dat", "", false, false},
		{"Game_pic_a_b.dat", "", false, false},
	}
	for _, tt := range tests {
		id, thumb, ok := n.Parse(tt.name)
		assert.Equal(t, tt.ok, ok, tt.name)
		assert.Equal(t, tt.id, id, tt.name)
		assert.Equal(t, tt.thumb, thumb, tt.name)
	}
}
