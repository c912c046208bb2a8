package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/dcsave/pkg/dcsave/config"
)

func mkdirs(t *testing.T, parts ...string) string {
	t.Helper()
	p := filepath.Join(parts...)
	require.NoError(t, os.MkdirAll(p, 0o755))
	return p
}

func TestDetectStorageDirByFolderName(t *testing.T) {
	t.Parallel()

	steam := t.TempDir()
	storage := mkdirs(t, steam, "steamapps", "common", config.GameFolderName, "_storage")

	got, ok := config.DetectStorageDir(steam)
	require.True(t, ok)
	assert.Equal(t, storage, got)
}

func TestDetectStorageDirThroughLibraryAndManifest(t *testing.T) {
	t.Parallel()

	steam := t.TempDir()
	library := t.TempDir()
	mkdirs(t, steam, "steamapps")
	vdf := `"libraryfolders"
{
	"0" { "path" "` + strings.ReplaceAll(steam, `\`, `\\`) + `" }
	"1" { "path" "` + strings.ReplaceAll(library, `\`, `\\`) + `" }
	"2" { "path" "/definitely/not/here" }
}`
	require.NoError(t, os.WriteFile(filepath.Join(steam, "steamapps", "libraryfolders.vdf"), []byte(vdf), 0o644))

	storage := mkdirs(t, library, "steamapps", "common", "DevilConnection", "_storage")
	acf := `"AppState" { "appid" "3054820" "installdir" "DevilConnection" }`
	require.NoError(t, os.WriteFile(filepath.Join(library, "steamapps", "appmanifest_3054820.acf"), []byte(acf), 0o644))

	libs := config.SteamLibraries(steam)
	assert.Equal(t, []string{filepath.Clean(steam), filepath.Clean(library)}, libs)

	got, ok := config.DetectStorageDir(steam)
	require.True(t, ok)
	assert.Equal(t, storage, got)
}

func TestDetectStorageDirMissing(t *testing.T) {
	t.Parallel()

	_, ok := config.DetectStorageDir(filepath.Join(t.TempDir(), "nope"))
	assert.False(t, ok)
}
