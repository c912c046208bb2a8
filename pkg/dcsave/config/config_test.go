package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/dcsave/pkg/dcsave/config"
	"github.com/jamesainslie/dcsave/pkg/dcsave/types"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "{}\n")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, config.DefaultCollapsedFields, cfg.CollapsedFields)
	assert.Equal(t, config.DefaultPlaceholder, cfg.Placeholder)
	assert.Equal(t, config.DefaultInlineLists, cfg.InlineLists)
	assert.Equal(t, "DevilConnection_photo", cfg.Screenshot.Prefix)
	assert.Equal(t, ".sav", cfg.Screenshot.Ext)
	assert.Equal(t, 90, cfg.Screenshot.ThumbQuality)
	assert.Equal(t, 1280, cfg.Screenshot.ThumbWidth)
	assert.Equal(t, 960, cfg.Screenshot.ThumbHeight)
	assert.Equal(t, 50, cfg.Cache.Originals)
	assert.Equal(t, 500, cfg.Cache.Thumbnails)
	assert.Equal(t, 7, cfg.Backup.CompressionLevel)
	assert.InDelta(t, 0.1, cfg.Backup.SampleRatio, 1e-9)
	assert.Equal(t, config.DefaultRequiredFiles, cfg.Backup.RequiredFiles)
	assert.Equal(t, 300*time.Millisecond, cfg.Watch.Debounce)
	assert.NotEmpty(t, cfg.Manifest.Path)
	assert.NotEmpty(t, cfg.Cache.Path)
	assert.Empty(t, cfg.BackupDir)
	require.NoError(t, cfg.Validate())
}

func TestLoadFromFile(t *testing.T) {
	storage := filepath.Join(t.TempDir(), "game", "_storage")
	path := writeConfig(t, `
storage_dir: `+storage+`
placeholder: "[hidden]"
collapsed_fields: [record, stat.map_label]
screenshot:
  ext: dat
  thumb_quality: 75
backup:
  compression_level: 9
watch:
  debounce: 1s
  ignored_vars: [record]
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, storage, cfg.StorageDir)
	assert.Equal(t, filepath.Join(filepath.Dir(storage), "dcsm_backups"), cfg.BackupDir)
	assert.Equal(t, "[hidden]", cfg.Placeholder)
	assert.Equal(t, []string{"record", "stat.map_label"}, cfg.CollapsedFields)
	assert.Equal(t, ".dat", cfg.Screenshot.Ext)
	assert.Equal(t, 75, cfg.Screenshot.ThumbQuality)
	assert.Equal(t, 9, cfg.Backup.CompressionLevel)
	assert.Equal(t, time.Second, cfg.Watch.Debounce)
	assert.Equal(t, []string{"record"}, cfg.Watch.IgnoredVars)
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeConfig(t, "placeholder: from-file\n")
	t.Setenv("DCSAVE_PLACEHOLDER", "from-env")
	t.Setenv("DCSAVE_SCREENSHOT_THUMB_QUALITY", "60")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Placeholder)
	assert.Equal(t, 60, cfg.Screenshot.ThumbQuality)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeConfig(t, "placeholder: [unterminated\n")
	_, err := config.Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	path := writeConfig(t, `
screenshot:
  thumb_quality: 0
backup:
  sample_ratio: 2
logging:
  rotation:
    max_size: lots
`)
	cfg, err := config.Load(path)
	require.NoError(t, err)

	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "thumb_quality")
	assert.Contains(t, err.Error(), "sample_ratio")
	assert.ErrorIs(t, err, types.ErrInvalidSize)
}

func TestLogConfig(t *testing.T) {
	lc, err := config.LoggingConfig{
		Level:    "debug",
		Console:  "warn",
		Rotation: config.RotationConfig{MaxSize: "2MB", MaxBackups: 4},
	}.LogConfig()
	require.NoError(t, err)
	assert.Equal(t, "debug", lc.Level)
	assert.Equal(t, "warn", lc.ConsoleLevel)
	assert.Equal(t, 2*types.MiB, lc.Rotation.MaxSize)
	assert.Equal(t, 4, lc.Rotation.MaxBackups)

	_, err = config.LoggingConfig{Rotation: config.RotationConfig{MaxSize: "huge"}}.LogConfig()
	assert.Error(t, err)
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := config.ExpandPath("~/saves")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "saves"), got)

	got, err = config.ExpandPath("/abs/~x")
	require.NoError(t, err)
	assert.Equal(t, "/abs/~x", got)

	got, err = config.ExpandPath("~other/dir")
	require.NoError(t, err)
	assert.Equal(t, "~other/dir", got)
}

func TestDefaultBackupDir(t *testing.T) {
	t.Parallel()
	assert.Equal(t, filepath.Join("/games", "dc", "dcsm_backups"), config.DefaultBackupDir("/games/dc/_storage/"))
}
