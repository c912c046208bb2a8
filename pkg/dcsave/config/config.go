package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"

	"github.com/jamesainslie/dcsave/pkg/dcsave/logging"
	"github.com/jamesainslie/dcsave/pkg/dcsave/types"
)

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSize    string `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
	Daily      bool   `mapstructure:"daily"`
}

// LoggingConfig configures application logging.
type LoggingConfig struct {
	Level      string            `mapstructure:"level"`
	Path       string            `mapstructure:"path"`
	Console    string            `mapstructure:"console"`
	Rotation   RotationConfig    `mapstructure:"rotation"`
	Components map[string]string `mapstructure:"components"`
}

// ScreenshotConfig configures screenshot file naming and thumbnails.
type ScreenshotConfig struct {
	Prefix       string `mapstructure:"prefix"`
	Ext          string `mapstructure:"ext"`
	ThumbQuality int    `mapstructure:"thumb_quality"`
	ThumbWidth   int    `mapstructure:"thumb_width"`
	ThumbHeight  int    `mapstructure:"thumb_height"`
}

// CacheConfig configures decoded image caching.
type CacheConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Originals  int    `mapstructure:"originals"`
	Thumbnails int    `mapstructure:"thumbnails"`
	Path       string `mapstructure:"path"`
}

// BackupConfig configures backup archives.
type BackupConfig struct {
	RequiredFiles    []string `mapstructure:"required_files"`
	CompressionLevel int      `mapstructure:"compression_level"`
	SampleRatio      float64  `mapstructure:"sample_ratio"`
}

// ManifestConfig configures the operation history.
type ManifestConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Path          string `mapstructure:"path"`
	RetentionDays int    `mapstructure:"retention_days"`
}

// WatchConfig configures save file monitoring.
type WatchConfig struct {
	IgnoredVars []string      `mapstructure:"ignored_vars"`
	Debounce    time.Duration `mapstructure:"debounce"`
}

// Config represents the application configuration.
type Config struct {
	StorageDir      string           `mapstructure:"storage_dir"`
	BackupDir       string           `mapstructure:"backup_dir"`
	CollapsedFields []string         `mapstructure:"collapsed_fields"`
	Placeholder     string           `mapstructure:"placeholder"`
	InlineLists     []string         `mapstructure:"inline_lists"`
	Screenshot      ScreenshotConfig `mapstructure:"screenshot"`
	Cache           CacheConfig      `mapstructure:"cache"`
	Backup          BackupConfig     `mapstructure:"backup"`
	Manifest        ManifestConfig   `mapstructure:"manifest"`
	Logging         LoggingConfig    `mapstructure:"logging"`
	Watch           WatchConfig      `mapstructure:"watch"`
}

// EnvPrefix prefixes environment overrides, e.g. DCSAVE_STORAGE_DIR.
const EnvPrefix = "DCSAVE"

// ErrNoStorageDir is returned when no storage directory is configured or
// detected.
var ErrNoStorageDir = errors.New("no storage directory configured")

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("storage_dir", "")
	v.SetDefault("backup_dir", "")
	v.SetDefault("collapsed_fields", DefaultCollapsedFields)
	v.SetDefault("placeholder", DefaultPlaceholder)
	v.SetDefault("inline_lists", DefaultInlineLists)

	v.SetDefault("screenshot.prefix", DefaultScreenshotPrefix)
	v.SetDefault("screenshot.ext", DefaultScreenshotExt)
	v.SetDefault("screenshot.thumb_quality", DefaultThumbQuality)
	v.SetDefault("screenshot.thumb_width", DefaultThumbWidth)
	v.SetDefault("screenshot.thumb_height", DefaultThumbHeight)

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.originals", DefaultCacheOriginals)
	v.SetDefault("cache.thumbnails", DefaultCacheThumbnails)
	v.SetDefault("cache.path", "")

	v.SetDefault("backup.required_files", DefaultRequiredFiles)
	v.SetDefault("backup.compression_level", DefaultCompressionLevel)
	v.SetDefault("backup.sample_ratio", DefaultSampleRatio)

	v.SetDefault("manifest.enabled", true)
	v.SetDefault("manifest.path", "")
	v.SetDefault("manifest.retention_days", DefaultRetentionDays)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.path", "")
	v.SetDefault("logging.console", "")
	v.SetDefault("logging.rotation.max_size", "5MB")
	v.SetDefault("logging.rotation.max_age", 14)
	v.SetDefault("logging.rotation.max_backups", 3)
	v.SetDefault("logging.rotation.daily", false)
	v.SetDefault("logging.components", map[string]string{})

	v.SetDefault("watch.ignored_vars", DefaultIgnoredVars)
	v.SetDefault("watch.debounce", DefaultWatchDebounce)
}

// Configure prepares v to read config.yaml from the config directory (or
// cfgFile when set) with DCSAVE_ environment overrides.
func Configure(v *viper.Viper, cfgFile string) {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(ConfigDir())
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	SetDefaults(v)
}

// ReadIn reads the config file, treating a missing file as empty.
func ReadIn(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// Load reads configuration from cfgFile (or the default location) and the
// environment.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	Configure(v, cfgFile)
	if err := ReadIn(v); err != nil {
		return nil, err
	}
	return FromViper(v)
}

// FromViper unmarshals v and resolves derived paths.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	var err error
	for _, p := range []*string{&cfg.StorageDir, &cfg.BackupDir, &cfg.Cache.Path, &cfg.Manifest.Path, &cfg.Logging.Path} {
		if *p, err = ExpandPath(*p); err != nil {
			return nil, err
		}
	}

	if cfg.Manifest.Path == "" {
		cfg.Manifest.Path = ManifestDir()
	}
	if cfg.Cache.Path == "" {
		cfg.Cache.Path = filepath.Join(CacheDir(), "images")
	}
	if cfg.BackupDir == "" && cfg.StorageDir != "" {
		cfg.BackupDir = DefaultBackupDir(cfg.StorageDir)
	}
	if cfg.Screenshot.Ext != "" && !strings.HasPrefix(cfg.Screenshot.Ext, ".") {
		cfg.Screenshot.Ext = "." + cfg.Screenshot.Ext
	}

	return &cfg, nil
}

// Validate checks values that would otherwise fail deep inside an operation.
func (c *Config) Validate() error {
	var errs []error
	if c.Screenshot.ThumbQuality < 1 || c.Screenshot.ThumbQuality > 100 {
		errs = append(errs, fmt.Errorf("screenshot.thumb_quality must be 1-100, got %d", c.Screenshot.ThumbQuality))
	}
	if c.Screenshot.Prefix == "" {
		errs = append(errs, errors.New("screenshot.prefix must not be empty"))
	}
	if c.Backup.CompressionLevel < -1 || c.Backup.CompressionLevel > 9 {
		errs = append(errs, fmt.Errorf("backup.compression_level must be -1..9, got %d", c.Backup.CompressionLevel))
	}
	if c.Backup.SampleRatio <= 0 || c.Backup.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("backup.sample_ratio must be in (0, 1], got %g", c.Backup.SampleRatio))
	}
	if c.Placeholder == "" {
		errs = append(errs, errors.New("placeholder must not be empty"))
	}
	if c.Logging.Rotation.MaxSize != "" {
		if _, err := types.ParseSize(c.Logging.Rotation.MaxSize); err != nil {
			errs = append(errs, fmt.Errorf("logging.rotation.max_size: %w", err))
		}
	}
	return errors.Join(errs...)
}

// LogConfig converts the logging section for logging.Init.
func (l LoggingConfig) LogConfig() (logging.Config, error) {
	rotation := logging.RotationConfig{
		MaxAge:     l.Rotation.MaxAge,
		MaxBackups: l.Rotation.MaxBackups,
		Daily:      l.Rotation.Daily,
	}
	if l.Rotation.MaxSize != "" {
		size, err := types.ParseSize(l.Rotation.MaxSize)
		if err != nil {
			return logging.Config{}, fmt.Errorf("logging.rotation.max_size: %w", err)
		}
		rotation.MaxSize = size
	}
	return logging.Config{
		Level:        l.Level,
		Path:         l.Path,
		Rotation:     rotation,
		Components:   l.Components,
		ConsoleLevel: l.Console,
	}, nil
}

// RequireStorageDir returns the configured storage directory, falling back to
// Steam auto-detection.
func (c *Config) RequireStorageDir() (string, error) {
	if c.StorageDir != "" {
		return c.StorageDir, nil
	}
	if dir, ok := DetectStorageDir(DefaultSteamPath()); ok {
		c.StorageDir = dir
		if c.BackupDir == "" {
			c.BackupDir = DefaultBackupDir(dir)
		}
		return dir, nil
	}
	return "", fmt.Errorf("%w: set storage_dir or pass --storage", ErrNoStorageDir)
}

// DefaultBackupDir returns the dcsm_backups directory beside storageDir.
func DefaultBackupDir(storageDir string) string {
	return filepath.Join(filepath.Dir(filepath.Clean(storageDir)), DefaultBackupDirName)
}

// ConfigDir returns $XDG_CONFIG_HOME/dcsave.
func ConfigDir() string {
	return filepath.Join(xdg.ConfigHome, "dcsave")
}

// ConfigFile returns the default config file path.
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// ManifestDir returns the default history directory.
func ManifestDir() string {
	return filepath.Join(DataDir(), "history")
}

// DataDir returns $XDG_DATA_HOME/dcsave.
func DataDir() string {
	return filepath.Join(xdg.DataHome, "dcsave")
}

// StateDir returns $XDG_STATE_HOME/dcsave for log files.
func StateDir() string {
	return filepath.Join(xdg.StateHome, "dcsave")
}

// CacheDir returns $XDG_CACHE_HOME/dcsave.
func CacheDir() string {
	return filepath.Join(xdg.CacheHome, "dcsave")
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") && !strings.HasPrefix(path, `~\`) {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, path[1:]), nil
}

// WriteDefault writes a commented default config file unless one exists.
// It returns the path and whether a file was created.
func WriteDefault() (string, bool, error) {
	path := ConfigFile()
	if _, err := os.Stat(path); err == nil {
		return path, false, nil
	} else if !os.IsNotExist(err) {
		return "", false, fmt.Errorf("failed to check config file: %w", err)
	}

	if err := os.MkdirAll(ConfigDir(), 0o755); err != nil {
		return "", false, fmt.Errorf("failed to create config directory: %w", err)
	}

	content := fmt.Sprintf(defaultTemplate,
		DefaultPlaceholder,
		DefaultScreenshotPrefix, DefaultScreenshotExt, DefaultThumbQuality, DefaultThumbWidth, DefaultThumbHeight,
		DefaultCacheOriginals, DefaultCacheThumbnails,
		DefaultCompressionLevel, DefaultSampleRatio,
		DefaultRetentionDays,
		DefaultWatchDebounce,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", false, fmt.Errorf("failed to write default config: %w", err)
	}
	return path, true, nil
}

const defaultTemplate = `# dcsave configuration

# Game _storage directory. Empty means auto-detect through Steam.
storage_dir: ""

# Backup directory. Empty means dcsm_backups next to storage_dir.
backup_dir: ""

# Fields hidden behind the placeholder in the document view
collapsed_fields:
  - record
  - _tap_effect
  - initialVars
placeholder: %q

# Lists rendered on a single line in the document view
inline_lists:
  - endings
  - collectedEndings
  - omakes
  - characters
  - collectedCharacters
  - sticker
  - gallery
  - ngScene

screenshot:
  prefix: %s
  ext: %s
  thumb_quality: %d
  thumb_width: %d
  thumb_height: %d

# Decoded image cache
cache:
  enabled: true
  originals: %d
  thumbnails: %d
  path: ""

backup:
  required_files:
    - DevilConnection_sf.sav
    - DevilConnection_tyrano_data.sav
  compression_level: %d
  sample_ratio: %g

# History of mutating operations
manifest:
  enabled: true
  path: ""
  retention_days: %d

logging:
  # debug, info, warn, error
  level: info
  # Empty means $XDG_STATE_HOME/dcsave/dcsave.log
  path: ""
  # Mirror logs to stderr at this level (empty disables)
  console: ""
  rotation:
    max_size: 5MB
    max_age: 14
    max_backups: 3
    daily: false
  components: {}

watch:
  ignored_vars:
    - record
    - initialVars
  debounce: %s
`
