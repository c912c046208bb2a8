// Package config provides configuration management for dcsave.
package config

import "time"

// Default configuration values.
const (
	// DefaultPlaceholder replaces collapsed fields in the document view.
	DefaultPlaceholder = "<collapsed>"

	// DefaultScreenshotPrefix is the file name prefix of screenshot files.
	DefaultScreenshotPrefix = "DevilConnection_photo"

	// DefaultScreenshotExt is the extension of every save file.
	DefaultScreenshotExt = ".sav"

	// DefaultThumbQuality is the JPEG quality used for thumbnails.
	DefaultThumbQuality = 90

	// DefaultThumbWidth and DefaultThumbHeight size new thumbnails when no
	// existing thumbnail can be measured.
	DefaultThumbWidth  = 1280
	DefaultThumbHeight = 960

	// DefaultCacheOriginals and DefaultCacheThumbnails bound the in-memory
	// decoded image caches.
	DefaultCacheOriginals  = 50
	DefaultCacheThumbnails = 500

	// DefaultCompressionLevel is the deflate level for backup archives.
	DefaultCompressionLevel = 7

	// DefaultSampleRatio is the share of files compressed by size estimates.
	DefaultSampleRatio = 0.1

	// DefaultRetentionDays is how long history entries are kept.
	DefaultRetentionDays = 30

	// DefaultBackupDirName is created next to the storage directory.
	DefaultBackupDirName = "dcsm_backups"

	// DefaultWatchDebounce coalesces bursts of writes to the same file.
	DefaultWatchDebounce = 300 * time.Millisecond
)

// DefaultCollapsedFields are hidden behind the placeholder by default.
var DefaultCollapsedFields = []string{"record", "_tap_effect", "initialVars"}

// DefaultInlineLists are rendered on a single line in the document view.
var DefaultInlineLists = []string{
	"endings",
	"collectedEndings",
	"omakes",
	"characters",
	"collectedCharacters",
	"sticker",
	"gallery",
	"ngScene",
}

// DefaultRequiredFiles must be present in a backup for it to be restorable.
var DefaultRequiredFiles = []string{
	"DevilConnection_sf.sav",
	"DevilConnection_tyrano_data.sav",
}

// DefaultIgnoredVars are excluded from change reports by default.
var DefaultIgnoredVars = []string{"record", "initialVars"}
