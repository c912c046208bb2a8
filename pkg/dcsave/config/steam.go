package config

import (
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"github.com/jamesainslie/dcsave/pkg/dcsave/logging"
)

// Steam metadata used to locate the game's _storage directory.
const (
	GameAppID         = "3054820"
	GameFolderName    = "でびるコネクショん"
	StorageFolderName = "_storage"
)

var (
	vdfPathPattern    = regexp.MustCompile(`"path"\s+"([^"]+)"`)
	acfInstallPattern = regexp.MustCompile(`"installdir"\s+"([^"]+)"`)
)

// DefaultSteamPath returns the usual Steam install location for this OS.
func DefaultSteamPath() string {
	home, _ := os.UserHomeDir()
	switch runtime.GOOS {
	case "windows":
		return `C:\Program Files (x86)\Steam`
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Steam")
	default:
		return filepath.Join(home, ".steam", "steam")
	}
}

// SteamLibraries lists steamRoot followed by every extra library named in
// steamapps/libraryfolders.vdf that exists on disk.
func SteamLibraries(steamRoot string) []string {
	var libs []string
	if isDir(steamRoot) {
		libs = append(libs, filepath.Clean(steamRoot))
	}

	data, err := os.ReadFile(filepath.Join(steamRoot, "steamapps", "libraryfolders.vdf"))
	if err != nil {
		return libs
	}

	for _, m := range vdfPathPattern.FindAllStringSubmatch(string(data), -1) {
		p := strings.ReplaceAll(m[1], `\\`, `\`)
		p = filepath.Clean(strings.ReplaceAll(p, `\/`, `/`))
		if !isDir(p) || contains(libs, p) {
			continue
		}
		libs = append(libs, p)
	}
	return libs
}

// FindGameDir looks for the game inside one Steam library, first by its
// folder name and then through the app manifest's installdir.
func FindGameDir(library string) (string, bool) {
	common := filepath.Join(library, "steamapps", "common")
	if !isDir(common) {
		return "", false
	}

	if dir := filepath.Join(common, GameFolderName); isDir(dir) {
		return dir, true
	}

	data, err := os.ReadFile(filepath.Join(library, "steamapps", "appmanifest_"+GameAppID+".acf"))
	if err != nil {
		return "", false
	}
	m := acfInstallPattern.FindStringSubmatch(string(data))
	if m == nil {
		return "", false
	}
	if dir := filepath.Join(common, m[1]); isDir(dir) {
		return dir, true
	}
	return "", false
}

// DetectStorageDir searches every Steam library under steamRoot for the
// game's _storage directory.
func DetectStorageDir(steamRoot string) (string, bool) {
	for _, lib := range SteamLibraries(steamRoot) {
		game, ok := FindGameDir(lib)
		if !ok {
			continue
		}
		storage := filepath.Join(game, StorageFolderName)
		if isDir(storage) {
			abs, err := filepath.Abs(storage)
			if err != nil {
				abs = storage
			}
			logging.Get("config").Debug("detected storage directory", "path", abs)
			return abs, true
		}
	}
	return "", false
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
