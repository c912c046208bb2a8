package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/dcsave/pkg/dcsave/cache"
	"github.com/jamesainslie/dcsave/pkg/dcsave/config"
	"github.com/jamesainslie/dcsave/pkg/dcsave/types"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the decoded image cache",
	Long: `Commands for the persistent cache of decoded screenshot images.

Entries are keyed by storage directory and file name and are dropped
automatically when a file's size or modification time changes. The cache
lives under the XDG cache directory (typically ~/.cache/dcsave/images).`,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove cached images of the storage directory",
	Args:  cobra.NoArgs,
	RunE:  runCacheClear,
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache location, size and entry counts",
	Args:  cobra.NoArgs,
	RunE:  runCacheStats,
}

var cachePathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the cache location",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println(cachePath())
		return nil
	},
}

var cacheClearAll bool

func init() {
	cacheClearCmd.Flags().BoolVar(&cacheClearAll, "all", false, "clear entries of every storage directory")

	cacheCmd.AddCommand(cacheClearCmd, cacheStatsCmd, cachePathCmd)
	rootCmd.AddCommand(cacheCmd)
}

// cachePath returns the configured store path, or the default one when the
// configuration cannot be loaded.
func cachePath() string {
	if c, err := getConfig(); err == nil && c.Cache.Path != "" {
		return c.Cache.Path
	}
	return filepath.Join(config.CacheDir(), "images")
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	path := cachePath()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		printInfo("Cache is already empty.")
		return nil
	}

	dir := ""
	if !cacheClearAll {
		_, storage, err := storageDir()
		if err != nil {
			return err
		}
		dir = filepath.Clean(storage)
	}

	store, err := cache.OpenStore(path)
	if err != nil {
		return fmt.Errorf("opening image cache: %w", err)
	}
	defer func() { _ = store.Close() }()

	imgCache, err := cache.NewImageCache(cache.Options{
		Originals:  config.DefaultCacheOriginals,
		Thumbnails: config.DefaultCacheThumbnails,
		Store:      store,
	})
	if err != nil {
		return err
	}
	defer imgCache.Close()

	if err := imgCache.Clear(dir); err != nil {
		return fmt.Errorf("clearing image cache: %w", err)
	}
	if dir == "" {
		printInfo("Cache cleared.")
	} else {
		printInfo("Cleared cached images of %s", dir)
	}
	return nil
}

func runCacheStats(cmd *cobra.Command, args []string) error {
	path := cachePath()
	entries, err := os.ReadDir(path)
	if os.IsNotExist(err) {
		fmt.Println("Cache: empty (no cache directory)")
		fmt.Printf("Cache location: %s\n", path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading cache directory: %w", err)
	}

	var size int64
	for _, e := range entries {
		if info, err := e.Info(); err == nil && info.Mode().IsRegular() {
			size += info.Size()
		}
	}

	store, err := cache.OpenStore(path)
	if err != nil {
		return fmt.Errorf("opening image cache: %w", err)
	}
	defer func() { _ = store.Close() }()

	total, err := store.Count("")
	if err != nil {
		return fmt.Errorf("counting cache entries: %w", err)
	}

	fmt.Printf("Cache location: %s\n", path)
	fmt.Printf("Cache size:     %s\n", types.FormatSize(size))
	fmt.Printf("Entries:        %s\n", types.FormatCount(total))

	if _, storage, err := storageDir(); err == nil {
		n, err := store.Count(filepath.Clean(storage))
		if err == nil {
			fmt.Printf("This storage:   %s\n", types.FormatCount(n))
		}
	}
	return nil
}
