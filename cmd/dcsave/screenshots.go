package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jamesainslie/dcsave/pkg/dcsave/cache"
	"github.com/jamesainslie/dcsave/pkg/dcsave/config"
	"github.com/jamesainslie/dcsave/pkg/dcsave/imaging"
	"github.com/jamesainslie/dcsave/pkg/dcsave/logging"
	"github.com/jamesainslie/dcsave/pkg/dcsave/manifest"
	"github.com/jamesainslie/dcsave/pkg/dcsave/screenshot"
	"github.com/jamesainslie/dcsave/pkg/dcsave/types"
)

var screenshotsCmd = &cobra.Command{
	Use:     "screenshots",
	Aliases: []string{"shots", "ss"},
	Short:   "Manage the in-game screenshot album",
	Long: `Manage the screenshot album stored in the _storage directory.

The album order lives in two index files (ids and all_ids); each
screenshot is a main image and a thumbnail embedded as data URIs.
Positions shown by 'list' start at 1.`,
}

var screenshotsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List screenshots in album order",
	Args:  cobra.NoArgs,
	RunE:  runScreenshotsList,
}

var screenshotsSortCmd = &cobra.Command{
	Use:   "sort",
	Short: "Sort the album by date",
	Long:  `Sort the album by capture date, oldest first unless --desc is given.`,
	Args:  cobra.NoArgs,
	RunE:  runScreenshotsSort,
}

var screenshotsMoveCmd = &cobra.Command{
	Use:   "move <from> <to>",
	Short: "Move one screenshot to another position",
	Args:  cobra.ExactArgs(2),
	RunE:  runScreenshotsMove,
}

var screenshotsReorderCmd = &cobra.Command{
	Use:   "reorder <position>...",
	Short: "Apply a new album order",
	Long: `Rearrange the whole album. Every current position must be listed
exactly once; the n-th argument names the screenshot that ends up at
position n.

  dcsave screenshots reorder 3 1 2`,
	Args: cobra.MinimumNArgs(1),
	RunE: runScreenshotsReorder,
}

var screenshotsAddCmd = &cobra.Command{
	Use:   "add <image>",
	Short: "Add an image to the album",
	Long: `Embed an image file (PNG, JPEG, GIF, BMP, TIFF or WebP) as a new
screenshot at the end of the album. A thumbnail is generated at the size
the existing thumbnails use.`,
	Args: cobra.ExactArgs(1),
	RunE: runScreenshotsAdd,
}

var screenshotsReplaceCmd = &cobra.Command{
	Use:   "replace <id> <image>",
	Short: "Replace the image of a screenshot",
	Args:  cobra.ExactArgs(2),
	RunE:  runScreenshotsReplace,
}

var screenshotsDeleteCmd = &cobra.Command{
	Use:   "delete <id>...",
	Short: "Delete screenshots and their files",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runScreenshotsDelete,
}

var screenshotsExportCmd = &cobra.Command{
	Use:   "export [id...]",
	Short: "Export screenshots as image files",
	Long:  `Write the main image of each screenshot (all when no id is given) to --dest.`,
	RunE:  runScreenshotsExport,
}

var screenshotsCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Report missing files and unindexed screenshots",
	Args:  cobra.NoArgs,
	RunE:  runScreenshotsCheck,
}

var (
	sortDesc     bool
	addID        string
	addDate      string
	exportFormat string
	exportDest   string
)

func init() {
	screenshotsSortCmd.Flags().BoolVar(&sortDesc, "desc", false, "newest first")
	screenshotsAddCmd.Flags().StringVar(&addID, "id", "", "screenshot id (default: random)")
	screenshotsAddCmd.Flags().StringVar(&addDate, "date", "", "capture date as YYYY/MM/DD HH:MM:SS (default: now)")
	screenshotsExportCmd.Flags().StringVarP(&exportFormat, "format", "f", "png", "image format: png or jpeg")
	screenshotsExportCmd.Flags().StringVarP(&exportDest, "dest", "d", ".", "destination directory")

	screenshotsCmd.AddCommand(screenshotsListCmd)
	screenshotsCmd.AddCommand(screenshotsSortCmd)
	screenshotsCmd.AddCommand(screenshotsMoveCmd)
	screenshotsCmd.AddCommand(screenshotsReorderCmd)
	screenshotsCmd.AddCommand(screenshotsAddCmd)
	screenshotsCmd.AddCommand(screenshotsReplaceCmd)
	screenshotsCmd.AddCommand(screenshotsDeleteCmd)
	screenshotsCmd.AddCommand(screenshotsExportCmd)
	screenshotsCmd.AddCommand(screenshotsCheckCmd)
	rootCmd.AddCommand(screenshotsCmd)
}

// openStore opens the album of the storage directory. With allowEmpty a
// directory without index files starts an empty album.
func openStore(allowEmpty bool) (*config.Config, *screenshot.Store, func(), error) {
	c, dir, err := storageDir()
	if err != nil {
		return nil, nil, nil, err
	}

	imgCache, closeCache := openImageCache(c)
	store, err := screenshot.Open(dir, screenshot.Options{
		Naming:       screenshot.Naming{Prefix: c.Screenshot.Prefix, Ext: c.Screenshot.Ext},
		ThumbWidth:   c.Screenshot.ThumbWidth,
		ThumbHeight:  c.Screenshot.ThumbHeight,
		ThumbQuality: c.Screenshot.ThumbQuality,
		Cache:        imgCache,
	})
	if err != nil {
		closeCache()
		return nil, nil, nil, err
	}

	if err := store.Load(); err != nil {
		if !allowEmpty || !errors.Is(err, screenshot.ErrIndexMissing) {
			closeCache()
			return nil, nil, nil, err
		}
		printVerbose("No screenshot index in %s, starting an empty album", dir)
		if err := store.Init(); err != nil {
			closeCache()
			return nil, nil, nil, err
		}
	}
	return c, store, closeCache, nil
}

// openImageCache builds the decoded image cache unless it is disabled. A
// persistent tier that cannot be opened (another process holds it) is
// skipped.
func openImageCache(c *config.Config) (*cache.ImageCache, func()) {
	if !c.Cache.Enabled || viper.GetBool("no_cache") {
		return nil, func() {}
	}

	var store *cache.Store
	if c.Cache.Path != "" {
		s, err := cache.OpenStore(c.Cache.Path)
		if err != nil {
			logging.Get("cli").Warn("persistent image cache unavailable", "path", c.Cache.Path, "error", err)
		} else {
			store = s
		}
	}

	imgCache, err := cache.NewImageCache(cache.Options{
		Originals:  c.Cache.Originals,
		Thumbnails: c.Cache.Thumbnails,
		Store:      store,
	})
	if err != nil {
		logging.Get("cli").Warn("image cache disabled", "error", err)
		if store != nil {
			_ = store.Close()
		}
		return nil, func() {}
	}
	return imgCache, func() {
		imgCache.Close()
		if store != nil {
			_ = store.Close()
		}
	}
}

// filesOf returns the paths of the image files of ids.
func filesOf(store *screenshot.Store, ids ...string) []string {
	files := store.Files()
	var out []string
	for _, id := range ids {
		pair := files[id]
		for _, name := range []string{pair.Main, pair.Thumb} {
			if name != "" {
				out = append(out, filepath.Join(store.Dir(), name))
			}
		}
	}
	return out
}

func indexFiles(c *config.Config, dir string) []string {
	n := screenshot.Naming{Prefix: c.Screenshot.Prefix, Ext: c.Screenshot.Ext}
	return []string{filepath.Join(dir, n.IDsName()), filepath.Join(dir, n.AllIDsName())}
}

// parsePosition converts a 1-based position argument to an index.
func parsePosition(s string, n int) (int, error) {
	p, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid position %q", s)
	}
	if p < 1 || p > n {
		return 0, fmt.Errorf("%w: %d (album has %d screenshots)", screenshot.ErrInvalidPosition, p, n)
	}
	return p - 1, nil
}

// parseOrder converts 1-based positions into a 0-based permutation. Commas
// and spaces both separate positions.
func parseOrder(args []string, n int) ([]int, error) {
	var order []int
	for _, arg := range args {
		for _, part := range strings.FieldsFunc(arg, func(r rune) bool { return r == ',' || r == ' ' }) {
			p, err := parsePosition(part, n)
			if err != nil {
				return nil, err
			}
			order = append(order, p)
		}
	}
	return order, nil
}

func runScreenshotsList(cmd *cobra.Command, args []string) error {
	_, store, done, err := openStore(false)
	if err != nil {
		return err
	}
	defer done()
	return render(screenshotResult(store.Dir(), store.Entries()))
}

func runScreenshotsCheck(cmd *cobra.Command, args []string) error {
	_, store, done, err := openStore(false)
	if err != nil {
		return err
	}
	defer done()
	return render(checkResult(store.Dir(), store.Check()))
}

func runScreenshotsSort(cmd *cobra.Command, args []string) error {
	c, store, done, err := openStore(false)
	if err != nil {
		return err
	}
	defer done()

	ctx, cancel := signalContext()
	defer cancel()

	direction := "ascending"
	if sortDesc {
		direction = "descending"
	}
	err = store.SortByDate(ctx, !sortDesc)
	record(c, manifest.Op{
		Type:       manifest.OpScreenshotReorder,
		StorageDir: store.Dir(),
		Files:      manifest.Records(indexFiles(c, store.Dir())...),
		Detail:     "sort by date " + direction,
		Err:        err,
	})
	if err != nil {
		return fmt.Errorf("failed to sort screenshots: %w", err)
	}
	printInfo("Sorted %d screenshots by date (%s)", store.Index().Len(), direction)
	return nil
}

func runScreenshotsMove(cmd *cobra.Command, args []string) error {
	c, store, done, err := openStore(false)
	if err != nil {
		return err
	}
	defer done()

	n := store.Index().Len()
	from, err := parsePosition(args[0], n)
	if err != nil {
		return err
	}
	to, err := parsePosition(args[1], n)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	err = store.Move(ctx, from, to)
	record(c, manifest.Op{
		Type:       manifest.OpScreenshotReorder,
		StorageDir: store.Dir(),
		Files:      manifest.Records(indexFiles(c, store.Dir())...),
		Detail:     fmt.Sprintf("move %d to %d", from+1, to+1),
		Err:        err,
	})
	if err != nil {
		return fmt.Errorf("failed to move screenshot: %w", err)
	}
	printInfo("Moved screenshot %d to position %d", from+1, to+1)
	return nil
}

func runScreenshotsReorder(cmd *cobra.Command, args []string) error {
	c, store, done, err := openStore(false)
	if err != nil {
		return err
	}
	defer done()

	order, err := parseOrder(args, store.Index().Len())
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	err = store.Reorder(ctx, order)
	record(c, manifest.Op{
		Type:       manifest.OpScreenshotReorder,
		StorageDir: store.Dir(),
		Files:      manifest.Records(indexFiles(c, store.Dir())...),
		Detail:     "reorder " + strings.Join(args, " "),
		Err:        err,
	})
	if err != nil {
		return fmt.Errorf("failed to reorder screenshots: %w", err)
	}
	printInfo("Reordered %d screenshots", len(order))
	return nil
}

func runScreenshotsAdd(cmd *cobra.Command, args []string) error {
	c, store, done, err := openStore(true)
	if err != nil {
		return err
	}
	defer done()

	id := addID
	if id == "" {
		id = store.GenerateID()
	}
	date := addDate
	if date == "" {
		date = screenshot.Now()
	}

	ctx, cancel := signalContext()
	defer cancel()

	err = store.Add(ctx, id, date, args[0])
	record(c, manifest.Op{
		Type:       manifest.OpScreenshotAdd,
		StorageDir: store.Dir(),
		Files:      manifest.Records(filesOf(store, id)...),
		Detail:     fmt.Sprintf("%s from %s", id, args[0]),
		Err:        err,
	})
	if err != nil {
		return fmt.Errorf("failed to add screenshot: %w", err)
	}
	printInfo("Added screenshot %s (%s) at position %d", id, date, store.Index().Len())
	return nil
}

func runScreenshotsReplace(cmd *cobra.Command, args []string) error {
	c, store, done, err := openStore(false)
	if err != nil {
		return err
	}
	defer done()

	id := args[0]
	ctx, cancel := signalContext()
	defer cancel()

	err = store.Replace(ctx, id, args[1])
	record(c, manifest.Op{
		Type:       manifest.OpScreenshotReplace,
		StorageDir: store.Dir(),
		Files:      manifest.Records(filesOf(store, id)...),
		Detail:     fmt.Sprintf("%s from %s", id, args[1]),
		Err:        err,
	})
	if err != nil {
		return fmt.Errorf("failed to replace screenshot: %w", err)
	}
	printInfo("Replaced image of screenshot %s", id)
	return nil
}

func runScreenshotsDelete(cmd *cobra.Command, args []string) error {
	c, store, done, err := openStore(false)
	if err != nil {
		return err
	}
	defer done()

	if !confirm(fmt.Sprintf("Delete %d screenshot(s) and their files?", len(args))) {
		return errNotConfirmed
	}

	files := manifest.Records(filesOf(store, args...)...)
	ctx, cancel := signalContext()
	defer cancel()

	res, err := store.Delete(ctx, args)
	if err == nil {
		err = errors.Join(res.Errors...)
	}
	record(c, manifest.Op{
		Type:       manifest.OpScreenshotDelete,
		StorageDir: store.Dir(),
		Files:      files,
		Detail:     strings.Join(res.Removed, ","),
		Err:        err,
	})
	for _, e := range res.Errors {
		printError("%v", e)
	}
	printInfo("Deleted %d screenshot(s), %d file(s) removed", len(res.Removed), res.FilesRemoved)
	if skipped := len(args) - len(res.Removed); skipped > 0 {
		printInfo("%d id(s) were not found", skipped)
	}
	return err
}

func runScreenshotsExport(cmd *cobra.Command, args []string) error {
	c, store, done, err := openStore(false)
	if err != nil {
		return err
	}
	defer done()

	format, err := imaging.ParseFormat(exportFormat)
	if err != nil {
		return err
	}
	ids := args
	if len(ids) == 0 {
		ids = store.Index().IDs()
	}
	if len(ids) == 0 {
		printInfo("Nothing to export.")
		return nil
	}

	ctx, cancel := signalContext()
	defer cancel()

	var progress types.ProgressFunc
	if !getQuiet() {
		progress = func(completed, total int) {
			fmt.Fprintf(os.Stderr, "\rExporting %d/%d", completed, total)
			if completed == total {
				fmt.Fprintln(os.Stderr)
			}
		}
	}
	res := store.Export(ctx, ids, exportDest, format, progress)
	record(c, manifest.Op{
		Type:       manifest.OpScreenshotExport,
		StorageDir: store.Dir(),
		Files:      manifest.Records(res.Written...),
		Detail:     fmt.Sprintf("%s to %s", format, exportDest),
		Err:        res.Err,
	})
	printInfo("Exported %d screenshot(s) to %s", len(res.Written), exportDest)
	if res.Failed > 0 {
		return fmt.Errorf("%d screenshot(s) failed to export: %w", res.Failed, res.Err)
	}
	return nil
}
