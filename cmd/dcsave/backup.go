package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/dcsave/pkg/dcsave/backup"
	"github.com/jamesainslie/dcsave/pkg/dcsave/config"
	"github.com/jamesainslie/dcsave/pkg/dcsave/manifest"
	"github.com/jamesainslie/dcsave/pkg/dcsave/output"
	"github.com/jamesainslie/dcsave/pkg/dcsave/types"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Create and restore backups of the storage directory",
	Long: `Create and restore zip backups of the _storage directory.

Backups are written to the backup directory (dcsm_backups next to the
storage directory unless configured) as DC_storage_backup_<time>.zip.
Each archive starts with a small manifest holding its creation time.

Archives may be given as a path or as a name inside the backup directory.`,
}

var backupCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Back up the storage directory",
	Args:  cobra.NoArgs,
	RunE:  runBackupCreate,
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List backups, newest first",
	Args:  cobra.NoArgs,
	RunE:  runBackupList,
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore <archive>",
	Short: "Replace the storage directory with a backup",
	Long: `Replace everything in the storage directory with the contents of a
backup. The archive is checked for the core save files first; a backup
without them needs an extra confirmation.`,
	Args: cobra.ExactArgs(1),
	RunE: runBackupRestore,
}

var backupCheckCmd = &cobra.Command{
	Use:   "check <archive>",
	Short: "Check that a backup holds the core save files",
	Args:  cobra.ExactArgs(1),
	RunE:  runBackupCheck,
}

var backupEstimateCmd = &cobra.Command{
	Use:   "estimate",
	Short: "Estimate the size of a new backup",
	Args:  cobra.NoArgs,
	RunE:  runBackupEstimate,
}

var backupDeleteCmd = &cobra.Command{
	Use:   "delete <archive>",
	Short: "Move a backup to the trash",
	Args:  cobra.ExactArgs(1),
	RunE:  runBackupDelete,
}

var backupRenameCmd = &cobra.Command{
	Use:   "rename <archive> <new-name>",
	Short: "Rename a backup",
	Args:  cobra.ExactArgs(2),
	RunE:  runBackupRename,
}

var backupFirst bool

func init() {
	backupRestoreCmd.Flags().BoolVar(&backupFirst, "backup-first", false, "back up the current storage before restoring")

	backupCmd.AddCommand(backupCreateCmd)
	backupCmd.AddCommand(backupListCmd)
	backupCmd.AddCommand(backupRestoreCmd)
	backupCmd.AddCommand(backupCheckCmd)
	backupCmd.AddCommand(backupEstimateCmd)
	backupCmd.AddCommand(backupDeleteCmd)
	backupCmd.AddCommand(backupRenameCmd)
	rootCmd.AddCommand(backupCmd)
}

func backupOptions(c *config.Config) backup.Options {
	return backup.Options{
		Level:       c.Backup.CompressionLevel,
		SampleRatio: c.Backup.SampleRatio,
		Version:     version,
	}
}

// backupDirs returns the storage and backup directories.
func backupDirs() (*config.Config, string, string, error) {
	c, storage, err := storageDir()
	if err != nil {
		return nil, "", "", err
	}
	dir := c.BackupDir
	if dir == "" {
		dir = config.DefaultBackupDir(storage)
	}
	return c, storage, dir, nil
}

// resolveArchive accepts a path or a name inside the backup directory.
func resolveArchive(arg, backupDir string) (string, error) {
	if _, err := os.Stat(arg); err == nil {
		return filepath.Abs(arg)
	}
	for _, name := range []string{arg, arg + ".zip"} {
		candidate := filepath.Join(backupDir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("backup not found: %s", arg)
}

// progressPrinter reports progress on stderr unless quiet.
func progressPrinter(label string) types.ProgressFunc {
	if getQuiet() {
		return nil
	}
	return func(completed, total int) {
		fmt.Fprintf(os.Stderr, "\r%s %d/%d", label, completed, total)
		if completed == total {
			fmt.Fprintln(os.Stderr)
		}
	}
}

func runBackupCreate(cmd *cobra.Command, args []string) error {
	c, storage, dir, err := backupDirs()
	if err != nil {
		return err
	}
	return createBackup(c, storage, dir)
}

func createBackup(c *config.Config, storage, dir string) error {
	opts := backupOptions(c)
	if estimate, err := backup.EstimateSize(storage, opts); err == nil {
		printVerbose("Estimated archive size %s", types.FormatSize(estimate))
	}

	ctx, cancel := signalContext()
	defer cancel()

	info, err := backup.Create(ctx, storage, dir, opts, progressPrinter("Packing"))
	op := manifest.Op{Type: manifest.OpBackupCreate, StorageDir: storage, Err: err}
	if info != nil {
		op.Files = manifest.Records(info.Path)
	}
	record(c, op)
	if err != nil {
		return fmt.Errorf("failed to create backup: %w", err)
	}
	printInfo("Created %s (%s)", info.Path, types.FormatSize(info.Size))
	return nil
}

func runBackupList(cmd *cobra.Command, args []string) error {
	_, _, dir, err := backupDirs()
	if err != nil {
		return err
	}
	infos, err := backup.Scan(dir)
	if err != nil {
		return fmt.Errorf("failed to list backups: %w", err)
	}
	return render(backupResult(dir, infos))
}

func runBackupCheck(cmd *cobra.Command, args []string) error {
	c, _, dir, err := backupDirs()
	if err != nil {
		return err
	}
	archive, err := resolveArchive(args[0], dir)
	if err != nil {
		return err
	}
	missing, err := backup.CheckRequiredFilesAt(archive, c.Backup.RequiredFiles)
	if err != nil {
		return err
	}
	return render(requiredFilesResult(archive, c.Backup.RequiredFiles, missing))
}

func requiredFilesResult(archive string, required, missing []string) *output.Result {
	absent := make(map[string]bool, len(missing))
	for _, m := range missing {
		absent[m] = true
	}
	r := &output.Result{
		Title:   "Backup check",
		Source:  archive,
		Columns: []string{"File", "Status"},
		Items:   map[string][]string{"required": required, "missing": missing},
	}
	for _, name := range required {
		status := "present"
		if absent[name] {
			status = output.MissingMark
		}
		r.Rows = append(r.Rows, []string{name, status})
	}
	if len(missing) > 0 {
		r.Warnings = append(r.Warnings, fmt.Sprintf("%d required file(s) missing; restoring this backup may lose progress", len(missing)))
	}
	return r
}

func runBackupEstimate(cmd *cobra.Command, args []string) error {
	c, storage, _, err := backupDirs()
	if err != nil {
		return err
	}
	size, err := backup.EstimateSize(storage, backupOptions(c))
	if err != nil {
		return err
	}
	fmt.Println(types.FormatSize(size))
	return nil
}

func runBackupRestore(cmd *cobra.Command, args []string) error {
	c, storage, dir, err := backupDirs()
	if err != nil {
		return err
	}
	archive, err := resolveArchive(args[0], dir)
	if err != nil {
		return err
	}

	missing, err := backup.CheckRequiredFilesAt(archive, c.Backup.RequiredFiles)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		printError("%s is missing %v", filepath.Base(archive), missing)
		if !confirm("Restore it anyway?") {
			return errNotConfirmed
		}
	}
	if !confirm(fmt.Sprintf("Replace everything in %s with %s?", storage, filepath.Base(archive))) {
		return errNotConfirmed
	}

	if backupFirst {
		if err := createBackup(c, storage, dir); err != nil {
			return err
		}
	}

	ctx, cancel := signalContext()
	defer cancel()

	res, err := backup.Restore(ctx, archive, storage, progressPrinter("Restoring"))
	if err == nil {
		err = res.Err()
	}
	record(c, manifest.Op{
		Type:       manifest.OpBackupRestore,
		StorageDir: storage,
		Files:      manifest.Records(archive),
		Err:        err,
	})
	if res != nil {
		printInfo("Restored %d file(s) from %s", res.Extracted, filepath.Base(archive))
		for _, name := range res.Skipped {
			printError("skipped unsafe entry %s", name)
		}
	}
	if err != nil {
		return fmt.Errorf("failed to restore backup: %w", err)
	}
	return nil
}

func runBackupDelete(cmd *cobra.Command, args []string) error {
	c, storage, dir, err := backupDirs()
	if err != nil {
		return err
	}
	archive, err := resolveArchive(args[0], dir)
	if err != nil {
		return err
	}
	if !confirm(fmt.Sprintf("Move %s to the trash?", filepath.Base(archive))) {
		return errNotConfirmed
	}

	files := manifest.Records(archive)
	err = backup.Delete(archive)
	record(c, manifest.Op{Type: manifest.OpBackupDelete, StorageDir: storage, Files: files, Err: err})
	if err != nil {
		return fmt.Errorf("failed to delete backup: %w", err)
	}
	printInfo("Deleted %s", filepath.Base(archive))
	return nil
}

func runBackupRename(cmd *cobra.Command, args []string) error {
	c, storage, dir, err := backupDirs()
	if err != nil {
		return err
	}
	archive, err := resolveArchive(args[0], dir)
	if err != nil {
		return err
	}

	target, err := backup.Rename(archive, args[1])
	op := manifest.Op{
		Type:       manifest.OpBackupRename,
		StorageDir: storage,
		Detail:     fmt.Sprintf("%s -> %s", filepath.Base(archive), args[1]),
		Err:        err,
	}
	if err == nil {
		op.Files = manifest.Records(target)
	}
	record(c, op)
	if err != nil {
		return fmt.Errorf("failed to rename backup: %w", err)
	}
	printInfo("Renamed %s to %s", filepath.Base(archive), filepath.Base(target))
	return nil
}
