package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/dcsave/pkg/dcsave/config"
	"github.com/jamesainslie/dcsave/pkg/dcsave/manifest"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List operations that changed save data",
	Long: `List recorded screenshot, document and backup operations, newest first.

Each entry keeps the files it touched. Recording is switched off with
manifest.enabled: false.

Examples:
  dcsave history --op backup          # backup-create, backup-restore, ...
  dcsave history --failed             # only operations that reported an error
  dcsave history show <id>`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one recorded operation and its files",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historyCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove entries past the retention period",
	Args:  cobra.NoArgs,
	RunE:  runHistoryClean,
}

var (
	historyLimit  int
	historyOp     string
	historyFailed bool
	historyDays   int
)

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "l", 20, "maximum number of entries (0 for all)")
	historyCmd.Flags().StringVar(&historyOp, "op", "", "operation or operation prefix, e.g. screenshot or backup-restore")
	historyCmd.Flags().BoolVar(&historyFailed, "failed", false, "only failed operations")
	historyCleanCmd.Flags().IntVar(&historyDays, "days", 0, "retention in days (default: manifest.retention_days)")

	historyCmd.AddCommand(historyShowCmd, historyCleanCmd)
	rootCmd.AddCommand(historyCmd)
}

// getManifest opens the configured history directory, or the default one
// when the configuration cannot be loaded.
func getManifest() (*manifest.Manifest, error) {
	dir := config.ManifestDir()
	if c, err := getConfig(); err == nil && c.Manifest.Path != "" {
		dir = c.Manifest.Path
	} else if err != nil {
		printVerbose("Using default history directory: %v", err)
	}
	m, err := manifest.New(dir)
	if err != nil {
		return nil, fmt.Errorf("opening history: %w", err)
	}
	return m, nil
}

// filterEntries keeps entries whose operation equals op or starts with
// "op-", and only failed ones when failed is set. limit applies afterwards.
func filterEntries(entries []manifest.Entry, op string, failed bool, limit int) []manifest.Entry {
	op = strings.ToLower(strings.TrimSpace(op))
	out := entries[:0:0]
	for _, e := range entries {
		name := string(e.Operation)
		if op != "" && name != op && !strings.HasPrefix(name, op+"-") {
			continue
		}
		if failed && e.Error == "" {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func runHistory(cmd *cobra.Command, args []string) error {
	m, err := getManifest()
	if err != nil {
		return err
	}

	// Filters run before the limit, so read everything when filtering.
	limit := historyLimit
	if historyOp != "" || historyFailed {
		limit = 0
	}
	entries, err := m.List(limit)
	if err != nil {
		return fmt.Errorf("reading history: %w", err)
	}
	entries = filterEntries(entries, historyOp, historyFailed, historyLimit)
	return render(historyResult(m.Dir(), entries))
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	m, err := getManifest()
	if err != nil {
		return err
	}
	entry, err := m.Get(args[0])
	if err != nil {
		return fmt.Errorf("history entry %s: %w", args[0], err)
	}
	return render(historyEntryResult(entry))
}

func runHistoryClean(cmd *cobra.Command, args []string) error {
	m, err := getManifest()
	if err != nil {
		return err
	}

	days := historyDays
	if days <= 0 {
		days = config.DefaultRetentionDays
		if c, err := getConfig(); err == nil && c.Manifest.RetentionDays > 0 {
			days = c.Manifest.RetentionDays
		}
	}

	removed, err := m.Cleanup(days)
	if err != nil {
		return fmt.Errorf("cleaning history: %w", err)
	}
	printInfo("Removed %d history entries older than %d days from %s", removed, days, m.Dir())
	return nil
}
