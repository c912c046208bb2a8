package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jamesainslie/dcsave/pkg/dcsave/savediff"
	"github.com/jamesainslie/dcsave/pkg/dcsave/watcher"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print save variable changes as the game writes them",
	Long: `Watch the main save file and print every variable that changes.

  -key              key removed
  +key = value      key added
  key old→new       value changed
  key.append(v)     list member added
  key.remove(v)     list member removed

Variables listed in watch.ignored_vars (record and initialVars by default)
are not reported. Press Ctrl+C to stop.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

var (
	watchFile     string
	watchIgnore   string
	watchDebounce time.Duration
)

func init() {
	watchCmd.Flags().StringVar(&watchFile, "file", watcher.DefaultFile, "save file name inside the storage directory")
	watchCmd.Flags().StringVar(&watchIgnore, "ignore", "", "extra comma-separated variables to ignore")
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 0, "wait this long after the last write (default from config)")
	rootCmd.AddCommand(watchCmd)
}

// watchOptions merges the config with the command-line flags.
func watchOptions(ignored []string, debounce time.Duration) watcher.Options {
	opts := watcher.Options{
		File:     watchFile,
		Debounce: debounce,
		Ignored:  append(append([]string{}, ignored...), savediff.ParseIgnored(watchIgnore)...),
	}
	if watchDebounce > 0 {
		opts.Debounce = watchDebounce
	}
	return opts
}

func runWatch(cmd *cobra.Command, args []string) error {
	c, dir, err := storageDir()
	if err != nil {
		return err
	}

	w, err := watcher.New(dir, watchOptions(c.Watch.IgnoredVars, c.Watch.Debounce))
	if err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	defer func() { _ = w.Close() }()

	sub := w.Subscribe()
	ctx, cancel := signalContext()
	defer cancel()
	go w.Run(ctx)

	printInfo("Watching %s (Ctrl+C to stop)", w.Path())
	structured := isStructuredOutput(viper.GetString("output"))
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-sub.Events:
			if !ok {
				return nil
			}
			if err := printEvent(ev, structured); err != nil {
				return err
			}
		}
	}
}

func isStructuredOutput(format string) bool {
	switch format {
	case "json", "jsonl", "yaml":
		return true
	}
	return false
}

func printEvent(ev *watcher.Event, structured bool) error {
	if structured {
		return render(changesResult(ev.Path, ev.Time, ev.Changes))
	}
	stamp := ev.Time.Format("15:04:05")
	switch ev.Type {
	case watcher.EventChanged:
		for _, line := range savediff.Lines(ev.Changes) {
			fmt.Printf("[%s] %s\n", stamp, line)
		}
	case watcher.EventReset:
		fmt.Printf("[%s] storage reset, starting from scratch\n", stamp)
	default:
		fmt.Printf("[%s] save file %s\n", stamp, ev.Type)
	}
	return nil
}
