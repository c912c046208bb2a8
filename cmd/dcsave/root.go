package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jamesainslie/dcsave/pkg/dcsave/config"
	"github.com/jamesainslie/dcsave/pkg/dcsave/logging"
)

var (
	cfgFile string
	cfg     *config.Config
	cfgErr  error

	rootCmd = &cobra.Command{
		Use:   "dcsave",
		Short: "Inspect and edit DevilConnection save data",
		Long: `dcsave reads and writes the percent-encoded save files of DevilConnection.

It manages the screenshot album, edits the main save document with large
fields collapsed, and creates or restores zip backups of the _storage
directory.

The storage directory is taken from --storage, DCSAVE_STORAGE_DIR or the
config file, and is detected through Steam when none is set.

Examples:
  dcsave screenshots list             # List the screenshot album
  dcsave screenshots sort --desc      # Newest screenshots first
  dcsave doc edit                     # Edit the save in $EDITOR
  dcsave backup create                # Zip the storage directory
  dcsave watch                        # Print save variable changes live
  dcsave decode DevilConnection_sf.sav`,
		SilenceUsage:      true,
		PersistentPostRun: func(*cobra.Command, []string) { _ = logging.Close() },
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.config/dcsave/config.yaml)")
	rootCmd.PersistentFlags().String("storage", "", "game _storage directory")
	rootCmd.PersistentFlags().String("backup-dir", "", "backup directory (default: dcsm_backups next to storage)")
	rootCmd.PersistentFlags().StringP("output", "o", "pretty", "output format: pretty, table, plain, tsv, csv, markdown, json, jsonl, yaml, template")
	rootCmd.PersistentFlags().String("template", "", "Go template for -o template")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "minimal output")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "debug output")
	rootCmd.PersistentFlags().Bool("no-cache", false, "bypass the decoded image cache")
	rootCmd.PersistentFlags().BoolP("yes", "y", false, "answer yes to confirmation prompts")

	_ = viper.BindPFlag("storage_dir", rootCmd.PersistentFlags().Lookup("storage"))
	_ = viper.BindPFlag("backup_dir", rootCmd.PersistentFlags().Lookup("backup-dir"))
	_ = viper.BindPFlag("output", rootCmd.PersistentFlags().Lookup("output"))
	_ = viper.BindPFlag("template", rootCmd.PersistentFlags().Lookup("template"))
	_ = viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("no_cache", rootCmd.PersistentFlags().Lookup("no-cache"))
	_ = viper.BindPFlag("yes", rootCmd.PersistentFlags().Lookup("yes"))
}

// initConfig reads the config file and environment, then starts logging.
func initConfig() {
	v := viper.GetViper()
	config.Configure(v, cfgFile)

	if err := config.ReadIn(v); err != nil {
		cfgErr = err
		return
	}
	cfg, cfgErr = config.FromViper(v)
	if cfgErr != nil {
		return
	}
	if err := cfg.Validate(); err != nil {
		cfgErr = fmt.Errorf("invalid configuration: %w", err)
		return
	}

	logCfg, err := cfg.Logging.LogConfig()
	if err != nil {
		cfgErr = err
		return
	}
	if getVerbose() {
		logCfg.ConsoleLevel = "debug"
	}
	if err := logging.Init(logCfg); err != nil {
		// Logging is best effort; commands still run without a log file.
		printVerbose("logging disabled: %v", err)
	}
	logging.Get("cli").Debug("configuration loaded", "file", v.ConfigFileUsed(), "storage", cfg.StorageDir)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// getConfig returns the configuration loaded by initConfig.
func getConfig() (*config.Config, error) {
	if cfgErr != nil {
		return nil, cfgErr
	}
	if cfg == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}
	return cfg, nil
}

// storageDir returns the configured or detected storage directory.
func storageDir() (*config.Config, string, error) {
	c, err := getConfig()
	if err != nil {
		return nil, "", err
	}
	dir, err := c.RequireStorageDir()
	if err != nil {
		return nil, "", err
	}
	printVerbose("Using storage directory %s", dir)
	return c, dir, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// getVerbose returns true if verbose mode is enabled.
func getVerbose() bool {
	return viper.GetBool("verbose")
}

// getQuiet returns true if quiet mode is enabled.
func getQuiet() bool {
	return viper.GetBool("quiet")
}

// printVerbose prints a message if verbose mode is enabled.
func printVerbose(format string, args ...interface{}) {
	if getVerbose() && !getQuiet() {
		fmt.Fprintf(os.Stderr, "[DEBUG] "+format+"\n", args...)
	}
}

// printInfo prints a message if quiet mode is not enabled.
func printInfo(format string, args ...interface{}) {
	if !getQuiet() {
		fmt.Printf(format+"\n", args...)
	}
}

// printError prints an error message to stderr.
func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}
