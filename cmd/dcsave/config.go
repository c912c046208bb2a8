package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/jamesainslie/dcsave/pkg/dcsave/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `Manage dcsave configuration settings.

Configuration is loaded from $XDG_CONFIG_HOME/dcsave/config.yaml
(~/.config/dcsave/config.yaml by default).

Environment variables override config file settings using the DCSAVE_ prefix:
  DCSAVE_STORAGE_DIR=/path/to/_storage
  DCSAVE_BACKUP_DIR=/path/to/backups
  DCSAVE_MANIFEST_ENABLED=false`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the current configuration settings from all sources.`,
	RunE:  runConfigShow,
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Edit configuration file",
	Long: `Open the configuration file in your default editor.

The editor is determined by:
  1. $VISUAL environment variable
  2. $EDITOR environment variable
  3. Falls back to 'vi'

If the config file doesn't exist, a default one will be created first.`,
	RunE: runConfigEdit,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create default configuration file",
	Long:  `Create a default configuration file if one doesn't exist.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show configuration file path",
	Long:  `Display the path to the configuration file.`,
	RunE:  runConfigPath,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
	rootCmd.AddCommand(configCmd)
}

// configSettings lists the effective configuration keyed like the file.
func configSettings(c *config.Config) map[string]any {
	return map[string]any{
		"storage_dir":      c.StorageDir,
		"backup_dir":       c.BackupDir,
		"collapsed_fields": c.CollapsedFields,
		"placeholder":      c.Placeholder,
		"inline_lists":     c.InlineLists,
		"screenshot": map[string]any{
			"prefix":        c.Screenshot.Prefix,
			"ext":           c.Screenshot.Ext,
			"thumb_quality": c.Screenshot.ThumbQuality,
			"thumb_width":   c.Screenshot.ThumbWidth,
			"thumb_height":  c.Screenshot.ThumbHeight,
		},
		"cache": map[string]any{
			"enabled":    c.Cache.Enabled,
			"originals":  c.Cache.Originals,
			"thumbnails": c.Cache.Thumbnails,
			"path":       c.Cache.Path,
		},
		"backup": map[string]any{
			"required_files":    c.Backup.RequiredFiles,
			"compression_level": c.Backup.CompressionLevel,
			"sample_ratio":      c.Backup.SampleRatio,
		},
		"manifest": map[string]any{
			"enabled":        c.Manifest.Enabled,
			"path":           c.Manifest.Path,
			"retention_days": c.Manifest.RetentionDays,
		},
		"logging": map[string]any{
			"level":      c.Logging.Level,
			"path":       c.Logging.Path,
			"console":    c.Logging.Console,
			"components": c.Logging.Components,
			"rotation": map[string]any{
				"max_size":    c.Logging.Rotation.MaxSize,
				"max_age":     c.Logging.Rotation.MaxAge,
				"max_backups": c.Logging.Rotation.MaxBackups,
				"daily":       c.Logging.Rotation.Daily,
			},
		},
		"watch": map[string]any{
			"ignored_vars": c.Watch.IgnoredVars,
			"debounce":     c.Watch.Debounce.String(),
		},
	}
}

// envOverrides returns the DCSAVE_ variables that are set.
func envOverrides(environ []string) []string {
	var out []string
	for _, kv := range environ {
		if strings.HasPrefix(kv, config.EnvPrefix+"_") {
			out = append(out, kv)
		}
	}
	return out
}

// runConfigShow displays the current configuration.
func runConfigShow(cmd *cobra.Command, args []string) error {
	c, err := getConfig()
	if err != nil {
		printError("Failed to load configuration: %v", err)
		v := viper.New()
		config.SetDefaults(v)
		if c, err = config.FromViper(v); err != nil {
			return err
		}
	}

	if configFile := viper.ConfigFileUsed(); configFile != "" {
		fmt.Printf("# Config file: %s\n", configFile)
	} else {
		fmt.Println("# Config file: (using defaults, no file found)")
	}

	data, err := yaml.Marshal(configSettings(c))
	if err != nil {
		return err
	}
	fmt.Print(string(data))

	if env := envOverrides(os.Environ()); len(env) > 0 {
		fmt.Println("\n# Environment overrides:")
		for _, kv := range env {
			fmt.Printf("#   %s\n", kv)
		}
	}
	return nil
}

// runConfigEdit opens the config file in an editor.
func runConfigEdit(cmd *cobra.Command, args []string) error {
	path, _, err := config.WriteDefault()
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	return runEditor(path)
}

// runConfigInit creates a default config file.
func runConfigInit(cmd *cobra.Command, args []string) error {
	path, created, err := config.WriteDefault()
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	if !created {
		printInfo("Config file already exists: %s", path)
		printInfo("Use 'dcsave config edit' to modify it.")
		return nil
	}
	printInfo("Created default config file: %s", path)
	return nil
}

// runConfigPath shows the config file path.
func runConfigPath(cmd *cobra.Command, args []string) error {
	path := config.ConfigFile()
	fmt.Println(path)

	if _, err := os.Stat(path); err == nil {
		printVerbose("File exists")
	} else if os.IsNotExist(err) {
		printVerbose("File does not exist (will use defaults)")
	}
	return nil
}
