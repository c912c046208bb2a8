package main

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/dcsave/pkg/dcsave/config"
	"github.com/jamesainslie/dcsave/pkg/dcsave/document"
	"github.com/jamesainslie/dcsave/pkg/dcsave/manifest"
	"github.com/jamesainslie/dcsave/pkg/dcsave/savecodec"
	"github.com/jamesainslie/dcsave/pkg/dcsave/watcher"
)

var docCmd = &cobra.Command{
	Use:     "doc",
	Aliases: []string{"document"},
	Short:   "View and edit the main save document",
	Long: `View and edit the main save document (DevilConnection_sf.sav).

Large fields such as record and initialVars are collapsed to a placeholder
in the collapsed view. Leave a placeholder untouched and the original value
is restored on save; replace it and your value is kept.

Paths for get, set and delete are dotted keys with numeric array indexes,
for example system.endings.0.`,
}

var docShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the document",
	Args:  cobra.NoArgs,
	RunE:  runDocShow,
}

var docEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Edit the document in $EDITOR",
	Long: `Open the rendered document in $VISUAL or $EDITOR (falling back to vi)
and save it when the editor exits with changes.`,
	Args: cobra.NoArgs,
	RunE: runDocEdit,
}

var docGetCmd = &cobra.Command{
	Use:   "get <path>",
	Short: "Print the value at a path",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocGet,
}

var docSetCmd = &cobra.Command{
	Use:   "set <path> <json>",
	Short: "Set the value at a path",
	Long: `Set the value at a path. The value is parsed as JSON; text that is not
valid JSON is stored as a string.

  dcsave doc set system.volume 0.5
  dcsave doc set sf.name '"Ruru"'`,
	Args: cobra.ExactArgs(2),
	RunE: runDocSet,
}

var docDeleteCmd = &cobra.Command{
	Use:   "delete <path>",
	Short: "Remove the value at a path",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocDelete,
}

var (
	docFile string
	docFull bool
)

func init() {
	docCmd.PersistentFlags().StringVarP(&docFile, "file", "f", "", "save file (default: DevilConnection_sf.sav in the storage directory)")
	docShowCmd.Flags().BoolVar(&docFull, "full", false, "show collapsed fields")
	docEditCmd.Flags().BoolVar(&docFull, "full", false, "edit without collapsing fields")

	docCmd.AddCommand(docShowCmd)
	docCmd.AddCommand(docEditCmd)
	docCmd.AddCommand(docGetCmd)
	docCmd.AddCommand(docSetCmd)
	docCmd.AddCommand(docDeleteCmd)
	rootCmd.AddCommand(docCmd)
}

// openDocument loads the save document named by --file or the default one.
func openDocument() (*config.Config, string, *document.Document, error) {
	c, err := getConfig()
	if err != nil {
		return nil, "", nil, err
	}
	path := docFile
	if path == "" {
		dir, err := c.RequireStorageDir()
		if err != nil {
			return nil, "", nil, err
		}
		path = filepath.Join(dir, watcher.DefaultFile)
	}

	v, err := savecodec.ReadFile(path)
	if err != nil {
		return nil, "", nil, err
	}
	d, err := document.New(v, document.Options{
		Fields:      c.CollapsedFields,
		Placeholder: c.Placeholder,
		InlineLists: c.InlineLists,
	})
	if err != nil {
		return nil, "", nil, fmt.Errorf("%s: %w", path, err)
	}
	if docFull {
		if _, err := d.SetRawMode(true, d.Rendered(), nil); err != nil {
			return nil, "", nil, err
		}
	}
	printVerbose("Opened %s (%d collapsed fields)", path, len(d.CollapsedPaths()))
	return c, path, d, nil
}

// parseValue reads a command-line value as JSON, falling back to a string.
func parseValue(s string) savecodec.Value {
	v, err := savecodec.ParseJSON([]byte(s))
	if err != nil {
		return s
	}
	return v
}

func runDocShow(cmd *cobra.Command, args []string) error {
	_, _, d, err := openDocument()
	if err != nil {
		return err
	}
	fmt.Println(d.Rendered())
	return nil
}

func runDocGet(cmd *cobra.Command, args []string) error {
	_, _, d, err := openDocument()
	if err != nil {
		return err
	}
	v, err := d.Get(args[0])
	if err != nil {
		return err
	}
	data, err := savecodec.MarshalIndent(v, "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func runDocSet(cmd *cobra.Command, args []string) error {
	c, path, d, err := openDocument()
	if err != nil {
		return err
	}
	if err := d.Set(args[0], parseValue(args[1])); err != nil {
		return err
	}
	err = savecodec.WriteFile(path, d.Value())
	record(c, manifest.Op{
		Type:   manifest.OpDocumentSave,
		Files:  manifest.Records(path),
		Detail: "set " + args[0],
		Err:    err,
	})
	if err != nil {
		return err
	}
	printInfo("Set %s in %s", args[0], path)
	return nil
}

func runDocDelete(cmd *cobra.Command, args []string) error {
	c, path, d, err := openDocument()
	if err != nil {
		return err
	}
	if !confirm(fmt.Sprintf("Remove %s from %s?", args[0], filepath.Base(path))) {
		return errNotConfirmed
	}
	if err := d.Delete(args[0]); err != nil {
		return err
	}
	err = savecodec.WriteFile(path, d.Value())
	record(c, manifest.Op{
		Type:   manifest.OpDocumentSave,
		Files:  manifest.Records(path),
		Detail: "delete " + args[0],
		Err:    err,
	})
	if err != nil {
		return err
	}
	printInfo("Removed %s from %s", args[0], path)
	return nil
}

func runDocEdit(cmd *cobra.Command, args []string) error {
	c, path, d, err := openDocument()
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp("", "dcsave-*.json")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()
	_, err = tmp.WriteString(d.Rendered())
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}

	for {
		if err := runEditor(tmpPath); err != nil {
			return err
		}
		edited, err := os.ReadFile(tmpPath)
		if err != nil {
			return err
		}
		text := string(edited)
		if !d.HasUnsavedChanges(text) {
			printInfo("No changes.")
			return nil
		}

		rep, err := d.Save(path, text)
		if err == nil {
			record(c, manifest.Op{
				Type:   manifest.OpDocumentSave,
				Files:  manifest.Records(path),
				Detail: expandSummary(rep),
			})
			printInfo("Saved %s (%s)", path, expandSummary(rep))
			for _, p := range rep.Dropped {
				printError("collapsed field %s was removed; its original value is gone", p)
			}
			return nil
		}

		var fileErr *savecodec.FileError
		if errors.As(err, &fileErr) {
			record(c, manifest.Op{Type: manifest.OpDocumentSave, Files: manifest.Records(path), Err: err})
			return err
		}
		printError("%v", err)
		if !confirm("Re-open the editor to fix it?") {
			return fmt.Errorf("document not saved: %w", err)
		}
	}
}

func expandSummary(rep document.ExpandReport) string {
	var parts []string
	if n := len(rep.Restored); n > 0 {
		parts = append(parts, fmt.Sprintf("%d restored", n))
	}
	if n := len(rep.Overwritten); n > 0 {
		parts = append(parts, fmt.Sprintf("%d overwritten: %s", n, strings.Join(rep.Overwritten, ", ")))
	}
	if n := len(rep.Dropped); n > 0 {
		parts = append(parts, fmt.Sprintf("%d dropped: %s", n, strings.Join(rep.Dropped, ", ")))
	}
	if len(parts) == 0 {
		return "no collapsed fields"
	}
	return strings.Join(parts, "; ")
}

// editorCommand returns $VISUAL, $EDITOR or vi.
func editorCommand() string {
	if editor := os.Getenv("VISUAL"); editor != "" {
		return editor
	}
	if editor := os.Getenv("EDITOR"); editor != "" {
		return editor
	}
	return "vi"
}

// runEditor opens path in the user's editor and waits for it to exit.
var runEditor = func(path string) error {
	editor := editorCommand()
	printVerbose("Opening %s with %s", path, editor)

	fields := strings.Fields(editor)
	if len(fields) == 0 {
		fields = []string{"vi"}
	}
	editorCmd := exec.Command(fields[0], append(fields[1:], path)...)
	editorCmd.Stdin = os.Stdin
	editorCmd.Stdout = os.Stdout
	editorCmd.Stderr = os.Stderr
	if err := editorCmd.Run(); err != nil {
		return fmt.Errorf("editor command failed: %w", err)
	}
	return nil
}
