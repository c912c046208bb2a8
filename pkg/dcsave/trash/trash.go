// Package trash moves backups and exported files to the desktop trash,
// falling back to permanent deletion when no trash is available.
package trash

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"github.com/jamesainslie/dcsave/pkg/dcsave/logging"
)

// commandTimeout bounds each trash helper invocation.
const commandTimeout = 30 * time.Second

// Method records how a path was disposed of.
type Method string

// Disposal methods.
const (
	MethodFinder   Method = "finder"
	MethodGio      Method = "gio"
	MethodTrashCLI Method = "trash-put"
	MethodDeleted  Method = "deleted"
)

// helper is an external command that moves its last argument to the trash.
type helper struct {
	method Method
	name   string
	args   func(path string) []string
}

var linuxHelpers = []helper{
	{MethodGio, "gio", func(p string) []string { return []string{"trash", p} }},
	{MethodTrashCLI, "trash-put", func(p string) []string { return []string{p} }},
}

var darwinHelpers = []helper{
	{MethodFinder, "osascript", func(p string) []string {
		return []string{"-e", fmt.Sprintf(`tell application "Finder" to delete POSIX file %q`, p)}
	}},
}

// helpers is replaced in tests to force the fallback path.
var helpers = func() []helper {
	switch runtime.GOOS {
	case "darwin":
		return darwinHelpers
	case "linux":
		return linuxHelpers
	}
	return nil
}

// MoveToTrash trashes path with the first helper that succeeds, or removes
// it permanently when none does.
func MoveToTrash(path string) (Method, error) {
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("cannot trash %q: %w", path, err)
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("cannot resolve absolute path for %q: %w", path, err)
	}

	log := logging.Get("trash")
	for _, h := range helpers() {
		bin, err := exec.LookPath(h.name)
		if err != nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		err = exec.CommandContext(ctx, bin, h.args(absPath)...).Run()
		cancel()
		if err == nil {
			log.Debug("moved to trash", "path", absPath, "method", h.method)
			return h.method, nil
		}
		log.Debug("trash helper failed", "helper", h.name, "error", err)
	}

	if err := Delete(absPath); err != nil {
		return "", err
	}
	log.Debug("no trash available, deleted permanently", "path", absPath)
	return MethodDeleted, nil
}

// Delete permanently removes a file or directory tree.
func Delete(path string) error {
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("failed to delete %q: %w", path, err)
	}
	return nil
}
