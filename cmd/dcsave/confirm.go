package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/jamesainslie/dcsave/pkg/dcsave/config"
	"github.com/jamesainslie/dcsave/pkg/dcsave/logging"
	"github.com/jamesainslie/dcsave/pkg/dcsave/manifest"
)

// errNotConfirmed aborts a destructive command that was not approved.
var errNotConfirmed = fmt.Errorf("aborted: not confirmed (pass --yes to skip the prompt)")

// isTerminal is replaced in tests.
var isTerminal = func() bool { return term.IsTerminal(int(os.Stdin.Fd())) }

// confirm asks a yes/no question on stdin. --yes approves without asking;
// without a terminal the answer is no.
func confirm(prompt string) bool {
	if viper.GetBool("yes") {
		return true
	}
	if !isTerminal() {
		return false
	}
	return askYesNo(os.Stdin, os.Stderr, prompt)
}

func askYesNo(in io.Reader, out io.Writer, prompt string) bool {
	fmt.Fprintf(out, "%s [y/N] ", prompt)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

// record logs op to the history when it is enabled. History failures never
// fail the command.
func record(c *config.Config, op manifest.Op) {
	if c == nil || !c.Manifest.Enabled {
		return
	}
	m, err := manifest.New(c.Manifest.Path)
	if err != nil {
		logging.Get("cli").Warn("history unavailable", "error", err)
		return
	}
	entry, err := m.Log(op)
	if err != nil {
		logging.Get("cli").Warn("failed to record history", "operation", op.Type, "error", err)
		return
	}
	printVerbose("Recorded %s", entry.ID)
}
