package main

import (
	"bytes"
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/viper"

	"github.com/jamesainslie/dcsave/pkg/dcsave/backup"
	"github.com/jamesainslie/dcsave/pkg/dcsave/manifest"
	"github.com/jamesainslie/dcsave/pkg/dcsave/output"
	"github.com/jamesainslie/dcsave/pkg/dcsave/savediff"
	"github.com/jamesainslie/dcsave/pkg/dcsave/screenshot"
	"github.com/jamesainslie/dcsave/pkg/dcsave/types"
)

const timeLayout = "2006-01-02 15:04:05"

// getFormatter resolves the -o flag.
func getFormatter() (output.Formatter, error) {
	name := viper.GetString("output")
	if name == "" {
		name = "pretty"
	}
	if name == "template" {
		tmpl := viper.GetString("template")
		if tmpl == "" {
			return nil, fmt.Errorf("--template is required when using -o template")
		}
		return output.NewTemplateFormatter(tmpl), nil
	}
	f, err := output.Get(name)
	if err != nil {
		return nil, fmt.Errorf("unknown output format %q: available formats are %v", name, output.Available())
	}
	return f, nil
}

// render formats r with the selected formatter and prints it.
func render(r *output.Result) error {
	f, err := getFormatter()
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := f.Format(&buf, r); err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}
	fmt.Print(buf.String())
	return nil
}

// screenshotItem is the machine-readable form of a screenshot entry.
type screenshotItem struct {
	Position     int    `json:"position" yaml:"position"`
	ID           string `json:"id" yaml:"id"`
	Date         string `json:"date" yaml:"date"`
	File         string `json:"file,omitempty" yaml:"file,omitempty"`
	Thumb        string `json:"thumb,omitempty" yaml:"thumb,omitempty"`
	Missing      bool   `json:"missing" yaml:"missing"`
	ThumbMissing bool   `json:"thumb_missing" yaml:"thumb_missing"`
}

func screenshotResult(dir string, entries []screenshot.Entry) *output.Result {
	r := &output.Result{
		Title:     "Screenshots",
		Source:    dir,
		Columns:   []string{"#", "ID", "Date", "Image", "Thumb"},
		EmptyText: "No screenshots in the album.",
	}
	items := make([]screenshotItem, 0, len(entries))
	missing := 0
	for _, e := range entries {
		image, thumb := "ok", "ok"
		if e.Missing {
			image = output.MissingMark
			missing++
		}
		if e.ThumbMissing {
			thumb = output.MissingMark
		}
		r.Rows = append(r.Rows, []string{strconv.Itoa(e.Position + 1), e.ID, e.Date, image, thumb})
		items = append(items, screenshotItem{
			Position:     e.Position,
			ID:           e.ID,
			Date:         e.Date,
			File:         e.Files.Main,
			Thumb:        e.Files.Thumb,
			Missing:      e.Missing,
			ThumbMissing: e.ThumbMissing,
		})
	}
	r.Items = items
	r.Summary = []output.Field{{Label: "Screenshots", Value: types.FormatCount(len(entries))}}
	if missing > 0 {
		r.Warnings = append(r.Warnings, fmt.Sprintf("%d screenshot(s) have no image file", missing))
	}
	return r
}

func checkResult(dir string, rep screenshot.Report) *output.Result {
	r := &output.Result{
		Title:     "Screenshot check",
		Source:    dir,
		Columns:   []string{"Problem", "ID"},
		EmptyText: "Album is consistent.",
		Items:     rep,
	}
	for _, id := range rep.Missing {
		r.Rows = append(r.Rows, []string{"image missing", id})
	}
	for _, id := range rep.ThumbMissing {
		r.Rows = append(r.Rows, []string{"thumbnail missing", id})
	}
	for _, id := range rep.Orphans {
		r.Rows = append(r.Rows, []string{"not in index", id})
	}
	r.Summary = []output.Field{
		{Label: "Indexed", Value: types.FormatCount(rep.Total)},
		{Label: "Problems", Value: types.FormatCount(len(r.Rows))},
	}
	if rep.Reconciled {
		r.Warnings = append(r.Warnings, "index files disagreed; the ids file was used and all_ids will be rewritten on the next save")
	}
	return r
}

// backupItem is the machine-readable form of a backup archive.
type backupItem struct {
	Name        string     `json:"name" yaml:"name"`
	Path        string     `json:"path" yaml:"path"`
	Size        int64      `json:"size" yaml:"size"`
	Created     *time.Time `json:"created,omitempty" yaml:"created,omitempty"`
	Version     string     `json:"version,omitempty" yaml:"version,omitempty"`
	HasManifest bool       `json:"has_manifest" yaml:"has_manifest"`
}

func backupResult(dir string, infos []backup.Info) *output.Result {
	r := &output.Result{
		Title:     "Backups",
		Source:    dir,
		Columns:   []string{"Name", "Created", "Size", "Version"},
		EmptyText: "No backups found.",
	}
	items := make([]backupItem, 0, len(infos))
	var total int64
	for _, info := range infos {
		created := output.MissingMark
		item := backupItem{Name: info.Name, Path: info.Path, Size: info.Size, Version: info.Version, HasManifest: info.HasManifest}
		if info.HasManifest && !info.Timestamp.IsZero() {
			ts := info.Timestamp
			item.Created = &ts
			created = fmt.Sprintf("%s (%s)", ts.Format(timeLayout), humanize.Time(ts))
		}
		r.Rows = append(r.Rows, []string{info.Name, created, types.FormatSize(info.Size), info.Version})
		items = append(items, item)
		total += info.Size
	}
	r.Items = items
	r.Summary = []output.Field{
		{Label: "Backups", Value: types.FormatCount(len(infos))},
		{Label: "Total size", Value: types.FormatSize(total)},
	}
	return r
}

func changesResult(path string, at time.Time, changes []savediff.Change) *output.Result {
	r := &output.Result{
		Title:     "Changes at " + at.Format(timeLayout),
		Source:    path,
		Columns:   []string{"Kind", "Change"},
		Items:     changes,
		EmptyText: "No changes.",
	}
	for _, c := range changes {
		r.Rows = append(r.Rows, []string{c.Kind.String(), c.String()})
	}
	return r
}

func historyResult(dir string, entries []manifest.Entry) *output.Result {
	r := &output.Result{
		Title:     "History",
		Source:    dir,
		Columns:   []string{"ID", "When", "Operation", "Files", "Size", "Status"},
		Items:     entries,
		EmptyText: "No history entries found.",
	}
	for _, e := range entries {
		status := "ok"
		if e.Error != "" {
			status = "failed"
		}
		r.Rows = append(r.Rows, []string{
			e.ID,
			humanize.Time(e.Timestamp),
			string(e.Operation),
			strconv.FormatInt(e.Summary.TotalFiles, 10),
			types.FormatSize(e.Summary.TotalBytes),
			status,
		})
	}
	return r
}

func historyEntryResult(e *manifest.Entry) *output.Result {
	r := &output.Result{
		Title:     "Operation " + e.ID,
		Source:    e.StorageDir,
		Columns:   []string{"Path", "Size", "Modified"},
		Items:     e,
		EmptyText: "No files recorded.",
		Summary: []output.Field{
			{Label: "Operation", Value: string(e.Operation)},
			{Label: "When", Value: e.Timestamp.Format(timeLayout)},
			{Label: "Files", Value: strconv.FormatInt(e.Summary.TotalFiles, 10)},
			{Label: "Total size", Value: types.FormatSize(e.Summary.TotalBytes)},
		},
	}
	if e.Detail != "" {
		r.Summary = append(r.Summary, output.Field{Label: "Detail", Value: e.Detail})
	}
	if e.Error != "" {
		r.Warnings = append(r.Warnings, e.Error)
	}
	for _, f := range e.Files {
		mod := ""
		if !f.ModTime.IsZero() {
			mod = f.ModTime.Format(timeLayout)
		}
		r.Rows = append(r.Rows, []string{f.Path, types.FormatSize(f.Size), mod})
	}
	return r
}
