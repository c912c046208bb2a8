package output

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// MissingMark is the cell text the pretty formatter highlights as an error.
const MissingMark = "missing"

// PrettyFormatter renders a styled table for terminal display.
type PrettyFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *PrettyFormatter) Format(w *bytes.Buffer, r *Result) error {
	if r.Title != "" || r.Source != "" {
		w.WriteString(f.formatHeader(r))
		w.WriteString("\n")
	}
	w.WriteString(f.formatTable(r))
	if len(r.Summary) > 0 {
		w.WriteString(f.formatFooter(r.Summary))
		w.WriteString("\n")
	}
	if len(r.Warnings) > 0 {
		w.WriteString("\n")
		w.WriteString(f.formatWarnings(r.Warnings))
	}
	return nil
}

func (f *PrettyFormatter) formatHeader(r *Result) string {
	var lines []string
	if r.Title != "" {
		lines = append(lines, TitleStyle.Render(r.Title))
	}
	if r.Source != "" {
		lines = append(lines, fmt.Sprintf("%s %s", LabelStyle.Render("Source:"), ValueStyle.Render(r.Source)))
	}
	return HeaderBox.Render(strings.Join(lines, "\n"))
}

func (f *PrettyFormatter) formatTable(r *Result) string {
	if len(r.Rows) == 0 {
		empty := r.EmptyText
		if empty == "" {
			empty = "Nothing to show"
		}
		return MutedStyle.Render("  "+empty) + "\n"
	}

	widths := columnWidths(r.Columns, r.Rows)
	var sb strings.Builder

	headers := make([]string, len(r.Columns))
	for i, col := range r.Columns {
		headers[i] = TableHeaderStyle.Render(padRight(col, widths[i]))
	}
	sb.WriteString("  " + lipgloss.JoinHorizontal(lipgloss.Top, headers...) + "\n")

	for _, row := range r.Rows {
		cells := make([]string, len(r.Columns))
		for i := range r.Columns {
			var cell string
			if i < len(row) {
				cell = row[i]
			}
			style := TableRowStyle
			switch {
			case cell == MissingMark:
				style = MissingStyle.PaddingRight(2)
			case i == 0:
				style = KeyStyle.PaddingRight(2)
			}
			cells[i] = style.Render(padRight(cell, widths[i]))
		}
		sb.WriteString("  " + strings.Join(cells, "") + "\n")
	}
	return sb.String()
}

func (f *PrettyFormatter) formatFooter(fields []Field) string {
	parts := make([]string, len(fields))
	for i, field := range fields {
		parts[i] = fmt.Sprintf("%s %s", LabelStyle.Render(field.Label+":"), ValueStyle.Render(field.Value))
	}
	return FooterBox.Render(strings.Join(parts, "  "))
}

func (f *PrettyFormatter) formatWarnings(warnings []string) string {
	var sb strings.Builder
	sb.WriteString(WarningStyle.Bold(true).Render("Warnings:"))
	sb.WriteString("\n")
	for _, warning := range warnings {
		sb.WriteString(WarningStyle.Render("  " + warning))
		sb.WriteString("\n")
	}
	return sb.String()
}

// columnWidths returns the display width of each column.
func columnWidths(columns []string, rows [][]string) []int {
	widths := make([]int, len(columns))
	for i, col := range columns {
		widths[i] = lipgloss.Width(col)
	}
	for _, row := range rows {
		for i := range columns {
			if i < len(row) {
				widths[i] = max(widths[i], lipgloss.Width(row[i]))
			}
		}
	}
	return widths
}

// padRight pads s with spaces to width display cells.
func padRight(s string, width int) string {
	if n := lipgloss.Width(s); n < width {
		return s + strings.Repeat(" ", width-n)
	}
	return s
}

func init() {
	Register("pretty", func() Formatter {
		return &PrettyFormatter{}
	})
	Register("table", func() Formatter {
		return &PrettyFormatter{}
	})
}

// Ensure PrettyFormatter implements Formatter.
var _ Formatter = (*PrettyFormatter)(nil)
