package output

import "github.com/charmbracelet/lipgloss"

// Palette, ANSI 256 colors.
const (
	colorAccent = lipgloss.Color("39")
	colorWarn   = lipgloss.Color("214")
	colorBad    = lipgloss.Color("196")
	colorDim    = lipgloss.Color("245")
	colorText   = lipgloss.Color("255")
)

var (
	// HeaderBox frames the title and the storage directory or archive.
	HeaderBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorAccent).
			Padding(0, 1).
			MarginBottom(1)

	// FooterBox frames the summary fields.
	FooterBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorDim).
			Padding(0, 1).
			MarginTop(1)

	TitleStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	LabelStyle   = lipgloss.NewStyle().Foreground(colorDim)
	ValueStyle   = lipgloss.NewStyle().Foreground(colorText)
	MutedStyle   = lipgloss.NewStyle().Foreground(colorDim)
	WarningStyle = lipgloss.NewStyle().Foreground(colorWarn)

	// KeyStyle renders the first column: a position, id or archive name.
	KeyStyle = lipgloss.NewStyle().Foreground(colorAccent).Bold(true)

	// MissingStyle marks cells holding MissingMark.
	MissingStyle = lipgloss.NewStyle().Foreground(colorBad).Bold(true)

	TableHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(colorDim).
				BorderBottom(true).
				BorderStyle(lipgloss.NormalBorder()).
				BorderForeground(colorDim).
				PaddingRight(2)

	TableRowStyle = lipgloss.NewStyle().PaddingRight(2)
)
