package cli

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
)

// =============================================================================
// Color Palette
// =============================================================================

var (
	colorCyan   = lipgloss.Color("36")  // Teal - accents
	colorGreen  = lipgloss.Color("35")  // Green - success
	colorYellow = lipgloss.Color("220") // Amber - timeouts
	colorRed    = lipgloss.Color("167") // Soft red - errors
	colorWhite  = lipgloss.Color("255") // Bright white - values
	colorGray   = lipgloss.Color("245") // Gray - headers
	colorDim    = lipgloss.Color("240") // Dim gray - muted text
)

// =============================================================================
// Theme
// =============================================================================

// theme holds the styles for one output stream. Styles are bound to a
// renderer so color support is detected per writer, not from os.Stdout.
type theme struct {
	accent   lipgloss.Style
	dim      lipgloss.Style
	value    lipgloss.Style
	ok       lipgloss.Style
	failed   lipgloss.Style
	timeout  lipgloss.Style
	errBadge lipgloss.Style
	errText  lipgloss.Style
	header   lipgloss.Style
	border   lipgloss.Style
}

func newTheme(w io.Writer) theme {
	r := lipgloss.NewRenderer(w)
	return theme{
		accent:   r.NewStyle().Foreground(colorCyan),
		dim:      r.NewStyle().Foreground(colorDim),
		value:    r.NewStyle().Foreground(colorWhite),
		ok:       r.NewStyle().Foreground(colorGreen),
		failed:   r.NewStyle().Foreground(colorRed),
		timeout:  r.NewStyle().Foreground(colorYellow),
		errBadge: r.NewStyle().Bold(true).Reverse(true).Foreground(colorRed),
		errText:  r.NewStyle().Foreground(colorRed),
		header:   r.NewStyle().Foreground(colorGray).Bold(true),
		border:   r.NewStyle().Foreground(colorDim),
	}
}

// =============================================================================
// Icons
// =============================================================================

const (
	iconSuccess = "✓"
	iconError   = "✗"
	iconReprint = "^"
)

// =============================================================================
// Status Output
// =============================================================================

// printSuccess prints a success message.
func printSuccess(w io.Writer, th theme, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(w, th.ok.Render(iconSuccess)+" "+msg)
}

// printError prints an error message.
func printError(w io.Writer, th theme, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(w, th.failed.Render(iconError)+" "+th.errText.Render(msg))
}
