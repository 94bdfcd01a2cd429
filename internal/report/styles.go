package report

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// Color palette
var (
	SteamBlue = lipgloss.Color("#66C0F4")
	DimGray   = lipgloss.Color("#6B7280")
	White     = lipgloss.Color("#F9FAFB")
	Green     = lipgloss.Color("#10B981")
	Red       = lipgloss.Color("#EF4444")
	Amber     = lipgloss.Color("#E5A00D")
)

// Status characters
const (
	OKChar      = "✓"
	FailedChar  = "✗"
	SkippedChar = "-"
)

// Styles holds the text styles used by a report. Plain styles render text unchanged.
type Styles struct {
	Title   lipgloss.Style
	Header  lipgloss.Style
	Dim     lipgloss.Style
	Success lipgloss.Style
	Error   lipgloss.Style
	Skipped lipgloss.Style
}

// PlainStyles renders without escape sequences
func PlainStyles() Styles {
	plain := lipgloss.NewStyle()
	return Styles{Title: plain, Header: plain, Dim: plain, Success: plain, Error: plain, Skipped: plain}
}

// StylesFor picks colored styles when w is a terminal and plain ones otherwise
func StylesFor(w io.Writer) Styles {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return PlainStyles()
	}

	r := lipgloss.NewRenderer(f)
	return Styles{
		Title:   r.NewStyle().Foreground(White).Bold(true),
		Header:  r.NewStyle().Foreground(SteamBlue).Bold(true),
		Dim:     r.NewStyle().Foreground(DimGray),
		Success: r.NewStyle().Foreground(Green),
		Error:   r.NewStyle().Foreground(Red),
		Skipped: r.NewStyle().Foreground(Amber),
	}
}

func (s Styles) status(ok bool) string {
	if ok {
		return s.Success.Render(OKChar)
	}
	return s.Error.Render(FailedChar)
}
