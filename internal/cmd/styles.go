package cmd

import (
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"golang.org/x/term"

	"github.com/Iron-Ham/todohub/internal/logging"
	"github.com/Iron-Ham/todohub/internal/status"
)

var (
	mutedColor   = lipgloss.Color("#9CA3AF")
	infoColor    = lipgloss.Color("#60A5FA")
	warnColor    = lipgloss.Color("#F59E0B")
	errorColor   = lipgloss.Color("#F87171")
	accentColor  = lipgloss.Color("#A78BFA")
	successColor = lipgloss.Color("#10B981")
)

// palette holds the styles for line-oriented command output. The zero
// styles of a plain palette render text unchanged.
type palette struct {
	muted   lipgloss.Style
	accent  lipgloss.Style
	success lipgloss.Style
	levels  map[string]lipgloss.Style
	states  map[status.Status]lipgloss.Style
	width   int
}

// paletteFor returns a coloured palette when w is a terminal and a plain one
// otherwise.
func paletteFor(w io.Writer) palette {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return plainPalette()
	}

	p := palette{
		muted:   lipgloss.NewStyle().Foreground(mutedColor),
		accent:  lipgloss.NewStyle().Foreground(accentColor).Bold(true),
		success: lipgloss.NewStyle().Foreground(successColor),
		levels: map[string]lipgloss.Style{
			logging.LevelDebug: lipgloss.NewStyle().Foreground(mutedColor),
			logging.LevelInfo:  lipgloss.NewStyle().Foreground(infoColor),
			logging.LevelWarn:  lipgloss.NewStyle().Foreground(warnColor),
			logging.LevelError: lipgloss.NewStyle().Foreground(errorColor).Bold(true),
		},
		states: map[status.Status]lipgloss.Style{
			status.Todo:    lipgloss.NewStyle().Foreground(mutedColor),
			status.Ongoing: lipgloss.NewStyle().Foreground(warnColor),
			status.Done:    lipgloss.NewStyle().Foreground(successColor),
		},
	}
	if width, _, err := term.GetSize(int(f.Fd())); err == nil {
		p.width = width
	}
	return p
}

func plainPalette() palette {
	plain := lipgloss.NewStyle()
	return palette{
		muted:   plain,
		accent:  plain,
		success: plain,
	}
}

func (p palette) level(level string) string {
	level = strings.ToUpper(level)
	if style, ok := p.levels[level]; ok {
		return style.Render(level)
	}
	return level
}

func (p palette) status(s status.Status) string {
	if style, ok := p.states[s]; ok {
		return style.Render(s.String())
	}
	return s.String()
}

// fit truncates line to the terminal width, if known, keeping escape
// sequences intact.
func (p palette) fit(line string) string {
	if p.width <= len(ellipsis) || lipgloss.Width(line) <= p.width {
		return line
	}
	return ansi.Truncate(line, p.width, ellipsis)
}

const ellipsis = "..."

// truncate shortens s to limit runes, marking the cut with an ellipsis.
func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	if limit <= len(ellipsis) {
		return ellipsis
	}
	return string(runes[:limit-len(ellipsis)]) + ellipsis
}
