// Package markdown renders assistant text as ANSI-styled terminal output,
// parsing with goldmark and styling with lipgloss.
package markdown

import (
	"bytes"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
)

const defaultWidth = 80

// Renderer turns markdown into styled terminal text. It is safe for
// concurrent use.
type Renderer struct {
	parser    parser.Parser
	bold      lipgloss.Style
	italic    lipgloss.Style
	strike    lipgloss.Style
	accent    lipgloss.Style
	muted     lipgloss.Style
	underline lipgloss.Style
}

// New returns a Renderer using theme's colors.
func New(theme Theme) *Renderer {
	md := goldmark.New(goldmark.WithExtensions(extension.Strikethrough))
	return &Renderer{
		parser:    md.Parser(),
		bold:      lipgloss.NewStyle().Bold(true),
		italic:    lipgloss.NewStyle().Italic(true),
		strike:    lipgloss.NewStyle().Strikethrough(true),
		accent:    lipgloss.NewStyle().Foreground(ansiColor(theme.Accent)).Bold(true),
		muted:     lipgloss.NewStyle().Foreground(ansiColor(theme.Muted)).Faint(true),
		underline: lipgloss.NewStyle().Underline(true),
	}
}

// Render parses source and returns styled output. Paragraphs, headings,
// quotes and list items wrap to width; code blocks keep their lines.
// A width of zero or less means 80 columns.
func (r *Renderer) Render(source string, width int) string {
	if source == "" {
		return ""
	}
	if width <= 0 {
		width = defaultWidth
	}
	src := []byte(source)
	doc := r.parser.Parse(text.NewReader(src))

	w := &writer{r: r, source: src}
	w.blocks(doc, width)
	return strings.TrimRight(w.buf.String(), "\n")
}

// Render renders source with the default theme.
func Render(source string, width int) string {
	return New(DefaultTheme()).Render(source, width)
}

// writer holds the state of one Render call.
type writer struct {
	r      *Renderer
	source []byte
	buf    bytes.Buffer
}
