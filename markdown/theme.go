package markdown

import (
	"strconv"

	"github.com/charmbracelet/lipgloss"
)

// Theme maps output roles to ANSI color indices (0-15), so the terminal's
// own palette decides the actual colors. A negative index means no color.
type Theme struct {
	Thinking int // reasoning text
	ToolCall int // tool call headers
	Error    int // errors
	Muted    int // code gutters, link targets, labels
	Accent   int // headings
}

// DefaultTheme returns the default ANSI color mapping.
func DefaultTheme() Theme {
	return Theme{
		Thinking: 8,
		ToolCall: 3,
		Error:    1,
		Muted:    8,
		Accent:   5,
	}
}

// ThinkingStyle is the style for streamed reasoning text.
func (t Theme) ThinkingStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(ansiColor(t.Thinking)).Italic(true)
}

// ToolCallStyle is the style for tool call headers.
func (t Theme) ToolCallStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(ansiColor(t.ToolCall)).Bold(true)
}

// ErrorStyle is the style for error messages.
func (t Theme) ErrorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(ansiColor(t.Error))
}

func ansiColor(index int) lipgloss.TerminalColor {
	if index < 0 {
		return lipgloss.NoColor{}
	}
	return lipgloss.Color(strconv.Itoa(index))
}
