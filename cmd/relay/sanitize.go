package main

import (
	"strings"

	"github.com/charmbracelet/x/ansi"
)

// sanitize removes terminal escape sequences and control characters from
// model output before it reaches the terminal. Tabs and newlines are kept
// and CRLF becomes LF.
func sanitize(s string) string {
	s = ansi.Strip(s)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\t' || r == '\n':
			return r
		case r < 0x20 || r == 0x7f:
			return -1
		case r >= 0x80 && r <= 0x9f:
			// C1 controls, including the single-byte CSI.
			return -1
		default:
			return r
		}
	}, s)
}
