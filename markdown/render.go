package markdown

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/yuin/goldmark/ast"
	east "github.com/yuin/goldmark/extension/ast"
)

const minWrapWidth = 10

func (w *writer) blocks(node ast.Node, width int) {
	for c := node.FirstChild(); c != nil; c = c.NextSibling() {
		w.block(c, width)
		if c.NextSibling() != nil {
			w.buf.WriteString("\n")
		}
	}
}

func (w *writer) block(node ast.Node, width int) {
	switch n := node.(type) {
	case *ast.Paragraph, *ast.TextBlock:
		w.wrapped(w.inline(n), width)

	case *ast.Heading:
		w.wrapped(w.r.accent.Render(w.inline(n)), width)

	case *ast.FencedCodeBlock:
		if lang := n.Language(w.source); len(lang) > 0 {
			w.buf.WriteString(w.r.muted.Render(string(lang)))
			w.buf.WriteString("\n")
		}
		w.code(n)

	case *ast.CodeBlock:
		w.code(n)

	case *ast.Blockquote:
		w.quote(n, width)

	case *ast.List:
		w.list(n, width, 0)

	case *ast.ThematicBreak:
		w.buf.WriteString(w.r.muted.Render(strings.Repeat("─", min(width, 3))))
		w.buf.WriteString("\n")

	case *ast.HTMLBlock:
		lines := n.Lines()
		for i := range lines.Len() {
			seg := lines.At(i)
			w.buf.Write(seg.Value(w.source))
		}

	default:
		w.blocks(node, width)
	}
}

func (w *writer) wrapped(s string, width int) {
	w.buf.WriteString(lipgloss.NewStyle().Width(width).Render(s))
	w.buf.WriteString("\n")
}

// code writes the block's lines verbatim behind a gutter.
func (w *writer) code(n ast.Node) {
	gutter := w.r.muted.Render("│") + " "
	lines := n.Lines()
	for i := range lines.Len() {
		seg := lines.At(i)
		line := strings.TrimRight(string(seg.Value(w.source)), "\n")
		w.buf.WriteString(gutter + line + "\n")
	}
}

// quote renders the quoted blocks into a narrower buffer and prefixes
// every resulting line with a bar.
func (w *writer) quote(n *ast.Blockquote, width int) {
	inner := &writer{r: w.r, source: w.source}
	inner.blocks(n, max(width-2, minWrapWidth))
	bar := w.r.muted.Render("▌") + " "
	body := strings.TrimRight(inner.buf.String(), "\n")
	for line := range strings.SplitSeq(body, "\n") {
		w.buf.WriteString(bar + line + "\n")
	}
}

func (w *writer) list(n *ast.List, width, depth int) {
	indent := strings.Repeat("  ", depth)
	num := n.Start
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		item, ok := c.(*ast.ListItem)
		if !ok {
			continue
		}
		marker := "- "
		if n.IsOrdered() {
			marker = strconv.Itoa(num) + ". "
			num++
		}

		var pending bytes.Buffer
		for ic := item.FirstChild(); ic != nil; ic = ic.NextSibling() {
			switch in := ic.(type) {
			case *ast.Paragraph, *ast.TextBlock:
				if pending.Len() > 0 {
					pending.WriteString(" ")
				}
				pending.WriteString(w.inline(in))
			case *ast.List:
				if pending.Len() > 0 {
					w.item(indent, marker, pending.String(), width)
					pending.Reset()
					marker = strings.Repeat(" ", len(marker))
				}
				w.list(in, width, depth+1)
			default:
				inner := &writer{r: w.r, source: w.source}
				inner.block(ic, width)
				pending.WriteString(strings.TrimRight(inner.buf.String(), "\n"))
			}
		}
		if pending.Len() > 0 {
			w.item(indent, marker, pending.String(), width)
		}
	}
}

// item writes one list entry, indenting continuation lines under the
// marker.
func (w *writer) item(indent, marker, content string, width int) {
	prefix := indent + marker
	wrapped := lipgloss.NewStyle().Width(max(width-len(prefix), minWrapWidth)).Render(content)
	pad := strings.Repeat(" ", len(prefix))
	for i, line := range strings.Split(wrapped, "\n") {
		if i == 0 {
			w.buf.WriteString(prefix + line + "\n")
			continue
		}
		w.buf.WriteString(pad + line + "\n")
	}
}

func (w *writer) inline(node ast.Node) string {
	var buf bytes.Buffer
	for c := node.FirstChild(); c != nil; c = c.NextSibling() {
		w.inlineNode(c, &buf)
	}
	return buf.String()
}

func (w *writer) inlineNode(node ast.Node, buf *bytes.Buffer) {
	switch n := node.(type) {
	case *ast.Text:
		buf.Write(n.Segment.Value(w.source))
		switch {
		case n.HardLineBreak():
			buf.WriteByte('\n')
		case n.SoftLineBreak():
			buf.WriteByte(' ')
		}

	case *ast.String:
		buf.Write(n.Value)

	case *ast.Emphasis:
		if n.Level == 1 {
			buf.WriteString(w.r.italic.Render(w.inline(n)))
		} else {
			buf.WriteString(w.r.bold.Render(w.inline(n)))
		}

	case *east.Strikethrough:
		buf.WriteString(w.r.strike.Render(w.inline(n)))

	case *ast.CodeSpan:
		buf.WriteString(w.r.bold.Render(w.inline(n)))

	case *ast.Link:
		buf.WriteString(w.r.underline.Render(w.inline(n)))
		buf.WriteString(" " + w.r.muted.Render("("+string(n.Destination)+")"))

	case *ast.Image:
		buf.WriteString(w.r.underline.Render(w.inline(n)))
		buf.WriteString(" " + w.r.muted.Render("("+string(n.Destination)+")"))

	case *ast.AutoLink:
		buf.WriteString(w.r.underline.Render(string(n.URL(w.source))))

	case *ast.RawHTML:
		for i := range n.Segments.Len() {
			seg := n.Segments.At(i)
			buf.Write(seg.Value(w.source))
		}

	default:
		for c := node.FirstChild(); c != nil; c = c.NextSibling() {
			w.inlineNode(c, buf)
		}
	}
}
