package dom

import (
	"bytes"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// InnerText approximates the browser's rendered text of n: whitespace in
// text runs collapses, block elements start on their own line, paragraphs
// and headings are separated by a blank line, <br> breaks the line and
// <pre> keeps its whitespace. Script, style, template, hidden and
// aria-hidden subtrees contribute nothing.
func InnerText(n *html.Node) string {
	if n == nil {
		return ""
	}
	w := &textWriter{}
	w.walk(n, false)
	return tidyLines(w.b.String())
}

// TextContent concatenates every descendant text node verbatim, like the
// DOM property of the same name.
func TextContent(n *html.Node) string {
	if n == nil {
		return ""
	}
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

// OuterHTML serialises n and its subtree.
func OuterHTML(n *html.Node) string {
	if n == nil {
		return ""
	}
	var buf bytes.Buffer
	html.Render(&buf, n)
	return buf.String()
}

// InnerHTML serialises the children of n.
func InnerHTML(n *html.Node) string {
	if n == nil {
		return ""
	}
	var buf bytes.Buffer
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		html.Render(&buf, c)
	}
	return buf.String()
}

type textWriter struct {
	b      strings.Builder
	breaks int // pending line breaks before the next text
}

func (w *textWriter) lineBreak(n int) {
	if n > w.breaks {
		w.breaks = n
	}
}

func (w *textWriter) text(s string, pre bool) {
	if !pre {
		s = spaceRun.ReplaceAllString(s, " ")
	}
	if s == "" || (!pre && s == " " && w.atLineStart()) {
		return
	}
	if w.breaks > 0 && w.b.Len() > 0 {
		w.b.WriteString(strings.Repeat("\n", w.breaks))
		if !pre {
			s = strings.TrimLeft(s, " ")
		}
	}
	w.breaks = 0
	if !pre && strings.HasPrefix(s, " ") && w.endsWithSpace() {
		s = s[1:]
	}
	w.b.WriteString(s)
}

func (w *textWriter) atLineStart() bool {
	return w.b.Len() == 0 || w.breaks > 0 || strings.HasSuffix(w.b.String(), "\n")
}

func (w *textWriter) endsWithSpace() bool {
	s := w.b.String()
	return s == "" || strings.HasSuffix(s, " ") || strings.HasSuffix(s, "\n")
}

func (w *textWriter) walk(n *html.Node, pre bool) {
	switch n.Type {
	case html.TextNode:
		w.text(n.Data, pre)
		return
	case html.ElementNode:
		if skipRendering(n) {
			return
		}
		switch n.DataAtom {
		case atom.Br:
			w.b.WriteString("\n")
			w.breaks = 0
			return
		case atom.Pre:
			pre = true
		}
	}

	gap := blockGap(n)
	if gap > 0 {
		w.lineBreak(gap)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.walk(c, pre)
	}
	if gap > 0 {
		w.lineBreak(gap)
	}
}

func skipRendering(n *html.Node) bool {
	switch n.DataAtom {
	case atom.Script, atom.Style, atom.Noscript, atom.Template, atom.Head:
		return true
	}
	if HasAttr(n, "hidden") || Attr(n, "aria-hidden") == "true" {
		return true
	}
	style := strings.ReplaceAll(strings.ToLower(Attr(n, "style")), " ", "")
	return strings.Contains(style, "display:none")
}

func blockGap(n *html.Node) int {
	if n.Type != html.ElementNode {
		return 0
	}
	switch n.DataAtom {
	case atom.P, atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
		return 2
	case atom.Div, atom.Section, atom.Article, atom.Main, atom.Header,
		atom.Footer, atom.Nav, atom.Aside, atom.Ul, atom.Ol, atom.Li,
		atom.Blockquote, atom.Pre, atom.Table, atom.Tr, atom.Figure,
		atom.Figcaption, atom.Form, atom.Dl, atom.Dt, atom.Dd, atom.Hr,
		atom.Details, atom.Summary:
		return 1
	}
	return 0
}

var (
	spaceRun   = regexp.MustCompile(`[ \t\r\n\f]+`)
	lineSpaces = regexp.MustCompile(` *\n *`)
)

func tidyLines(s string) string {
	return strings.TrimSpace(lineSpaces.ReplaceAllString(s, "\n"))
}
