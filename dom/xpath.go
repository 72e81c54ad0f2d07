package dom

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// XPath returns an absolute positional XPath for an element, e.g.
// /html/body/main/div[2]/p. The sibling index is only written when more
// than one sibling shares the tag, matching the path the injected observer
// computes in the page. Non-element nodes resolve to their parent element.
func XPath(n *html.Node) string {
	for n != nil && n.Type != html.ElementNode {
		n = n.Parent
	}
	if n == nil {
		return ""
	}

	var parts []string
	for cur := n; cur != nil && cur.Type == html.ElementNode; cur = cur.Parent {
		parts = append(parts, step(cur))
	}
	var b strings.Builder
	for i := len(parts) - 1; i >= 0; i-- {
		b.WriteByte('/')
		b.WriteString(parts[i])
	}
	return b.String()
}

func step(n *html.Node) string {
	name := n.Data
	if n.Parent == nil {
		return name
	}
	idx, total := 0, 0
	for c := n.Parent.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || c.Data != name {
			continue
		}
		total++
		if c == n {
			idx = total
		}
	}
	if total > 1 {
		return fmt.Sprintf("%s[%d]", name, idx)
	}
	return name
}

// Resolve walks an XPath produced by XPath (or by the page observer) from
// the document root. It returns nil when any step is missing.
func Resolve(root *html.Node, xpath string) *html.Node {
	xpath = strings.TrimSpace(xpath)
	if root == nil || !strings.HasPrefix(xpath, "/") {
		return nil
	}
	cur := root
	for _, seg := range strings.Split(strings.TrimPrefix(xpath, "/"), "/") {
		if seg == "" {
			return nil
		}
		name, idx := parseStep(seg)
		cur = nthChild(cur, name, idx)
		if cur == nil {
			return nil
		}
	}
	return cur
}

func parseStep(seg string) (string, int) {
	open := strings.IndexByte(seg, '[')
	if open < 0 || !strings.HasSuffix(seg, "]") {
		return strings.ToLower(seg), 1
	}
	idx, err := strconv.Atoi(seg[open+1 : len(seg)-1])
	if err != nil || idx < 1 {
		idx = 1
	}
	return strings.ToLower(seg[:open]), idx
}

func nthChild(parent *html.Node, name string, idx int) *html.Node {
	seen := 0
	for c := parent.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || c.Data != name {
			continue
		}
		seen++
		if seen == idx {
			return c
		}
	}
	return nil
}
