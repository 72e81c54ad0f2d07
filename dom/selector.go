package dom

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// Selector is a compiled CSS selector. Supported subset:
//   - tag: "article", "main", "div"
//   - .class, #id, tag.class, tag#id, "*"
//   - [attr], [attr=val], [attr*=val], [attr^=val], [attr$=val]
//   - compounds joined by whitespace (descendant combinator)
//   - comma-separated groups
//
// That covers every selector the platform strategies need; child and
// sibling combinators are rejected at compile time.
type Selector struct {
	src    string
	groups [][]compound
}

type compound struct {
	tag     string
	id      string
	classes []string
	attrs   []attrCond
}

type attrCond struct {
	key string
	op  string // "", "=", "*=", "^=", "$="
	val string
}

// Compile parses sel.
func Compile(sel string) (Selector, error) {
	s := Selector{src: sel}
	for _, group := range splitOutside(sel, ',') {
		group = strings.TrimSpace(group)
		if group == "" {
			return Selector{}, fmt.Errorf("dom: empty selector group in %q", sel)
		}
		var chain []compound
		for _, part := range fieldsOutside(group) {
			c, err := parseCompound(part)
			if err != nil {
				return Selector{}, fmt.Errorf("dom: selector %q: %w", sel, err)
			}
			chain = append(chain, c)
		}
		s.groups = append(s.groups, chain)
	}
	if len(s.groups) == 0 {
		return Selector{}, fmt.Errorf("dom: empty selector")
	}
	return s, nil
}

// MustCompile is Compile for package-level selector tables.
func MustCompile(sel string) Selector {
	s, err := Compile(sel)
	if err != nil {
		panic(err)
	}
	return s
}

func (s Selector) String() string { return s.src }

// Match reports whether n matches any group of the selector.
func (s Selector) Match(n *html.Node) bool {
	if n == nil || n.Type != html.ElementNode {
		return false
	}
	for _, chain := range s.groups {
		if matchChain(n, chain) {
			return true
		}
	}
	return false
}

// matchChain matches right to left: the last compound against n, each
// earlier one against some ancestor above the previous match.
func matchChain(n *html.Node, chain []compound) bool {
	if !chain[len(chain)-1].match(n) {
		return false
	}
	cur := n.Parent
	for i := len(chain) - 2; i >= 0; i-- {
		for cur != nil && !chain[i].match(cur) {
			cur = cur.Parent
		}
		if cur == nil {
			return false
		}
		cur = cur.Parent
	}
	return true
}

func (c compound) match(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if c.tag != "" && n.Data != c.tag {
		return false
	}
	if c.id != "" && Attr(n, "id") != c.id {
		return false
	}
	if len(c.classes) > 0 {
		have := strings.Fields(Attr(n, "class"))
		for _, want := range c.classes {
			if !containsString(have, want) {
				return false
			}
		}
	}
	for _, a := range c.attrs {
		val, ok := lookupAttr(n, a.key)
		if !ok {
			return false
		}
		switch a.op {
		case "=":
			ok = val == a.val
		case "*=":
			ok = a.val != "" && strings.Contains(val, a.val)
		case "^=":
			ok = a.val != "" && strings.HasPrefix(val, a.val)
		case "$=":
			ok = a.val != "" && strings.HasSuffix(val, a.val)
		}
		if !ok {
			return false
		}
	}
	return true
}

func parseCompound(s string) (compound, error) {
	var c compound
	i := 0
	readIdent := func() string {
		start := i
		for i < len(s) && !strings.ContainsRune(".#[", rune(s[i])) {
			i++
		}
		return s[start:i]
	}

	if tag := readIdent(); tag != "*" {
		c.tag = strings.ToLower(tag)
	}
	for i < len(s) {
		switch s[i] {
		case '.':
			i++
			cls := readIdent()
			if cls == "" {
				return c, fmt.Errorf("empty class in %q", s)
			}
			c.classes = append(c.classes, cls)
		case '#':
			i++
			c.id = readIdent()
			if c.id == "" {
				return c, fmt.Errorf("empty id in %q", s)
			}
		case '[':
			end := closingBracket(s, i)
			if end < 0 {
				return c, fmt.Errorf("unterminated attribute in %q", s)
			}
			c.attrs = append(c.attrs, parseAttr(s[i+1:end]))
			i = end + 1
		default:
			return c, fmt.Errorf("unexpected %q in %q", s[i], s)
		}
	}
	if strings.ContainsAny(c.tag, ">+~") {
		return c, fmt.Errorf("unsupported combinator in %q", s)
	}
	return c, nil
}

func parseAttr(body string) attrCond {
	for _, op := range []string{"*=", "^=", "$=", "="} {
		if idx := strings.Index(body, op); idx >= 0 {
			return attrCond{
				key: strings.ToLower(strings.TrimSpace(body[:idx])),
				op:  op,
				val: strings.Trim(strings.TrimSpace(body[idx+len(op):]), `"'`),
			}
		}
	}
	return attrCond{key: strings.ToLower(strings.TrimSpace(body))}
}

func closingBracket(s string, open int) int {
	var quote byte
	for j := open + 1; j < len(s); j++ {
		switch {
		case quote != 0:
			if s[j] == quote {
				quote = 0
			}
		case s[j] == '"' || s[j] == '\'':
			quote = s[j]
		case s[j] == ']':
			return j
		}
	}
	return -1
}

// splitOutside splits on sep when not inside brackets or quotes.
func splitOutside(s string, sep byte) []string {
	var parts []string
	depth, start := 0, 0
	var quote byte
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case quote != 0:
			if ch == quote {
				quote = 0
			}
		case ch == '"' || ch == '\'':
			quote = ch
		case ch == '[':
			depth++
		case ch == ']':
			depth--
		case ch == sep && depth == 0:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	return append(parts, s[start:])
}

// fieldsOutside splits on whitespace when not inside brackets or quotes.
func fieldsOutside(s string) []string {
	var parts []string
	var b strings.Builder
	depth := 0
	var quote byte
	flush := func() {
		if b.Len() > 0 {
			parts = append(parts, b.String())
			b.Reset()
		}
	}
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case quote != 0:
			if ch == quote {
				quote = 0
			}
		case ch == '"' || ch == '\'':
			quote = ch
		case ch == '[':
			depth++
		case ch == ']':
			depth--
		case depth == 0 && (ch == ' ' || ch == '\t' || ch == '\n'):
			flush()
			continue
		}
		b.WriteByte(ch)
	}
	flush()
	return parts
}

// QueryAll returns the descendants of root matching sel, in document order.
func QueryAll(root *html.Node, sel Selector) []*html.Node {
	if root == nil {
		return nil
	}
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if sel.Match(c) {
				out = append(out, c)
			}
			walk(c)
		}
	}
	walk(root)
	return out
}

// Query returns the first descendant of root matching sel, or nil.
func Query(root *html.Node, sel Selector) *html.Node {
	if root == nil {
		return nil
	}
	var found *html.Node
	var walk func(*html.Node) bool
	walk = func(n *html.Node) bool {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if sel.Match(c) {
				found = c
				return true
			}
			if walk(c) {
				return true
			}
		}
		return false
	}
	walk(root)
	return found
}

// Closest returns n or its nearest ancestor matching sel.
func Closest(n *html.Node, sel Selector) *html.Node {
	for cur := n; cur != nil; cur = cur.Parent {
		if sel.Match(cur) {
			return cur
		}
	}
	return nil
}

// Contains reports whether n is ancestor itself or one of its descendants.
func Contains(ancestor, n *html.Node) bool {
	if ancestor == nil {
		return false
	}
	for cur := n; cur != nil; cur = cur.Parent {
		if cur == ancestor {
			return true
		}
	}
	return false
}

// ByID finds the element with the given id attribute.
func ByID(root *html.Node, id string) *html.Node {
	if id == "" {
		return nil
	}
	var found *html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if found != nil {
			return
		}
		if n.Type == html.ElementNode && Attr(n, "id") == id {
			found = n
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return found
}

// Attr returns the value of an attribute on a node.
func Attr(n *html.Node, key string) string {
	v, _ := lookupAttr(n, key)
	return v
}

// HasAttr checks if a node has a specific attribute.
func HasAttr(n *html.Node, key string) bool {
	_, ok := lookupAttr(n, key)
	return ok
}

func lookupAttr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
