package dom

import (
	"strings"

	"golang.org/x/net/html"
)

const (
	// MarkerClass is the transient highlight class applied to an activated
	// message.
	MarkerClass = "chat-message-highlight-pulse"
	// MarkerAttr carries the platform name so host styles can vary the pulse.
	MarkerAttr = "data-highlight-platform"
)

// SetMarker adds the highlight class and platform attribute to n in the
// mirror. Marker changes are not structural and notify nobody.
func (t *Tree) SetMarker(n *html.Node, platform string) {
	if n == nil || n.Type != html.ElementNode {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	classes := strings.Fields(Attr(n, "class"))
	if !containsString(classes, MarkerClass) {
		classes = append(classes, MarkerClass)
	}
	setAttr(n, "class", strings.Join(classes, " "))
	setAttr(n, MarkerAttr, platform)
}

// ClearMarker removes what SetMarker added. Unmarked nodes are left alone.
func (t *Tree) ClearMarker(n *html.Node) {
	if n == nil || n.Type != html.ElementNode {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if HasAttr(n, "class") {
		if keep := withoutMarkerClass(Attr(n, "class")); keep == "" {
			removeAttr(n, "class")
		} else {
			setAttr(n, "class", keep)
		}
	}
	removeAttr(n, MarkerAttr)
}

// Marked reports whether n currently carries the highlight class.
func (t *Tree) Marked(n *html.Node) bool {
	if n == nil {
		return false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return containsString(strings.Fields(Attr(n, "class")), MarkerClass)
}

func setAttr(n *html.Node, key, val string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func removeAttr(n *html.Node, key string) {
	out := n.Attr[:0]
	for _, a := range n.Attr {
		if a.Key != key {
			out = append(out, a)
		}
	}
	n.Attr = out
}

// keepMarker re-applies a marker dropped by an attribute patch.
func keepMarker(n *html.Node, platform string) {
	classes := strings.Fields(Attr(n, "class"))
	if !containsString(classes, MarkerClass) {
		setAttr(n, "class", strings.Join(append(classes, MarkerClass), " "))
	}
	if platform != "" {
		setAttr(n, MarkerAttr, platform)
	}
}

func withoutMarkerClass(class string) string {
	var keep []string
	for _, c := range strings.Fields(class) {
		if c != MarkerClass {
			keep = append(keep, c)
		}
	}
	return strings.Join(keep, " ")
}

// UnmarkedHTML serialises n like OuterHTML, leaving out the highlight marker
// anywhere in the subtree.
func UnmarkedHTML(n *html.Node) string {
	if n == nil {
		return ""
	}
	return OuterHTML(unmarkedCopy(n))
}

func unmarkedCopy(n *html.Node) *html.Node {
	c := &html.Node{
		Type:      n.Type,
		DataAtom:  n.DataAtom,
		Data:      n.Data,
		Namespace: n.Namespace,
	}
	for _, a := range n.Attr {
		switch a.Key {
		case MarkerAttr:
			continue
		case "class":
			if a.Val = withoutMarkerClass(a.Val); a.Val == "" {
				continue
			}
		}
		c.Attr = append(c.Attr, a)
	}
	for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
		c.AppendChild(unmarkedCopy(ch))
	}
	return c
}
