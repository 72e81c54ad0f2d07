package navigator

import (
	"golang.org/x/net/html"

	"github.com/hazyhaar/chatnav/dom"
	"github.com/hazyhaar/chatnav/platform"
)

// Highlighter applies and removes the transient activation marker. The
// session guarantees at most one marked node at a time and calls Clear
// before marking another.
type Highlighter interface {
	Highlight(n *html.Node, id platform.ID) error
	Clear(n *html.Node) error
}

// MirrorHighlighter marks nodes in the mirror tree only. It is the default
// when no live page is attached.
type MirrorHighlighter struct {
	Tree *dom.Tree
}

func (h MirrorHighlighter) Highlight(n *html.Node, id platform.ID) error {
	h.Tree.SetMarker(n, id.String())
	return nil
}

func (h MirrorHighlighter) Clear(n *html.Node) error {
	h.Tree.ClearMarker(n)
	return nil
}
