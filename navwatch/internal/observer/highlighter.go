package observer

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/net/html"

	"github.com/hazyhaar/chatnav/dom"
	"github.com/hazyhaar/chatnav/platform"
)

const highlightJS = `(xpath, cls, attr, platform, css) => {
  if (!document.getElementById('chat-navigator-dynamic-style')) {
    const style = document.createElement('style');
    style.id = 'chat-navigator-dynamic-style';
    style.textContent = css;
    document.head.appendChild(style);
  }
  const el = document.evaluate(xpath, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue;
  if (!el) throw new Error('chatnav: no node at ' + xpath);
  el.scrollIntoView({behavior: 'smooth', block: 'center'});
  el.classList.add(cls);
  el.setAttribute(attr, platform);
  return true;
}`

const clearJS = `(xpath, cls, attr) => {
  for (const el of document.querySelectorAll('.' + cls)) {
    el.classList.remove(cls);
    el.removeAttribute(attr);
  }
  return true;
}`

// Highlighter scrolls the live page to a message and pulses it. The mirror
// node is marked once the page confirms, so readers of the tree see the same
// state.
type Highlighter struct {
	Page    Page
	Tree    *dom.Tree
	Timeout time.Duration
}

// NewHighlighter returns a Highlighter for page and its mirror.
func NewHighlighter(page Page, tree *dom.Tree) *Highlighter {
	return &Highlighter{Page: page, Tree: tree, Timeout: 5 * time.Second}
}

func (h *Highlighter) Highlight(n *html.Node, id platform.ID) error {
	xp := h.Tree.XPathOf(n)
	if xp == "" {
		return fmt.Errorf("observer: highlight: node has no path")
	}

	ctx, cancel := h.context()
	defer cancel()
	if err := h.Page.Eval(ctx, highlightJS, xp, dom.MarkerClass, dom.MarkerAttr, id.String(), overlayCSS); err != nil {
		return fmt.Errorf("observer: highlight %s: %w", xp, err)
	}
	h.Tree.SetMarker(n, id.String())
	return nil
}

func (h *Highlighter) Clear(n *html.Node) error {
	h.Tree.ClearMarker(n)

	ctx, cancel := h.context()
	defer cancel()
	if err := h.Page.Eval(ctx, clearJS, h.Tree.XPathOf(n), dom.MarkerClass, dom.MarkerAttr); err != nil {
		return fmt.Errorf("observer: clear highlight: %w", err)
	}
	return nil
}

func (h *Highlighter) context() (context.Context, context.CancelFunc) {
	d := h.Timeout
	if d <= 0 {
		d = 5 * time.Second
	}
	return context.WithTimeout(context.Background(), d)
}
