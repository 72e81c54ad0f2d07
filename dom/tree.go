// Package dom mirrors a host page's DOM as an x/net/html tree and provides
// the read helpers the extraction core needs: selector matching, rendered
// text, XPath resolution and the transient highlight marker.
//
// The Tree is the only writer-aware type. Readers take the tree's read lock
// through Read; every structural write notifies subscribers after the lock
// is released, so a subscriber may read the tree from its callback.
package dom

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"golang.org/x/net/html"
)

// Mutation is one structural change observed under the mirrored document.
// Target is the parent node whose child list changed. It is nil when the
// whole document was replaced.
type Mutation struct {
	Target  *html.Node
	Added   int
	Removed int
}

// Tree is a mutable, subscribable mirror of one document.
type Tree struct {
	mu   sync.RWMutex
	root *html.Node

	subMu  sync.Mutex
	subs   map[int]func(Mutation)
	nextID int
}

// New wraps an already parsed document node.
func New(root *html.Node) *Tree {
	if root == nil {
		root = &html.Node{Type: html.DocumentNode}
	}
	return &Tree{root: root, subs: make(map[int]func(Mutation))}
}

// Parse reads an HTML document into a new Tree.
func Parse(r io.Reader) (*Tree, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("dom: parse: %w", err)
	}
	return New(root), nil
}

// ParseString is Parse over a string, mostly for fixtures.
func ParseString(s string) (*Tree, error) {
	return Parse(strings.NewReader(s))
}

// Read runs fn with the current document root under the read lock. fn must
// not call write methods on the same Tree.
func (t *Tree) Read(fn func(root *html.Node)) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	fn(t.root)
}

// Subscribe registers fn for every subsequent mutation. The returned
// function cancels the subscription; calling it twice is harmless.
func (t *Tree) Subscribe(fn func(Mutation)) (cancel func()) {
	t.subMu.Lock()
	id := t.nextID
	t.nextID++
	t.subs[id] = fn
	t.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.subMu.Lock()
			delete(t.subs, id)
			t.subMu.Unlock()
		})
	}
}

func (t *Tree) notify(muts ...Mutation) {
	t.subMu.Lock()
	fns := make([]func(Mutation), 0, len(t.subs))
	for _, fn := range t.subs {
		fns = append(fns, fn)
	}
	t.subMu.Unlock()

	for _, m := range muts {
		for _, fn := range fns {
			fn(m)
		}
	}
}

// AppendChild attaches child under parent and notifies an insertion.
func (t *Tree) AppendChild(parent, child *html.Node) {
	t.mu.Lock()
	if child.Parent != nil {
		child.Parent.RemoveChild(child)
	}
	parent.AppendChild(child)
	t.mu.Unlock()

	t.notify(Mutation{Target: parent, Added: 1})
}

// RemoveChild detaches child from its parent and notifies a removal.
// Detached nodes keep their subtree but are no longer Attached.
func (t *Tree) RemoveChild(child *html.Node) {
	t.mu.Lock()
	parent := child.Parent
	if parent == nil {
		t.mu.Unlock()
		return
	}
	parent.RemoveChild(child)
	t.mu.Unlock()

	t.notify(Mutation{Target: parent, Removed: 1})
}

// Sync merges a freshly parsed copy of the document into the mirror. Nodes
// whose content survives keep their identity, so references held by readers
// stay valid; nodes whose content left the page are detached rather than
// reused for a neighbour. Changed child lists are reported as mutations, one
// per parent, in document order. Nothing is notified when the structure is
// unchanged.
func (t *Tree) Sync(fresh *html.Node) {
	if fresh == nil {
		return
	}
	t.mu.Lock()
	var muts []Mutation
	if sameKind(t.root, fresh) {
		d := make(digests)
		d.add(t.root)
		d.add(fresh)
		merge(t.root, fresh, d, &muts)
	} else {
		t.root = fresh
		muts = append(muts, Mutation{Added: 1})
	}
	t.mu.Unlock()

	if len(muts) > 0 {
		t.notify(muts...)
	}
}

// Attached reports whether n still belongs to the current document.
func (t *Tree) Attached(n *html.Node) bool {
	if n == nil {
		return false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	top := n
	for top.Parent != nil {
		top = top.Parent
	}
	return top == t.root
}

// XPathOf computes n's XPath under the read lock.
func (t *Tree) XPathOf(n *html.Node) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return XPath(n)
}
