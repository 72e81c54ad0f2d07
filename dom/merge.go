package dom

import (
	"encoding/binary"
	"strings"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/net/html"
)

// lcsLimit bounds the table used to align two child lists. Longer lists are
// aligned greedily.
const lcsLimit = 1 << 20

// digests maps nodes to a hash of their whole subtree. The highlight marker
// is left out so a marked mirror node still matches its live copy.
type digests map[*html.Node]uint64

func (d digests) add(n *html.Node) uint64 {
	h := xxhash.New()
	var buf [8]byte
	field := func(s string) {
		h.WriteString(s)
		h.Write([]byte{0})
	}
	binary.LittleEndian.PutUint64(buf[:], uint64(n.Type))
	h.Write(buf[:])
	field(n.Data)
	for _, a := range n.Attr {
		val := a.Val
		switch a.Key {
		case MarkerAttr:
			continue
		case "class":
			if val = withoutMarkerClass(val); val == "" {
				continue
			}
		}
		field(a.Namespace)
		field(a.Key)
		field(val)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		binary.LittleEndian.PutUint64(buf[:], d.add(c))
		h.Write(buf[:])
	}
	sum := h.Sum64()
	d[n] = sum
	return sum
}

// merge patches old so that it mirrors fresh. Both must be sameKind.
//
// Children are aligned on subtree digests first; identical subtrees keep
// their old node untouched. Between aligned children, an old node is patched
// only when it is related to the fresh one (see related). Anything else is
// replaced: the old node leaves the tree and the fresh node moves in, so a
// reference to content that left the page ends up detached instead of
// pointing at a neighbour.
func merge(old, fresh *html.Node, d digests, muts *[]Mutation) {
	switch old.Type {
	case html.TextNode, html.CommentNode:
		old.Data = fresh.Data
		return
	case html.ElementNode:
		marker := Attr(old, MarkerAttr)
		marked := containsString(strings.Fields(Attr(old, "class")), MarkerClass)
		old.Attr = append(old.Attr[:0:0], fresh.Attr...)
		if marked {
			keepMarker(old, marker)
		}
	}

	oc, fc := children(old), children(fresh)
	pairs := align(d, oc, fc)

	var (
		order          []*html.Node
		nested         [][2]*html.Node
		added, removed int
		i, j           int
	)
	gap := func(oEnd, fEnd int) {
		for ; j < fEnd; j++ {
			f := fc[j]
			k := i
			for k < oEnd && !related(oc[k], f) {
				k++
			}
			if k == oEnd {
				order = append(order, f)
				added++
				continue
			}
			removed += k - i
			order = append(order, oc[k])
			nested = append(nested, [2]*html.Node{oc[k], f})
			i = k + 1
		}
		removed += oEnd - i
		i = oEnd
	}
	for _, p := range pairs {
		gap(p[0], p[1])
		order = append(order, oc[p[0]])
		i, j = p[0]+1, p[1]+1
	}
	gap(len(oc), len(fc))

	if added > 0 || removed > 0 {
		for _, c := range oc {
			old.RemoveChild(c)
		}
		for _, n := range order {
			if n.Parent != nil {
				n.Parent.RemoveChild(n)
			}
			old.AppendChild(n)
		}
		*muts = append(*muts, Mutation{Target: old, Added: added, Removed: removed})
	}
	for _, p := range nested {
		merge(p[0], p[1], d, muts)
	}
}

func children(n *html.Node) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		out = append(out, c)
	}
	return out
}

// align returns the index pairs of a longest common subsequence of equal
// digests between a and b, in order.
func align(d digests, a, b []*html.Node) [][2]int {
	eq := func(i, j int) bool { return d[a[i]] == d[b[j]] }

	var head, tail [][2]int
	lo := 0
	for lo < len(a) && lo < len(b) && eq(lo, lo) {
		head = append(head, [2]int{lo, lo})
		lo++
	}
	ea, eb := len(a), len(b)
	for ea > lo && eb > lo && eq(ea-1, eb-1) {
		ea--
		eb--
		tail = append(tail, [2]int{ea, eb})
	}

	n, m := ea-lo, eb-lo
	var mid [][2]int
	switch {
	case n == 0 || m == 0:
	case n*m > lcsLimit:
		k := lo
		for j := lo; j < eb; j++ {
			for x := k; x < ea; x++ {
				if eq(x, j) {
					mid = append(mid, [2]int{x, j})
					k = x + 1
					break
				}
			}
		}
	default:
		// table[x][y] is the LCS length of a[lo+x:ea] and b[lo+y:eb].
		table := make([][]int, n+1)
		for x := range table {
			table[x] = make([]int, m+1)
		}
		for x := n - 1; x >= 0; x-- {
			for y := m - 1; y >= 0; y-- {
				if eq(lo+x, lo+y) {
					table[x][y] = table[x+1][y+1] + 1
				} else {
					table[x][y] = max(table[x+1][y], table[x][y+1])
				}
			}
		}
		for x, y := 0, 0; x < n && y < m; {
			switch {
			case eq(lo+x, lo+y):
				mid = append(mid, [2]int{lo + x, lo + y})
				x++
				y++
			case table[x+1][y] >= table[x][y+1]:
				x++
			default:
				y++
			}
		}
	}

	out := append(head, mid...)
	for k := len(tail) - 1; k >= 0; k-- {
		out = append(out, tail[k])
	}
	return out
}

// related reports whether old may be patched into fresh rather than
// replaced. Elements with an id, the document skeleton, text that grew or
// shrank at its end, and containers sharing at least half of their text with
// each other qualify.
func related(old, fresh *html.Node) bool {
	if !sameKind(old, fresh) {
		return false
	}
	if old.Type != html.ElementNode {
		return true
	}
	if Attr(old, "id") != "" {
		return true
	}
	switch old.Data {
	case "html", "head", "body":
		return true
	}

	a := strings.TrimSpace(TextContent(old))
	b := strings.TrimSpace(TextContent(fresh))
	if strings.HasPrefix(a, b) || strings.HasPrefix(b, a) {
		return true
	}

	runs, oldLen := textRuns(old)
	shared, freshLen := 0, 0
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			s := strings.TrimSpace(n.Data)
			freshLen += len(s)
			if s != "" && runs[s] > 0 {
				runs[s]--
				shared += len(s)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(fresh)
	return 2*shared >= min(oldLen, freshLen)
}

// textRuns counts the non-blank text nodes under n by content.
func textRuns(n *html.Node) (map[string]int, int) {
	runs := make(map[string]int)
	total := 0
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if s := strings.TrimSpace(n.Data); s != "" {
				runs[s]++
				total += len(s)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return runs, total
}

// sameKind reports whether a and b can be merged: same node type, and for
// elements the same tag and id.
func sameKind(a, b *html.Node) bool {
	if a == nil || b == nil || a.Type != b.Type {
		return false
	}
	switch a.Type {
	case html.ElementNode:
		return a.Data == b.Data && Attr(a, "id") == Attr(b, "id")
	case html.DoctypeNode:
		return a.Data == b.Data
	}
	return true
}
