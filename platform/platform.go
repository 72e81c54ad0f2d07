// Package platform classifies chat URLs and locates user-authored turns in
// a platform's DOM.
//
// Each supported platform is a Strategy: an ordered list of selector tiers
// where the first tier that yields anything wins. Tiers go from the most
// reliable authorship attribute down to a generic structural fallback
// filtered by LooksLikeUserMessage. Every tier drops nodes that sit inside
// navigation chrome.
package platform

import (
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/hazyhaar/chatnav/dom"
)

// ID identifies a chat platform.
type ID int

const (
	Unknown ID = iota
	Gemini
	ChatGPT
	Claude
)

func (id ID) String() string {
	switch id {
	case Gemini:
		return "gemini"
	case ChatGPT:
		return "chatgpt"
	case Claude:
		return "claude"
	default:
		return "unknown"
	}
}

// MarshalText renders the ID as its lowercase name in JSON and YAML.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// Parse maps a platform name back to its ID. Unrecognised names are Unknown.
func Parse(name string) ID {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "gemini":
		return Gemini
	case "chatgpt":
		return ChatGPT
	case "claude":
		return Claude
	default:
		return Unknown
	}
}

// Strategy locates user turns for one platform.
type Strategy interface {
	ID() ID
	// IsConversationView reports whether url is inside an open chat thread
	// rather than a landing or list page.
	IsConversationView(url string) bool
	// FindCandidates returns candidate user-turn elements in document
	// order. It never fails; no match is an empty result.
	FindCandidates(doc *html.Node) []*html.Node
	// WarmUp is how long to wait after entering a view before the first
	// scan, to let the application hydrate.
	WarmUp() time.Duration
	// ChromePhrases extends the shared UI-chrome phrase list used by the
	// extractor to reject short navigation labels.
	ChromePhrases() []string
}

var hosts = []struct {
	host string
	id   ID
}{
	{"gemini.google.com", Gemini},
	{"aistudio.google.com", Gemini},
	{"chatgpt.com", ChatGPT},
	{"chat.openai.com", ChatGPT},
	{"claude.ai", Claude},
}

// Classify derives the platform from a URL. The host is matched first; a
// URL without a parseable host falls back to substring matching.
func Classify(rawURL string) ID {
	host := ""
	if u, err := url.Parse(strings.TrimSpace(rawURL)); err == nil {
		host = strings.ToLower(u.Hostname())
	}
	if host != "" {
		for _, h := range hosts {
			if host == h.host || strings.HasSuffix(host, "."+h.host) {
				return h.id
			}
		}
		return Unknown
	}

	lower := strings.ToLower(rawURL)
	for _, h := range hosts {
		if strings.Contains(lower, h.host) {
			return h.id
		}
	}
	return Unknown
}

// For returns the strategy of id. Unknown gets a dormant strategy that never
// reports a conversation view and finds nothing.
func For(id ID) Strategy {
	switch id {
	case Gemini:
		return gemini{}
	case ChatGPT:
		return chatgpt{}
	case Claude:
		return claude{}
	default:
		return dormant{}
	}
}

// IsConversationView is For(id).IsConversationView(url).
func IsConversationView(id ID, rawURL string) bool {
	return For(id).IsConversationView(rawURL)
}

// conversationID returns the path segment following marker (e.g. "/c/"),
// or "" when the marker is absent. Query and fragment are not part of it.
func conversationID(rawURL, marker string) string {
	path := rawURL
	if u, err := url.Parse(strings.TrimSpace(rawURL)); err == nil {
		path = u.Path
		if u.Host == "" && u.Opaque != "" {
			path = u.Opaque
		}
	}
	idx := strings.Index(path, marker)
	if idx < 0 {
		return ""
	}
	rest := path[idx+len(marker):]
	if end := strings.IndexByte(rest, '/'); end >= 0 {
		rest = rest[:end]
	}
	return rest
}

type dormant struct{}

func (dormant) ID() ID                                 { return Unknown }
func (dormant) IsConversationView(string) bool         { return false }
func (dormant) FindCandidates(*html.Node) []*html.Node { return nil }
func (dormant) WarmUp() time.Duration                  { return defaultWarmUp }
func (dormant) ChromePhrases() []string                { return nil }

const defaultWarmUp = time.Second

// tier is one selector strategy. keep filters matches; leaves drops any
// survivor that contains another survivor, for broad container selectors.
type tier struct {
	sel    dom.Selector
	keep   func(*html.Node) bool
	leaves bool
}

// chrome matches navigation rails, menus and our own sidebar.
var chrome = dom.MustCompile(`nav, aside, [role="navigation"], [class*="sidebar"], [class*="menu"], #chat-nav-sidebar`)

// InChrome reports whether n is, or sits inside, navigation chrome.
func InChrome(n *html.Node) bool {
	return dom.Closest(n, chrome) != nil
}

func findCandidates(doc *html.Node, tiers []tier) []*html.Node {
	if doc == nil {
		return nil
	}
	for _, t := range tiers {
		var out []*html.Node
		for _, n := range dom.QueryAll(doc, t.sel) {
			if InChrome(n) {
				continue
			}
			if t.keep != nil && !t.keep(n) {
				continue
			}
			out = append(out, n)
		}
		if t.leaves {
			out = leaves(out)
		}
		if len(out) > 0 {
			return out
		}
	}
	return nil
}

// leaves keeps the nodes that contain no other node of the set. Order is
// preserved.
func leaves(nodes []*html.Node) []*html.Node {
	if len(nodes) < 2 {
		return nodes
	}
	out := nodes[:0:0]
	for i, n := range nodes {
		wrapper := false
		for j, m := range nodes {
			if i != j && dom.Contains(n, m) {
				wrapper = true
				break
			}
		}
		if !wrapper {
			out = append(out, n)
		}
	}
	return out
}
