package platform

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"

	"github.com/hazyhaar/chatnav/dom"
)

var (
	userMarkers      = []string{`data-message-author-role="user"`, `class="user`, "user-query", "user-message"}
	assistantMarkers = []string{"model", "assistant", "gemini", "chatgpt", "claude", "response"}
)

// LooksLikeUserMessage is the last-resort authorship test for broad
// container matches. Explicit user markers win when no assistant marker is
// present; any assistant marker rejects. Nodes with neither pass when their text
// is short (under 500 characters) and holds no code block. The highlight
// marker is not part of the scanned markup.
func LooksLikeUserMessage(n *html.Node) bool {
	if n == nil || n.Type != html.ElementNode {
		return false
	}
	markup := strings.ToLower(dom.UnmarkedHTML(n))
	user := containsAny(markup, userMarkers)
	assistant := containsAny(markup, assistantMarkers)
	if user && !assistant {
		return true
	}
	if assistant {
		return false
	}

	text := dom.TextContent(n)
	code := strings.Contains(text, "```") ||
		strings.Contains(markup, "<pre") ||
		strings.Contains(markup, "<code")
	return utf8.RuneCountInString(text) < 500 && !code
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func trimmedLen(n *html.Node) int {
	return utf8.RuneCountInString(strings.TrimSpace(dom.TextContent(n)))
}
