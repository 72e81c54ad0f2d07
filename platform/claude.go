package platform

import (
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/hazyhaar/chatnav/dom"
)

// claude covers claude.ai. Conversations live under /chat/<id>.
type claude struct{}

var claudeTiers = []tier{
	{sel: dom.MustCompile(`[data-is-model-response="false"]`)},
	{sel: dom.MustCompile(`[class*="font-user-message"]`)},
	{
		sel:    dom.MustCompile(`div[class*="contents"]`),
		keep:   claudeContents,
		leaves: true,
	},
}

func (claude) ID() ID { return Claude }

func (claude) IsConversationView(url string) bool {
	return conversationID(url, "/chat/") != ""
}

func (claude) FindCandidates(doc *html.Node) []*html.Node {
	return findCandidates(doc, claudeTiers)
}

func (claude) WarmUp() time.Duration { return defaultWarmUp }

func (claude) ChromePhrases() []string {
	return []string{"New chat", "Starred", "Recents"}
}

func claudeContents(n *html.Node) bool {
	markup := strings.ToLower(dom.InnerHTML(n))
	if strings.Contains(markup, "assistant") || strings.Contains(markup, "claude") {
		return false
	}
	return trimmedLen(n) > 5
}
