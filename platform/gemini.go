package platform

import (
	"time"

	"golang.org/x/net/html"

	"github.com/hazyhaar/chatnav/dom"
)

// gemini covers gemini.google.com and AI Studio. Conversations live under
// /app/<id>.
type gemini struct{}

var geminiTiers = []tier{
	{sel: dom.MustCompile(`[data-message-author-role="user"]`)},
	{sel: dom.MustCompile(`.user-query`)},
	{sel: dom.MustCompile(`[class*="user"]`)},
	{
		sel:    dom.MustCompile(`div[class*="message"], div[class*="query"], div[class*="turn"], article`),
		keep:   LooksLikeUserMessage,
		leaves: true,
	},
}

func (gemini) ID() ID { return Gemini }

func (gemini) IsConversationView(url string) bool {
	return conversationID(url, "/app/") != ""
}

func (gemini) FindCandidates(doc *html.Node) []*html.Node {
	return findCandidates(doc, geminiTiers)
}

func (gemini) WarmUp() time.Duration { return defaultWarmUp }

func (gemini) ChromePhrases() []string {
	return []string{"New chat", "Gem manager", "Settings & help"}
}
