package platform

import (
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/hazyhaar/chatnav/dom"
)

// chatgpt covers chatgpt.com and chat.openai.com. Conversations live under
// /c/<id>; /c/new and short ids are landing pages. The app hydrates slowly,
// hence the longer warm-up.
type chatgpt struct{}

const (
	chatgptMinID  = 11
	chatgptWarmUp = 2 * time.Second
)

var (
	chatgptMain = dom.MustCompile(`main, [role="main"]`)

	// Short labels of the ChatGPT sidebar. Matched case-sensitively, only
	// against texts under 30 characters.
	chatgptUIKeywords = []string{"新聊天", "搜索聊天", "项目", "你的聊天", "gpt", "升级", "设置"}

	chatgptTiers = []tier{
		{sel: dom.MustCompile(`[data-message-author-role="user"]`)},
		{
			sel:    dom.MustCompile(`[class*="group"]`),
			keep:   chatgptGroup,
			leaves: true,
		},
	}
)

func (chatgpt) ID() ID { return ChatGPT }

func (chatgpt) IsConversationView(url string) bool {
	id := conversationID(url, "/c/")
	return len(id) >= chatgptMinID && !strings.HasPrefix(id, "new")
}

func (chatgpt) FindCandidates(doc *html.Node) []*html.Node {
	return findCandidates(doc, chatgptTiers)
}

func (chatgpt) WarmUp() time.Duration { return chatgptWarmUp }

func (chatgpt) ChromePhrases() []string {
	return []string{"New chat", "Search chats", "Explore GPTs", "Upgrade plan", "Library"}
}

// chatgptGroup filters the generic "group" containers: inside the main
// area, no assistant markup, at least 10 characters, and not a short
// sidebar label.
func chatgptGroup(n *html.Node) bool {
	if dom.Closest(n, chatgptMain) == nil {
		return false
	}
	markup := strings.ToLower(dom.InnerHTML(n))
	if strings.Contains(markup, "assistant") || strings.Contains(markup, "chatgpt") {
		return false
	}
	text := strings.TrimSpace(dom.TextContent(n))
	size := trimmedLen(n)
	if size < 10 {
		return false
	}
	if size < 30 && containsAny(text, chatgptUIKeywords) {
		return false
	}
	return true
}
