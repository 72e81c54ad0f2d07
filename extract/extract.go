// Package extract turns a candidate user-turn element into a Message: the
// rendered text, an attachment name when one is shown, and a one-line
// preview. Rejected candidates yield nil; extraction never fails.
package extract

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"

	"github.com/hazyhaar/chatnav/dom"
)

const (
	// MinRendered is the shortest rendered text considered at all.
	MinRendered = 2
	// ChromeMax is the length under which text is checked against the
	// chrome phrase list.
	ChromeMax = 20
	// MinText is the shortest accepted message body.
	MinText = 5
	// MinResidual is the body length above which the text left after
	// stripping an attachment name is preferred over the name itself.
	MinResidual = 5
)

// Message is one user-authored turn.
type Message struct {
	// Node is the element the message was read from. It belongs to the
	// mirror tree and goes stale once detached.
	Node *html.Node

	Text           string
	Preview        string
	HasAttachment  bool
	AttachmentName string
}

// DefaultChromePhrases are labels of chat application chrome that generic
// selectors tend to pick up. Matching is case-sensitive substring.
var DefaultChromePhrases = []string{
	"新聊天", "搜索聊天", "搜索消息", "项目", "新项目", "你的聊天",
	"升级", "设置", "帮助", "探索 GPT", "应用", "图片",
	"New chat", "Search chats", "Search messages", "New project",
	"Your chats", "Explore GPTs", "Upgrade plan",
}

type options struct {
	chrome []string
}

// Option configures Extract.
type Option func(*options)

// WithChromePhrases adds phrases to the default chrome list.
func WithChromePhrases(phrases ...string) Option {
	return func(o *options) {
		o.chrome = append(o.chrome, phrases...)
	}
}

// Extract reads n. It returns nil when n does not hold a plausible message.
func Extract(n *html.Node, opts ...Option) *Message {
	if n == nil {
		return nil
	}
	o := options{chrome: append([]string(nil), DefaultChromePhrases...)}
	for _, fn := range opts {
		fn(&o)
	}

	full := strings.TrimSpace(CleanText(dom.InnerText(n)))
	size := utf8.RuneCountInString(full)
	if size < MinRendered {
		return nil
	}
	if size < ChromeMax && containsAny(full, o.chrome) {
		return nil
	}

	msg := &Message{Node: n, Text: full}
	if HasAttachment(n) {
		msg.HasAttachment = true
		msg.AttachmentName = attachmentName(n, full)
		if msg.AttachmentName != "" {
			body := StripAttachment(full, msg.AttachmentName)
			if utf8.RuneCountInString(body) > MinResidual {
				msg.Text = body
			} else {
				msg.Text = msg.AttachmentName
			}
		}
	}

	if utf8.RuneCountInString(msg.Text) < MinText {
		return nil
	}
	msg.Preview = Preview(msg.Text)
	return msg
}

// All extracts every candidate, dropping rejects. Order is preserved.
func All(nodes []*html.Node, opts ...Option) []Message {
	out := make([]Message, 0, len(nodes))
	for _, n := range nodes {
		if m := Extract(n, opts...); m != nil {
			out = append(out, *m)
		}
	}
	return out
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if sub != "" && strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
