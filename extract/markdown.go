package extract

import (
	"fmt"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"golang.org/x/net/html"

	"github.com/hazyhaar/chatnav/dom"
)

var mdConverter = converter.NewConverter(
	converter.WithPlugins(
		base.NewBasePlugin(),
		commonmark.NewCommonmarkPlugin(),
		table.NewTablePlugin(),
	),
)

// Markdown renders the subtree of n as Markdown. When conversion fails or
// yields nothing, fallback is returned.
func Markdown(n *html.Node, fallback string) string {
	if n == nil {
		return fallback
	}
	md, err := mdConverter.ConvertString(dom.OuterHTML(n))
	if err != nil || strings.TrimSpace(md) == "" {
		return fallback
	}
	return strings.TrimSpace(md)
}

// Transcript renders messages as a numbered Markdown document, one
// section per message. Each body is converted from the message's node
// while it is still attached, else taken from its text.
func Transcript(title string, msgs []Message, attached func(*html.Node) bool) string {
	var b strings.Builder
	if title != "" {
		fmt.Fprintf(&b, "# %s\n\n", title)
	}
	for i, m := range msgs {
		fmt.Fprintf(&b, "## %d. %s\n\n", i+1, m.Preview)
		if m.HasAttachment && m.AttachmentName != "" {
			fmt.Fprintf(&b, "Attachment: `%s`\n\n", m.AttachmentName)
		}
		body := m.Text
		if attached == nil || attached(m.Node) {
			body = Markdown(m.Node, m.Text)
		}
		b.WriteString(body)
		b.WriteString("\n\n")
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}
