package extract

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"

	"github.com/hazyhaar/chatnav/dom"
)

var (
	attachmentKeywords = []string{"file", "image", "attachment", "upload"}
	attachmentInputs   = dom.MustCompile(`img, [type="file"]`)
	attachmentLabels   = dom.MustCompile(`[class*="file"], [class*="attachment"]`)

	fileNameRe = regexp.MustCompile(`(?i)([a-zA-Z0-9_-]+\.(png|jpg|jpeg|gif|pdf|doc|docx|txt|zip|rar))`)
	fillerRe   = regexp.MustCompile(`(?i)已上传|上传|附件|文件|image|file`)
)

const maxLabel = 100

// HasAttachment reports whether n shows an uploaded file or image: its
// markup mentions one, or it holds an image or file input.
func HasAttachment(n *html.Node) bool {
	if n == nil {
		return false
	}
	markup := strings.ToLower(dom.InnerHTML(n))
	if containsAny(markup, attachmentKeywords) {
		return true
	}
	return dom.Query(n, attachmentInputs) != nil
}

// AttachmentName recovers the displayed name of an attachment in n, or "".
func AttachmentName(n *html.Node) string {
	if n == nil {
		return ""
	}
	return attachmentName(n, dom.InnerText(n))
}

// attachmentName prefers the text of a short file/attachment labelled
// element and falls back to the first file name found in text.
func attachmentName(n *html.Node, text string) string {
	for _, el := range dom.QueryAll(n, attachmentLabels) {
		label := strings.TrimSpace(dom.TextContent(el))
		if size := utf8.RuneCountInString(label); size > 0 && size < maxLabel {
			return label
		}
	}
	if m := fileNameRe.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return ""
}

// StripAttachment removes the first occurrence of name and the upload
// filler words from text, then trims it.
func StripAttachment(text, name string) string {
	if name == "" {
		return text
	}
	text = strings.TrimSpace(strings.Replace(text, name, "", 1))
	return strings.TrimSpace(fillerRe.ReplaceAllString(text, ""))
}
