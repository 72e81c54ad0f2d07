package extract

import (
	"strings"
	"testing"
	"unicode/utf8"

	"golang.org/x/net/html"

	"github.com/hazyhaar/chatnav/dom"
)

// first parses s and returns the first element with class "msg".
func first(t *testing.T, s string) *html.Node {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(s))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	n := dom.Query(doc, dom.MustCompile(".msg"))
	if n == nil {
		t.Fatalf("no .msg element in %s", s)
	}
	return n
}

func TestExtract_AttachmentSeparation(t *testing.T) {
	n := first(t, `<div class="msg"><div class="file-chip">report.pdf</div><p>please summarize</p></div>`)
	m := Extract(n)
	if m == nil {
		t.Fatal("message rejected")
	}
	if !m.HasAttachment {
		t.Error("HasAttachment: got false")
	}
	if m.AttachmentName != "report.pdf" {
		t.Errorf("AttachmentName: got %q, want %q", m.AttachmentName, "report.pdf")
	}
	if m.Text != "please summarize" {
		t.Errorf("Text: got %q, want %q", m.Text, "please summarize")
	}
	if m.Node != n {
		t.Error("Node should reference the source element")
	}
}

func TestExtract_FileNamePattern(t *testing.T) {
	n := first(t, `<div class="msg"><img src="blob:1"> diagram_v2.PNG what is wrong here</div>`)
	m := Extract(n)
	if m == nil {
		t.Fatal("message rejected")
	}
	if m.AttachmentName != "diagram_v2.PNG" {
		t.Errorf("AttachmentName: got %q", m.AttachmentName)
	}
	if m.Text != "what is wrong here" {
		t.Errorf("Text: got %q", m.Text)
	}
}

func TestExtract_AttachmentOnly(t *testing.T) {
	n := first(t, `<div class="msg"><span class="attachment">photo.jpg</span><span>已上传</span></div>`)
	m := Extract(n)
	if m == nil {
		t.Fatal("message rejected")
	}
	if m.Text != "photo.jpg" {
		t.Errorf("Text: got %q, want the attachment name", m.Text)
	}
}

func TestExtract_AttachmentWithoutName(t *testing.T) {
	n := first(t, `<div class="msg"><img src="blob:1"><p>what is in this picture</p></div>`)
	m := Extract(n)
	if m == nil {
		t.Fatal("message rejected")
	}
	if !m.HasAttachment || m.AttachmentName != "" {
		t.Errorf("attachment: got %v %q", m.HasAttachment, m.AttachmentName)
	}
	if m.Text != "what is in this picture" {
		t.Errorf("Text: got %q", m.Text)
	}
}

func TestExtract_ChromeFiltering(t *testing.T) {
	tests := []struct {
		html string
		keep bool
	}{
		{`<div class="msg">新聊天</div>`, false},
		{`<div class="msg">搜索聊天</div>`, false},
		{`<div class="msg">New chat</div>`, false},
		{`<div class="msg">你好，请解释一下</div>`, true},
		{`<div class="msg">Thanks, that works</div>`, true},
		{`<div class="msg">ok!</div>`, false},
		{`<div class="msg"> </div>`, false},
		{`<div class="msg">` + "设置 " + strings.Repeat("long text ", 3) + `</div>`, true},
	}
	for _, tt := range tests {
		got := Extract(first(t, tt.html)) != nil
		if got != tt.keep {
			t.Errorf("Extract(%s): kept=%v, want %v", tt.html, got, tt.keep)
		}
	}
}

func TestExtract_PlatformPhrases(t *testing.T) {
	n := first(t, `<div class="msg">Gem manager</div>`)
	if Extract(n) == nil {
		t.Fatal("default list should keep the text")
	}
	if Extract(n, WithChromePhrases("Gem manager")) != nil {
		t.Error("extra phrase should reject the text")
	}
}

func TestExtract_LongMessagePreview(t *testing.T) {
	body := strings.Repeat("abcd ", 40)
	n := first(t, `<div class="msg"><p>`+body+`</p></div>`)
	m := Extract(n)
	if m == nil {
		t.Fatal("message rejected")
	}
	if got := utf8.RuneCountInString(m.Preview); got != PreviewLen+3 {
		t.Errorf("preview length: got %d, want %d", got, PreviewLen+3)
	}
	if !strings.HasSuffix(m.Preview, "...") {
		t.Errorf("preview should end with ellipsis: %q", m.Preview)
	}
}

func TestPreview(t *testing.T) {
	long := strings.Repeat("x", 200)
	if got := Preview(long); len(got) != 63 || got != strings.Repeat("x", 60)+"..." {
		t.Errorf("Preview(200x): got %q (%d)", got, len(got))
	}
	if got := Preview("  a   b\n\n\tc  "); got != "a b c" {
		t.Errorf("Preview: got %q", got)
	}
	exact := strings.Repeat("y", 60)
	if got := Preview(exact); got != exact {
		t.Errorf("Preview of 60 chars should not truncate: %q", got)
	}
	cjk := strings.Repeat("中", 70)
	if got := Preview(cjk); utf8.RuneCountInString(got) != 63 {
		t.Errorf("Preview(cjk): got %d runes", utf8.RuneCountInString(got))
	}
}

func TestStripAttachment(t *testing.T) {
	tests := []struct {
		text, name, want string
	}{
		{"report.pdf\n\nplease summarize", "report.pdf", "please summarize"},
		{"已上传 a.txt 文件 check this", "a.txt", "check this"},
		{"IMAGE x.png", "x.png", ""},
		{"unchanged", "", "unchanged"},
		{"a.txt and a.txt", "a.txt", "and a.txt"},
	}
	for _, tt := range tests {
		if got := StripAttachment(tt.text, tt.name); got != tt.want {
			t.Errorf("StripAttachment(%q, %q): got %q, want %q", tt.text, tt.name, got, tt.want)
		}
	}
}

func TestCleanText(t *testing.T) {
	if got := CleanText("a\u200bb\u00adc\nd"); got != "abc\nd" {
		t.Errorf("CleanText: got %q", got)
	}
}

func TestAll(t *testing.T) {
	doc, err := html.Parse(strings.NewReader(`<main>
		<div class="msg">first message</div>
		<div class="msg">新聊天</div>
		<div class="msg">second message</div>
	</main>`))
	if err != nil {
		t.Fatal(err)
	}
	got := All(dom.QueryAll(doc, dom.MustCompile(".msg")))
	if len(got) != 2 {
		t.Fatalf("All: got %d messages, want 2", len(got))
	}
	if got[0].Text != "first message" || got[1].Text != "second message" {
		t.Errorf("All: got %q, %q", got[0].Text, got[1].Text)
	}
}

func TestMarkdownAndTranscript(t *testing.T) {
	n := first(t, `<div class="msg"><p>Hello <strong>world</strong></p></div>`)
	if got := Markdown(n, "fallback"); got != "Hello **world**" {
		t.Errorf("Markdown: got %q", got)
	}
	if got := Markdown(nil, "fallback"); got != "fallback" {
		t.Errorf("Markdown(nil): got %q", got)
	}

	msgs := []Message{
		{Node: n, Text: "Hello world", Preview: "Hello world"},
		{Text: "see file", Preview: "see file", HasAttachment: true, AttachmentName: "a.pdf"},
	}
	attached := func(x *html.Node) bool { return x == n }
	out := Transcript("Chat", msgs, attached)
	for _, want := range []string{"# Chat", "## 1. Hello world", "Hello **world**", "## 2. see file", "Attachment: `a.pdf`"} {
		if !strings.Contains(out, want) {
			t.Errorf("Transcript missing %q:\n%s", want, out)
		}
	}
}
