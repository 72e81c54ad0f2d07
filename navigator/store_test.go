package navigator

import (
	"strings"
	"testing"

	"github.com/hazyhaar/chatnav/extract"
)

func msgs(texts ...string) []extract.Message {
	out := make([]extract.Message, len(texts))
	for i, t := range texts {
		out[i] = extract.Message{Text: t, Preview: extract.Preview(t)}
	}
	return out
}

func TestFingerprintOf(t *testing.T) {
	if got := FingerprintOf(nil); got != "0|" {
		t.Errorf("empty: got %q, want %q", got, "0|")
	}
	got := FingerprintOf(msgs("first", "a message that is longer than twenty characters"))
	if got != "2|a message that is lo" {
		t.Errorf("got %q", got)
	}
	if got := FingerprintOf(msgs("中文消息一二三四五六七八九十甲乙丙丁戊己庚")); got != "1|中文消息一二三四五六七八九十甲乙丙丁戊己" {
		t.Errorf("runes: got %q", got)
	}
}

func TestStore_CommitIdempotent(t *testing.T) {
	var s Store
	records := msgs("hello there", "second message")
	if !s.Commit(records) {
		t.Fatal("first commit should replace")
	}
	if s.Commit(records) {
		t.Fatal("second commit of the same records should be a no-op")
	}
	if s.Seq() != 1 {
		t.Errorf("Seq: got %d, want 1", s.Seq())
	}

	s.ResetFingerprint()
	if s.Fingerprint() != "" {
		t.Errorf("fingerprint should be unset")
	}
	if !s.Commit(records) {
		t.Fatal("commit after ResetFingerprint should replace")
	}
}

func TestStore_CommitEmpty(t *testing.T) {
	var s Store
	if !s.Commit(nil) {
		t.Fatal("committing nothing over an unset fingerprint should replace")
	}
	if s.Fingerprint() != "0|" || s.Len() != 0 {
		t.Errorf("got fingerprint %q len %d", s.Fingerprint(), s.Len())
	}
	if s.Commit(nil) {
		t.Error("second empty commit should be a no-op")
	}
}

func TestStore_Dedup(t *testing.T) {
	base := strings.Repeat("a", 100)
	var s Store
	s.Commit(msgs(base+" tail one", "other", "  "+base+" tail two", "other"))
	got := s.Messages()
	if len(got) != 2 {
		t.Fatalf("Len: got %d, want 2", len(got))
	}
	if got[0].Text != base+" tail one" || got[1].Text != "other" {
		t.Errorf("first occurrence should win, got %q, %q", got[0].Text, got[1].Text)
	}
}

func TestStore_SameFingerprintDifferentMiddle(t *testing.T) {
	var s Store
	s.Commit(msgs("one message", "last message"))
	if s.Commit(msgs("changed message", "last message")) {
		t.Error("only count and tail are compared")
	}
}

func TestStore_Search(t *testing.T) {
	var s Store
	s.Commit(msgs("How do I use Goroutines?", "what about channels", "GOROUTINE leak"))

	tests := []struct {
		term string
		want []int
	}{
		{"goroutine", []int{0, 2}},
		{"  CHANNELS ", []int{1}},
		{"", []int{0, 1, 2}},
		{"   ", []int{0, 1, 2}},
		{"mutex", []int{}},
	}
	for _, tt := range tests {
		got := s.Search(tt.term)
		if len(got) != len(tt.want) {
			t.Errorf("Search(%q): got %v, want %v", tt.term, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("Search(%q): got %v, want %v", tt.term, got, tt.want)
				break
			}
		}
	}
}

func TestStore_ResetAndGet(t *testing.T) {
	var s Store
	s.Commit(msgs("hello there"))
	if _, ok := s.Get(0); !ok {
		t.Fatal("Get(0) should succeed")
	}
	if _, ok := s.Get(1); ok {
		t.Error("Get out of range should fail")
	}
	if _, ok := s.Get(-1); ok {
		t.Error("Get(-1) should fail")
	}

	s.Reset()
	if s.Len() != 0 || s.Fingerprint() != "" {
		t.Errorf("after Reset: len %d fingerprint %q", s.Len(), s.Fingerprint())
	}
}

func TestStore_Entries(t *testing.T) {
	var s Store
	records := msgs("plain", "with file")
	records[1].HasAttachment = true
	records[1].AttachmentName = "a.pdf"
	s.Commit(records)

	got := s.Entries()
	if len(got) != 2 {
		t.Fatalf("Entries: got %d", len(got))
	}
	if got[1].Index != 1 || !got[1].HasAttachment || got[1].AttachmentName != "a.pdf" || got[1].Preview != "with file" {
		t.Errorf("Entries[1]: got %+v", got[1])
	}
}
