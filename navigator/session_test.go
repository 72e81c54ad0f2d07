package navigator

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/chatnav/dom"
	"github.com/hazyhaar/chatnav/idgen"
	"github.com/hazyhaar/chatnav/platform"
)

const claudeThread = `<!DOCTYPE html><html><body>
<nav><div data-is-model-response="false">sidebar chat title</div></nav>
<main id="thread">
<div data-is-model-response="false">First question here</div>
<div data-is-model-response="true">Answer one</div>
<div data-is-model-response="false">Second question here</div>
</main>
<div id="chat-nav-sidebar"><ul id="chat-nav-list"></ul></div>
</body></html>`

func mustTree(t *testing.T, s string) *dom.Tree {
	t.Helper()
	tree, err := dom.ParseString(s)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return tree
}

func byID(tree *dom.Tree, id string) *html.Node {
	var n *html.Node
	tree.Read(func(root *html.Node) { n = dom.ByID(root, id) })
	return n
}

func userTurn(text string) *html.Node {
	n := &html.Node{
		Type:     html.ElementNode,
		Data:     "div",
		DataAtom: atom.Div,
		Attr:     []html.Attribute{{Key: "data-is-model-response", Val: "false"}},
	}
	n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	return n
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before timeout")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// startClaude starts a session whose warm-up never fires unless warmUp is
// set, so passes happen only through mutations or ForceRescan.
func startClaude(t *testing.T, tree *dom.Tree, warmUp time.Duration, snaps chan Snapshot) *Session {
	t.Helper()
	if warmUp <= 0 {
		warmUp = time.Hour
	}
	s := StartSession(context.Background(), SessionConfig{
		Strategy:     platform.For(platform.Claude),
		Tree:         tree,
		URL:          "https://claude.ai/chat/abc",
		Debounce:     40 * time.Millisecond,
		WarmUp:       warmUp,
		HighlightFor: 60 * time.Millisecond,
		OnChange: func(snap Snapshot) {
			if snaps != nil {
				snaps <- snap
			}
		},
		NewID: idgen.Sequence("sess"),
	})
	t.Cleanup(s.Close)
	return s
}

func TestSession_WarmUpPass(t *testing.T) {
	snaps := make(chan Snapshot, 4)
	s := startClaude(t, mustTree(t, claudeThread), 10*time.Millisecond, snaps)

	select {
	case snap := <-snaps:
		if len(snap.Entries) != 2 {
			t.Fatalf("entries: got %d, want 2", len(snap.Entries))
		}
		if snap.Entries[0].Preview != "First question here" || snap.Entries[1].Preview != "Second question here" {
			t.Errorf("entries out of order: %+v", snap.Entries)
		}
		if snap.SessionID != s.ID() || snap.Platform != platform.Claude || snap.Seq != 1 {
			t.Errorf("snapshot header: %+v", snap)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot after warm-up")
	}
}

func TestSession_DebounceCoalescing(t *testing.T) {
	tree := mustTree(t, claudeThread)
	s := startClaude(t, tree, 0, nil)
	thread := byID(tree, "thread")

	const n = 10
	for i := 0; i < n; i++ {
		tree.AppendChild(thread, userTurn(strings.Repeat("x", i+1)+" follow-up"))
	}

	waitFor(t, 2*time.Second, func() bool { return s.Passes() >= 1 })
	time.Sleep(150 * time.Millisecond)
	if got := s.Passes(); got != 1 {
		t.Fatalf("passes: got %d, want exactly 1 for %d mutations", got, n)
	}
	if got := len(s.Snapshot().Entries); got != 2+n {
		t.Errorf("entries: got %d, want %d", got, 2+n)
	}
}

func TestSession_LateEventReschedules(t *testing.T) {
	tree := mustTree(t, claudeThread)
	s := StartSession(context.Background(), SessionConfig{
		Strategy: platform.For(platform.Claude),
		Tree:     tree,
		URL:      "https://claude.ai/chat/abc",
		Debounce: 200 * time.Millisecond,
		WarmUp:   time.Hour,
	})
	defer s.Close()
	thread := byID(tree, "thread")

	tree.AppendChild(thread, userTurn("early follow-up"))
	time.Sleep(120 * time.Millisecond)
	tree.AppendChild(thread, userTurn("late follow-up"))
	time.Sleep(120 * time.Millisecond)
	if s.Passes() != 0 {
		t.Fatal("the second event should have pushed the pass back")
	}
	waitFor(t, 2*time.Second, func() bool { return s.Passes() == 1 })
}

func TestSession_IgnoresOwnUIAndRemovals(t *testing.T) {
	tree := mustTree(t, claudeThread)
	s := startClaude(t, tree, 0, nil)

	list := byID(tree, "chat-nav-list")
	tree.AppendChild(list, userTurn("rendered sidebar item"))
	tree.AppendChild(byID(tree, "chat-nav-sidebar"), userTurn("another item"))

	var answer *html.Node
	tree.Read(func(root *html.Node) {
		answer = dom.Query(root, dom.MustCompile(`[data-is-model-response="true"]`))
	})
	tree.RemoveChild(answer)

	time.Sleep(150 * time.Millisecond)
	if got := s.Passes(); got != 0 {
		t.Fatalf("passes: got %d, want 0", got)
	}
}

func TestSession_IgnoresHeadInsertions(t *testing.T) {
	tree := mustTree(t, claudeThread)
	s := startClaude(t, tree, 0, nil)

	var head *html.Node
	tree.Read(func(root *html.Node) { head = dom.Query(root, dom.MustCompile("head")) })
	style := &html.Node{Type: html.ElementNode, Data: "style", DataAtom: atom.Style}
	style.AppendChild(&html.Node{Type: html.TextNode, Data: ".chat-message-highlight-pulse{}"})
	tree.AppendChild(head, style)

	time.Sleep(150 * time.Millisecond)
	if got := s.Passes(); got != 0 {
		t.Fatalf("passes: got %d, want 0", got)
	}

	tree.AppendChild(byID(tree, "thread"), userTurn("a body insertion"))
	waitFor(t, 2*time.Second, func() bool { return s.Passes() == 1 })
}

func TestSession_ForceRescan(t *testing.T) {
	snaps := make(chan Snapshot, 4)
	tree := mustTree(t, claudeThread)
	s := startClaude(t, tree, 0, snaps)

	tree.AppendChild(byID(tree, "thread"), userTurn("pending follow-up"))
	time.Sleep(10 * time.Millisecond)
	if err := s.ForceRescan(); err != nil {
		t.Fatalf("ForceRescan: %v", err)
	}
	if got := s.Passes(); got != 1 {
		t.Fatalf("passes after rescan: got %d, want 1", got)
	}
	first := <-snaps
	if len(first.Entries) != 3 {
		t.Fatalf("entries: got %d, want 3", len(first.Entries))
	}

	// The pending debounced pass was dropped.
	time.Sleep(120 * time.Millisecond)
	if got := s.Passes(); got != 1 {
		t.Fatalf("passes: got %d, want 1 (debounce cancelled)", got)
	}

	// Same content, but the fingerprint was reset: listeners fire again.
	if err := s.ForceRescan(); err != nil {
		t.Fatalf("ForceRescan: %v", err)
	}
	select {
	case snap := <-snaps:
		if snap.Seq != 2 {
			t.Errorf("Seq: got %d, want 2", snap.Seq)
		}
	case <-time.After(time.Second):
		t.Fatal("forced rescan did not publish")
	}
}

func TestSession_Activate(t *testing.T) {
	tree := mustTree(t, claudeThread)
	s := startClaude(t, tree, 0, nil)
	if err := s.ForceRescan(); err != nil {
		t.Fatal(err)
	}
	msgs := s.Messages()

	if ok, err := s.Activate(5); ok || err != nil {
		t.Fatalf("out of range: got %v, %v", ok, err)
	}
	if ok, err := s.Activate(-1); ok || err != nil {
		t.Fatalf("negative: got %v, %v", ok, err)
	}

	ok, err := s.Activate(0)
	if !ok || err != nil {
		t.Fatalf("Activate(0): got %v, %v", ok, err)
	}
	if !tree.Marked(msgs[0].Node) || dom.Attr(msgs[0].Node, dom.MarkerAttr) != "claude" {
		t.Fatal("first message should carry the marker")
	}

	if ok, _ := s.Activate(1); !ok {
		t.Fatal("Activate(1) failed")
	}
	if tree.Marked(msgs[0].Node) {
		t.Error("previous marker should be cleared")
	}
	if !tree.Marked(msgs[1].Node) {
		t.Error("second message should carry the marker")
	}

	waitFor(t, 2*time.Second, func() bool { return !tree.Marked(msgs[1].Node) })
}

func TestSession_ActivateDetached(t *testing.T) {
	tree := mustTree(t, claudeThread)
	s := startClaude(t, tree, 0, nil)
	if err := s.ForceRescan(); err != nil {
		t.Fatal(err)
	}
	node := s.Messages()[0].Node
	tree.RemoveChild(node)

	ok, err := s.Activate(0)
	if ok || err != nil {
		t.Fatalf("detached: got %v, %v", ok, err)
	}
	if tree.Marked(node) {
		t.Error("detached node should not be marked")
	}
}

func TestSession_ActivateAfterMiddleTurnRemoved(t *testing.T) {
	const thread = `<!DOCTYPE html><html><body>
<main id="thread">
<div data-is-model-response="false">First question here</div>
<div data-is-model-response="false">Second question here</div>
<div data-is-model-response="false">Third question here</div>
</main>
</body></html>`
	tree := mustTree(t, thread)
	s := startClaude(t, tree, 0, nil)
	if err := s.ForceRescan(); err != nil {
		t.Fatal(err)
	}
	msgs := s.Messages()
	if len(msgs) != 3 {
		t.Fatalf("messages: got %d, want 3", len(msgs))
	}

	fresh, err := html.Parse(strings.NewReader(strings.Replace(thread,
		"<div data-is-model-response=\"false\">Second question here</div>\n", "", 1)))
	if err != nil {
		t.Fatal(err)
	}
	tree.Sync(fresh)

	if ok, err := s.Activate(1); ok || err != nil {
		t.Fatalf("removed turn: got %v, %v", ok, err)
	}
	if tree.Marked(msgs[2].Node) {
		t.Fatal("removed turn's record highlighted a neighbour")
	}
	ok, err := s.Activate(2)
	if !ok || err != nil {
		t.Fatalf("surviving turn: got %v, %v", ok, err)
	}
	if got := dom.TextContent(msgs[2].Node); got != "Third question here" {
		t.Errorf("highlighted node renders %q", got)
	}
}

func TestSession_Closed(t *testing.T) {
	tree := mustTree(t, claudeThread)
	s := startClaude(t, tree, 0, nil)
	if err := s.ForceRescan(); err != nil {
		t.Fatal(err)
	}
	s.Close()

	if err := s.ForceRescan(); !errors.Is(err, ErrClosed) {
		t.Errorf("ForceRescan after Close: got %v", err)
	}
	if _, err := s.Activate(0); !errors.Is(err, ErrClosed) {
		t.Errorf("Activate after Close: got %v", err)
	}
	if s.Fingerprint() != "" || len(s.Messages()) != 0 {
		t.Error("closing should empty the store")
	}

	// A mutation after Close is dropped.
	tree.AppendChild(byID(tree, "thread"), userTurn("too late"))
	time.Sleep(80 * time.Millisecond)
	if s.Passes() != 1 {
		t.Errorf("passes after Close: got %d", s.Passes())
	}
}

func TestSession_PerPlatformFixtures(t *testing.T) {
	tests := []struct {
		id   platform.ID
		url  string
		html string
		want []string
	}{
		{
			id:  platform.Gemini,
			url: "https://gemini.google.com/app/abc",
			html: `<nav><div class="user-query">Recent chat</div></nav><main>
				<div class="user-query">Explain channels please</div>
				<div class="model-response">Channels are typed conduits.</div>
				<div class="user-query"><div class="file-chip">notes.txt</div><p>summarize these notes</p></div>
				<div class="model-response">Summary.</div>
				<div class="user-query">Thanks, and select?</div>
			</main>`,
			want: []string{"Explain channels please", "summarize these notes", "Thanks, and select?"},
		},
		{
			id:  platform.ChatGPT,
			url: "https://chatgpt.com/c/6650f1a2-1234-8000",
			html: `<main>
				<div data-message-author-role="user"><div>What is a slice header?</div></div>
				<div data-message-author-role="assistant"><div>It holds a pointer.</div></div>
				<div data-message-author-role="user"><div>And the capacity?</div></div>
				<div data-message-author-role="user"><div>新聊天</div></div>
				<div data-message-author-role="user"><div>Show an append example</div></div>
			</main>`,
			want: []string{"What is a slice header?", "And the capacity?", "Show an append example"},
		},
		{
			id:   platform.Claude,
			url:  "https://claude.ai/chat/abc",
			html: claudeThread,
			want: []string{"First question here", "Second question here"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.id.String(), func(t *testing.T) {
			s := StartSession(context.Background(), SessionConfig{
				Strategy: platform.For(tt.id),
				Tree:     mustTree(t, tt.html),
				URL:      tt.url,
				WarmUp:   time.Hour,
			})
			defer s.Close()

			if err := s.ForceRescan(); err != nil {
				t.Fatal(err)
			}
			var got []string
			for _, e := range s.Snapshot().Entries {
				got = append(got, e.Preview)
			}
			if strings.Join(got, "|") != strings.Join(tt.want, "|") {
				t.Errorf("got %q, want %q", got, tt.want)
			}
			if err := s.ForceRescan(); err != nil {
				t.Fatal(err)
			}
			if s.Snapshot().Seq != 2 {
				t.Errorf("forced rescans should both commit")
			}
		})
	}
}
