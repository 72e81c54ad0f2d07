package mutation

import "testing"

func TestDecodeRecords(t *testing.T) {
	recs, err := DecodeRecords(`[
		{"op":"insert","xpath":"/html/body/main","added":2},
		{"op":"attr","xpath":"/html/body/main/div[1]","name":"class","value":"x"},
		{"op":"navigate","value":"https://claude.ai/chat/abc"}
	]`)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 3 {
		t.Fatalf("got %d records, want 3", len(recs))
	}
	if recs[0].Op != OpInsert || recs[0].Added != 2 || !recs[0].Structural() {
		t.Errorf("record 0: %+v", recs[0])
	}
	if recs[1].Structural() {
		t.Error("attr is not structural")
	}

	if _, err := DecodeRecords(`{"op":"insert"}`); err == nil {
		t.Error("an object payload should fail")
	}
}

func TestBatch(t *testing.T) {
	b := Batch{Records: []Record{
		{Op: OpText, XPath: "/html/body/p/text()"},
		{Op: OpNavigate, Value: "https://claude.ai/chat/a"},
		{Op: OpNavigate, Value: "https://claude.ai/chat/b"},
	}}
	if b.NeedsResync() {
		t.Error("text and navigation alone need no resync")
	}
	if u, ok := b.LastNavigation(); !ok || u != "https://claude.ai/chat/b" {
		t.Errorf("LastNavigation: got %q, %v", u, ok)
	}

	if !(Batch{Records: []Record{{Op: OpAttr, Name: "hidden"}}}).NeedsResync() {
		t.Error("visibility attributes need a resync")
	}
	b.Records = append(b.Records, Record{Op: OpRemove, XPath: "/html/body/main", Removed: 1})
	if !b.NeedsResync() {
		t.Error("remove needs a resync")
	}
	if _, ok := (Batch{}).LastNavigation(); ok {
		t.Error("empty batch has no navigation")
	}
}

func TestDecodeAction(t *testing.T) {
	a, err := DecodeAction(`{"action":"activate","index":3}`)
	if err != nil || a.Action != "activate" || a.Index != 3 {
		t.Errorf("got %+v, %v", a, err)
	}
	if _, err := DecodeAction(`{"index":3}`); err == nil {
		t.Error("missing action should fail")
	}
	if _, err := DecodeAction(`nope`); err == nil {
		t.Error("invalid JSON should fail")
	}
}
