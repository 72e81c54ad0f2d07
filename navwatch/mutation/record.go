// Package mutation defines the records the injected page observer reports
// over the CDP binding, and the UI actions the sidebar overlay sends back.
package mutation

import (
	"encoding/json"
	"fmt"
)

// Op is the kind of observed change.
type Op string

const (
	OpInsert   Op = "insert"   // nodes added to a child list
	OpRemove   Op = "remove"   // nodes removed from a child list
	OpText     Op = "text"     // character data changed
	OpAttr     Op = "attr"     // attribute changed
	OpNavigate Op = "navigate" // history push/replace/pop or hash change
	OpReset    Op = "reset"    // document replaced or observer re-injected
)

// Record is one observed change. XPath addresses the mutated parent for
// child list ops and the node itself otherwise.
type Record struct {
	Op       Op     `json:"op"`
	XPath    string `json:"xpath,omitempty"`
	Tag      string `json:"tag,omitempty"`
	Name     string `json:"name,omitempty"`
	Value    string `json:"value,omitempty"`
	OldValue string `json:"old_value,omitempty"`
	Added    int    `json:"added,omitempty"`
	Removed  int    `json:"removed,omitempty"`
}

// Structural reports whether r changes a child list.
func (r Record) Structural() bool {
	return r.Op == OpInsert || r.Op == OpRemove || r.Op == OpReset
}

// Batch is every record collected during one debounce window.
type Batch struct {
	PageID    string   `json:"page_id"`
	Seq       uint64   `json:"seq"`
	Records   []Record `json:"records"`
	Timestamp int64    `json:"timestamp"`
}

// NeedsResync reports whether the mirror must be refreshed: a child list
// or a visibility attribute changed. Text edits alone never resync.
func (b Batch) NeedsResync() bool {
	for _, r := range b.Records {
		if r.Structural() || r.Op == OpAttr {
			return true
		}
	}
	return false
}

// LastNavigation returns the URL of the last navigate record.
func (b Batch) LastNavigation() (string, bool) {
	for i := len(b.Records) - 1; i >= 0; i-- {
		if b.Records[i].Op == OpNavigate {
			return b.Records[i].Value, true
		}
	}
	return "", false
}

// DecodeRecords parses a binding payload: a JSON array of records.
func DecodeRecords(payload string) ([]Record, error) {
	var recs []Record
	if err := json.Unmarshal([]byte(payload), &recs); err != nil {
		return nil, fmt.Errorf("mutation: decode records: %w", err)
	}
	return recs, nil
}

// Action is a sidebar interaction.
type Action struct {
	Action string `json:"action"` // activate, search, rescan
	Index  int    `json:"index,omitempty"`
	Term   string `json:"term,omitempty"`
}

// DecodeAction parses a UI binding payload.
func DecodeAction(payload string) (Action, error) {
	var a Action
	if err := json.Unmarshal([]byte(payload), &a); err != nil {
		return a, fmt.Errorf("mutation: decode action: %w", err)
	}
	if a.Action == "" {
		return a, fmt.Errorf("mutation: decode action: missing action")
	}
	return a, nil
}
