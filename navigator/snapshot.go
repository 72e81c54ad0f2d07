package navigator

import (
	"github.com/hazyhaar/chatnav/extract"
	"github.com/hazyhaar/chatnav/platform"
)

// Entry is one row of the message index as shown to presentation
// consumers.
type Entry struct {
	Index          int    `json:"index"`
	Preview        string `json:"preview"`
	HasAttachment  bool   `json:"has_attachment"`
	AttachmentName string `json:"attachment_name,omitempty"`
}

// Snapshot is the message index after a committed pass.
type Snapshot struct {
	SessionID string      `json:"session_id"`
	PageID    string      `json:"page_id,omitempty"`
	URL       string      `json:"url"`
	Platform  platform.ID `json:"platform"`
	// Seq counts committed passes in this session.
	Seq     uint64  `json:"seq"`
	Entries []Entry `json:"entries"`
	// Timestamp is epoch milliseconds at commit.
	Timestamp int64 `json:"timestamp"`
}

func entriesOf(msgs []extract.Message) []Entry {
	out := make([]Entry, len(msgs))
	for i, m := range msgs {
		out[i] = Entry{
			Index:          i,
			Preview:        m.Preview,
			HasAttachment:  m.HasAttachment,
			AttachmentName: m.AttachmentName,
		}
	}
	return out
}
