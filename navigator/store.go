package navigator

import (
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/hazyhaar/chatnav/extract"
)

const (
	dedupPrefix       = 100
	fingerprintPrefix = 20
)

// Fingerprint summarises a message list as "<count>|<first 20 chars of
// the last text>". The empty Fingerprint means no pass has committed.
type Fingerprint string

// FingerprintOf computes the fingerprint of msgs.
func FingerprintOf(msgs []extract.Message) Fingerprint {
	tail := ""
	if len(msgs) > 0 {
		tail = prefix(msgs[len(msgs)-1].Text, fingerprintPrefix)
	}
	return Fingerprint(fmt.Sprintf("%d|%s", len(msgs), tail))
}

// Dedup drops records whose first 100 characters of trimmed text repeat an
// earlier record. The first occurrence wins and order is kept.
func Dedup(records []extract.Message) []extract.Message {
	seen := make(map[string]struct{}, len(records))
	out := make([]extract.Message, 0, len(records))
	for _, r := range records {
		key := prefix(strings.TrimSpace(r.Text), dedupPrefix)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}
	return out
}

// Store holds the messages of the current conversation view. It is
// replaced wholesale on every committed pass and is safe for concurrent
// readers.
type Store struct {
	mu   sync.RWMutex
	msgs []extract.Message
	fp   Fingerprint
	seq  uint64
}

// Commit deduplicates records and replaces the store unless the resulting
// fingerprint matches the stored one. It reports whether it replaced.
func (s *Store) Commit(records []extract.Message) bool {
	msgs := Dedup(records)
	fp := FingerprintOf(msgs)

	s.mu.Lock()
	defer s.mu.Unlock()
	if fp == s.fp {
		return false
	}
	s.msgs = msgs
	s.fp = fp
	s.seq++
	return true
}

// Reset empties the store and unsets the fingerprint.
func (s *Store) Reset() {
	s.mu.Lock()
	s.msgs = nil
	s.fp = ""
	s.mu.Unlock()
}

// ResetFingerprint unsets the fingerprint so the next Commit replaces the
// store whatever it holds.
func (s *Store) ResetFingerprint() {
	s.mu.Lock()
	s.fp = ""
	s.mu.Unlock()
}

func (s *Store) Fingerprint() Fingerprint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fp
}

// Seq counts committed replacements.
func (s *Store) Seq() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seq
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.msgs)
}

// Messages returns a copy of the stored list.
func (s *Store) Messages() []extract.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]extract.Message(nil), s.msgs...)
}

// Get returns the message at index.
func (s *Store) Get(index int) (extract.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if index < 0 || index >= len(s.msgs) {
		return extract.Message{}, false
	}
	return s.msgs[index], true
}

// Search returns the indices of messages whose full text contains term,
// ignoring case. A blank term matches every message.
func (s *Store) Search(term string) []int {
	term = strings.ToLower(strings.TrimSpace(term))

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]int, 0, len(s.msgs))
	for i, m := range s.msgs {
		if term == "" || strings.Contains(strings.ToLower(m.Text), term) {
			out = append(out, i)
		}
	}
	return out
}

// Entries returns the presentation view of the stored list.
func (s *Store) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return entriesOf(s.msgs)
}

func prefix(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
