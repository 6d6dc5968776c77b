package memory

import "time"

// Entry is one line of conversation.
type Entry struct {
	Role      string    `json:"role"`
	Text      string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// History is the in-memory conversation window. It is owned by the
// consuming loop: append-only from its point of view, bounded with
// oldest-first eviction. Not safe for concurrent use by design.
type History struct {
	max     int
	entries []Entry
}

func NewHistory(max int) *History {
	if max <= 0 {
		max = 20
	}
	return &History{max: max}
}

func (h *History) Append(role, text string) {
	h.entries = append(h.entries, Entry{Role: role, Text: text, Timestamp: time.Now()})
	if len(h.entries) > h.max {
		h.entries = h.entries[len(h.entries)-h.max:]
	}
}

// SetMax re-bounds the window, evicting oldest entries if needed.
func (h *History) SetMax(max int) {
	if max <= 0 {
		return
	}
	h.max = max
	if len(h.entries) > h.max {
		h.entries = h.entries[len(h.entries)-h.max:]
	}
}

// Entries returns the window oldest first. The slice is shared; callers
// must not mutate it.
func (h *History) Entries() []Entry {
	return h.entries
}

func (h *History) Len() int { return len(h.entries) }

// Replace seeds the window from persisted turns, oldest first.
func (h *History) Replace(entries []Entry) {
	h.entries = append(h.entries[:0], entries...)
	if len(h.entries) > h.max {
		h.entries = h.entries[len(h.entries)-h.max:]
	}
}
