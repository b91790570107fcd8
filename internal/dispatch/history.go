package dispatch

import "time"

// historyCapacity bounds the command history ring; repetitionWindow is how
// many recent entries the repetition check looks at.
const (
	historyCapacity  = 10
	repetitionWindow = 3
)

// HistoryEntry is one remembered utterance. History only biases
// conversational phrasing; it is never authoritative for dispatch.
type HistoryEntry struct {
	Text string
	At   time.Time
}

// history is a fixed-capacity ring evicting the oldest entry on overflow.
// Not safe for concurrent use; the Dispatcher serialises access.
type history struct {
	entries []HistoryEntry
	cap     int
}

func newHistory(capacity int) *history {
	return &history{cap: capacity}
}

func (h *history) append(e HistoryEntry) {
	h.entries = append(h.entries, e)
	if len(h.entries) > h.cap {
		h.entries = h.entries[len(h.entries)-h.cap:]
	}
}

// last returns up to n most recent entries, newest last.
func (h *history) last(n int) []HistoryEntry {
	if n >= len(h.entries) {
		return h.entries
	}
	return h.entries[len(h.entries)-n:]
}
