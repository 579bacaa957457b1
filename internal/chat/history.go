package chat

import "sync"

// History is the bounded, oldest-first log of formatted records replayed to
// newly joined clients. Appends are unbounded between trims; the retention
// task brings the length back to the configured maximum.
type History struct {
	mu      sync.Mutex
	records []string
}

func NewHistory() *History {
	return &History{}
}

// NewHistoryFrom seeds a history with records in chronological order.
func NewHistoryFrom(records []string) *History {
	h := &History{records: make([]string, len(records))}
	copy(h.records, records)
	HistoryRecords.Set(float64(len(records)))
	return h
}

func (h *History) Append(record string) {
	h.mu.Lock()
	h.records = append(h.records, record)
	n := len(h.records)
	h.mu.Unlock()

	HistoryRecords.Set(float64(n))
}

// Snapshot returns a copy of the records at the time of the call.
func (h *History) Snapshot() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.records))
	copy(out, h.records)
	return out
}

// Trim drops the oldest records until at most max remain and reports how many
// were removed.
func (h *History) Trim(max int) int {
	if max < 0 {
		max = 0
	}

	h.mu.Lock()
	excess := len(h.records) - max
	if excess <= 0 {
		h.mu.Unlock()
		return 0
	}
	// Copy the tail so the dropped prefix can be collected.
	kept := make([]string, max, max+max/4)
	copy(kept, h.records[excess:])
	h.records = kept
	h.mu.Unlock()

	HistoryRecords.Set(float64(max))
	return excess
}

func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.records)
}
