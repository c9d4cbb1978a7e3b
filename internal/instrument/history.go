package instrument

import (
	"sync"
	"time"

	"github.com/rn1024/creatoria-miniapp-mcp-sub000/internal/shared/types"
)

const (
	// MaxHistory is the number of records kept after an eviction.
	MaxHistory = 1000
	// evictAt is where eviction kicks in, 1.5x MaxHistory.
	evictAt = MaxHistory * 3 / 2
)

// History is a session's bounded call history. Once it reaches evictAt
// records the oldest half of MaxHistory is dropped in one batch.
type History struct {
	startedAt time.Time

	mu      sync.Mutex
	records []types.ToolCallRecord
	total   int
}

// NewHistory creates an empty history stamped with the current time.
func NewHistory() *History {
	return &History{
		startedAt: time.Now(),
		records:   make([]types.ToolCallRecord, 0, 64),
	}
}

// StartedAt returns when the history was created.
func (h *History) StartedAt() time.Time {
	return h.startedAt
}

// Append adds a record, evicting the oldest batch when full.
func (h *History) Append(rec types.ToolCallRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.records = append(h.records, rec)
	h.total++
	if len(h.records) >= evictAt {
		drop := len(h.records) - MaxHistory
		kept := make([]types.ToolCallRecord, MaxHistory, evictAt)
		copy(kept, h.records[drop:])
		h.records = kept
	}
}

// Len returns the number of records held.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.records)
}

// Records returns a copy of the held records, oldest first.
func (h *History) Records() []types.ToolCallRecord {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]types.ToolCallRecord, len(h.records))
	copy(out, h.records)
	return out
}

// Since returns the records appended after the first seq appends, oldest
// first, and the sequence to pass next time. Evicted records are skipped.
func (h *History) Since(seq int) ([]types.ToolCallRecord, int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	first := h.total - len(h.records)
	if seq < first {
		seq = first
	}
	if seq >= h.total {
		return nil, h.total
	}

	out := make([]types.ToolCallRecord, h.total-seq)
	copy(out, h.records[seq-first:])
	return out, h.total
}
