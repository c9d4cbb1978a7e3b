package instrument

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rn1024/creatoria-miniapp-mcp-sub000/internal/shared/types"
)

func TestHistoryEvictsInOneBatch(t *testing.T) {
	h := NewHistory()

	for i := 0; i < 1600; i++ {
		h.Append(types.ToolCallRecord{Tool: fmt.Sprintf("t%d", i), Success: true})
		if i == 1498 {
			assert.Equal(t, 1499, h.Len(), "no eviction below the threshold")
		}
	}

	assert.Equal(t, 1100, h.Len())

	records := h.Records()
	assert.Equal(t, "t500", records[0].Tool)
	assert.Equal(t, "t1599", records[len(records)-1].Tool)
}

func TestHistoryRecordsIsACopy(t *testing.T) {
	h := NewHistory()
	h.Append(types.ToolCallRecord{Tool: "a"})

	records := h.Records()
	records[0].Tool = "changed"

	assert.Equal(t, "a", h.Records()[0].Tool)
	assert.False(t, h.StartedAt().IsZero())
}

func TestHistorySince(t *testing.T) {
	h := NewHistory()

	recs, next := h.Since(0)
	assert.Empty(t, recs)
	assert.Equal(t, 0, next)

	h.Append(types.ToolCallRecord{Tool: "a"})
	h.Append(types.ToolCallRecord{Tool: "b"})

	recs, next = h.Since(0)
	assert.Len(t, recs, 2)
	assert.Equal(t, 2, next)

	h.Append(types.ToolCallRecord{Tool: "c"})
	recs, next = h.Since(next)
	assert.Equal(t, []types.ToolCallRecord{{Tool: "c"}}, recs)
	assert.Equal(t, 3, next)

	recs, _ = h.Since(next)
	assert.Empty(t, recs)
}

func TestHistorySinceSkipsEvicted(t *testing.T) {
	h := NewHistory()
	for i := 0; i < 1500; i++ {
		h.Append(types.ToolCallRecord{Tool: fmt.Sprintf("t%d", i)})
	}

	recs, next := h.Since(10)
	assert.Equal(t, 1500, next)
	assert.Len(t, recs, MaxHistory)
	assert.Equal(t, "t500", recs[0].Tool)
}
