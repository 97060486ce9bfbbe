package signalclient

import (
	"slices"
	"sync"

	"github.com/dkeye/o2o/internal/core"
)

const DefaultQueueLimit = 200

// Queue buffers outbound messages while the channel is down or the writer is busy.
// It is FIFO and bounded; the oldest message is evicted on overflow.
type Queue struct {
	mu    sync.Mutex
	items []core.Message
	limit int
}

func NewQueue(limit int) *Queue {
	if limit <= 0 {
		limit = DefaultQueueLimit
	}
	return &Queue{limit: limit}
}

// Push appends m and reports whether an older message had to be evicted.
func (q *Queue) Push(m core.Message) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, m)
	return q.trim()
}

// Flush empties the queue and returns its content in order. Of all queued offers only the
// most recent survives; an older offer is superseded by construction.
func (q *Queue) Flush() []core.Message {
	q.mu.Lock()
	items := q.items
	q.items = nil
	q.mu.Unlock()

	last := -1
	for i, m := range items {
		if m.Type == core.TypeOffer {
			last = i
		}
	}
	if last < 0 {
		return items
	}
	out := items[:0]
	for i, m := range items {
		if m.Type == core.TypeOffer && i != last {
			continue
		}
		out = append(out, m)
	}
	return out
}

// Requeue puts unwritten messages back in front of anything queued since the flush.
func (q *Queue) Requeue(msgs []core.Message) {
	if len(msgs) == 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(slices.Clone(msgs), q.items...)
	q.trim()
}

// Discard drops every queued message whose type is listed and returns how many went.
func (q *Queue) Discard(types ...core.MessageType) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	before := len(q.items)
	q.items = slices.DeleteFunc(q.items, func(m core.Message) bool {
		return slices.Contains(types, m.Type)
	})
	return before - len(q.items)
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) trim() bool {
	if over := len(q.items) - q.limit; over > 0 {
		q.items = slices.Delete(q.items, 0, over)
		return true
	}
	return false
}
