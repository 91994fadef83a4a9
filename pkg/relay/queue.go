package relay

import (
	"time"

	"github.com/holomesh/holomesh/pkg/tracker"
)

// queue is a per-recipient FIFO of undelivered signaling messages.
// It is bounded: pushing past the limit drops the oldest entry first.
type queue struct {
	items []tracker.Message
}

// push appends a message, reports how many old entries were dropped to
// keep the queue within the limit.
func (q *queue) push(msg tracker.Message, limit int) (dropped int) {
	q.items = append(q.items, msg)
	for limit > 0 && len(q.items) > limit {
		q.items = q.items[1:]
		dropped++
	}
	return
}

// requeue puts undelivered messages back at the head of the queue,
// ahead of anything queued since. The limit still trims oldest-first.
func (q *queue) requeue(msgs []tracker.Message, limit int) (dropped int) {
	q.items = append(msgs, q.items...)
	for limit > 0 && len(q.items) > limit {
		q.items = q.items[1:]
		dropped++
	}
	return
}

// drain empties the queue preserving sender-submission order.
func (q *queue) drain() []tracker.Message {
	out := q.items
	q.items = nil
	return out
}

// purge removes entries older than maxAge, reports the purged count.
func (q *queue) purge(now time.Time, maxAge time.Duration) (purged int) {
	keep := q.items[:0]
	for _, m := range q.items {
		if now.Sub(m.At) < maxAge {
			keep = append(keep, m)
		} else {
			purged++
		}
	}
	q.items = keep
	return
}

func (q *queue) len() int { return len(q.items) }
