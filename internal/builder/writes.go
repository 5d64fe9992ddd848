package builder

import (
	"context"
	"sync"
)

type write struct {
	op string
	fn func(ctx context.Context) error
}

// writeQueue hands comment and transcript writes to a single worker so the
// stores see them in the order the session applied them.
type writeQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []write
	closed bool
}

func newWriteQueue() *writeQueue {
	q := &writeQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// push never blocks on the worker. Writes pushed after close are dropped.
func (q *writeQueue) push(w write) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.items = append(q.items, w)
	q.cond.Signal()
	return true
}

// next blocks until a write is queued. It returns false once the queue is
// closed and drained.
func (q *writeQueue) next() (write, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return write{}, false
	}
	w := q.items[0]
	q.items[0] = write{}
	q.items = q.items[1:]
	return w, true
}

// close lets the worker finish what is queued and then exit.
func (q *writeQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}
