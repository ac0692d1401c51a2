package monitor

import (
	"sync"
	"time"
)

// edge is one level change reported by a driver callback.
type edge struct {
	pin   uint8
	gen   uint32
	level bool
	at    time.Time
}

// edgeQueue is a fixed-capacity FIFO written from driver callbacks.
// push never allocates or blocks; when full the oldest edge is dropped and
// the overflow flag tells the reader to re-sample every pin.
type edgeQueue struct {
	mu       sync.Mutex
	buf      []edge
	head     int // next write position
	count    int
	overflow bool
	ready    chan struct{}
}

func newEdgeQueue(capacity int) *edgeQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &edgeQueue{
		buf:   make([]edge, capacity),
		ready: make(chan struct{}, 1),
	}
}

func (q *edgeQueue) push(e edge) {
	q.mu.Lock()
	if q.count == len(q.buf) {
		q.overflow = true
		// Overwrite oldest: head is already pointing at it
		q.buf[q.head] = e
		q.head = (q.head + 1) % len(q.buf)
	} else {
		q.buf[q.head] = e
		q.head = (q.head + 1) % len(q.buf)
		q.count++
	}
	q.mu.Unlock()
	q.signal()
}

// signal wakes the reader without blocking.
func (q *edgeQueue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// drainInto appends all queued edges, oldest first, to dst and resets the queue.
func (q *edgeQueue) drainInto(dst []edge) ([]edge, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	start := (q.head - q.count + len(q.buf)) % len(q.buf)
	for i := 0; i < q.count; i++ {
		dst = append(dst, q.buf[(start+i)%len(q.buf)])
	}

	overflow := q.overflow
	q.count = 0
	q.head = 0
	q.overflow = false
	return dst, overflow
}

func (q *edgeQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}
