// Package queue implements the capture queue shared by the capture worker and consumers.
package queue

import (
	"sync"
	"time"

	"firestige.xyz/arpfuzzer/internal/core"
)

// compactThreshold is the number of consumed slots tolerated before the backing
// slice is shifted down.
const compactThreshold = 1024

// Queue is an unbounded FIFO of captured frames guarded by a single mutex.
// No I/O is performed while the lock is held.
type Queue struct {
	mu    sync.Mutex
	items []core.CapturedFrame
	head  int
	seq   uint64
}

// New creates an empty queue.
func New() *Queue {
	return &Queue{}
}

// Push appends frame and returns the stored item together with the depth observed
// under the same lock.
func (q *Queue) Push(frame core.Frame, at time.Time) (core.CapturedFrame, int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.seq++
	item := core.CapturedFrame{Frame: frame, Seq: q.seq, ReceivedAt: at}
	q.items = append(q.items, item)
	return item, len(q.items) - q.head
}

// Pop removes the oldest frame. It never blocks and returns core.ErrQueueEmpty
// when nothing is queued.
func (q *Queue) Pop() (core.CapturedFrame, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.head == len(q.items) {
		return core.CapturedFrame{}, core.ErrQueueEmpty
	}
	item := q.items[q.head]
	q.items[q.head] = core.CapturedFrame{}
	q.head++

	switch {
	case q.head == len(q.items):
		q.items = q.items[:0]
		q.head = 0
	case q.head >= compactThreshold && q.head*2 >= len(q.items):
		n := copy(q.items, q.items[q.head:])
		q.items = q.items[:n]
		q.head = 0
	}
	return item, nil
}

// Size returns the number of queued frames.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}

// Discard drops every queued frame and returns how many were dropped.
func (q *Queue) Discard() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.items) - q.head
	q.items = nil
	q.head = 0
	return n
}
