package console

import (
	"errors"
	"sync"
)

const DefaultQueueSize = 64

var ErrQueueFull = errors.New("console queue is full")

// Request is a console line waiting for the tick goroutine. A nil reply
// sends the result to the console output.
type Request struct {
	Line  string
	reply chan string
}

// Queue is a bounded FIFO shared by the input goroutines and the tick
// goroutine.
type Queue struct {
	mu    sync.Mutex
	items []Request
	limit int
}

func NewQueue(limit int) *Queue {
	if limit <= 0 {
		limit = DefaultQueueSize
	}
	return &Queue{limit: limit}
}

// Push appends r and never blocks.
func (q *Queue) Push(r Request) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) >= q.limit {
		return ErrQueueFull
	}
	q.items = append(q.items, r)
	return nil
}

// Drain removes and returns everything queued, oldest first.
func (q *Queue) Drain() []Request {
	q.mu.Lock()
	defer q.mu.Unlock()

	items := q.items
	q.items = nil
	return items
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.items)
}
