package session

import (
	"context"
	"sync"
)

// opQueue is an unbounded FIFO of engine operations with a single consumer.
type opQueue struct {
	mu     sync.Mutex
	items  []func(context.Context)
	closed bool
	wake   chan struct{}
}

func newOpQueue() *opQueue {
	return &opQueue{wake: make(chan struct{}, 1)}
}

func (q *opQueue) push(op func(context.Context)) {
	q.mu.Lock()
	q.items = append(q.items, op)
	q.mu.Unlock()
	q.signal()
}

// close lets pop return false once the queued operations are drained.
func (q *opQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
}

func (q *opQueue) pop() (func(context.Context), bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			op := q.items[0]
			q.items[0] = nil
			q.items = q.items[1:]
			q.mu.Unlock()
			return op, true
		}
		if q.closed {
			q.mu.Unlock()
			return nil, false
		}
		q.mu.Unlock()
		<-q.wake
	}
}

func (q *opQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}
