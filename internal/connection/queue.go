package connection

import (
	"sync"
)

// taskQueue is an unbounded FIFO of closures. push never blocks, so transport
// callbacks and observers can always hand work to the manager loop.
type taskQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []func()
	closed bool
}

func newTaskQueue() *taskQueue {
	q := &taskQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// push appends a task. Returns false if the queue is closed.
func (q *taskQueue) push(task func()) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.items = append(q.items, task)
	q.cond.Signal()
	return true
}

// pop blocks until a task is available. After close it keeps returning the
// remaining tasks and then false.
func (q *taskQueue) pop() (func(), bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return nil, false
	}

	task := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return task, true
}

func (q *taskQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	q.cond.Broadcast()
}
