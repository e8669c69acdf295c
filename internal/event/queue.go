package event

import "sync"

// Queue is an unbounded FIFO event queue. Push never blocks; events are
// delivered in arrival order on C. The live engine uses it so that a burst of
// market data can never block a producer while the dispatcher catches up.
type Queue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	backlog []Event
	out     chan Event
	closed  bool
}

// NewQueue creates a queue and starts its delivery pump.
func NewQueue() *Queue {
	q := &Queue{out: make(chan Event)}
	q.cond = sync.NewCond(&q.mu)
	go q.pump()
	return q
}

// Push appends an event. It is safe for concurrent use and returns false if
// the queue has been closed.
func (q *Queue) Push(e Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.backlog = append(q.backlog, e)
	q.cond.Signal()
	return true
}

// C returns the delivery channel. It is closed after Close once the backlog
// has drained.
func (q *Queue) C() <-chan Event { return q.out }

// Len returns the number of undelivered events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.backlog)
}

// Close stops accepting new events. Events already queued are still
// delivered before the channel closes.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.cond.Signal()
	q.mu.Unlock()
}

func (q *Queue) pump() {
	for {
		q.mu.Lock()
		for len(q.backlog) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.backlog) == 0 && q.closed {
			q.mu.Unlock()
			close(q.out)
			return
		}
		e := q.backlog[0]
		q.backlog = q.backlog[1:]
		q.mu.Unlock()

		q.out <- e
	}
}
