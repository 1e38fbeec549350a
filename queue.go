package postbuild

import (
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency leaves one CPU for the host.
func DefaultConcurrency() int {
	n := runtime.NumCPU()
	if n <= 0 {
		return 10
	}
	return max(1, n-1)
}

// Queue runs at most limit tasks at once. A failing task does not cancel
// the others; Wait reports every failure after all tasks have settled.
//
// Enqueue and Wait must be called from the same goroutine.
type Queue struct {
	limit int
	g     *errgroup.Group

	mu   sync.Mutex
	next int
	errs []*TaskError
}

// NewQueue returns a queue of the given size. A non-positive limit uses
// DefaultConcurrency.
func NewQueue(limit int) *Queue {
	if limit <= 0 {
		limit = DefaultConcurrency()
	}
	q := &Queue{limit: limit}
	q.reset()
	return q
}

func (q *Queue) reset() {
	q.g = new(errgroup.Group)
	q.g.SetLimit(q.limit)
	q.next = 0
	q.errs = nil
}

func (q *Queue) Limit() int {
	return q.limit
}

// Enqueue starts task as soon as a slot is free. It blocks while the queue
// is full, so tasks are admitted in the order they were enqueued.
func (q *Queue) Enqueue(task func() error) {
	q.mu.Lock()
	index := q.next
	q.next++
	q.mu.Unlock()

	q.g.Go(func() error {
		if err := task(); err != nil {
			q.mu.Lock()
			q.errs = append(q.errs, &TaskError{Index: index, Err: err})
			q.mu.Unlock()
		}
		return nil
	})
}

// Wait blocks until every enqueued task has finished. It returns an
// *AggregateError when at least one task failed. The queue can be reused
// afterwards.
func (q *Queue) Wait() error {
	_ = q.g.Wait()

	q.mu.Lock()
	errs := q.errs
	q.reset()
	q.mu.Unlock()

	if len(errs) == 0 {
		return nil
	}
	return newAggregateError(errs)
}
