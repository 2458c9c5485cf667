package engine

import (
	"context"
	"errors"
	"sync"
)

// ErrCleared is delivered to callers whose queued task was discarded before
// it started running.
var ErrCleared = errors.New("execution queue cleared")

// SerialQueue runs tasks one at a time in submission order. A task submitted
// with the same signal as the task currently waiting at the tail joins it
// instead of queueing a second run; all joined callers observe the same
// outcome.
type SerialQueue struct {
	mu      sync.Mutex
	tasks   []*serialTask
	running bool
}

type serialTask struct {
	signal string
	ctx    context.Context
	run    func(context.Context) error
	subs   []chan error
}

// NewSerialQueue creates an empty serial queue.
func NewSerialQueue() *SerialQueue {
	return &SerialQueue{}
}

// Execute submits fn and blocks until it has run, the queue was cleared, or
// ctx is done. When the tail task carries the same non-empty signal the call
// coalesces onto it and fn is discarded.
func (q *SerialQueue) Execute(ctx context.Context, signal string, fn func(context.Context) error) error {
	result := make(chan error, 1)

	q.mu.Lock()
	if signal != "" && len(q.tasks) > 0 {
		if tail := q.tasks[len(q.tasks)-1]; tail.signal == signal {
			tail.subs = append(tail.subs, result)
			q.mu.Unlock()
			return q.await(ctx, result)
		}
	}
	q.tasks = append(q.tasks, &serialTask{
		signal: signal,
		ctx:    ctx,
		run:    fn,
		subs:   []chan error{result},
	})
	if !q.running {
		q.running = true
		go q.loop()
	}
	q.mu.Unlock()

	return q.await(ctx, result)
}

// Clear discards every task that has not started yet. The running task, if
// any, completes normally.
func (q *SerialQueue) Clear() {
	q.mu.Lock()
	cleared := q.tasks
	q.tasks = nil
	q.mu.Unlock()

	for _, t := range cleared {
		for _, sub := range t.subs {
			sub <- ErrCleared
		}
	}
}

// Running reports whether a task is executing or waiting to.
func (q *SerialQueue) Running() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.running
}

// Len returns the number of tasks waiting to run.
func (q *SerialQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

func (q *SerialQueue) await(ctx context.Context, result chan error) error {
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *SerialQueue) loop() {
	for {
		q.mu.Lock()
		if len(q.tasks) == 0 {
			q.running = false
			q.mu.Unlock()
			return
		}
		t := q.tasks[0]
		q.tasks[0] = nil
		q.tasks = q.tasks[1:]
		q.mu.Unlock()

		err := t.run(t.ctx)
		for _, sub := range t.subs {
			sub <- err
		}
	}
}
