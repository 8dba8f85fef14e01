// Package workers runs background writes on a fixed set of goroutines.
// Every submission returns a Task so callers may await the outcome or
// ignore it.
package workers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

// DefaultSize is the number of workers used when none is configured
const DefaultSize = 4

// ErrClosed is the result of a task submitted after Close
var ErrClosed = errors.New("workers: pool closed")

// Task is the completion handle of a submitted function
type Task struct {
	Name string
	fn   func() error
	done chan struct{}
	err  error
}

// Completed returns a task that has already finished with err
func Completed(name string, err error) *Task {
	t := &Task{Name: name, done: make(chan struct{}), err: err}
	close(t.done)
	return t
}

// Done is closed once the task has run
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Err returns the task's result, or nil while it is still pending
func (t *Task) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

// Wait blocks until the task finishes or ctx is done
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Task) finish(err error) {
	t.err = err
	close(t.done)
}

// Pool is a fixed-size worker pool with an unbounded FIFO queue, so Submit
// never blocks the caller.
type Pool struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []*Task
	closed bool
	wg     sync.WaitGroup
	logger *slog.Logger
}

// New starts a pool of size workers (DefaultSize when size <= 0)
func New(size int, logger *slog.Logger) *Pool {
	if size <= 0 {
		size = DefaultSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pool{logger: logger}
	p.cond = sync.NewCond(&p.mu)

	p.wg.Add(size)
	for i := 0; i < size; i++ {
		go p.worker(i)
	}
	return p
}

// Submit queues fn and returns its completion handle
func (p *Pool) Submit(name string, fn func() error) *Task {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return Completed(name, ErrClosed)
	}
	t := &Task{Name: name, fn: fn, done: make(chan struct{})}
	p.queue = append(p.queue, t)
	p.cond.Signal()
	return t
}

// Pending returns the number of queued tasks not yet picked up
func (p *Pool) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Close stops accepting work, runs everything already queued, and waits for
// the workers to exit. Safe to call more than once.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.cond.Broadcast()
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.closed {
			p.cond.Wait()
		}
		if len(p.queue) == 0 {
			p.mu.Unlock()
			return
		}
		t := p.queue[0]
		p.queue[0] = nil
		p.queue = p.queue[1:]
		p.mu.Unlock()

		p.run(id, t)
	}
}

func (p *Pool) run(id int, t *Task) {
	start := time.Now()
	var err error
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("task panic", "task", t.Name, "worker", id, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("task %s panicked: %v", t.Name, r)
		}
		if err != nil {
			p.logger.Warn("task failed", "task", t.Name, "worker", id, "err", err)
		} else {
			p.logger.Debug("task done", "task", t.Name, "worker", id, "dur", time.Since(start).String())
		}
		t.finish(err)
	}()
	err = t.fn()
}
