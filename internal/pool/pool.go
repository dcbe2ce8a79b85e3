// Package pool runs command executions on a fixed set of workers with a
// bounded queue. Overflow is rejected immediately so the transport can
// answer with backpressure instead of buffering without limit.
package pool

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"wisp/internal/wisperr"
)

// Task is one unit of work. Done is invoked exactly once from a worker
// goroutine with the outcome.
type Task struct {
	ID       string
	Priority bool // priority tasks bypass the FIFO queue
	Timeout  time.Duration
	Run      func(ctx context.Context) (any, error)
	Done     func(result any, err error)
}

// Pool is the bounded dispatcher.
type Pool struct {
	queue    chan *Task
	priority chan *Task
	stopCh   chan struct{}
	wg       sync.WaitGroup
	log      *slog.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	queued  map[string]int
	dead    map[string]struct{}

	running  atomic.Int64
	accepted atomic.Uint64
	rejected atomic.Uint64
	stopped  atomic.Bool
}

// New creates a Pool with the given worker count and FIFO queue depth and
// starts its workers.
func New(workers, queueDepth int, log *slog.Logger) *Pool {
	if workers <= 0 {
		workers = 4
	}
	if queueDepth <= 0 {
		queueDepth = 64
	}

	p := &Pool{
		queue:    make(chan *Task, queueDepth),
		priority: make(chan *Task, queueDepth),
		stopCh:   make(chan struct{}),
		log:      log,
		cancels:  make(map[string]context.CancelFunc),
		queued:   make(map[string]int),
		dead:     make(map[string]struct{}),
	}

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

// Submit enqueues a task. A full lane fails fast with POOL_SATURATED; the
// task's Done is not called in that case.
func (p *Pool) Submit(t *Task) error {
	if p.stopped.Load() {
		return wisperr.New(wisperr.PoolSaturated, "pool is stopped")
	}

	lane := p.queue
	if t.Priority {
		lane = p.priority
	}

	// Count the id as queued before the send so Cancel never observes the
	// task in neither state.
	p.mu.Lock()
	p.queued[t.ID]++
	p.mu.Unlock()

	select {
	case lane <- t:
		p.accepted.Add(1)
		return nil
	default:
		p.mu.Lock()
		p.unqueue(t.ID)
		p.mu.Unlock()
		p.rejected.Add(1)
		return wisperr.Newf(wisperr.PoolSaturated, "dispatch queue full, rejecting %s", t.ID)
	}
}

// unqueue drops one queued count for id. Caller holds p.mu.
func (p *Pool) unqueue(id string) {
	if n := p.queued[id]; n <= 1 {
		delete(p.queued, id)
	} else {
		p.queued[id] = n - 1
	}
}

// Cancel aborts the task with the given id. A queued task is skipped
// without running; a running task has its context cancelled and is expected
// to return cooperatively. Cancels for ids the pool neither runs nor holds
// queued are ignored, so a late cancel cannot poison a future task reusing
// the id. Returns false if the id is not known.
func (p *Pool) Cancel(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if cancel, ok := p.cancels[id]; ok {
		cancel()
		return true
	}
	if p.queued[id] > 0 {
		p.dead[id] = struct{}{}
		return true
	}
	return false
}

// Running returns the number of tasks currently executing.
func (p *Pool) Running() int64 {
	return p.running.Load()
}

// Accepted and Rejected return the running admission counters.
func (p *Pool) Accepted() uint64 { return p.accepted.Load() }
func (p *Pool) Rejected() uint64 { return p.rejected.Load() }

// Stop prevents new submissions and waits up to timeout for in-flight
// tasks. Queued tasks that never started are answered with CANCELLED.
func (p *Pool) Stop(timeout time.Duration) error {
	if !p.stopped.CompareAndSwap(false, true) {
		return nil
	}
	close(p.stopCh)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		return fmt.Errorf("pool did not drain within %s", timeout)
	}

	// Drain what never reached a worker.
	for {
		select {
		case t := <-p.priority:
			t.Done(nil, wisperr.New(wisperr.Cancelled, "daemon shutting down"))
		case t := <-p.queue:
			t.Done(nil, wisperr.New(wisperr.Cancelled, "daemon shutting down"))
		default:
			return nil
		}
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		// Drain the priority lane before touching the FIFO queue.
		select {
		case t := <-p.priority:
			p.execute(t)
			continue
		default:
		}

		select {
		case t := <-p.priority:
			p.execute(t)
		case t := <-p.queue:
			p.execute(t)
		case <-p.stopCh:
			return
		}
	}
}

func (p *Pool) execute(t *Task) {
	p.mu.Lock()
	p.unqueue(t.ID)
	if _, dead := p.dead[t.ID]; dead {
		delete(p.dead, t.ID)
		p.mu.Unlock()
		t.Done(nil, wisperr.Newf(wisperr.Cancelled, "request %s cancelled before execution", t.ID))
		return
	}

	ctx := context.Background()
	var cancel context.CancelFunc
	if t.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, t.Timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	p.cancels[t.ID] = cancel
	p.mu.Unlock()

	defer func() {
		cancel()
		p.mu.Lock()
		delete(p.cancels, t.ID)
		p.mu.Unlock()
	}()

	p.running.Add(1)
	defer p.running.Add(-1)

	type outcome struct {
		result any
		err    error
	}
	ch := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- outcome{nil, wisperr.Newf(wisperr.ExecutionError, "handler panic: %v", r)}
			}
		}()
		result, err := t.Run(ctx)
		ch <- outcome{result, err}
	}()

	select {
	case out := <-ch:
		t.Done(out.result, out.err)
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			t.Done(nil, wisperr.Newf(wisperr.Timeout, "execution of %s exceeded %s", t.ID, t.Timeout))
		} else {
			t.Done(nil, wisperr.Newf(wisperr.Cancelled, "request %s cancelled", t.ID))
		}
		// The abandoned call keeps the worker until it returns; handlers
		// are expected to honor ctx promptly.
		<-ch
	}
}
