package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
)

// Runner is the in-process Scheduler. Every key with queued work has one
// drainer goroutine that executes the key's tasks in FIFO order; a weighted
// semaphore caps how many handlers run at once across all keys.
type Runner struct {
	handler    Handler
	sem        *semaphore.Weighted
	maxPending int
	onPending  func(int)
	logger     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	queues  map[string][]Task
	pending int
	idle    chan struct{}
	closed  bool
}

type RunnerOption func(*Runner)

// WithPendingHook is called with the new pending count after every change.
func WithPendingHook(fn func(pending int)) RunnerOption {
	return func(r *Runner) { r.onPending = fn }
}

func NewRunner(cfg config.TasksConfig, handler Handler, opts ...RunnerOption) *Runner {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	idle := make(chan struct{})
	close(idle)
	r := &Runner{
		handler:    handler,
		sem:        semaphore.NewWeighted(int64(workers)),
		maxPending: cfg.QueueSize,
		logger:     slog.Default().With("component", "task-runner"),
		ctx:        ctx,
		cancel:     cancel,
		queues:     make(map[string][]Task),
		idle:       idle,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Schedule queues t behind any earlier tasks for the same key.
func (r *Runner) Schedule(ctx context.Context, t Task) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrRunnerClosed
	}
	if r.maxPending > 0 && r.pending >= r.maxPending {
		r.mu.Unlock()
		return fmt.Errorf("%w (%d pending)", ErrQueueFull, r.maxPending)
	}
	if r.pending == 0 {
		r.idle = make(chan struct{})
	}
	r.pending++
	n := r.pending
	q, active := r.queues[t.Key]
	r.queues[t.Key] = append(q, t)
	if !active {
		r.wg.Add(1)
		go r.drain(t.Key)
	}
	r.mu.Unlock()

	r.reportPending(n)
	return nil
}

func (r *Runner) drain(key string) {
	defer r.wg.Done()
	for {
		r.mu.Lock()
		q := r.queues[key]
		if len(q) == 0 {
			delete(r.queues, key)
			r.mu.Unlock()
			return
		}
		t := q[0]
		q[0] = Task{}
		r.queues[key] = q[1:]
		r.mu.Unlock()

		r.run(t)

		r.mu.Lock()
		r.pending--
		n := r.pending
		if n == 0 {
			close(r.idle)
		}
		r.mu.Unlock()
		r.reportPending(n)
	}
}

func (r *Runner) run(t Task) {
	if err := r.sem.Acquire(r.ctx, 1); err != nil {
		r.logger.Warn("runner stopped before task started, dropping", "op", t.Op, "key", t.Key)
		return
	}
	defer r.sem.Release(1)

	if err := safeRun(r.ctx, r.handler, t); err != nil {
		logTaskFailure(r.logger, t, err)
	}
}

func (r *Runner) reportPending(n int) {
	if r.onPending != nil {
		r.onPending(n)
	}
}

// Pending is the number of scheduled tasks that have not finished.
func (r *Runner) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending
}

// Wait blocks until no tasks are pending or ctx is done.
func (r *Runner) Wait(ctx context.Context) error {
	r.mu.Lock()
	idle := r.idle
	r.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting tasks and waits for queued ones to finish. If ctx
// expires first, running handlers see their context cancelled, tasks not yet
// started are dropped, and Close returns without waiting further.
func (r *Runner) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.cancel()
		r.logger.Info("task runner drained")
		return nil
	case <-ctx.Done():
		r.cancel()
		pending := r.Pending()
		r.logger.Warn("task runner drain interrupted", "pending", pending)
		return fmt.Errorf("draining task runner (%d pending): %w", pending, ctx.Err())
	}
}
