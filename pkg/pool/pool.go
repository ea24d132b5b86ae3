package pool

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
)

// ErrClosed is returned by [Pool.Submit] after [Pool.Close].
var ErrClosed = errors.New("pool closed")

// Job is a unit of work. The context is the pool's context.
type Job func(ctx context.Context) error

// Failure records a job that returned an error or panicked.
type Failure struct {
	Name string
	Err  error
}

// Error implements the error interface.
func (f Failure) Error() string { return fmt.Sprintf("%s: %v", f.Name, f.Err) }

// Unwrap returns the job's error.
func (f Failure) Unwrap() error { return f.Err }

// PanicError is the error recorded for a job that panicked.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string { return fmt.Sprintf("panic: %v", e.Value) }

// Summary describes the jobs that finished between two calls to [Pool.Wait].
type Summary struct {
	Succeeded int
	Failures  []Failure
	Skipped   []string // never started because the context was cancelled
}

// Total returns the number of jobs accounted for.
func (s Summary) Total() int { return s.Succeeded + len(s.Failures) + len(s.Skipped) }

// Err joins the failures into a single error, or returns nil.
func (s Summary) Err() error {
	if len(s.Failures) == 0 {
		return nil
	}
	errs := make([]error, len(s.Failures))
	for i, f := range s.Failures {
		errs[i] = f
	}
	return errors.Join(errs...)
}

// Option configures a Pool.
type Option func(*Pool)

// WithOnDone registers a callback invoked after every job with its name and
// result (nil on success). Skipped jobs report the context error. The
// callback runs on the worker goroutine and must be safe for concurrent use.
func WithOnDone(fn func(name string, err error)) Option {
	return func(p *Pool) { p.onDone = fn }
}

// Pool is a bounded-concurrency job executor. The zero value is not usable;
// construct pools with [New].
type Pool struct {
	ctx    context.Context
	limit  int
	onDone func(string, error)

	wg sync.WaitGroup

	mu      sync.Mutex // protects everything below
	queue   []task
	active  int
	closed  bool
	summary Summary
}

type task struct {
	name string
	job  Job
}

// New returns a pool that runs at most limit jobs at once. A limit below 1
// is treated as 1.
func New(ctx context.Context, limit int, opts ...Option) *Pool {
	if ctx == nil {
		ctx = context.Background()
	}
	p := &Pool{ctx: ctx, limit: max(limit, 1)}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Limit returns the concurrency limit.
func (p *Pool) Limit() int { return p.limit }

// Submit enqueues a job and returns immediately. It fails only when the
// pool has been closed.
func (p *Pool) Submit(name string, job Job) error {
	t := task{name: name, job: job}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return fmt.Errorf("submit %s: %w", name, ErrClosed)
	}
	p.wg.Add(1)
	if p.active < p.limit {
		p.active++
		p.mu.Unlock()
		go p.worker(t)
		return nil
	}
	p.queue = append(p.queue, t)
	p.mu.Unlock()
	return nil
}

// Wait blocks until every submitted job has finished and returns the
// summary of the batch. With nothing submitted it returns immediately.
func (p *Pool) Wait() Summary {
	p.wg.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.summary
	p.summary = Summary{}
	return s
}

// Close rejects further submissions. Jobs already submitted still run.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}

// Active returns the number of busy workers.
func (p *Pool) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// Pending returns the number of queued jobs that have not started.
func (p *Pool) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// worker runs t, then keeps draining the queue until it is empty.
func (p *Pool) worker(t task) {
	for {
		p.run(t)

		p.mu.Lock()
		if len(p.queue) == 0 {
			p.active--
			p.mu.Unlock()
			return
		}
		t = p.queue[0]
		p.queue[0] = task{}
		p.queue = p.queue[1:]
		p.mu.Unlock()
	}
}

func (p *Pool) run(t task) {
	defer p.wg.Done()

	if err := p.ctx.Err(); err != nil {
		p.mu.Lock()
		p.summary.Skipped = append(p.summary.Skipped, t.name)
		p.mu.Unlock()
		p.notify(t.name, err)
		return
	}

	err := p.execute(t)

	p.mu.Lock()
	if err != nil {
		p.summary.Failures = append(p.summary.Failures, Failure{Name: t.name, Err: err})
	} else {
		p.summary.Succeeded++
	}
	p.mu.Unlock()
	p.notify(t.name, err)
}

func (p *Pool) execute(t task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return t.job(p.ctx)
}

func (p *Pool) notify(name string, err error) {
	if p.onDone == nil {
		return
	}
	defer func() { _ = recover() }()
	p.onDone(name, err)
}
