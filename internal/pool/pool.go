// Package pool provides a bounded set of worker goroutines that run
// codec invocations off the caller's path. Warm-up is lazy and shared,
// dispatch queues FIFO when every worker is busy, and shutdown either
// drains in-flight work or rejects outstanding calls explicitly.
package pool

import (
	"context"
	"errors"
	"runtime"
	"sync"

	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/filebatch/internal/codec"
)

// ErrPoolClosed is returned for calls issued after Shutdown.
var ErrPoolClosed = errors.New("worker pool closed")

// Task is one unit of work executed on a worker. The report callback is
// already clamped to non-decreasing values in [0,100].
type Task func(ctx context.Context, report codec.ProgressFunc) (codec.Result, error)

// WarmupFunc performs expensive one-time setup, e.g. codec module priming.
type WarmupFunc func(ctx context.Context) error

// Pool dispatches tasks onto at most size concurrent workers. Workers
// are spawned lazily up to the bound and live until Shutdown.
type Pool struct {
	size   int
	warmup WarmupFunc

	mu          sync.Mutex
	initCh      chan struct{} // non-nil while a warm-up is in flight
	initErr     error
	initialized bool
	workers     int
	closed      bool

	queue    chan *execution
	shutdown chan struct{}
	wg       sync.WaitGroup
}

type execution struct {
	ctx    context.Context
	task   Task
	report codec.ProgressFunc
	done   chan outcome
}

type outcome struct {
	result codec.Result
	err    error
}

// New creates a pool bounded at size workers. A size of zero or less
// derives the bound from the available CPUs. The warmup function may be
// nil when no one-time setup is needed.
func New(size int, warmup WarmupFunc) *Pool {
	if size <= 0 {
		size = runtime.NumCPU()
		if size > 4 {
			size = 4
		}
	}
	return &Pool{
		size:     size,
		warmup:   warmup,
		queue:    make(chan *execution),
		shutdown: make(chan struct{}),
	}
}

// Size returns the concurrency bound.
func (p *Pool) Size() int {
	return p.size
}

// Initialize performs the one-time warm-up. It is idempotent and lazy:
// concurrent callers before completion await the same in-flight warm-up
// rather than duplicating it, and a failed warm-up is retried by the
// next call.
func (p *Pool) Initialize(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	if p.initialized {
		p.mu.Unlock()
		return nil
	}
	if p.initCh == nil {
		p.initCh = make(chan struct{})
		go p.runWarmup()
	}
	ch := p.initCh
	p.mu.Unlock()

	select {
	case <-ch:
	case <-ctx.Done():
		return ctx.Err()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.initErr
}

// runWarmup executes the warm-up once and publishes the outcome to every
// waiter. Failure resets the in-flight marker so Initialize can retry.
func (p *Pool) runWarmup() {
	var err error
	if p.warmup != nil {
		err = p.warmup(context.Background())
	}

	p.mu.Lock()
	p.initErr = err
	p.initialized = err == nil
	close(p.initCh)
	p.initCh = nil
	p.mu.Unlock()

	if err != nil {
		zlog.Logger.Error().Err(err).Msg("worker pool warm-up failed")
	}
}

// Execute dispatches one task to an available worker and blocks until it
// resolves. When all workers are busy, calls queue FIFO for the next
// free worker (the dispatch channel is unbuffered, so blocked callers
// are served in arrival order). Progress reports are clamped per
// invocation: values are forced into [0,100] and never decrease.
func (p *Pool) Execute(ctx context.Context, task Task, report codec.ProgressFunc) (codec.Result, error) {
	if err := p.Initialize(ctx); err != nil {
		return codec.Result{}, err
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return codec.Result{}, ErrPoolClosed
	}
	if p.workers < p.size {
		p.spawnWorker()
	}
	p.mu.Unlock()

	exec := &execution{
		ctx:    ctx,
		task:   task,
		report: clamped(report),
		done:   make(chan outcome, 1),
	}

	select {
	case p.queue <- exec:
	case <-p.shutdown:
		return codec.Result{}, ErrPoolClosed
	case <-ctx.Done():
		return codec.Result{}, ctx.Err()
	}

	out := <-exec.done
	return out.result, out.err
}

// spawnWorker starts one worker goroutine. Caller holds p.mu.
func (p *Pool) spawnWorker() {
	p.workers++
	p.wg.Add(1)

	go func() {
		defer p.wg.Done()
		for {
			select {
			case exec := <-p.queue:
				p.run(exec)
			case <-p.shutdown:
				return
			}
		}
	}()
}

// run executes one task, honoring cancellation observed before start.
func (p *Pool) run(exec *execution) {
	if err := exec.ctx.Err(); err != nil {
		exec.done <- outcome{err: err}
		return
	}
	result, err := exec.task(exec.ctx, exec.report)
	exec.done <- outcome{result: result, err: err}
}

// Shutdown stops intake and waits for in-flight executions to drain
// until ctx expires. Queued callers and late calls are rejected with
// ErrPoolClosed; nothing is silently dropped.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.shutdown)
	p.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// clamped wraps a progress callback so reported values stay in [0,100]
// and never decrease within one invocation. A nil callback is dropped.
func clamped(report codec.ProgressFunc) codec.ProgressFunc {
	if report == nil {
		return func(float64) {}
	}

	last := -1.0
	return func(percent float64) {
		if percent < 0 {
			percent = 0
		}
		if percent > 100 {
			percent = 100
		}
		if percent <= last {
			return
		}
		last = percent
		report(percent)
	}
}
