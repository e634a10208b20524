// Package yielder merges results from many concurrently-running
// producers into a single ordered stream, prioritizing sources the
// caller marks more urgent. It replaces the private-internals hack the
// original took on ThreadPoolExecutor's work queue (swapping in a
// priority queue behind its back) with a plain worker pool plus a
// container/heap-backed submit queue we own outright.
package yielder

import (
	"container/heap"
	"context"
	"sync"
)

// Source produces a batch of results, or an error. A nil, nil return
// means the source yielded nothing and is simply done.
type Source func(ctx context.Context) ([]any, error)

type job struct {
	priority int
	seq      int
	fn       Source
}

// jobHeap orders by (-priority, seq) so higher priority runs first and
// equal-priority jobs stay FIFO.
type jobHeap []*job

func (h jobHeap) Len() int { return len(h) }
func (h jobHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}
func (h jobHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *jobHeap) Push(x any)         { *h = append(*h, x.(*job)) }
func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// PriorityYielder runs a bounded pool of workers against a priority
// queue of submitted Sources, and exposes their combined output as a
// single ordered channel. Callers submit producers with Submit, then
// range over Results(); the channel closes once no submitted source is
// queued or running. The first error (see Err()) cancels the shared
// context, and batches not yet delivered at that point are dropped.
type PriorityYielder struct {
	maxWorkers      int
	yieldBufferSize int

	mu       sync.Mutex
	cond     *sync.Cond
	queue    jobHeap
	seq      int
	pending  int // submitted but not yet completed
	active   int // workers currently running
	closed   bool
	buffered int // items currently sitting unread in out

	out chan any
	err error

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a PriorityYielder.
type Option func(*PriorityYielder)

// WithMaxWorkers bounds concurrent workers; 0 means unbounded (limited
// only by how many sources are submitted at once).
func WithMaxWorkers(n int) Option { return func(y *PriorityYielder) { y.maxWorkers = n } }

// WithYieldBufferSize bounds how many yielded batches may sit unread
// before producer workers are throttled. 1 gives the laziest possible
// schedule; 0 means unlimited (workers never block on backpressure).
func WithYieldBufferSize(n int) Option { return func(y *PriorityYielder) { y.yieldBufferSize = n } }

// New creates a PriorityYielder bound to ctx. Cancelling ctx cancels
// the context handed to every Source, but queued sources are still
// dispatched (with that cancelled context); Shutdown discards queued
// work.
func New(ctx context.Context, opts ...Option) *PriorityYielder {
	innerCtx, cancel := context.WithCancel(ctx)
	y := &PriorityYielder{
		yieldBufferSize: 1,
		out:             make(chan any),
		ctx:             innerCtx,
		cancel:          cancel,
	}
	for _, opt := range opts {
		opt(y)
	}
	y.cond = sync.NewCond(&y.mu)
	return y
}

// Submit enqueues fn to run on a worker goroutine; higher priority
// values run before lower ones, and equal priorities run FIFO.
func (y *PriorityYielder) Submit(fn Source, priority int) {
	y.mu.Lock()
	if y.closed {
		y.mu.Unlock()
		return
	}
	j := &job{priority: priority, seq: y.seq, fn: fn}
	y.seq++
	heap.Push(&y.queue, j)
	y.pending++
	y.mu.Unlock()

	y.maybeSpawn()
}

func (y *PriorityYielder) maybeSpawn() {
	y.mu.Lock()
	defer y.mu.Unlock()
	for len(y.queue) > 0 && (y.maxWorkers <= 0 || y.active < y.maxWorkers) {
		j := heap.Pop(&y.queue).(*job)
		y.active++
		y.wg.Add(1)
		go y.runWorker(j)
	}
}

func (y *PriorityYielder) runWorker(j *job) {
	defer y.wg.Done()

	y.mu.Lock()
	for y.yieldBufferSize > 0 && y.buffered >= y.yieldBufferSize && y.err == nil {
		y.cond.Wait()
	}
	y.mu.Unlock()

	results, err := j.fn(y.ctx)

	y.mu.Lock()
	y.active--
	if err != nil && y.err == nil {
		y.err = err
		y.cancel()
	}
	y.mu.Unlock()

	if err == nil && len(results) > 0 {
		y.mu.Lock()
		y.buffered++
		y.mu.Unlock()
		select {
		case y.out <- results:
		case <-y.ctx.Done():
		}
		y.mu.Lock()
		y.buffered--
		y.cond.Broadcast()
		y.mu.Unlock()
	}

	y.maybeSpawn()

	y.mu.Lock()
	y.pending--
	done := y.pending == 0 && len(y.queue) == 0 && y.active == 0
	y.mu.Unlock()
	if done {
		y.closeOnce()
	}
}

func (y *PriorityYielder) closeOnce() {
	y.mu.Lock()
	if y.closed {
		y.mu.Unlock()
		return
	}
	y.closed = true
	y.mu.Unlock()
	close(y.out)
}

// Results returns the channel of yielded batches, in submission-merged
// priority order (subject to worker scheduling, not a global sort).
// The channel closes after every submitted source completes; after the
// first error, sources still queued are run with a cancelled context
// before it closes (see Err, which is populated before the channel
// closes).
func (y *PriorityYielder) Results() <-chan any { return y.out }

// Err returns the first error from any source, if one occurred. Only
// meaningful after Results() has closed.
func (y *PriorityYielder) Err() error {
	y.mu.Lock()
	defer y.mu.Unlock()
	return y.err
}

// Shutdown cancels all in-flight and queued work and waits for running
// workers to return. Safe to call multiple times.
func (y *PriorityYielder) Shutdown() {
	y.mu.Lock()
	y.queue = nil
	y.mu.Unlock()
	y.cancel()
	y.cond.Broadcast()
	y.wg.Wait()
	y.closeOnce()
}
