/*
Package schedule drives full-dataset traversals in bounded batches on a
single worker goroutine, so engine state is never touched by two logical
computations at once.

GENERATION TOKENS:
  Every Run captures a fresh generation token. When the traversal finishes,
  the completion callback fires only if the token is still the latest;
  otherwise the finished result is silently discarded. A superseded run is
  NOT aborted mid-flight - it completes and fails the token check. This is
  what makes rapid filter changes safe without cancellation plumbing, and
  dropped completions are expected steady-state behavior, not errors.

CANCELLATION:
  In addition to the finish-but-discard rule, the runner checks the
  job's context between batches and stops early when it is cancelled.

SERIALIZATION:
  Jobs run one at a time in submission order on the runner's worker
  goroutine. A newer job therefore begins only after the stale one has
  finished, mirroring the single cooperative thread of the original host.
*/
package schedule

import (
	"context"
	"runtime"
	"sync/atomic"
)

// DefaultBatchSize bounds how many items are processed between yields.
const DefaultBatchSize = 500

// Runner executes chunked traversals with latest-generation-wins
// completion semantics.
type Runner struct {
	batchSize int
	gen       atomic.Uint64
	jobs      chan job
	done      chan struct{}
}

type job struct {
	ctx        context.Context
	gen        uint64
	count      int
	perItem    func(i int)
	onComplete func()
	handle     *Handle
}

// Handle reports the outcome of one Run.
type Handle struct {
	done      chan struct{}
	committed bool
	cancelled bool
}

// Done is closed when the job has finished processing, whether or not its
// completion was honored.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Committed reports whether the completion callback ran. Valid after Done.
func (h *Handle) Committed() bool { return h.committed }

// Cancelled reports whether the job stopped early on context cancellation.
func (h *Handle) Cancelled() bool { return h.cancelled }

// NewRunner starts a runner with the given batch size (0 = default).
func NewRunner(batchSize int) *Runner {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	r := &Runner{
		batchSize: batchSize,
		jobs:      make(chan job, 16),
		done:      make(chan struct{}),
	}
	go r.loop()
	return r
}

// Close stops the worker after draining queued jobs.
func (r *Runner) Close() {
	close(r.jobs)
	<-r.done
}

// Run submits a traversal of count items. perItem is called for each index
// in order; onComplete fires only if no newer Run started in the meantime.
func (r *Runner) Run(ctx context.Context, count int, perItem func(i int), onComplete func()) *Handle {
	h := &Handle{done: make(chan struct{})}
	gen := r.gen.Add(1)
	r.jobs <- job{ctx: ctx, gen: gen, count: count, perItem: perItem, onComplete: onComplete, handle: h}
	return h
}

// Generation returns the current (latest) generation token.
func (r *Runner) Generation() uint64 {
	return r.gen.Load()
}

func (r *Runner) loop() {
	defer close(r.done)
	for j := range r.jobs {
		r.process(j)
	}
}

func (r *Runner) process(j job) {
	defer close(j.handle.done)

	for start := 0; start < j.count; start += r.batchSize {
		if j.ctx != nil && j.ctx.Err() != nil {
			j.handle.cancelled = true
			return
		}
		end := start + r.batchSize
		if end > j.count {
			end = j.count
		}
		for i := start; i < end; i++ {
			j.perItem(i)
		}
		// Yield between batches so the traversal stays cooperative.
		runtime.Gosched()
	}

	if j.gen != r.gen.Load() {
		// A newer run started; this result is stale and is dropped.
		return
	}
	if j.onComplete != nil {
		j.onComplete()
	}
	j.handle.committed = true
}
