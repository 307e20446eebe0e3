package prefetch

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
)

// PoolOptions configures a Pool.
type PoolOptions struct {
	// Workers is the number of slices that can be prefetched concurrently.
	// Values below 1 are treated as 1.
	Workers int

	Logger *slog.Logger
}

// PoolStats counts what the workers did with the requests they dequeued.
type PoolStats struct {
	Fetched int64
	Skipped int64
	Failed  int64
}

// Pool runs long-lived workers that drain a Queue and load each requested
// slice through the Coordinator, discarding the result: populating the
// shared cache is the point.
type Pool struct {
	coord   *Coordinator
	queue   *Queue
	workers int
	logger  *slog.Logger

	mu      sync.Mutex
	started bool
	stopped bool
	wg      sync.WaitGroup
	running atomic.Int32

	fetched atomic.Int64
	skipped atomic.Int64
	failed  atomic.Int64
}

// NewPool creates a Pool over coord and q. Call Start to launch the workers.
func NewPool(coord *Coordinator, q *Queue, opts PoolOptions) *Pool {
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Pool{
		coord:   coord,
		queue:   q,
		workers: workers,
		logger:  logger,
	}
}

// Workers returns the configured worker count.
func (p *Pool) Workers() int {
	return p.workers
}

// Start launches the workers. Cancelling ctx makes idle workers exit; a
// worker in the middle of a read finishes it first. Start is a no-op after
// the first call.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped {
		return
	}
	p.started = true

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		p.running.Add(1)
		go func(id int) {
			defer p.wg.Done()
			defer p.running.Add(-1)
			p.work(ctx, id)
		}(i)
	}
	p.logger.Debug("prefetch workers started", "workers", p.workers)
}

// Prefetch queues index for loading at the given priority.
func (p *Pool) Prefetch(priority, index int) {
	p.queue.Enqueue(priority, index)
}

func (p *Pool) work(ctx context.Context, id int) {
	for {
		req, err := p.queue.Dequeue(ctx)
		if err != nil {
			p.logger.Debug("prefetch worker cancelled", "worker", id)
			return
		}
		if req.IsStop() {
			p.logger.Debug("prefetch worker received stop signal", "worker", id)
			return
		}
		if p.coord.Contains(req.Index) {
			p.skipped.Add(1)
			continue
		}

		p.logger.Debug("prefetch starting load", "worker", id, "index", req.Index, "priority", req.Priority)
		// Reads are never abandoned half way, so the wait is not tied to ctx.
		if _, err := p.coord.GetOrFetch(context.Background(), req.Index); err != nil {
			p.failed.Add(1)
			p.logger.Warn("prefetch failed", "worker", id, "index", req.Index, "err", err)
			continue
		}
		p.fetched.Add(1)
		p.logger.Debug("prefetch completed load", "worker", id, "index", req.Index)
	}
}

// Shutdown discards pending requests, sends one stop sentinel per worker and
// waits for every worker to exit. Reads already in progress complete. It
// returns the number of requests that were discarded. Calling Shutdown more
// than once is safe.
func (p *Pool) Shutdown() int {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return 0
	}
	p.stopped = true
	started := p.started
	p.mu.Unlock()

	dropped := p.queue.Drain()
	if started {
		for i := 0; i < p.workers; i++ {
			p.queue.Enqueue(PriorityStop, StopIndex)
		}
		p.wg.Wait()
	}
	// Anything queued while the workers were stopping is never served.
	dropped += p.queue.Drain()

	p.logger.Debug("prefetch workers stopped", "dropped", dropped)
	return dropped
}

// Running returns the number of workers that have not exited.
func (p *Pool) Running() int {
	return int(p.running.Load())
}

// Stats returns a snapshot of the worker counters.
func (p *Pool) Stats() PoolStats {
	return PoolStats{
		Fetched: p.fetched.Load(),
		Skipped: p.skipped.Load(),
		Failed:  p.failed.Load(),
	}
}
