package prefetch

import (
	"context"
	"sort"
	"sync"

	"github.com/eapache/queue"
)

const (
	// StopIndex is the sentinel index that tells a worker to exit.
	StopIndex = -1

	// PriorityStop is paired with StopIndex so shutdown overtakes pending work.
	PriorityStop = 0
	// PriorityNext is used for the slice the operator will see next.
	PriorityNext = 1
	// PriorityBackground is used for the rest of the planned traversal.
	PriorityBackground = 2
)

// Request asks a worker to load one slice. Lower Priority is served first.
type Request struct {
	Priority int
	Index    int
}

// IsStop reports whether r is the shutdown sentinel.
func (r Request) IsStop() bool {
	return r.Index == StopIndex
}

// Queue is an unbounded priority queue of prefetch requests. Requests of
// equal priority come out in the order they went in.
type Queue struct {
	mu     sync.Mutex
	levels map[int]*queue.Queue
	order  []int // priorities with a level, ascending
	size   int
	ready  chan struct{}
}

// NewQueue returns an empty Queue.
func NewQueue() *Queue {
	return &Queue{
		levels: make(map[int]*queue.Queue),
		ready:  make(chan struct{}, 1),
	}
}

// Enqueue adds a request. It never blocks.
func (q *Queue) Enqueue(priority, index int) {
	q.mu.Lock()
	level, ok := q.levels[priority]
	if !ok {
		level = queue.New()
		q.levels[priority] = level
		i := sort.SearchInts(q.order, priority)
		q.order = append(q.order, 0)
		copy(q.order[i+1:], q.order[i:])
		q.order[i] = priority
	}
	level.Add(index)
	q.size++
	q.mu.Unlock()

	q.signal()
}

// Dequeue removes the highest priority request, blocking until one is
// available or ctx is done.
func (q *Queue) Dequeue(ctx context.Context) (Request, error) {
	for {
		if r, ok := q.TryDequeue(); ok {
			return r, nil
		}
		select {
		case <-q.ready:
		case <-ctx.Done():
			return Request{}, ctx.Err()
		}
	}
}

// TryDequeue removes the highest priority request without blocking.
func (q *Queue) TryDequeue() (Request, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, p := range q.order {
		level := q.levels[p]
		if level.Length() == 0 {
			continue
		}
		r := Request{Priority: p, Index: level.Remove().(int)}
		q.size--
		if q.size > 0 {
			// Another waiter may have missed the wakeup for what is left.
			q.signal()
		}
		return r, true
	}
	return Request{}, false
}

// Drain discards every pending request except stop sentinels and returns
// how many were discarded.
func (q *Queue) Drain() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	dropped := 0
	for _, p := range q.order {
		level := q.levels[p]
		keep := queue.New()
		for level.Length() > 0 {
			index := level.Remove().(int)
			if index == StopIndex {
				keep.Add(index)
				continue
			}
			dropped++
		}
		q.levels[p] = keep
	}
	q.size -= dropped
	return dropped
}

// Len returns the number of pending requests, sentinels included.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

func (q *Queue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
