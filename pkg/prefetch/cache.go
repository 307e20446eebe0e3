// Package prefetch keeps an interactive slice viewer from blocking on volume
// I/O. A Coordinator owns the slice cache and guarantees each index is read
// from the volume at most once; a Pool of background workers drains a
// priority Queue and warms the cache ahead of the foreground.
package prefetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
	"gonum.org/v1/gonum/mat"

	"umbilicus/internal/models"
	"umbilicus/pkg/volume"
)

// Cache maps slice index to slice data. Entries are written once and never
// replaced or evicted; the cached matrices must be treated as read-only.
type Cache struct {
	mu     sync.RWMutex
	slices map[int]*mat.Dense
}

func newCache() *Cache {
	return &Cache{slices: make(map[int]*mat.Dense)}
}

// Get returns the cached slice for index, if present.
func (c *Cache) Get(index int) (*mat.Dense, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.slices[index]
	return s, ok
}

// Contains reports whether index has been loaded.
func (c *Cache) Contains(index int) bool {
	_, ok := c.Get(index)
	return ok
}

// Len returns the number of cached slices.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.slices)
}

// store inserts s unless index is already present, and returns the value
// that ends up cached.
func (c *Cache) store(index int, s *mat.Dense) *mat.Dense {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.slices[index]; ok {
		return existing
	}
	c.slices[index] = s
	return s
}

// Options configures a Coordinator.
type Options struct {
	// Axis is the traversal axis (0, 1 or 2).
	Axis int

	// Window restricts every slice to a sub-rectangle of the other two axes.
	Window models.Window

	// Serialize holds one lock across every volume read, so reads of
	// different indices never overlap. Use it for sources that cannot serve
	// concurrent reads. Reads of the same index are always coalesced.
	Serialize bool

	Logger *slog.Logger
}

// Stats counts Coordinator activity.
type Stats struct {
	Hits     int64
	Misses   int64
	Fetches  int64
	Failures int64
}

// Coordinator serves slices from the cache, reading from the volume on a miss.
type Coordinator struct {
	source    volume.Source
	axis      int
	rows      models.Span
	cols      models.Span
	cache     *Cache
	inflight  singleflight.Group
	serial    sync.Mutex
	serialize bool
	logger    *slog.Logger

	hits     atomic.Int64
	misses   atomic.Int64
	fetches  atomic.Int64
	failures atomic.Int64
}

// NewCoordinator resolves the window against the source shape and returns a
// Coordinator with an empty cache.
func NewCoordinator(source volume.Source, opts Options) (*Coordinator, error) {
	rows, cols, err := volume.ResolveWindow(source.Shape(), opts.Axis, opts.Window)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Coordinator{
		source:    source,
		axis:      opts.Axis,
		rows:      rows,
		cols:      cols,
		cache:     newCache(),
		serialize: opts.Serialize,
		logger:    logger,
	}, nil
}

// Window returns the absolute row and column spans every slice covers.
func (c *Coordinator) Window() (rows, cols models.Span) {
	return c.rows, c.cols
}

// Contains reports whether index is already cached.
func (c *Coordinator) Contains(index int) bool {
	return c.cache.Contains(index)
}

// Cached returns the number of slices loaded so far.
func (c *Coordinator) Cached() int {
	return c.cache.Len()
}

// Stats returns a snapshot of the hit, miss and fetch counters.
func (c *Coordinator) Stats() Stats {
	return Stats{
		Hits:     c.hits.Load(),
		Misses:   c.misses.Load(),
		Fetches:  c.fetches.Load(),
		Failures: c.failures.Load(),
	}
}

// GetOrFetch returns the slice for index, reading it from the volume if it is
// not cached yet. Concurrent calls for the same index share a single read.
// A failed read returns *FetchError to every caller waiting on it and leaves
// no cache entry.
//
// Cancelling ctx stops the wait, not the read: a read that has started runs
// to completion and still populates the cache.
func (c *Coordinator) GetOrFetch(ctx context.Context, index int) (*mat.Dense, error) {
	if s, ok := c.cache.Get(index); ok {
		c.hits.Add(1)
		c.logger.Debug("slice found in cache", "index", index)
		return s, nil
	}
	c.misses.Add(1)

	ch := c.inflight.DoChan(strconv.Itoa(index), func() (interface{}, error) {
		return c.fetch(index)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*mat.Dense), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Coordinator) fetch(index int) (*mat.Dense, error) {
	// A read for index may have finished between the caller's cache check
	// and this call starting.
	if s, ok := c.cache.Get(index); ok {
		return s, nil
	}

	if c.serialize {
		c.serial.Lock()
		defer c.serial.Unlock()
	}

	start := time.Now()
	c.logger.Debug("loading slice", "index", index)
	s, err := c.source.ReadSlice(c.axis, index, c.rows, c.cols)
	if err == nil {
		err = c.checkShape(s)
	}
	if err != nil {
		c.failures.Add(1)
		c.logger.Debug("slice load failed", "index", index, "elapsed", time.Since(start), "err", err)
		return nil, &FetchError{Index: index, Err: err}
	}

	s = c.cache.store(index, s)
	c.fetches.Add(1)
	c.logger.Debug("loaded slice", "index", index, "elapsed", time.Since(start))
	return s, nil
}

func (c *Coordinator) checkShape(s *mat.Dense) error {
	if s == nil {
		return ErrMalformedSlice
	}
	r, cols := s.Dims()
	if r != c.rows.Len() || cols != c.cols.Len() {
		return fmt.Errorf("%w: got %dx%d, want %dx%d", ErrMalformedSlice, r, cols, c.rows.Len(), c.cols.Len())
	}
	return nil
}
