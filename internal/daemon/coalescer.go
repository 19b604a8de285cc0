package daemon

import (
	"context"
	"sync"
	"time"
)

// Coalescer collapses bursts of change notifications into batches of
// distinct paths. Editors often write a file several times per save; the
// coalescer makes sure each burst reaches the ingestion pool once.
//
// Pending paths form a set. The set is flushed to the sink when it reaches
// MaxBatch entries or when FlushInterval has elapsed since the last flush,
// whichever comes first. A path seen again after a flush starts a new
// cycle.
//
// Add only touches the in-memory set and never waits for the sink, so the
// watcher goroutine feeding it keeps draining OS events while the pool is
// busy.
type Coalescer struct {
	maxBatch int
	interval time.Duration
	sink     func([]string)

	mu      sync.Mutex
	pending map[string]struct{}
	order   []string

	// full wakes Run when the set reaches maxBatch.
	full chan struct{}
}

// NewCoalescer creates a coalescer that hands batches to sink. sink is called
// from the goroutine running Run and may block; paths added meanwhile keep
// collapsing into the next batch.
func NewCoalescer(maxBatch int, interval time.Duration, sink func([]string)) *Coalescer {
	if maxBatch <= 0 {
		maxBatch = 32
	}
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &Coalescer{
		maxBatch: maxBatch,
		interval: interval,
		sink:     sink,
		pending:  make(map[string]struct{}),
		full:     make(chan struct{}, 1),
	}
}

// Add records path as changed. It reports whether the pending set has
// reached the batch size, in which case Run flushes it without waiting for
// the next tick.
func (c *Coalescer) Add(path string) (full bool) {
	c.mu.Lock()
	if _, dup := c.pending[path]; !dup {
		c.pending[path] = struct{}{}
		c.order = append(c.order, path)
	}
	full = len(c.order) >= c.maxBatch
	c.mu.Unlock()

	if full {
		select {
		case c.full <- struct{}{}:
		default:
		}
	}
	return full
}

// Len returns the number of distinct pending paths.
func (c *Coalescer) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}

// Drain empties the pending set and returns it in arrival order.
func (c *Coalescer) Drain() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	batch := c.order
	c.order = nil
	c.pending = make(map[string]struct{}, c.maxBatch)
	return batch
}

// Run flushes the pending set to the sink until ctx is done. Paths still
// pending when ctx ends are dropped.
func (c *Coalescer) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-c.full:
			c.flush()
			ticker.Reset(c.interval)

		case <-ticker.C:
			c.flush()
		}
	}
}

func (c *Coalescer) flush() {
	if batch := c.Drain(); len(batch) > 0 {
		c.sink(batch)
	}
}
