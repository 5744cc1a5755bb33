package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/foxseedlab/tasktimer/internal/aggregate"
	"github.com/foxseedlab/tasktimer/internal/cache"
)

const (
	DefaultWindow       = 25 * time.Millisecond
	DefaultFetchTimeout = 10 * time.Second
)

var (
	// ErrUnavailable marks a read that could not be answered. Displays show
	// "time unavailable" for it.
	ErrUnavailable = errors.New("time unavailable")
	// ErrMissingResult means the batch response had no entry for the id.
	ErrMissingResult = fmt.Errorf("%w: missing from batch response", ErrUnavailable)
)

// Fetcher answers a whole batch in one round trip.
type Fetcher interface {
	FetchTotals(ctx context.Context, taskIDs []string) (map[string]aggregate.UserTotal, error)
}

// Entry is a cached total with the time it was fetched. ActiveSeconds is
// frozen at FetchedAt.
type Entry struct {
	Total     aggregate.UserTotal
	FetchedAt time.Time
}

type Result struct {
	Total     aggregate.UserTotal
	FetchedAt time.Time
	Err       error
}

// pendingBatch is owned by the coalescer until flush takes it; after that no
// new waiter can join it. epochs records each id's invalidation epoch at take
// time.
type pendingBatch struct {
	ids     []string
	waiters map[string][]chan Result
	epochs  map[string]uint64
}

func newPendingBatch() *pendingBatch {
	return &pendingBatch{waiters: make(map[string][]chan Result)}
}

type Coalescer struct {
	fetcher      Fetcher
	store        *cache.Cache[Entry]
	window       time.Duration
	fetchTimeout time.Duration
	keyFunc      func(taskID string) string
	now          func() time.Time

	mu         sync.Mutex
	pending    *pendingBatch
	timer      *time.Timer
	generation uint64
	epochs     map[string]uint64
	inflight   int
	idle       *sync.Cond
}

type Option func(*Coalescer)

func WithWindow(d time.Duration) Option {
	return func(c *Coalescer) {
		if d > 0 {
			c.window = d
		}
	}
}

func WithFetchTimeout(d time.Duration) Option {
	return func(c *Coalescer) {
		if d > 0 {
			c.fetchTimeout = d
		}
	}
}

// WithKeyFunc sets the cache key used for a task's total.
func WithKeyFunc(fn func(taskID string) string) Option {
	return func(c *Coalescer) {
		if fn != nil {
			c.keyFunc = fn
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Coalescer) {
		if now != nil {
			c.now = now
		}
	}
}

func TimeKey(taskID string) string {
	return cache.Key(taskID, "time")
}

// New creates a coalescer. store may be nil to disable caching.
func New(fetcher Fetcher, store *cache.Cache[Entry], opts ...Option) *Coalescer {
	c := &Coalescer{
		fetcher:      fetcher,
		store:        store,
		window:       DefaultWindow,
		fetchTimeout: DefaultFetchTimeout,
		keyFunc:      TimeKey,
		now:          time.Now,
		pending:      newPendingBatch(),
		epochs:       make(map[string]uint64),
	}
	c.idle = sync.NewCond(&c.mu)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load returns the total for taskID, from cache or from the next flush.
// Cancelling ctx stops the wait; the flush itself still runs.
func (c *Coalescer) Load(ctx context.Context, taskID string) (aggregate.UserTotal, error) {
	e, err := c.LoadEntry(ctx, taskID)
	return e.Total, err
}

// LoadEntry is Load plus the time the total was fetched, which is older than
// now when the answer comes from the cache.
func (c *Coalescer) LoadEntry(ctx context.Context, taskID string) (Entry, error) {
	if e, ok := c.cached(taskID); ok {
		return e, nil
	}
	ch := c.enqueue(taskID)
	select {
	case res := <-ch:
		return Entry{Total: res.Total, FetchedAt: res.FetchedAt}, res.Err
	case <-ctx.Done():
		return Entry{}, ctx.Err()
	}
}

// LoadAsync calls fn exactly once with the result.
func (c *Coalescer) LoadAsync(taskID string, fn func(Result)) {
	if e, ok := c.cached(taskID); ok {
		fn(Result{Total: e.Total, FetchedAt: e.FetchedAt})
		return
	}
	ch := c.enqueue(taskID)
	go func() {
		fn(<-ch)
	}()
}

// Flush sends the pending batch now instead of waiting for the window, and
// waits for every in-flight flush to finish.
func (c *Coalescer) Flush() {
	c.mu.Lock()
	batch := c.takeLocked()
	c.mu.Unlock()
	if batch != nil {
		c.run(batch)
	}

	c.mu.Lock()
	for c.inflight > 0 {
		c.idle.Wait()
	}
	c.mu.Unlock()
}

// Invalidate drops the cached total for taskID. A flush already in flight
// for it still answers its waiters but no longer writes the cache.
func (c *Coalescer) Invalidate(taskID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epochs[taskID]++
	if c.store != nil {
		c.store.Invalidate(c.keyFunc(taskID))
	}
}

func (c *Coalescer) cached(taskID string) (Entry, bool) {
	if c.store == nil {
		return Entry{}, false
	}
	return c.store.Get(c.keyFunc(taskID))
}

func (c *Coalescer) enqueue(taskID string) <-chan Result {
	ch := make(chan Result, 1)

	c.mu.Lock()
	defer c.mu.Unlock()

	b := c.pending
	if _, seen := b.waiters[taskID]; !seen {
		b.ids = append(b.ids, taskID)
	}
	b.waiters[taskID] = append(b.waiters[taskID], ch)

	// Each arrival restarts the window; older timer firings become no-ops.
	c.generation++
	gen := c.generation
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(c.window, func() { c.fire(gen) })
	return ch
}

func (c *Coalescer) fire(gen uint64) {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return
	}
	batch := c.takeLocked()
	c.mu.Unlock()
	if batch != nil {
		c.run(batch)
	}
}

// takeLocked swaps in a fresh pending batch and returns the old one, or nil
// when nothing is waiting.
func (c *Coalescer) takeLocked() *pendingBatch {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.generation++
	if len(c.pending.ids) == 0 {
		return nil
	}
	batch := c.pending
	c.pending = newPendingBatch()
	batch.epochs = make(map[string]uint64, len(batch.ids))
	for _, id := range batch.ids {
		batch.epochs[id] = c.epochs[id]
	}
	c.inflight++
	return batch
}

func (c *Coalescer) run(b *pendingBatch) {
	defer c.done()

	ctx, cancel := context.WithTimeout(context.Background(), c.fetchTimeout)
	defer cancel()

	fetchedAt := c.now()
	totals, err := c.fetcher.FetchTotals(ctx, b.ids)
	if err != nil {
		slog.Warn("batch time fetch failed", "error", err, "task_count", len(b.ids))
		failure := fmt.Errorf("%w: %w", ErrUnavailable, err)
		for _, id := range b.ids {
			resolve(b.waiters[id], Result{Err: failure})
		}
		return
	}

	for _, id := range b.ids {
		total, ok := totals[id]
		if !ok {
			resolve(b.waiters[id], Result{Err: ErrMissingResult})
			continue
		}
		c.remember(id, b.epochs[id], Entry{Total: total, FetchedAt: fetchedAt})
		resolve(b.waiters[id], Result{Total: total, FetchedAt: fetchedAt})
	}
	slog.Debug("batch time fetch flushed", "task_count", len(b.ids))
}

// remember caches e unless the id was invalidated after the batch was taken.
func (c *Coalescer) remember(taskID string, epoch uint64, e Entry) {
	if c.store == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epochs[taskID] != epoch {
		return
	}
	c.store.Set(c.keyFunc(taskID), e)
}

func (c *Coalescer) done() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inflight--
	if c.inflight == 0 {
		c.idle.Broadcast()
	}
}

func resolve(waiters []chan Result, res Result) {
	for _, ch := range waiters {
		ch <- res
	}
}
