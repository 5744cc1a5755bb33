package timesync

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/foxseedlab/tasktimer/internal/aggregate"
	"github.com/foxseedlab/tasktimer/internal/batch"
	"github.com/foxseedlab/tasktimer/internal/bus"
	"github.com/foxseedlab/tasktimer/internal/cache"
	"github.com/foxseedlab/tasktimer/internal/repository"
	"github.com/foxseedlab/tasktimer/internal/tracking"
	"golang.org/x/sync/singleflight"
)

const defaultPollInterval = 5 * time.Second

// ErrResetNotConfirmed is returned when Reset is called without confirmation.
// No request is sent.
var ErrResetNotConfirmed = errors.New("reset requires confirmation")

// Backend is the remote side of the timer: the HTTP API in production.
type Backend interface {
	Start(ctx context.Context, taskID string) (*repository.TimeSession, error)
	Stop(ctx context.Context, taskID string) (tracking.StopResult, error)
	Reset(ctx context.Context, taskID string) (tracking.ResetResult, error)
	UserTotals(ctx context.Context, taskIDs []string) (map[string]aggregate.UserTotal, error)
	TaskSnapshot(ctx context.Context, taskID string) (aggregate.TaskSnapshot, error)
	ListComments(ctx context.Context, taskID string) ([]repository.Comment, error)
}

// Reading is what a mounted display shows. Err set means "time unavailable".
// At is when Total was fetched; its ActiveSeconds are as of At.
type Reading struct {
	TaskID  string
	Total   aggregate.UserTotal
	Version uint64
	At      time.Time
	Err     error
}

// Display renders the total, or the unavailable marker for failed reads.
func (r Reading) Display() string {
	if r.Err != nil {
		return batch.ErrUnavailable.Error()
	}
	return r.Total.Formatted.Total
}

type Settings struct {
	BatchWindow     time.Duration
	TimeCacheTTL    time.Duration
	SessionCacheTTL time.Duration
	CommentCacheTTL time.Duration
	RequestTimeout  time.Duration
	// PollInterval bounds how long a watcher can miss changes made by other
	// processes. Zero means SessionCacheTTL.
	PollInterval time.Duration
}

// Client is the per-process composition every display shares: caches, the
// batch loader and the invalidation bus in front of one backend.
type Client struct {
	backend  Backend
	events   *bus.Bus
	times    *cache.Cache[batch.Entry]
	sessions *cache.Cache[aggregate.TaskSnapshot]
	comments *cache.Cache[[]repository.Comment]
	loader   *batch.Coalescer
	group    singleflight.Group
	timeout  time.Duration
	poll     time.Duration
	now      func() time.Time
}

func New(backend Backend, events *bus.Bus, s Settings) *Client {
	c := &Client{
		backend:  backend,
		events:   events,
		times:    cache.New[batch.Entry](s.TimeCacheTTL),
		sessions: cache.New[aggregate.TaskSnapshot](s.SessionCacheTTL),
		comments: cache.New[[]repository.Comment](s.CommentCacheTTL),
		timeout:  s.RequestTimeout,
		poll:     s.PollInterval,
		now:      time.Now,
	}
	if c.poll <= 0 {
		c.poll = s.SessionCacheTTL
	}
	if c.poll <= 0 {
		c.poll = defaultPollInterval
	}
	c.loader = batch.New(totalsFetcher{backend: backend}, c.times,
		batch.WithWindow(s.BatchWindow),
		batch.WithFetchTimeout(s.RequestTimeout),
	)
	return c
}

type totalsFetcher struct {
	backend Backend
}

func (f totalsFetcher) FetchTotals(ctx context.Context, taskIDs []string) (map[string]aggregate.UserTotal, error) {
	return f.backend.UserTotals(ctx, taskIDs)
}

func (c *Client) Events() *bus.Bus {
	return c.events
}

func (c *Client) Start(ctx context.Context, taskID string) (*repository.TimeSession, error) {
	s, err := c.backend.Start(ctx, taskID)
	if err != nil {
		return nil, err
	}
	c.changed(taskID)
	return s, nil
}

func (c *Client) Stop(ctx context.Context, taskID string) (tracking.StopResult, error) {
	res, err := c.backend.Stop(ctx, taskID)
	if err != nil {
		return tracking.StopResult{}, err
	}
	c.changed(taskID)
	return res, nil
}

func (c *Client) Reset(ctx context.Context, taskID string, confirm bool) (tracking.ResetResult, error) {
	if !confirm {
		return tracking.ResetResult{}, ErrResetNotConfirmed
	}
	res, err := c.backend.Reset(ctx, taskID)
	if err != nil {
		return tracking.ResetResult{}, err
	}
	c.changed(taskID)
	return res, nil
}

// LoadTime goes through the batch loader, so displays rendering together
// share one request.
func (c *Client) LoadTime(ctx context.Context, taskID string) (aggregate.UserTotal, error) {
	return c.loader.Load(ctx, taskID)
}

func (c *Client) Snapshot(ctx context.Context, taskID string) (aggregate.TaskSnapshot, error) {
	key := cache.Key(taskID, "sessions")
	if snap, ok := c.sessions.Get(key); ok {
		return snap, nil
	}
	v, err, _ := c.group.Do(key, func() (any, error) {
		// Shared by every caller waiting on key, so one caller's cancel must
		// not fail the rest.
		fctx, cancel := c.detached(ctx)
		defer cancel()
		snap, err := c.backend.TaskSnapshot(fctx, taskID)
		if err != nil {
			return nil, err
		}
		c.sessions.Set(key, snap)
		return snap, nil
	})
	if err != nil {
		return aggregate.TaskSnapshot{}, err
	}
	return v.(aggregate.TaskSnapshot), nil
}

func (c *Client) Comments(ctx context.Context, taskID string) ([]repository.Comment, error) {
	key := cache.Key(taskID, "comments")
	if list, ok := c.comments.Get(key); ok {
		return list, nil
	}
	list, err := c.backend.ListComments(ctx, taskID)
	if err != nil {
		return nil, err
	}
	c.comments.Set(key, list)
	return list, nil
}

// Invalidate drops every cached entry of the task, including a total still
// being fetched.
func (c *Client) Invalidate(taskID string) {
	prefix := cache.Key(taskID)
	c.loader.Invalidate(taskID)
	c.times.InvalidatePrefix(prefix)
	c.sessions.InvalidatePrefix(prefix)
	c.comments.InvalidatePrefix(prefix)
}

// Watch calls fn with a fresh reading now, after every bus event that
// touches the task, and every poll interval so changes made elsewhere show
// up too. It runs until ctx ends. Failed reads are delivered, not retried.
func (c *Client) Watch(ctx context.Context, taskID string, fn func(Reading)) error {
	since := c.events.Version()
	fn(c.read(ctx, taskID, since))

	events := make(chan bus.Event)
	waitErr := make(chan error, 1)
	go func() {
		for v := since; ; {
			ev, err := c.events.Wait(ctx, v)
			if err != nil {
				waitErr <- err
				return
			}
			v = ev.Version
			select {
			case events <- ev:
			case <-ctx.Done():
				waitErr <- ctx.Err()
				return
			}
		}
	}()

	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()
	for {
		select {
		case err := <-waitErr:
			return err
		case ev := <-events:
			since = ev.Version
			if !ev.Touches(taskID) {
				continue
			}
		case <-ticker.C:
		}
		c.Invalidate(taskID)
		fn(c.read(ctx, taskID, since))
	}
}

// Shutdown sends any pending batch and waits for it.
func (c *Client) Shutdown() {
	c.loader.Flush()
}

func (c *Client) read(ctx context.Context, taskID string, version uint64) Reading {
	e, err := c.loader.LoadEntry(ctx, taskID)
	if err != nil {
		if ctx.Err() == nil {
			slog.Warn("time read failed", "error", err, "task_id", taskID)
		}
		return Reading{TaskID: taskID, Version: version, At: c.now(), Err: err}
	}
	return Reading{TaskID: taskID, Total: e.Total, Version: version, At: e.FetchedAt}
}

func (c *Client) detached(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = context.WithoutCancel(ctx)
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c *Client) changed(taskID string) {
	c.Invalidate(taskID)
	v := c.events.TriggerUpdate(taskID)
	slog.Debug("timer state changed", "task_id", taskID, "version", v)
}
