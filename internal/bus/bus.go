package bus

import (
	"context"
	"slices"
	"sync"
)

const historyLimit = 128

// Event is one broadcast. An empty TaskIDs means every task changed.
type Event struct {
	Version uint64   `json:"version"`
	TaskIDs []string `json:"task_ids,omitempty"`
}

// Touches reports whether the event concerns taskID.
func (e Event) Touches(taskID string) bool {
	return len(e.TaskIDs) == 0 || slices.Contains(e.TaskIDs, taskID)
}

// Bus broadcasts a monotonically increasing version stamp. Publishers never
// block; slow readers get one merged event covering everything they missed.
type Bus struct {
	mu      sync.Mutex
	version uint64
	history []Event
	changed chan struct{}
}

func New() *Bus {
	return &Bus{changed: make(chan struct{})}
}

// TriggerUpdate bumps the version and wakes every waiter.
func (b *Bus) TriggerUpdate(taskIDs ...string) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.version++
	b.history = append(b.history, Event{Version: b.version, TaskIDs: slices.Clone(taskIDs)})
	if len(b.history) > historyLimit {
		b.history = slices.Delete(b.history, 0, len(b.history)-historyLimit)
	}
	close(b.changed)
	b.changed = make(chan struct{})
	return b.version
}

func (b *Bus) Version() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.version
}

func (b *Bus) Latest() Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.history) == 0 {
		return Event{}
	}
	return b.history[len(b.history)-1]
}

// Wait blocks until the version moves past since. The returned event carries
// the newest version and every task touched after since; if that cannot be
// told exactly it widens to all tasks.
func (b *Bus) Wait(ctx context.Context, since uint64) (Event, error) {
	for {
		b.mu.Lock()
		if b.version > since {
			ev := b.mergedSinceLocked(since)
			b.mu.Unlock()
			return ev, nil
		}
		changed := b.changed
		b.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return Event{}, ctx.Err()
		}
	}
}

func (b *Bus) mergedSinceLocked(since uint64) Event {
	merged := Event{Version: b.version}
	if len(b.history) == 0 || b.history[0].Version > since+1 {
		return merged
	}
	ids := []string{}
	for _, ev := range b.history {
		if ev.Version <= since {
			continue
		}
		if len(ev.TaskIDs) == 0 {
			return merged
		}
		for _, id := range ev.TaskIDs {
			if !slices.Contains(ids, id) {
				ids = append(ids, id)
			}
		}
	}
	merged.TaskIDs = ids
	return merged
}

// Subscribe delivers events published after the call until ctx ends, then
// closes the channel.
func (b *Bus) Subscribe(ctx context.Context) <-chan Event {
	out := make(chan Event)
	since := b.Version()
	go func() {
		defer close(out)
		for {
			ev, err := b.Wait(ctx, since)
			if err != nil {
				return
			}
			select {
			case out <- ev:
				since = ev.Version
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
