package bus

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"
)

func TestTriggerUpdate_IncrementsVersion(t *testing.T) {
	b := New()
	if b.Version() != 0 {
		t.Fatalf("expected version 0, got %d", b.Version())
	}
	if v := b.TriggerUpdate("task-1"); v != 1 {
		t.Fatalf("expected version 1, got %d", v)
	}
	if v := b.TriggerUpdate(); v != 2 {
		t.Fatalf("expected version 2, got %d", v)
	}
	latest := b.Latest()
	if latest.Version != 2 || len(latest.TaskIDs) != 0 {
		t.Fatalf("unexpected latest event: %+v", latest)
	}
}

func TestWait_WakesEveryWaiter(t *testing.T) {
	b := New()
	const waiters = 10

	var wg sync.WaitGroup
	got := make(chan Event, waiters)
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ev, err := b.Wait(context.Background(), 0)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			got <- ev
		}()
	}
	time.Sleep(10 * time.Millisecond)
	b.TriggerUpdate("task-1")
	wg.Wait()
	close(got)

	n := 0
	for ev := range got {
		n++
		if ev.Version != 1 || !ev.Touches("task-1") {
			t.Fatalf("unexpected event: %+v", ev)
		}
	}
	if n != waiters {
		t.Fatalf("expected %d wakeups, got %d", waiters, n)
	}
}

func TestWait_ReturnsImmediatelyWhenBehind(t *testing.T) {
	b := New()
	b.TriggerUpdate("a")
	b.TriggerUpdate("b")
	b.TriggerUpdate("a")

	ev, err := b.Wait(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Version != 3 || !slices.Equal(ev.TaskIDs, []string{"b", "a"}) {
		t.Fatalf("expected merged event for b and a, got %+v", ev)
	}
}

func TestWait_AllTasksEventWidensMerge(t *testing.T) {
	b := New()
	b.TriggerUpdate("a")
	b.TriggerUpdate()
	b.TriggerUpdate("b")

	ev, _ := b.Wait(context.Background(), 0)
	if len(ev.TaskIDs) != 0 || !ev.Touches("anything") {
		t.Fatalf("expected all-tasks event, got %+v", ev)
	}
}

func TestWait_HistoryGapWidensMerge(t *testing.T) {
	b := New()
	for i := 0; i < historyLimit+5; i++ {
		b.TriggerUpdate("a")
	}
	ev, _ := b.Wait(context.Background(), 1)
	if len(ev.TaskIDs) != 0 {
		t.Fatalf("expected all-tasks event after losing history, got %+v", ev)
	}
}

func TestWait_ContextCancel(t *testing.T) {
	b := New()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := b.Wait(ctx, 0); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestSubscribe_SlowReaderSeesEveryTask(t *testing.T) {
	b := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := b.Subscribe(ctx)

	for _, id := range []string{"a", "b", "c", "d"} {
		b.TriggerUpdate(id)
	}

	seen := map[string]bool{}
	var last uint64
	for last < 4 {
		select {
		case ev := <-events:
			if ev.Version <= last {
				t.Fatalf("versions went backwards: %d after %d", ev.Version, last)
			}
			last = ev.Version
			for _, id := range ev.TaskIDs {
				seen[id] = true
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out, last version %d", last)
		}
	}
	for _, id := range []string{"a", "b", "c", "d"} {
		if !seen[id] {
			t.Fatalf("task %s was never reported: %v", id, seen)
		}
	}
}

func TestSubscribe_ClosesOnCancel(t *testing.T) {
	b := New()
	ctx, cancel := context.WithCancel(context.Background())
	events := b.Subscribe(ctx)
	cancel()

	select {
	case _, ok := <-events:
		if ok {
			t.Fatal("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("subscription did not close")
	}
}

func TestTriggerUpdate_NeverBlocksWithoutReaders(t *testing.T) {
	b := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_ = b.Subscribe(ctx)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			b.TriggerUpdate("task")
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publisher blocked")
	}
}
