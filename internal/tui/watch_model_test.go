package tui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/foxseedlab/tasktimer/internal/aggregate"
	"github.com/foxseedlab/tasktimer/internal/batch"
	"github.com/foxseedlab/tasktimer/internal/timesync"
)

type mockController struct {
	started []string
	stopErr error
}

func (m *mockController) Watch(ctx context.Context, _ string, _ func(timesync.Reading)) error {
	<-ctx.Done()
	return ctx.Err()
}

func (m *mockController) Start(_ context.Context, taskID string) error {
	m.started = append(m.started, taskID)
	return nil
}

func (m *mockController) Stop(_ context.Context, _ string) error {
	return m.stopErr
}

func TestWatchModel_TicksActiveTimeLocally(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	m := NewWatchModel("T", &mockController{}, make(chan timesync.Reading))

	next, _ := m.Update(readingMsg{
		TaskID: "T",
		At:     at,
		Total: aggregate.UserTotal{
			TotalCompletedSeconds: 60,
			ActiveSeconds:         5,
			TotalSeconds:          65,
			HasActiveSession:      true,
		},
	})
	next, _ = next.Update(tickMsg(at.Add(10 * time.Second)))
	wm := next.(WatchModel)

	total, active := wm.liveTotal()
	if total != 75 || active != 15 {
		t.Fatalf("expected 75/15, got %d/%d", total, active)
	}
	if view := wm.View(); !strings.Contains(view, "00:01:15") || !strings.Contains(view, "running 00:00:15") {
		t.Fatalf("unexpected view:\n%s", view)
	}
}

func TestWatchModel_StoppedTotalDoesNotTick(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	m := NewWatchModel("T", &mockController{}, make(chan timesync.Reading))
	next, _ := m.Update(readingMsg{At: at, Total: aggregate.UserTotal{TotalSeconds: 20}})
	next, _ = next.Update(tickMsg(at.Add(time.Minute)))

	if total, _ := next.(WatchModel).liveTotal(); total != 20 {
		t.Fatalf("expected 20, got %d", total)
	}
}

func TestWatchModel_UnavailableReading(t *testing.T) {
	m := NewWatchModel("T", &mockController{}, make(chan timesync.Reading))
	next, _ := m.Update(readingMsg{Err: batch.ErrUnavailable})
	if view := next.(WatchModel).View(); !strings.Contains(view, "time unavailable") {
		t.Fatalf("expected unavailable marker:\n%s", view)
	}
}

func TestWatchModel_StartKeyRunsAction(t *testing.T) {
	ctrl := &mockController{}
	m := NewWatchModel("T", ctrl, make(chan timesync.Reading))

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("s")})
	if cmd == nil {
		t.Fatal("expected an action command")
	}
	if !next.(WatchModel).busy {
		t.Fatal("expected busy while the action runs")
	}
	msg := cmd()
	if len(ctrl.started) != 1 || ctrl.started[0] != "T" {
		t.Fatalf("unexpected start calls: %v", ctrl.started)
	}
	next, _ = next.Update(msg)
	wm := next.(WatchModel)
	if wm.busy || wm.failed || wm.status != "start ok" {
		t.Fatalf("unexpected state after start: %+v", wm)
	}
}

func TestWatchModel_FailedStopShowsError(t *testing.T) {
	ctrl := &mockController{stopErr: errors.New("503")}
	m := NewWatchModel("T", ctrl, make(chan timesync.Reading))

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("x")})
	next, _ = next.Update(cmd())
	wm := next.(WatchModel)
	if !wm.failed || !strings.Contains(wm.status, "stop failed") {
		t.Fatalf("expected failure status, got %q", wm.status)
	}
}

func TestWatchModel_ClosedWatchQuits(t *testing.T) {
	ch := make(chan timesync.Reading)
	close(ch)
	msg := waitForReading(ch)()
	if _, ok := msg.(watchClosedMsg); !ok {
		t.Fatalf("expected watchClosedMsg, got %T", msg)
	}
}
