package aggregate

import (
	"context"
	"log/slog"
	"time"

	"github.com/foxseedlab/tasktimer/internal/repository"
)

// SessionReader is the slice of the session store the engine reads from.
type SessionReader interface {
	ListForTask(ctx context.Context, taskID string) ([]repository.TimeSession, error)
	ListForUser(ctx context.Context, taskID, userID string) ([]repository.TimeSession, error)
	ListForUserTasks(ctx context.Context, userID string, taskIDs []string) ([]repository.TimeSession, error)
	ExistingTaskIDs(ctx context.Context, taskIDs []string) ([]string, error)
}

type ProfileReader interface {
	Profiles(ctx context.Context, userIDs []string) (map[string]repository.UserProfile, error)
}

// Engine reads the store at call time and keeps no state of its own.
type Engine struct {
	sessions SessionReader
	profiles ProfileReader
	now      func() time.Time
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(sessions SessionReader, profiles ProfileReader, opts ...Option) *Engine {
	e := &Engine{
		sessions: sessions,
		profiles: profiles,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// UserTotal reads the pair's sessions once, so completed and open time come
// from the same state.
func (e *Engine) UserTotal(ctx context.Context, taskID, userID string) (UserTotal, error) {
	sessions, err := e.sessions.ListForUser(ctx, taskID, userID)
	if err != nil {
		return UserTotal{}, err
	}
	completed, open := splitByTask(sessions)
	t := ComputeUserTotal(completed[taskID], open[taskID], e.now())
	t.TaskID = taskID
	return t, nil
}

func (e *Engine) TaskSnapshot(ctx context.Context, taskID, requestingUserID string) (TaskSnapshot, error) {
	sessions, err := e.sessions.ListForTask(ctx, taskID)
	if err != nil {
		return TaskSnapshot{}, err
	}

	var profiles map[string]repository.UserProfile
	if ids := ActiveUserIDs(sessions); len(ids) > 0 && e.profiles != nil {
		profiles, err = e.profiles.Profiles(ctx, ids)
		if err != nil {
			slog.Warn("failed to load user profiles for snapshot", "error", err, "task_id", taskID)
			profiles = nil
		}
	}
	return ComputeTaskSnapshot(taskID, sessions, profiles, requestingUserID, e.now()), nil
}

// UserTotals computes one user's totals for many tasks from a single session
// read. Unknown task ids get no entry; known tasks without sessions are zero.
func (e *Engine) UserTotals(ctx context.Context, userID string, taskIDs []string) (map[string]UserTotal, error) {
	known, err := e.sessions.ExistingTaskIDs(ctx, taskIDs)
	if err != nil {
		return nil, err
	}
	totals := make(map[string]UserTotal, len(known))
	if len(known) == 0 {
		return totals, nil
	}
	sessions, err := e.sessions.ListForUserTasks(ctx, userID, known)
	if err != nil {
		return nil, err
	}

	completed, open := splitByTask(sessions)
	now := e.now()
	for _, id := range known {
		t := ComputeUserTotal(completed[id], open[id], now)
		t.TaskID = id
		totals[id] = t
	}
	return totals, nil
}

func splitByTask(sessions []repository.TimeSession) (map[string][]repository.TimeSession, map[string]*repository.TimeSession) {
	completed := make(map[string][]repository.TimeSession)
	open := make(map[string]*repository.TimeSession)
	for i := range sessions {
		s := sessions[i]
		if !s.IsOpen() {
			completed[s.TaskID] = append(completed[s.TaskID], s)
			continue
		}
		// Newest open session wins if the invariant ever slipped.
		if cur, ok := open[s.TaskID]; !ok || s.StartTime.After(cur.StartTime) {
			open[s.TaskID] = &s
		}
	}
	return completed, open
}
