package tracking

import (
	"context"
	"sync"
	"time"

	"github.com/foxseedlab/tasktimer/internal/repository"
	"github.com/foxseedlab/tasktimer/internal/webhook"
)

type fakeRepository struct {
	mu         sync.Mutex
	tasks      map[string]bool
	users      map[string]repository.UserProfile
	comments   map[string][]repository.Comment
	sessions   []repository.TimeSession
	conflicts  int
	startCalls int
	failErr    error
}

func newFakeRepository(taskIDs []string, userIDs []string) *fakeRepository {
	f := &fakeRepository{
		tasks:    make(map[string]bool),
		users:    make(map[string]repository.UserProfile),
		comments: make(map[string][]repository.Comment),
	}
	for _, id := range taskIDs {
		f.tasks[id] = true
	}
	for _, id := range userIDs {
		f.users[id] = repository.UserProfile{UserID: id, DisplayName: "name-" + id}
	}
	return f
}

func (f *fakeRepository) StartSession(_ context.Context, input repository.StartSessionInput) (*repository.StartSessionOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startCalls++
	if f.failErr != nil {
		return nil, f.failErr
	}
	if f.conflicts > 0 {
		f.conflicts--
		return nil, repository.ErrOpenSessionConflict
	}
	closed := f.closeLocked(input.TaskID, input.UserID, input.StartedAt)
	s := repository.TimeSession{
		ID:        input.ID,
		TaskID:    input.TaskID,
		UserID:    input.UserID,
		StartTime: input.StartedAt,
		CreatedAt: input.StartedAt,
	}
	f.sessions = append(f.sessions, s)
	return &repository.StartSessionOutput{Session: &s, Closed: closed}, nil
}

func (f *fakeRepository) CloseOpenSessions(_ context.Context, input repository.CloseSessionsInput) ([]repository.TimeSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return nil, f.failErr
	}
	return f.closeLocked(input.TaskID, input.UserID, input.EndedAt), nil
}

func (f *fakeRepository) closeLocked(taskID, userID string, at time.Time) []repository.TimeSession {
	closed := []repository.TimeSession{}
	for i := range f.sessions {
		s := &f.sessions[i]
		if s.TaskID != taskID || s.UserID != userID || !s.IsOpen() {
			continue
		}
		s.Close(at)
		closed = append(closed, *s)
	}
	return closed
}

func (f *fakeRepository) DeleteSessions(_ context.Context, taskID, userID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return 0, f.failErr
	}
	kept := f.sessions[:0]
	var deleted int64
	for _, s := range f.sessions {
		if s.TaskID == taskID && s.UserID == userID {
			deleted++
			continue
		}
		kept = append(kept, s)
	}
	f.sessions = kept
	return deleted, nil
}

func (f *fakeRepository) filter(match func(repository.TimeSession) bool) []repository.TimeSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	list := []repository.TimeSession{}
	for _, s := range f.sessions {
		if match(s) {
			list = append(list, s)
		}
	}
	return list
}

func (f *fakeRepository) ListSessionsByTask(_ context.Context, taskID string) ([]repository.TimeSession, error) {
	if f.failErr != nil {
		return nil, f.failErr
	}
	return f.filter(func(s repository.TimeSession) bool { return s.TaskID == taskID }), nil
}

func (f *fakeRepository) ListCompletedSessions(_ context.Context, taskID, userID string) ([]repository.TimeSession, error) {
	return f.filter(func(s repository.TimeSession) bool {
		return s.TaskID == taskID && s.UserID == userID && !s.IsOpen()
	}), nil
}

func (f *fakeRepository) GetOpenSession(_ context.Context, taskID, userID string) (*repository.TimeSession, error) {
	open := f.filter(func(s repository.TimeSession) bool {
		return s.TaskID == taskID && s.UserID == userID && s.IsOpen()
	})
	if len(open) == 0 {
		return nil, nil
	}
	return &open[0], nil
}

func (f *fakeRepository) ListSessionsByUserAndTasks(_ context.Context, userID string, taskIDs []string) ([]repository.TimeSession, error) {
	wanted := make(map[string]bool, len(taskIDs))
	for _, id := range taskIDs {
		wanted[id] = true
	}
	return f.filter(func(s repository.TimeSession) bool { return s.UserID == userID && wanted[s.TaskID] }), nil
}

func (f *fakeRepository) TaskExists(_ context.Context, taskID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tasks[taskID], nil
}

func (f *fakeRepository) ExistingTaskIDs(_ context.Context, taskIDs []string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := []string{}
	for _, id := range taskIDs {
		if f.tasks[id] {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (f *fakeRepository) UserExists(_ context.Context, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.users[userID]
	return ok, nil
}

func (f *fakeRepository) GetUserProfiles(_ context.Context, userIDs []string) (map[string]repository.UserProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]repository.UserProfile)
	for _, id := range userIDs {
		if p, ok := f.users[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (f *fakeRepository) ListCommentsByTask(_ context.Context, taskID string) ([]repository.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.comments[taskID], nil
}

func (f *fakeRepository) Ping(_ context.Context) error {
	return f.failErr
}

func (f *fakeRepository) openCount(taskID, userID string) int {
	return len(f.filter(func(s repository.TimeSession) bool {
		return s.TaskID == taskID && s.UserID == userID && s.IsOpen()
	}))
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{now: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type mockWebhookSender struct {
	events chan webhook.TimerEvent
}

func newMockWebhookSender() *mockWebhookSender {
	return &mockWebhookSender{events: make(chan webhook.TimerEvent, 16)}
}

func (m *mockWebhookSender) SendTimerEvent(_ context.Context, event webhook.TimerEvent) error {
	m.events <- event
	return nil
}
