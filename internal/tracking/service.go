package tracking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/foxseedlab/tasktimer/internal/repository"
	"github.com/foxseedlab/tasktimer/internal/webhook"
	"github.com/google/uuid"
)

const (
	defaultStartConflictRetries = 3
	webhookTimeout              = 5 * time.Second
)

// StopResult reports what a stop call finalized. AlreadyStopped is set when
// there was nothing open; that is a normal outcome, not an error.
type StopResult struct {
	FinalizedCount       int                      `json:"finalized_count"`
	TotalDurationSeconds int64                    `json:"total_duration_seconds"`
	AlreadyStopped       bool                     `json:"already_stopped"`
	Sessions             []repository.TimeSession `json:"sessions"`
}

type ResetResult struct {
	Deleted int64 `json:"deleted"`
}

// Service is the session store. Every mutation is a short, self-contained
// unit that is safe to repeat; no locks are held across calls.
type Service struct {
	repo    repository.Repository
	webhook webhook.Sender
	now     func() time.Time
	newID   func() string
	retries int
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

func WithStartConflictRetries(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.retries = n
		}
	}
}

func NewService(repo repository.Repository, wh webhook.Sender, opts ...Option) *Service {
	s := &Service{
		repo:    repo,
		webhook: wh,
		now:     time.Now,
		newID:   uuid.NewString,
		retries: defaultStartConflictRetries,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start closes whatever is still open for the pair and opens a fresh session.
// A concurrent start that wins the race surfaces as a conflict; the next
// attempt closes the winner's session and takes over.
func (s *Service) Start(ctx context.Context, taskID, userID string) (*repository.TimeSession, error) {
	if err := s.requirePair(ctx, taskID, userID); err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 1; attempt <= s.retries; attempt++ {
		out, err := s.repo.StartSession(ctx, repository.StartSessionInput{
			ID:        s.newID(),
			TaskID:    taskID,
			UserID:    userID,
			StartedAt: s.now().UTC(),
		})
		if errors.Is(err, repository.ErrOpenSessionConflict) {
			slog.Warn("concurrent start collided; retrying", "task_id", taskID, "user_id", userID, "attempt", attempt)
			lastErr = err
			continue
		}
		if err != nil {
			slog.Error("failed to start session", "error", err, "task_id", taskID, "user_id", userID)
			return nil, transient("start session", err)
		}

		for _, stale := range out.Closed {
			slog.Warn("closed stale open session before starting a new one",
				"session_id", stale.ID,
				"task_id", taskID,
				"user_id", userID,
				"duration_seconds", stale.Duration())
		}
		slog.Info("session started", "session_id", out.Session.ID, "task_id", taskID, "user_id", userID)
		s.notify(webhook.TimerEvent{
			Type:       webhook.TimerEventStarted,
			TaskID:     taskID,
			UserID:     userID,
			SessionID:  out.Session.ID,
			OccurredAt: out.Session.StartTime,
		})
		return out.Session, nil
	}
	slog.Error("start session kept colliding", "error", lastErr, "task_id", taskID, "user_id", userID, "attempts", s.retries)
	return nil, transient("start session", lastErr)
}

// Stop closes every open session of the pair. More than one open session only
// happens after an invariant slip; all of them are closed.
func (s *Service) Stop(ctx context.Context, taskID, userID string) (StopResult, error) {
	if err := s.requirePair(ctx, taskID, userID); err != nil {
		return StopResult{}, err
	}

	endedAt := s.now().UTC()
	closed, err := s.repo.CloseOpenSessions(ctx, repository.CloseSessionsInput{
		TaskID:  taskID,
		UserID:  userID,
		EndedAt: endedAt,
	})
	if err != nil {
		slog.Error("failed to stop sessions", "error", err, "task_id", taskID, "user_id", userID)
		return StopResult{}, transient("stop session", err)
	}

	res := StopResult{
		FinalizedCount: len(closed),
		Sessions:       closed,
	}
	for _, sess := range closed {
		res.TotalDurationSeconds += sess.Duration()
	}
	if len(closed) == 0 {
		res.AlreadyStopped = true
		res.Sessions = []repository.TimeSession{}
		slog.Info("stop requested with no open session", "task_id", taskID, "user_id", userID)
		return res, nil
	}
	if len(closed) > 1 {
		slog.Warn("closed more than one open session for the same task and user",
			"task_id", taskID,
			"user_id", userID,
			"finalized_count", len(closed))
	}
	slog.Info("session stopped", "task_id", taskID, "user_id", userID, "total_duration_seconds", res.TotalDurationSeconds)
	s.notify(webhook.TimerEvent{
		Type:                 webhook.TimerEventStopped,
		TaskID:               taskID,
		UserID:               userID,
		OccurredAt:           endedAt,
		FinalizedCount:       res.FinalizedCount,
		TotalDurationSeconds: res.TotalDurationSeconds,
	})
	return res, nil
}

// Reset deletes the whole history of the pair. Other users' sessions on the
// same task are untouched.
func (s *Service) Reset(ctx context.Context, taskID, userID string) (ResetResult, error) {
	if err := s.requirePair(ctx, taskID, userID); err != nil {
		return ResetResult{}, err
	}
	deleted, err := s.repo.DeleteSessions(ctx, taskID, userID)
	if err != nil {
		slog.Error("failed to reset sessions", "error", err, "task_id", taskID, "user_id", userID)
		return ResetResult{}, transient("reset sessions", err)
	}
	slog.Info("sessions reset", "task_id", taskID, "user_id", userID, "deleted", deleted)
	if deleted > 0 {
		s.notify(webhook.TimerEvent{
			Type:            webhook.TimerEventReset,
			TaskID:          taskID,
			UserID:          userID,
			OccurredAt:      s.now().UTC(),
			DeletedSessions: deleted,
		})
	}
	return ResetResult{Deleted: deleted}, nil
}

// ListForTask returns every user's sessions on the task, newest start first.
func (s *Service) ListForTask(ctx context.Context, taskID string) ([]repository.TimeSession, error) {
	if err := s.requireTask(ctx, taskID); err != nil {
		return nil, err
	}
	list, err := s.repo.ListSessionsByTask(ctx, taskID)
	if err != nil {
		return nil, transient("list sessions", err)
	}
	sortNewestFirst(list)
	return list, nil
}

func (s *Service) ListCompletedForUser(ctx context.Context, taskID, userID string) ([]repository.TimeSession, error) {
	if err := s.requirePair(ctx, taskID, userID); err != nil {
		return nil, err
	}
	list, err := s.repo.ListCompletedSessions(ctx, taskID, userID)
	if err != nil {
		return nil, transient("list completed sessions", err)
	}
	sortNewestFirst(list)
	return list, nil
}

func (s *Service) OpenSessionForUser(ctx context.Context, taskID, userID string) (*repository.TimeSession, error) {
	if err := s.requirePair(ctx, taskID, userID); err != nil {
		return nil, err
	}
	open, err := s.repo.GetOpenSession(ctx, taskID, userID)
	if err != nil {
		return nil, transient("get open session", err)
	}
	return open, nil
}

// ListForUser reads one user's sessions on the task, open and closed, in a
// single query.
func (s *Service) ListForUser(ctx context.Context, taskID, userID string) ([]repository.TimeSession, error) {
	if err := s.requirePair(ctx, taskID, userID); err != nil {
		return nil, err
	}
	list, err := s.repo.ListSessionsByUserAndTasks(ctx, userID, []string{taskID})
	if err != nil {
		return nil, transient("list sessions for user", err)
	}
	sortNewestFirst(list)
	return list, nil
}

// ListForUserTasks reads one user's sessions across many tasks in a single
// query. Unknown task ids simply produce no rows.
func (s *Service) ListForUserTasks(ctx context.Context, userID string, taskIDs []string) ([]repository.TimeSession, error) {
	if err := s.requireUser(ctx, userID); err != nil {
		return nil, err
	}
	ids := UniqueIDs(taskIDs)
	if len(ids) == 0 {
		return []repository.TimeSession{}, nil
	}
	list, err := s.repo.ListSessionsByUserAndTasks(ctx, userID, ids)
	if err != nil {
		return nil, transient("list sessions for tasks", err)
	}
	sortNewestFirst(list)
	return list, nil
}

// ExistingTaskIDs filters taskIDs down to known tasks, deduplicated and in
// request order.
func (s *Service) ExistingTaskIDs(ctx context.Context, taskIDs []string) ([]string, error) {
	ids := UniqueIDs(taskIDs)
	if len(ids) == 0 {
		return []string{}, nil
	}
	found, err := s.repo.ExistingTaskIDs(ctx, ids)
	if err != nil {
		return nil, transient("check tasks", err)
	}
	known := make(map[string]bool, len(found))
	for _, id := range found {
		known[id] = true
	}
	return slices.DeleteFunc(ids, func(id string) bool { return !known[id] }), nil
}

// Profiles resolves display data for users. Used for enrichment only.
func (s *Service) Profiles(ctx context.Context, userIDs []string) (map[string]repository.UserProfile, error) {
	profiles, err := s.repo.GetUserProfiles(ctx, UniqueIDs(userIDs))
	if err != nil {
		return nil, transient("get user profiles", err)
	}
	return profiles, nil
}

func (s *Service) Comments(ctx context.Context, taskID string) ([]repository.Comment, error) {
	if err := s.requireTask(ctx, taskID); err != nil {
		return nil, err
	}
	comments, err := s.repo.ListCommentsByTask(ctx, taskID)
	if err != nil {
		return nil, transient("list comments", err)
	}
	if comments == nil {
		comments = []repository.Comment{}
	}
	return comments, nil
}

func (s *Service) Ping(ctx context.Context) error {
	if err := s.repo.Ping(ctx); err != nil {
		return transient("ping store", err)
	}
	return nil
}

func (s *Service) requirePair(ctx context.Context, taskID, userID string) error {
	if err := s.requireTask(ctx, taskID); err != nil {
		return err
	}
	return s.requireUser(ctx, userID)
}

func (s *Service) requireTask(ctx context.Context, taskID string) error {
	if strings.TrimSpace(taskID) == "" {
		return fmt.Errorf("task id is empty: %w", ErrInvalidArgument)
	}
	ok, err := s.repo.TaskExists(ctx, taskID)
	if err != nil {
		return transient("check task", err)
	}
	if !ok {
		return notFound("task", taskID)
	}
	return nil
}

func (s *Service) requireUser(ctx context.Context, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("user id is empty: %w", ErrInvalidArgument)
	}
	ok, err := s.repo.UserExists(ctx, userID)
	if err != nil {
		return transient("check user", err)
	}
	if !ok {
		return notFound("user", userID)
	}
	return nil
}

// notify posts the event in the background; webhook trouble never fails the
// timer operation that triggered it.
func (s *Service) notify(event webhook.TimerEvent) {
	if s.webhook == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), webhookTimeout)
		defer cancel()
		if err := s.webhook.SendTimerEvent(ctx, event); err != nil {
			slog.Error("failed to send timer webhook", "error", err, "type", event.Type, "task_id", event.TaskID, "user_id", event.UserID)
		}
	}()
}

// UniqueIDs drops blanks and duplicates while keeping first-seen order.
func UniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func sortNewestFirst(list []repository.TimeSession) {
	slices.SortStableFunc(list, func(a, b repository.TimeSession) int {
		return b.StartTime.Compare(a.StartTime)
	})
}
