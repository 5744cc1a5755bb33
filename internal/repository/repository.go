package repository

import (
	"context"
	"errors"
	"time"
)

// ErrOpenSessionConflict is returned when inserting an open session collides
// with another open session of the same task and user.
var ErrOpenSessionConflict = errors.New("open session already exists for task and user")

type StartSessionInput struct {
	ID        string
	TaskID    string
	UserID    string
	StartedAt time.Time
}

type StartSessionOutput struct {
	Session *TimeSession
	// Closed holds the sessions that were still open and got closed before
	// the new one was created.
	Closed []TimeSession
}

type CloseSessionsInput struct {
	TaskID  string
	UserID  string
	EndedAt time.Time
}

// SessionRepository owns the persisted TimeSession rows. StartSession and
// CloseOpenSessions must each run atomically.
type SessionRepository interface {
	StartSession(ctx context.Context, input StartSessionInput) (*StartSessionOutput, error)
	CloseOpenSessions(ctx context.Context, input CloseSessionsInput) ([]TimeSession, error)
	DeleteSessions(ctx context.Context, taskID, userID string) (int64, error)
	ListSessionsByTask(ctx context.Context, taskID string) ([]TimeSession, error)
	ListCompletedSessions(ctx context.Context, taskID, userID string) ([]TimeSession, error)
	GetOpenSession(ctx context.Context, taskID, userID string) (*TimeSession, error)
	ListSessionsByUserAndTasks(ctx context.Context, userID string, taskIDs []string) ([]TimeSession, error)
}

type TaskRepository interface {
	TaskExists(ctx context.Context, taskID string) (bool, error)
	// ExistingTaskIDs returns the subset of taskIDs that name a known task.
	ExistingTaskIDs(ctx context.Context, taskIDs []string) ([]string, error)
}

type UserRepository interface {
	UserExists(ctx context.Context, userID string) (bool, error)
	GetUserProfiles(ctx context.Context, userIDs []string) (map[string]UserProfile, error)
}

type CommentRepository interface {
	ListCommentsByTask(ctx context.Context, taskID string) ([]Comment, error)
}

type Repository interface {
	SessionRepository
	TaskRepository
	UserRepository
	CommentRepository
	Ping(ctx context.Context) error
}
