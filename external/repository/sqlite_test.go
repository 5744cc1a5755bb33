package repository

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/foxseedlab/tasktimer/internal/repository"
	"github.com/foxseedlab/tasktimer/internal/tracking"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestSQLite(t *testing.T) *SQLiteRepository {
	t.Helper()
	r, err := OpenSQLite(":memory:", false)
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = r.Shutdown() })

	seed := []any{
		&taskRow{ID: "task-x", Title: "Write report"},
		&taskRow{ID: "task-y", Title: "Review"},
		&userRow{ID: "user-a", DisplayName: "Alice"},
		&userRow{ID: "user-b", DisplayName: "Bob", AvatarURL: "https://example.com/b.png"},
		&commentRow{ID: "c-2", TaskID: "task-x", AuthorID: "user-b", Body: "second", CreatedAt: t0.Add(time.Minute)},
		&commentRow{ID: "c-1", TaskID: "task-x", AuthorID: "user-a", Body: "first", CreatedAt: t0},
	}
	for _, row := range seed {
		if err := r.db.Create(row).Error; err != nil {
			t.Fatalf("failed to seed %T: %v", row, err)
		}
	}
	return r
}

func TestSQLite_StartClosesPreviousOpenSession(t *testing.T) {
	r := newTestSQLite(t)
	ctx := context.Background()

	first, err := r.StartSession(ctx, repository.StartSessionInput{ID: "s-1", TaskID: "task-x", UserID: "user-a", StartedAt: t0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Session.EndTime != nil || len(first.Closed) != 0 {
		t.Fatalf("unexpected first start: %+v", first)
	}

	second, err := r.StartSession(ctx, repository.StartSessionInput{ID: "s-2", TaskID: "task-x", UserID: "user-a", StartedAt: t0.Add(90 * time.Second)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(second.Closed) != 1 || second.Closed[0].ID != "s-1" || second.Closed[0].Duration() != 90 {
		t.Fatalf("expected s-1 closed after 90s, got %+v", second.Closed)
	}

	open, err := r.GetOpenSession(ctx, "task-x", "user-a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if open == nil || open.ID != "s-2" {
		t.Fatalf("expected s-2 open, got %+v", open)
	}
	completed, err := r.ListCompletedSessions(ctx, "task-x", "user-a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(completed) != 1 || !completed[0].EndTime.Equal(t0.Add(90*time.Second)) {
		t.Fatalf("unexpected completed sessions: %+v", completed)
	}
}

func TestSQLite_SecondOpenRowIsAConflict(t *testing.T) {
	r := newTestSQLite(t)

	if err := r.db.Create(&timeSessionRow{ID: "s-1", TaskID: "task-x", UserID: "user-a", StartTime: t0, CreatedAt: t0}).Error; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := r.db.Create(&timeSessionRow{ID: "s-2", TaskID: "task-x", UserID: "user-a", StartTime: t0, CreatedAt: t0}).Error
	if !errors.Is(translateSQLiteError(err), repository.ErrOpenSessionConflict) {
		t.Fatalf("expected open session conflict, got %v", err)
	}

	// A second open row for another user is fine.
	if err := r.db.Create(&timeSessionRow{ID: "s-3", TaskID: "task-x", UserID: "user-b", StartTime: t0, CreatedAt: t0}).Error; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSQLite_CloseOpenSessionsIsNoopWhenNothingOpen(t *testing.T) {
	r := newTestSQLite(t)
	closed, err := r.CloseOpenSessions(context.Background(), repository.CloseSessionsInput{TaskID: "task-x", UserID: "user-a", EndedAt: t0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(closed) != 0 {
		t.Fatalf("expected nothing closed, got %+v", closed)
	}
}

func TestSQLite_DeleteAndListing(t *testing.T) {
	r := newTestSQLite(t)
	ctx := context.Background()

	inputs := []repository.StartSessionInput{
		{ID: "s-1", TaskID: "task-x", UserID: "user-a", StartedAt: t0},
		{ID: "s-2", TaskID: "task-x", UserID: "user-b", StartedAt: t0.Add(time.Second)},
		{ID: "s-3", TaskID: "task-y", UserID: "user-a", StartedAt: t0.Add(2 * time.Second)},
	}
	for _, in := range inputs {
		if _, err := r.StartSession(ctx, in); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	byTask, err := r.ListSessionsByTask(ctx, "task-x")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(byTask) != 2 || byTask[0].ID != "s-2" {
		t.Fatalf("expected newest first listing, got %+v", byTask)
	}

	byUser, err := r.ListSessionsByUserAndTasks(ctx, "user-a", []string{"task-x", "task-y", "task-z"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(byUser) != 2 {
		t.Fatalf("expected two sessions for user-a, got %+v", byUser)
	}

	deleted, err := r.DeleteSessions(ctx, "task-x", "user-a")
	if err != nil || deleted != 1 {
		t.Fatalf("expected one deleted row, got %d (err=%v)", deleted, err)
	}
	rest, _ := r.ListSessionsByTask(ctx, "task-x")
	if len(rest) != 1 || rest[0].UserID != "user-b" {
		t.Fatalf("reset removed another user's session: %+v", rest)
	}
}

func TestSQLite_CollaboratorReads(t *testing.T) {
	r := newTestSQLite(t)
	ctx := context.Background()

	if ok, err := r.TaskExists(ctx, "task-x"); err != nil || !ok {
		t.Fatalf("expected task-x to exist (err=%v)", err)
	}
	known, err := r.ExistingTaskIDs(ctx, []string{"task-y", "ghost", "task-x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(known) != 2 || !slices.Contains(known, "task-x") || !slices.Contains(known, "task-y") {
		t.Fatalf("unexpected known tasks: %v", known)
	}
	if ok, err := r.UserExists(ctx, "nobody"); err != nil || ok {
		t.Fatalf("expected unknown user (err=%v)", err)
	}

	profiles, err := r.GetUserProfiles(ctx, []string{"user-b", "ghost"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(profiles) != 1 || profiles["user-b"].AvatarURL != "https://example.com/b.png" {
		t.Fatalf("unexpected profiles: %+v", profiles)
	}

	comments, err := r.ListCommentsByTask(ctx, "task-x")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(comments) != 2 || comments[0].ID != "c-1" {
		t.Fatalf("expected oldest comment first, got %+v", comments)
	}
	if err := r.Ping(ctx); err != nil {
		t.Fatalf("ping failed: %v", err)
	}
}

func TestSQLite_TrackingServiceScenario(t *testing.T) {
	r := newTestSQLite(t)
	ctx := context.Background()
	now := t0
	svc := tracking.NewService(r, nil, tracking.WithClock(func() time.Time { return now }))

	if _, err := svc.Start(ctx, "task-x", "user-a"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	now = now.Add(20 * time.Second)
	res, err := svc.Stop(ctx, "task-x", "user-a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.FinalizedCount != 1 || res.TotalDurationSeconds != 20 {
		t.Fatalf("unexpected stop result: %+v", res)
	}

	again, err := svc.Stop(ctx, "task-x", "user-a")
	if err != nil || !again.AlreadyStopped {
		t.Fatalf("expected already stopped, got %+v (err=%v)", again, err)
	}

	if _, err := svc.Start(ctx, "task-x", "user-b"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	reset, err := svc.Reset(ctx, "task-x", "user-a")
	if err != nil || reset.Deleted != 1 {
		t.Fatalf("unexpected reset: %+v (err=%v)", reset, err)
	}
	open, err := svc.OpenSessionForUser(ctx, "task-x", "user-b")
	if err != nil || open == nil {
		t.Fatalf("expected user-b still running (err=%v)", err)
	}

	if _, err := svc.Start(ctx, "missing", "user-a"); !errors.Is(err, tracking.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSQLite_SeedUpserts(t *testing.T) {
	r := newTestSQLite(t)
	ctx := context.Background()

	err := r.Seed(ctx,
		[]repository.Task{{ID: "task-z", Title: "New"}, {ID: "task-x", Title: "Renamed"}},
		[]repository.UserProfile{{UserID: "user-a", DisplayName: "Alice A."}},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok, _ := r.TaskExists(ctx, "task-z"); !ok {
		t.Fatal("expected seeded task")
	}
	profiles, _ := r.GetUserProfiles(ctx, []string{"user-a"})
	if profiles["user-a"].DisplayName != "Alice A." {
		t.Fatalf("expected updated profile, got %+v", profiles)
	}
}
