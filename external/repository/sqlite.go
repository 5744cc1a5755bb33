package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/foxseedlab/tasktimer/internal/repository"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type taskRow struct {
	ID    string `gorm:"primaryKey;size:64"`
	Title string `gorm:"not null;default:''"`
}

func (taskRow) TableName() string { return "tasks" }

type userRow struct {
	ID          string `gorm:"primaryKey;size:64"`
	DisplayName string `gorm:"not null;default:''"`
	AvatarURL   string `gorm:"not null;default:''"`
}

func (userRow) TableName() string { return "users" }

type commentRow struct {
	ID        string    `gorm:"primaryKey;size:64"`
	TaskID    string    `gorm:"size:64;not null;index:idx_task_comments_task,priority:1"`
	AuthorID  string    `gorm:"size:64;not null"`
	Body      string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null;index:idx_task_comments_task,priority:2"`
}

func (commentRow) TableName() string { return "task_comments" }

type timeSessionRow struct {
	ID              string    `gorm:"primaryKey;size:64"`
	TaskID          string    `gorm:"size:64;not null;index:idx_time_sessions_task_start,priority:1"`
	UserID          string    `gorm:"size:64;not null;index:idx_time_sessions_user_task,priority:1"`
	StartTime       time.Time `gorm:"not null;index:idx_time_sessions_task_start,priority:2"`
	EndTime         *time.Time
	DurationSeconds *int64
	CreatedAt       time.Time
}

func (timeSessionRow) TableName() string { return "time_sessions" }

func (r timeSessionRow) toSession() repository.TimeSession {
	s := repository.TimeSession{
		ID:              r.ID,
		TaskID:          r.TaskID,
		UserID:          r.UserID,
		StartTime:       r.StartTime,
		DurationSeconds: r.DurationSeconds,
		CreatedAt:       r.CreatedAt,
	}
	normalizeSession(&s, r.EndTime)
	return s
}

// SQLiteRepository is the embedded store used for local development and
// single-node deployments.
type SQLiteRepository struct {
	db *gorm.DB
}

// OpenSQLite opens (and migrates) a SQLite database. path may be ":memory:".
func OpenSQLite(path string, logSQL bool) (*SQLiteRepository, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	gormLogger := logger.Default
	if !logSQL {
		gormLogger = gormLogger.LogMode(logger.Silent)
	}
	db, err := gorm.Open(sqlite.Open(path+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"), &gorm.Config{
		Logger:         gormLogger,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql db: %w", err)
	}
	// One connection keeps ":memory:" databases shared and serializes writers.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	r := &SQLiteRepository{db: db}
	if err := r.migrate(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return r, nil
}

func (r *SQLiteRepository) migrate() error {
	if err := r.db.AutoMigrate(&taskRow{}, &userRow{}, &commentRow{}, &timeSessionRow{}); err != nil {
		return err
	}
	return r.db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS ` + openSessionIndex + ` ON time_sessions (task_id, user_id) WHERE end_time IS NULL`).Error
}

func (r *SQLiteRepository) StartSession(ctx context.Context, input repository.StartSessionInput) (*repository.StartSessionOutput, error) {
	var out repository.StartSessionOutput
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		closed, err := closeOpenRows(tx, input.TaskID, input.UserID, input.StartedAt)
		if err != nil {
			return err
		}
		row := timeSessionRow{
			ID:        input.ID,
			TaskID:    input.TaskID,
			UserID:    input.UserID,
			StartTime: input.StartedAt.UTC(),
			CreatedAt: input.StartedAt.UTC(),
		}
		if err := tx.Create(&row).Error; err != nil {
			return translateSQLiteError(err)
		}
		created := row.toSession()
		out.Session = &created
		out.Closed = closed
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *SQLiteRepository) CloseOpenSessions(ctx context.Context, input repository.CloseSessionsInput) ([]repository.TimeSession, error) {
	var closed []repository.TimeSession
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		closed, err = closeOpenRows(tx, input.TaskID, input.UserID, input.EndedAt)
		return err
	})
	return closed, err
}

func closeOpenRows(tx *gorm.DB, taskID, userID string, endedAt time.Time) ([]repository.TimeSession, error) {
	var rows []timeSessionRow
	if err := tx.Where("task_id = ? AND user_id = ? AND end_time IS NULL", taskID, userID).
		Order("start_time DESC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	closed := make([]repository.TimeSession, 0, len(rows))
	for _, row := range rows {
		s := row.toSession()
		s.Close(endedAt.UTC())
		res := tx.Model(&timeSessionRow{}).
			Where("id = ? AND end_time IS NULL", s.ID).
			Updates(map[string]any{"end_time": *s.EndTime, "duration_seconds": *s.DurationSeconds})
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 1 {
			closed = append(closed, s)
		}
	}
	return closed, nil
}

func (r *SQLiteRepository) DeleteSessions(ctx context.Context, taskID, userID string) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("task_id = ? AND user_id = ?", taskID, userID).
		Delete(&timeSessionRow{})
	return res.RowsAffected, res.Error
}

func (r *SQLiteRepository) ListSessionsByTask(ctx context.Context, taskID string) ([]repository.TimeSession, error) {
	var rows []timeSessionRow
	err := r.db.WithContext(ctx).
		Where("task_id = ?", taskID).
		Order("start_time DESC, id DESC").
		Find(&rows).Error
	return toSessions(rows), err
}

func (r *SQLiteRepository) ListCompletedSessions(ctx context.Context, taskID, userID string) ([]repository.TimeSession, error) {
	var rows []timeSessionRow
	err := r.db.WithContext(ctx).
		Where("task_id = ? AND user_id = ? AND end_time IS NOT NULL", taskID, userID).
		Order("start_time DESC, id DESC").
		Find(&rows).Error
	return toSessions(rows), err
}

func (r *SQLiteRepository) GetOpenSession(ctx context.Context, taskID, userID string) (*repository.TimeSession, error) {
	var rows []timeSessionRow
	err := r.db.WithContext(ctx).
		Where("task_id = ? AND user_id = ? AND end_time IS NULL", taskID, userID).
		Order("start_time DESC").
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	s := rows[0].toSession()
	return &s, nil
}

func (r *SQLiteRepository) ListSessionsByUserAndTasks(ctx context.Context, userID string, taskIDs []string) ([]repository.TimeSession, error) {
	if len(taskIDs) == 0 {
		return nil, nil
	}
	var rows []timeSessionRow
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND task_id IN ?", userID, taskIDs).
		Order("start_time DESC, id DESC").
		Find(&rows).Error
	return toSessions(rows), err
}

func (r *SQLiteRepository) TaskExists(ctx context.Context, taskID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&taskRow{}).Where("id = ?", taskID).Count(&count).Error
	return count > 0, err
}

func (r *SQLiteRepository) ExistingTaskIDs(ctx context.Context, taskIDs []string) ([]string, error) {
	ids := []string{}
	if len(taskIDs) == 0 {
		return ids, nil
	}
	err := r.db.WithContext(ctx).Model(&taskRow{}).Where("id IN ?", taskIDs).Pluck("id", &ids).Error
	return ids, err
}

func (r *SQLiteRepository) UserExists(ctx context.Context, userID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&userRow{}).Where("id = ?", userID).Count(&count).Error
	return count > 0, err
}

func (r *SQLiteRepository) GetUserProfiles(ctx context.Context, userIDs []string) (map[string]repository.UserProfile, error) {
	profiles := make(map[string]repository.UserProfile, len(userIDs))
	if len(userIDs) == 0 {
		return profiles, nil
	}
	var rows []userRow
	if err := r.db.WithContext(ctx).Where("id IN ?", userIDs).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, u := range rows {
		profiles[u.ID] = repository.UserProfile{UserID: u.ID, DisplayName: u.DisplayName, AvatarURL: u.AvatarURL}
	}
	return profiles, nil
}

func (r *SQLiteRepository) ListCommentsByTask(ctx context.Context, taskID string) ([]repository.Comment, error) {
	var rows []commentRow
	if err := r.db.WithContext(ctx).
		Where("task_id = ?", taskID).
		Order("created_at ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	list := make([]repository.Comment, 0, len(rows))
	for _, c := range rows {
		list = append(list, repository.Comment{
			ID:        c.ID,
			TaskID:    c.TaskID,
			AuthorID:  c.AuthorID,
			Body:      c.Body,
			CreatedAt: c.CreatedAt.UTC(),
		})
	}
	return list, nil
}

// Seed upserts collaborator rows. Tasks and users are owned elsewhere; this
// exists for standalone runs and tests.
func (r *SQLiteRepository) Seed(ctx context.Context, tasks []repository.Task, users []repository.UserProfile) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, t := range tasks {
			if err := tx.Save(&taskRow{ID: t.ID, Title: t.Title}).Error; err != nil {
				return err
			}
		}
		for _, u := range users {
			if err := tx.Save(&userRow{ID: u.UserID, DisplayName: u.DisplayName, AvatarURL: u.AvatarURL}).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (r *SQLiteRepository) Shutdown() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toSessions(rows []timeSessionRow) []repository.TimeSession {
	list := make([]repository.TimeSession, 0, len(rows))
	for _, row := range rows {
		list = append(list, row.toSession())
	}
	return list
}

func translateSQLiteError(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "UNIQUE constraint failed: time_sessions.task_id") {
		return repository.ErrOpenSessionConflict
	}
	return err
}

// normalizeSession stores timestamps in UTC and makes sure DurationSeconds is
// only carried by closed sessions.
func normalizeSession(s *repository.TimeSession, endTime *time.Time) {
	s.StartTime = s.StartTime.UTC()
	s.CreatedAt = s.CreatedAt.UTC()
	if endTime == nil {
		s.EndTime = nil
		s.DurationSeconds = nil
		return
	}
	end := endTime.UTC()
	s.EndTime = &end
}
