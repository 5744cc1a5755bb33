package repository

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

const openSessionIndex = "idx_time_sessions_open"

var migrationStatements = []string{
	`CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		display_name TEXT NOT NULL DEFAULT '',
		avatar_url TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS task_comments (
		id TEXT PRIMARY KEY,
		task_id TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
		author_id TEXT NOT NULL,
		body TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_task_comments_task ON task_comments (task_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS time_sessions (
		id TEXT PRIMARY KEY,
		task_id TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		start_time TIMESTAMPTZ NOT NULL,
		end_time TIMESTAMPTZ,
		duration_seconds BIGINT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CHECK ((end_time IS NULL) = (duration_seconds IS NULL)),
		CHECK (duration_seconds IS NULL OR duration_seconds >= 0)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_time_sessions_task_start ON time_sessions (task_id, start_time DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_time_sessions_user_task ON time_sessions (user_id, task_id)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ` + openSessionIndex + ` ON time_sessions (task_id, user_id) WHERE end_time IS NULL`,
}

func RunMigration(ctx context.Context, pool *pgxpool.Pool) error {
	for _, s := range migrationStatements {
		stmt := strings.TrimSpace(s)
		if stmt == "" {
			continue
		}
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
