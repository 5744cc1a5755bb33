package repository

import (
	"context"
	"errors"
	"time"

	"github.com/foxseedlab/tasktimer/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const sessionColumns = `id, task_id, user_id, start_time, end_time, duration_seconds, created_at`

const pgUniqueViolation = "23505"

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) repository.Repository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) StartSession(ctx context.Context, input repository.StartSessionInput) (*repository.StartSessionOutput, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	closed, err := closeOpenSessions(ctx, tx, input.TaskID, input.UserID, input.StartedAt)
	if err != nil {
		return nil, err
	}
	row := tx.QueryRow(ctx,
		`INSERT INTO time_sessions (id, task_id, user_id, start_time)
		 VALUES ($1, $2, $3, $4)
		 RETURNING `+sessionColumns,
		input.ID, input.TaskID, input.UserID, input.StartedAt)
	created, err := scanSession(row)
	if err != nil {
		return nil, translateError(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, translateError(err)
	}
	return &repository.StartSessionOutput{Session: created, Closed: closed}, nil
}

func (r *PostgresRepository) CloseOpenSessions(ctx context.Context, input repository.CloseSessionsInput) ([]repository.TimeSession, error) {
	return closeOpenSessions(ctx, r.pool, input.TaskID, input.UserID, input.EndedAt)
}

// closeOpenSessions closes every open session of the pair in one statement,
// so concurrent closers never finalize the same row twice.
func closeOpenSessions(ctx context.Context, q querier, taskID, userID string, endedAt time.Time) ([]repository.TimeSession, error) {
	rows, err := q.Query(ctx,
		`UPDATE time_sessions
		 SET end_time = $3,
		     duration_seconds = GREATEST(0, ROUND(EXTRACT(EPOCH FROM ($3::timestamptz - start_time))))::bigint
		 WHERE task_id = $1 AND user_id = $2 AND end_time IS NULL
		 RETURNING `+sessionColumns,
		taskID, userID, endedAt)
	if err != nil {
		return nil, err
	}
	return collectSessions(rows)
}

func (r *PostgresRepository) DeleteSessions(ctx context.Context, taskID, userID string) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM time_sessions WHERE task_id = $1 AND user_id = $2`,
		taskID, userID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *PostgresRepository) ListSessionsByTask(ctx context.Context, taskID string) ([]repository.TimeSession, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+sessionColumns+`
		 FROM time_sessions WHERE task_id = $1
		 ORDER BY start_time DESC, id DESC`,
		taskID)
	if err != nil {
		return nil, err
	}
	return collectSessions(rows)
}

func (r *PostgresRepository) ListCompletedSessions(ctx context.Context, taskID, userID string) ([]repository.TimeSession, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+sessionColumns+`
		 FROM time_sessions WHERE task_id = $1 AND user_id = $2 AND end_time IS NOT NULL
		 ORDER BY start_time DESC, id DESC`,
		taskID, userID)
	if err != nil {
		return nil, err
	}
	return collectSessions(rows)
}

func (r *PostgresRepository) GetOpenSession(ctx context.Context, taskID, userID string) (*repository.TimeSession, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+`
		 FROM time_sessions WHERE task_id = $1 AND user_id = $2 AND end_time IS NULL
		 ORDER BY start_time DESC
		 LIMIT 1`,
		taskID, userID)
	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

func (r *PostgresRepository) ListSessionsByUserAndTasks(ctx context.Context, userID string, taskIDs []string) ([]repository.TimeSession, error) {
	if len(taskIDs) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+sessionColumns+`
		 FROM time_sessions WHERE user_id = $1 AND task_id = ANY($2)
		 ORDER BY start_time DESC, id DESC`,
		userID, taskIDs)
	if err != nil {
		return nil, err
	}
	return collectSessions(rows)
}

func (r *PostgresRepository) TaskExists(ctx context.Context, taskID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tasks WHERE id = $1)`, taskID).Scan(&exists)
	return exists, err
}

func (r *PostgresRepository) ExistingTaskIDs(ctx context.Context, taskIDs []string) ([]string, error) {
	ids := []string{}
	if len(taskIDs) == 0 {
		return ids, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT id FROM tasks WHERE id = ANY($1)`, taskIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *PostgresRepository) UserExists(ctx context.Context, userID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists)
	return exists, err
}

func (r *PostgresRepository) GetUserProfiles(ctx context.Context, userIDs []string) (map[string]repository.UserProfile, error) {
	profiles := make(map[string]repository.UserProfile, len(userIDs))
	if len(userIDs) == 0 {
		return profiles, nil
	}
	rows, err := r.pool.Query(ctx,
		`SELECT id, display_name, avatar_url FROM users WHERE id = ANY($1)`,
		userIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var p repository.UserProfile
		if err := rows.Scan(&p.UserID, &p.DisplayName, &p.AvatarURL); err != nil {
			return nil, err
		}
		profiles[p.UserID] = p
	}
	return profiles, rows.Err()
}

func (r *PostgresRepository) ListCommentsByTask(ctx context.Context, taskID string) ([]repository.Comment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, task_id, author_id, body, created_at
		 FROM task_comments WHERE task_id = $1 ORDER BY created_at ASC, id ASC`,
		taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []repository.Comment
	for rows.Next() {
		var c repository.Comment
		if err := rows.Scan(&c.ID, &c.TaskID, &c.AuthorID, &c.Body, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.CreatedAt = c.CreatedAt.UTC()
		list = append(list, c)
	}
	return list, rows.Err()
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Shutdown is picked up by the injector when the backend stops.
func (r *PostgresRepository) Shutdown() error {
	r.pool.Close()
	return nil
}

func scanSession(row pgx.Row) (*repository.TimeSession, error) {
	var s repository.TimeSession
	var endTime *time.Time
	if err := row.Scan(&s.ID, &s.TaskID, &s.UserID, &s.StartTime, &endTime, &s.DurationSeconds, &s.CreatedAt); err != nil {
		return nil, err
	}
	normalizeSession(&s, endTime)
	return &s, nil
}

func collectSessions(rows pgx.Rows) ([]repository.TimeSession, error) {
	defer rows.Close()
	var list []repository.TimeSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *s)
	}
	return list, rows.Err()
}

func translateError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == openSessionIndex {
		return repository.ErrOpenSessionConflict
	}
	return err
}
