package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/xkilldash9x/cherry/api/schemas"
)

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS tasks (
    id TEXT PRIMARY KEY,
    goal TEXT NOT NULL,
    source TEXT NOT NULL DEFAULT '',
    state TEXT NOT NULL,
    summary TEXT NOT NULL DEFAULT '',
    steps INTEGER NOT NULL DEFAULT 0,
    started_at TIMESTAMPTZ NOT NULL,
    finished_at TIMESTAMPTZ NOT NULL,
    elapsed_ms BIGINT NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS task_steps (
    task_id TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
    seq INTEGER NOT NULL,
    entry TEXT NOT NULL,
    PRIMARY KEY (task_id, seq)
);
CREATE INDEX IF NOT EXISTS tasks_finished_at_idx ON tasks (finished_at);
`

const (
	sqlUpsertTask = `
        INSERT INTO tasks (id, goal, source, state, summary, steps, started_at, finished_at, elapsed_ms)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        ON CONFLICT (id) DO UPDATE SET
            state = EXCLUDED.state,
            summary = EXCLUDED.summary,
            steps = EXCLUDED.steps,
            finished_at = EXCLUDED.finished_at,
            elapsed_ms = EXCLUDED.elapsed_ms;
    `
	sqlDeleteSteps = `DELETE FROM task_steps WHERE task_id = $1;`
	sqlRecentTasks = `
        SELECT t.id, t.goal, t.source, t.state, t.summary, t.steps, t.started_at, t.finished_at, t.elapsed_ms,
               COALESCE(array_agg(s.entry ORDER BY s.seq) FILTER (WHERE s.entry IS NOT NULL), '{}')
        FROM tasks t
        LEFT JOIN task_steps s ON s.task_id = t.id
        GROUP BY t.id
        ORDER BY t.started_at DESC
        LIMIT $1;
    `
	sqlPruneTasks = `DELETE FROM tasks WHERE finished_at < $1;`
)

// Store persists finished tasks in PostgreSQL. It implements schemas.TaskStore.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

var _ schemas.TaskStore = (*Store)(nil)

// New creates a new store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to migrate task schema: %w", err)
	}
	return nil
}

// SaveTask writes the task and its history in one transaction. Saving the same
// task again replaces its history.
func (s *Store) SaveTask(ctx context.Context, record schemas.TaskRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	_, err = tx.Exec(ctx, sqlUpsertTask,
		record.ID, record.Goal, record.Source, string(record.State), record.Summary, record.Steps,
		record.StartedAt.UTC(), record.FinishedAt.UTC(), record.Elapsed.Milliseconds())
	if err != nil {
		return fmt.Errorf("failed to upsert task %s: %w", record.ID, err)
	}

	if _, err := tx.Exec(ctx, sqlDeleteSteps, record.ID); err != nil {
		return fmt.Errorf("failed to clear steps for task %s: %w", record.ID, err)
	}

	if len(record.History) > 0 {
		rows := make([][]interface{}, len(record.History))
		for i, entry := range record.History {
			rows[i] = []interface{}{record.ID, i, entry}
		}
		copyCount, err := tx.CopyFrom(ctx,
			pgx.Identifier{"task_steps"},
			[]string{"task_id", "seq", "entry"},
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			return fmt.Errorf("failed to copy task steps: %w", err)
		}
		if int(copyCount) != len(record.History) {
			return fmt.Errorf("mismatch in copied steps count: expected %d, got %d", len(record.History), copyCount)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Debug("Task saved", zap.String("task_id", record.ID), zap.String("state", string(record.State)))
	return nil
}

// RecentTasks returns up to limit tasks, newest first, with their history.
func (s *Store) RecentTasks(ctx context.Context, limit int) ([]schemas.TaskRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.pool.Query(ctx, sqlRecentTasks, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var records []schemas.TaskRecord
	for rows.Next() {
		var (
			r         schemas.TaskRecord
			state     string
			elapsedMs int64
		)
		if err := rows.Scan(
			&r.ID, &r.Goal, &r.Source, &state, &r.Summary, &r.Steps,
			&r.StartedAt, &r.FinishedAt, &elapsedMs, &r.History,
		); err != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		r.State = schemas.TaskState(state)
		r.Elapsed = time.Duration(elapsedMs) * time.Millisecond
		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return records, nil
}

// PruneBefore deletes tasks that finished before cutoff and returns how many
// were removed. Their steps go with them.
func (s *Store) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, sqlPruneTasks, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune tasks: %w", err)
	}
	s.log.Info("Pruned old tasks", zap.Int64("deleted", tag.RowsAffected()), zap.Time("cutoff", cutoff))
	return tag.RowsAffected(), nil
}
