package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/me/seqflow/pkg/model"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath.
// Use ":memory:" for an in-memory database (useful in tests).
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}

	// WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.With("component", "store"),
	}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate creates all required tables and indexes.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	s.logger.Debug("sql", "op", "migrate")
	return migrate(ctx, s.db)
}

// --- Invocations ---

// SaveInvocation upserts the invocation row. Task rows are persisted
// separately via SaveTask.
func (s *SQLiteStore) SaveInvocation(ctx context.Context, inv *model.Invocation) error {
	s.logger.Debug("sql", "op", "upsert", "table", "invocations", "id", inv.ID)

	sampleJSON, err := json.Marshal(inv.Sample)
	if err != nil {
		return fmt.Errorf("marshal sample: %w", err)
	}
	branchesJSON, err := json.Marshal(inv.Branches)
	if err != nil {
		return fmt.Errorf("marshal branches: %w", err)
	}
	outputsJSON, err := json.Marshal(inv.Outputs)
	if err != nil {
		return fmt.Errorf("marshal outputs: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO invocations (id, pipeline_name, state, sample, branches, outputs, error, created_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			state = excluded.state,
			sample = excluded.sample,
			branches = excluded.branches,
			outputs = excluded.outputs,
			error = excluded.error,
			completed_at = excluded.completed_at`,
		inv.ID, inv.PipelineName, string(inv.State),
		string(sampleJSON), string(branchesJSON), string(outputsJSON), inv.Error,
		inv.CreatedAt.Format(time.RFC3339Nano), formatNullableTime(inv.CompletedAt),
	)
	return err
}

func (s *SQLiteStore) GetInvocation(ctx context.Context, id string) (*model.Invocation, error) {
	s.logger.Debug("sql", "op", "select", "table", "invocations", "id", id)

	var inv model.Invocation
	var sampleJSON, branchesJSON, outputsJSON string
	var createdAt string
	var completedAt *string

	err := s.db.QueryRowContext(ctx,
		`SELECT id, pipeline_name, state, sample, branches, outputs, error, created_at, completed_at
		 FROM invocations WHERE id = ?`, id,
	).Scan(&inv.ID, &inv.PipelineName, &inv.State,
		&sampleJSON, &branchesJSON, &outputsJSON, &inv.Error, &createdAt, &completedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(sampleJSON), &inv.Sample); err != nil {
		return nil, fmt.Errorf("unmarshal sample: %w", err)
	}
	if err := json.Unmarshal([]byte(branchesJSON), &inv.Branches); err != nil {
		return nil, fmt.Errorf("unmarshal branches: %w", err)
	}
	if err := json.Unmarshal([]byte(outputsJSON), &inv.Outputs); err != nil {
		return nil, fmt.Errorf("unmarshal outputs: %w", err)
	}
	inv.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	inv.CompletedAt = parseNullableTime(completedAt)

	tasks, err := s.ListTasksByInvocation(ctx, inv.ID)
	if err != nil {
		return nil, err
	}
	for _, t := range tasks {
		inv.Tasks = append(inv.Tasks, *t)
	}
	inv.TaskSummary = model.ComputeTaskSummary(inv.Tasks)

	return &inv, nil
}

func (s *SQLiteStore) ListInvocations(ctx context.Context, opts model.ListOptions) ([]*model.Invocation, int, error) {
	s.logger.Debug("sql", "op", "list", "table", "invocations", "limit", opts.Limit, "offset", opts.Offset)
	opts.Clamp()

	where := ""
	args := []any{}
	if opts.State != "" {
		where = " WHERE state = ?"
		args = append(args, opts.State)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM invocations`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, opts.Limit, opts.Offset)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, pipeline_name, state, sample, branches, outputs, error, created_at, completed_at
		 FROM invocations`+where+` ORDER BY created_at DESC LIMIT ? OFFSET ?`, args...,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var invocations []*model.Invocation
	for rows.Next() {
		var inv model.Invocation
		var sampleJSON, branchesJSON, outputsJSON string
		var createdAt string
		var completedAt *string

		if err := rows.Scan(&inv.ID, &inv.PipelineName, &inv.State,
			&sampleJSON, &branchesJSON, &outputsJSON, &inv.Error, &createdAt, &completedAt); err != nil {
			return nil, 0, err
		}
		json.Unmarshal([]byte(sampleJSON), &inv.Sample)
		json.Unmarshal([]byte(branchesJSON), &inv.Branches)
		json.Unmarshal([]byte(outputsJSON), &inv.Outputs)
		inv.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		inv.CompletedAt = parseNullableTime(completedAt)

		invocations = append(invocations, &inv)
	}
	return invocations, total, rows.Err()
}

// --- Tasks ---

func (s *SQLiteStore) SaveTask(ctx context.Context, invocationID string, task *model.Task) error {
	s.logger.Debug("sql", "op", "upsert", "table", "tasks", "id", task.ID, "state", task.State)

	commandJSON, _ := json.Marshal(task.Command)
	inputsJSON, _ := json.Marshal(task.Inputs)
	outputsJSON, _ := json.Marshal(task.Outputs)
	globsJSON, _ := json.Marshal(task.OutputGlobs)
	resourcesJSON, _ := json.Marshal(task.Resources)
	dependsJSON, _ := json.Marshal(task.DependsOn)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (id, invocation_id, step_id, state, executor_type, image,
			command, inputs, outputs, output_globs, resources, depends_on,
			retry_count, max_retries, work_dir, stdout, stderr, exit_code,
			created_at, started_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			state = excluded.state,
			inputs = excluded.inputs,
			outputs = excluded.outputs,
			command = excluded.command,
			retry_count = excluded.retry_count,
			work_dir = excluded.work_dir,
			stdout = excluded.stdout,
			stderr = excluded.stderr,
			exit_code = excluded.exit_code,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at`,
		task.ID, invocationID, task.StepID, string(task.State), string(task.ExecutorType), task.Image,
		string(commandJSON), string(inputsJSON), string(outputsJSON), string(globsJSON),
		string(resourcesJSON), string(dependsJSON),
		task.RetryCount, task.MaxRetries, task.WorkDir, task.Stdout, task.Stderr, task.ExitCode,
		task.CreatedAt.Format(time.RFC3339Nano),
		formatNullableTime(task.StartedAt), formatNullableTime(task.CompletedAt),
	)
	return err
}

func (s *SQLiteStore) GetTask(ctx context.Context, id string) (*model.Task, error) {
	s.logger.Debug("sql", "op", "select", "table", "tasks", "id", id)

	row := s.db.QueryRowContext(ctx, taskSelect+` WHERE id = ?`, id)
	task, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return task, nil
}

func (s *SQLiteStore) ListTasksByInvocation(ctx context.Context, invocationID string) ([]*model.Task, error) {
	s.logger.Debug("sql", "op", "list", "table", "tasks", "invocation_id", invocationID)

	rows, err := s.db.QueryContext(ctx, taskSelect+` WHERE invocation_id = ? ORDER BY created_at, step_id`, invocationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTasks(rows)
}

func (s *SQLiteStore) GetTasksByState(ctx context.Context, state model.TaskState) ([]*model.Task, error) {
	s.logger.Debug("sql", "op", "list", "table", "tasks", "state", state)

	rows, err := s.db.QueryContext(ctx, taskSelect+` WHERE state = ? ORDER BY created_at`, string(state))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTasks(rows)
}

const taskSelect = `SELECT id, invocation_id, step_id, state, executor_type, image,
	command, inputs, outputs, output_globs, resources, depends_on,
	retry_count, max_retries, work_dir, stdout, stderr, exit_code,
	created_at, started_at, completed_at
	FROM tasks`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*model.Task, error) {
	var task model.Task
	var commandJSON, inputsJSON, outputsJSON, globsJSON, resourcesJSON, dependsJSON string
	var createdAt string
	var startedAt, completedAt *string

	err := row.Scan(&task.ID, &task.InvocationID, &task.StepID, &task.State, &task.ExecutorType, &task.Image,
		&commandJSON, &inputsJSON, &outputsJSON, &globsJSON, &resourcesJSON, &dependsJSON,
		&task.RetryCount, &task.MaxRetries, &task.WorkDir, &task.Stdout, &task.Stderr, &task.ExitCode,
		&createdAt, &startedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	json.Unmarshal([]byte(commandJSON), &task.Command)
	json.Unmarshal([]byte(inputsJSON), &task.Inputs)
	json.Unmarshal([]byte(outputsJSON), &task.Outputs)
	json.Unmarshal([]byte(globsJSON), &task.OutputGlobs)
	json.Unmarshal([]byte(resourcesJSON), &task.Resources)
	json.Unmarshal([]byte(dependsJSON), &task.DependsOn)
	task.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	task.StartedAt = parseNullableTime(startedAt)
	task.CompletedAt = parseNullableTime(completedAt)

	return &task, nil
}

func scanTasks(rows *sql.Rows) ([]*model.Task, error) {
	var tasks []*model.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

func formatNullableTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339Nano)
	return &s
}

func parseNullableTime(s *string) *time.Time {
	if s == nil {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, *s)
	if err != nil {
		return nil
	}
	return &t
}
