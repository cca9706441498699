package store

import (
	"context"
	"database/sql"
)

// schema contains the DDL for all seqflow tables.
// Each statement uses IF NOT EXISTS for idempotency.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS invocations (
		id            TEXT PRIMARY KEY,
		pipeline_name TEXT NOT NULL,
		state         TEXT NOT NULL DEFAULT 'PENDING',
		sample        TEXT NOT NULL DEFAULT '{}',
		branches      TEXT NOT NULL DEFAULT '[]',
		outputs       TEXT NOT NULL DEFAULT '{}',
		error         TEXT NOT NULL DEFAULT '',
		created_at    TEXT NOT NULL,
		completed_at  TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS tasks (
		id            TEXT PRIMARY KEY,
		invocation_id TEXT NOT NULL,
		step_id       TEXT NOT NULL,
		state         TEXT NOT NULL DEFAULT 'PENDING',
		executor_type TEXT NOT NULL DEFAULT 'local',
		image         TEXT NOT NULL DEFAULT '',
		command       TEXT NOT NULL DEFAULT '[]',
		inputs        TEXT NOT NULL DEFAULT '{}',
		outputs       TEXT NOT NULL DEFAULT '{}',
		output_globs  TEXT NOT NULL DEFAULT '{}',
		resources     TEXT NOT NULL DEFAULT '{}',
		depends_on    TEXT NOT NULL DEFAULT '[]',
		retry_count   INTEGER NOT NULL DEFAULT 0,
		max_retries   INTEGER NOT NULL DEFAULT 0,
		work_dir      TEXT NOT NULL DEFAULT '',
		stdout        TEXT NOT NULL DEFAULT '',
		stderr        TEXT NOT NULL DEFAULT '',
		exit_code     INTEGER,
		created_at    TEXT NOT NULL,
		started_at    TEXT,
		completed_at  TEXT
	)`,

	`CREATE INDEX IF NOT EXISTS idx_invocations_state ON invocations(state)`,
	`CREATE INDEX IF NOT EXISTS idx_invocations_pipeline ON invocations(pipeline_name)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_invocation_id ON tasks(invocation_id)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_state ON tasks(state)`,
}

// migrate executes all schema DDL statements.
func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
