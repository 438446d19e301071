package trace

import (
	"context"
	"database/sql"
)

// schema contains the DDL for the trace tables.
// Each statement uses IF NOT EXISTS for idempotency.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id          TEXT PRIMARY KEY,
		scenario    TEXT NOT NULL,
		scheduler   TEXT NOT NULL,
		seed        INTEGER NOT NULL DEFAULT 0,
		state       TEXT NOT NULL DEFAULT 'RUNNING',
		detail      TEXT NOT NULL DEFAULT '',
		ticks       INTEGER NOT NULL DEFAULT 0,
		switches    INTEGER NOT NULL DEFAULT 0,
		created_at  TEXT NOT NULL,
		finished_at TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS events (
		run_id    TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		seq       INTEGER NOT NULL,
		tick      INTEGER NOT NULL,
		thread_id INTEGER NOT NULL,
		thread    TEXT NOT NULL,
		kind      TEXT NOT NULL,
		PRIMARY KEY (run_id, seq)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_runs_scenario ON runs(scenario)`,
	`CREATE INDEX IF NOT EXISTS idx_runs_state ON runs(state)`,
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
