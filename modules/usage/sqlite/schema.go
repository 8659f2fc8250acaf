package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

// migrations are applied in order; the database records how many ran in
// PRAGMA user_version. Append only.
var migrations = []string{
	`CREATE TABLE usage (
		user_id    TEXT PRIMARY KEY,
		name       TEXT NOT NULL DEFAULT '',
		day        TEXT NOT NULL DEFAULT '',
		month      TEXT NOT NULL DEFAULT '',
		cost_month REAL NOT NULL DEFAULT 0,
		counters   TEXT NOT NULL DEFAULT '{}',
		updated_at TEXT NOT NULL
	)`,
	`CREATE INDEX usage_by_month_cost ON usage(month, cost_month DESC)`,
}

func schemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var v int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("usage.sqlite: read schema version: %w", err)
	}
	return v, nil
}

// migrate runs every migration the database has not seen yet, each in its
// own transaction together with the version bump.
func migrate(ctx context.Context, db *sql.DB) error {
	current, err := schemaVersion(ctx, db)
	if err != nil {
		return err
	}
	if current > len(migrations) {
		return fmt.Errorf("usage.sqlite: schema version %d is newer than this binary (%d)", current, len(migrations))
	}

	for v := current; v < len(migrations); v++ {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("usage.sqlite: migration %d: %w", v+1, err)
		}
		if _, err := tx.ExecContext(ctx, migrations[v]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("usage.sqlite: migration %d: %w", v+1, err)
		}
		// PRAGMA does not take bind parameters.
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", v+1)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("usage.sqlite: migration %d: %w", v+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("usage.sqlite: migration %d: %w", v+1, err)
		}
	}
	return nil
}
