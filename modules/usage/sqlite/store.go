package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/flemzord/tgpt/internal/usage"
)

var _ usage.Store = (*Store)(nil)

// Store persists usage counters, one row per user id (plus the guest pool).
type Store struct {
	db *sql.DB
}

// Load returns every stored row keyed by user id.
func (s *Store) Load(ctx context.Context) (map[string]usage.Counters, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id, counters FROM usage`)
	if err != nil {
		return nil, fmt.Errorf("usage.sqlite: load: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]usage.Counters)
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("usage.sqlite: scan: %w", err)
		}
		var c usage.Counters
		if err := json.Unmarshal([]byte(raw), &c); err != nil {
			return nil, fmt.Errorf("usage.sqlite: decode counters of %s: %w", id, err)
		}
		out[id] = c
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("usage.sqlite: load: %w", err)
	}
	return out, nil
}

// Save upserts the given rows in a single transaction.
func (s *Store) Save(ctx context.Context, counters map[string]usage.Counters) (err error) {
	if len(counters) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("usage.sqlite: begin: %w", err)
	}
	defer func() {
		if err != nil {
			err = errors.Join(err, tx.Rollback())
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO usage (user_id, name, day, month, cost_month, counters, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			name = excluded.name,
			day = excluded.day,
			month = excluded.month,
			cost_month = excluded.cost_month,
			counters = excluded.counters,
			updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("usage.sqlite: prepare: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	// Sorted for a deterministic write order.
	for _, id := range slices.Sorted(maps.Keys(counters)) {
		c := counters[id]
		raw, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("usage.sqlite: encode counters of %s: %w", id, err)
		}
		if _, err := stmt.ExecContext(ctx, id, c.Name, c.Day, c.Month, c.CostMonth, string(raw), now); err != nil {
			return fmt.Errorf("usage.sqlite: save %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("usage.sqlite: commit: %w", err)
	}
	return nil
}

// TopSpenders returns up to limit user ids of month ordered by spend,
// highest first. The guest pool is excluded.
func (s *Store) TopSpenders(ctx context.Context, month string, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id FROM usage
		WHERE month = ? AND user_id <> ?
		ORDER BY cost_month DESC, user_id
		LIMIT ?`, month, usage.GuestKey, limit)
	if err != nil {
		return nil, fmt.Errorf("usage.sqlite: top spenders: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("usage.sqlite: scan: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
