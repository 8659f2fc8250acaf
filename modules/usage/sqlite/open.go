package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Open returns a Store on the database file at path. Missing parent
// directories are created and the schema is migrated before returning.
func Open(ctx context.Context, path string, cfg Config) (*Store, error) {
	cfg.defaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("usage.sqlite: create data directory: %w", err)
	}

	db, err := sql.Open("sqlite", cfg.dsn(path))
	if err != nil {
		return nil, fmt.Errorf("usage.sqlite: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // one writer; readers queue behind it

	if err := prepare(ctx, db, path); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// prepare connects once, so a bad file or pragma fails here rather than on
// the first flush, then migrates.
func prepare(ctx context.Context, db *sql.DB, path string) error {
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("usage.sqlite: connect %s: %w", path, err)
	}
	return migrate(ctx, db)
}
