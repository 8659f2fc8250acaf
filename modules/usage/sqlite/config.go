package sqlite

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Config holds the usage.sqlite module configuration.
type Config struct {
	// Path of the database file, {DataDir}/usage.db when empty.
	Path string `yaml:"path"`

	// Journal is the SQLite journal mode: wal (default), delete or truncate.
	Journal string `yaml:"journal"`

	// BusyTimeout bounds the wait on a locked database.
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

var journalModes = []string{"wal", "delete", "truncate"}

func (c *Config) defaults() {
	c.Journal = strings.ToLower(c.Journal)
	if c.Journal == "" {
		c.Journal = "wal"
	}
	if c.BusyTimeout == 0 {
		c.BusyTimeout = 5 * time.Second
	}
}

func (c *Config) validate() error {
	if !slices.Contains(journalModes, c.Journal) {
		return fmt.Errorf("usage.sqlite: journal %q is not one of %s", c.Journal, strings.Join(journalModes, ", "))
	}
	if c.BusyTimeout < 0 {
		return fmt.Errorf("usage.sqlite: negative busy_timeout %s", c.BusyTimeout)
	}
	return nil
}

// dsn is the modernc.org/sqlite connection string for path. The pragmas
// are replayed on every new connection of the pool.
func (c *Config) dsn(path string) string {
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(%s)&_txlock=immediate",
		path, c.BusyTimeout.Milliseconds(), c.Journal)
}
