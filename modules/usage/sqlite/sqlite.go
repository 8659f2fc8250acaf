// Package sqlite implements the usage.sqlite module: usage counters kept
// in a SQLite file through the pure-Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/flemzord/tgpt/internal/core"
	"gopkg.in/yaml.v3"
)

// ServiceName is the service the *Store is published under. The Telegram
// channel restores and flushes counters through it; the gateway ranks
// spenders with it.
const ServiceName = "usage.store"

const openTimeout = 30 * time.Second

func init() {
	core.RegisterModule(&Module{})
}

var (
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
	_ core.Validator    = (*Module)(nil)
	_ core.Stopper      = (*Module)(nil)
)

// Module owns the usage database for the lifetime of the app.
type Module struct {
	config Config
	store  *Store
	logger *slog.Logger
}

func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "usage.sqlite",
		New: func() core.Module { return &Module{} },
	}
}

func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("usage.sqlite: %w", err)
	}
	return nil
}

// Provision opens the database so the store is published before the
// channel module provisions.
func (m *Module) Provision(app *core.AppContext) error {
	m.logger = app.Logger
	m.config.defaults()
	if m.config.Path == "" {
		m.config.Path = filepath.Join(app.DataDir, "usage.db")
	}

	ctx, cancel := context.WithTimeout(context.Background(), openTimeout)
	defer cancel()
	store, err := Open(ctx, m.config.Path, m.config)
	if err != nil {
		return err
	}
	m.store = store
	app.RegisterService(ServiceName, store)

	m.logger.Info("usage database ready", "path", m.config.Path, "journal", m.config.Journal)
	return nil
}

func (m *Module) Validate() error {
	ctx, cancel := context.WithTimeout(context.Background(), m.config.BusyTimeout+time.Second)
	defer cancel()
	if err := m.store.Ping(ctx); err != nil {
		return fmt.Errorf("usage.sqlite: ping: %w", err)
	}
	return nil
}

// Stop closes the database. Modules stop in reverse load order, so the
// channel has flushed its counters by then.
func (m *Module) Stop(context.Context) error {
	if m.store == nil {
		return nil
	}
	m.logger.Info("usage database closing")
	return m.store.Close()
}
