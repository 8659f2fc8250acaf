package core

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"
)

// DefaultShutdownTimeout bounds the time all modules get to stop.
const DefaultShutdownTimeout = 30 * time.Second

// App owns the loaded modules and drives their Start and Stop calls.
type App struct {
	// ShutdownTimeout bounds Stop. Zero means DefaultShutdownTimeout.
	ShutdownTimeout time.Duration

	appCtx *AppContext
	logger *slog.Logger
	loaded []loadedModule
}

type loadedModule struct {
	id      ModuleID
	mod     Module
	running bool
}

// NewApp returns an App loading its modules through appCtx.
func NewApp(appCtx *AppContext) *App {
	return &App{
		appCtx: appCtx,
		logger: appCtx.Logger.With("component", "core"),
	}
}

// LoadModules loads the modules in the given order. When one fails, the
// modules loaded before it are released and the error is returned.
func (a *App) LoadModules(ids []string) error {
	for _, id := range ids {
		mod, err := a.appCtx.LoadModule(id)
		if err != nil {
			a.release(len(a.loaded)-1, true)
			a.loaded = nil
			return fmt.Errorf("loading module %s: %w", id, err)
		}
		a.loaded = append(a.loaded, loadedModule{id: mod.ModuleInfo().ID, mod: mod})
		a.logger.Debug("module loaded", "module", id)
	}
	return nil
}

// Modules returns the loaded module IDs in load order.
func (a *App) Modules() []ModuleID {
	ids := make([]ModuleID, 0, len(a.loaded))
	for _, lm := range a.loaded {
		ids = append(ids, lm.id)
	}
	return ids
}

// Start starts the modules in load order. On failure the modules already
// running are stopped in reverse order.
func (a *App) Start() error {
	for i := range a.loaded {
		lm := &a.loaded[i]
		s, ok := lm.mod.(Starter)
		if !ok {
			continue
		}
		begin := time.Now()
		if err := s.Start(); err != nil {
			a.logger.Error("module failed to start", "module", string(lm.id), "error", err)
			a.release(i-1, false)
			return fmt.Errorf("starting module %s: %w", lm.id, err)
		}
		lm.running = true
		a.logger.Info("module started", "module", string(lm.id), "took", time.Since(begin))
	}
	a.logger.Info("modules started", "count", len(a.loaded))
	return nil
}

// Stop stops the running modules in reverse load order.
func (a *App) Stop() {
	a.release(len(a.loaded)-1, false)
}

// release calls Stop on loaded[from] down to loaded[0]. Modules that never
// started are included only when idle is set.
func (a *App) release(from int, idle bool) {
	timeout := a.ShutdownTimeout
	if timeout <= 0 {
		timeout = DefaultShutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	for i := from; i >= 0; i-- {
		lm := &a.loaded[i]
		if !lm.running && !idle {
			continue
		}
		if s, ok := lm.mod.(Stopper); ok {
			if err := s.Stop(ctx); err != nil {
				a.logger.Error("module stop failed", "module", string(lm.id), "error", err)
			} else if lm.running {
				a.logger.Info("module stopped", "module", string(lm.id))
			}
		}
		lm.running = false
	}
}

// Run starts the modules, waits for ctx to end or for SIGINT or SIGTERM,
// then stops them.
func (a *App) Run(ctx context.Context) error {
	if err := a.Start(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	a.logger.Info("shutting down", "cause", context.Cause(ctx))
	a.Stop()
	a.logger.Info("shutdown complete")
	return nil
}
