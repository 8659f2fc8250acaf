// Package app provides the entry point shared by the tgpt commands: it
// turns a configuration file into a running set of modules.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/flemzord/tgpt/internal/config"
	"github.com/flemzord/tgpt/internal/core"
	"github.com/flemzord/tgpt/internal/security"
	"github.com/flemzord/tgpt/internal/telemetry"
)

// ServiceName identifies the process in traces and the service manager.
const ServiceName = "tgpt"

// configPathService is the service the gateway reads the config path from.
const configPathService = "config.path"

// tracingShutdownTimeout bounds the final span flush.
const tracingShutdownTimeout = 5 * time.Second

// RunParams configures the main application loop.
type RunParams struct {
	// ConfigPath is an explicit path to the YAML configuration file.
	// If empty, ResolveConfigPath is called automatically.
	ConfigPath string

	// Version, Commit, and Date are injected at build time via ldflags.
	Version string
	Commit  string
	Date    string

	// DataDir overrides the data_dir of the configuration.
	DataDir string

	// LogOutput receives the process log. Defaults to os.Stderr.
	LogOutput io.Writer
}

// Run loads configuration, starts all modules, and blocks until a shutdown
// signal is received or ctx is cancelled.
func Run(ctx context.Context, params RunParams) error {
	application, logger, cleanup, err := build(ctx, params)
	if err != nil {
		return err
	}
	defer cleanup()

	logger.Info("tgpt starting",
		"version", params.Version,
		"commit", params.Commit,
		"modules", len(application.Modules()),
	)
	return application.Run(ctx)
}

// Check loads and validates the configuration, then provisions every
// module without starting any. It returns the module IDs in load order.
func Check(params RunParams) ([]core.ModuleID, error) {
	application, _, cleanup, err := build(context.Background(), params)
	if err != nil {
		return nil, err
	}
	defer cleanup()
	return application.Modules(), nil
}

// build wires the process: logger, tracing, shared services and the
// provisioned modules. cleanup stops the modules and flushes traces.
func build(ctx context.Context, params RunParams) (*core.App, *slog.Logger, func(), error) {
	cfgPath := params.ConfigPath
	if cfgPath == "" {
		resolved, err := ResolveConfigPath()
		if err != nil {
			return nil, nil, nil, err
		}
		cfgPath = resolved
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, nil, nil, err
	}

	out := params.LogOutput
	if out == nil {
		out = os.Stderr
	}
	redactor := security.NewRedactor()
	logger, err := security.NewLogger(out, cfg.Log, redactor)
	if err != nil {
		return nil, nil, nil, err
	}

	shutdownTracing, err := telemetry.SetupTracing(ctx, cfg.Telemetry.Tracing, ServiceName, params.Version, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	flushTraces := func() {
		sctx, cancel := context.WithTimeout(context.Background(), tracingShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn("telemetry: tracer shutdown failed", "error", err)
		}
	}

	dataDir := dataDirFor(params, cfg)
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		flushTraces()
		return nil, nil, nil, fmt.Errorf("app: creating data dir: %w", err)
	}

	appCtx := core.NewAppContext(logger, dataDir).WithModuleConfigs(cfg.Modules)
	appCtx.RegisterService(configPathService, cfgPath)
	appCtx.RegisterService(security.RedactorService, redactor)

	application := core.NewApp(appCtx)
	if err := application.LoadModules(config.Resolve(cfg)); err != nil {
		flushTraces()
		return nil, nil, nil, err
	}

	cleanup := func() {
		application.Stop()
		flushTraces()
	}
	return application, logger, cleanup, nil
}

func dataDirFor(params RunParams, cfg *config.Config) string {
	switch {
	case params.DataDir != "":
		return params.DataDir
	case cfg.DataDir != "":
		return cfg.DataDir
	default:
		return DefaultDataDir()
	}
}

// ErrNoConfig is returned by ResolveConfigPath when no file exists.
var ErrNoConfig = errors.New("no configuration file found")

// ResolveConfigPath searches for a config file in standard locations.
// Search order: $TGPT_CONFIG → $XDG_CONFIG_HOME/tgpt/tgpt.yaml →
// ~/.config/tgpt/tgpt.yaml → ./tgpt.yaml
func ResolveConfigPath() (string, error) {
	if path, ok := os.LookupEnv("TGPT_CONFIG"); ok && path != "" {
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("TGPT_CONFIG: %w", err)
		}
		return path, nil
	}

	var candidates []string
	if dir, err := DefaultConfigDir(); err == nil {
		candidates = append(candidates, filepath.Join(dir, "tgpt.yaml"))
	}
	candidates = append(candidates, "tgpt.yaml")

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("%w (searched: %v)", ErrNoConfig, candidates)
}

// DefaultConfigDir returns $XDG_CONFIG_HOME/tgpt, or ~/.config/tgpt.
func DefaultConfigDir() (string, error) {
	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok && xdg != "" {
		return filepath.Join(xdg, "tgpt"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "tgpt"), nil
}

// DefaultDataDir returns the default persistent data directory.
// Uses $XDG_DATA_HOME/tgpt if set, otherwise ~/.local/share/tgpt per the XDG spec.
func DefaultDataDir() string {
	if dir, ok := os.LookupEnv("XDG_DATA_HOME"); ok && dir != "" {
		return filepath.Join(dir, "tgpt")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "tgpt")
}
