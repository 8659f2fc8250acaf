package config

import (
	"errors"
	"fmt"
	"slices"

	"github.com/flemzord/tgpt/internal/core"
)

// supportedVersions lists the config format versions this build reads.
var supportedVersions = []string{"1"}

// Validate checks the parts of cfg that do not belong to a module: the
// format version, the module set and the process-wide sections. Each
// module checks its own settings in its Validate hook. All problems are
// reported together.
func Validate(cfg *Config) error {
	checks := []func(*Config) []error{
		checkVersion,
		checkModules,
		checkProcess,
	}
	var errs []error
	for _, check := range checks {
		errs = append(errs, check(cfg)...)
	}
	return errors.Join(errs...)
}

func checkVersion(cfg *Config) []error {
	switch {
	case cfg.Version == "":
		return []error{errors.New("config: version field is required")}
	case !slices.Contains(supportedVersions, cfg.Version):
		return []error{fmt.Errorf("config: unsupported version %q (supported: %q)", cfg.Version, supportedVersions)}
	}
	return nil
}

func checkModules(cfg *Config) []error {
	if len(cfg.Modules) == 0 {
		return []error{errors.New("config: at least one module must be configured")}
	}

	var errs []error
	hasChannel := false
	for _, id := range Resolve(cfg) {
		if _, ok := core.GetModule(id); !ok {
			errs = append(errs, fmt.Errorf("config: unknown module %q", id))
		}
		hasChannel = hasChannel || core.ModuleID(id).Namespace() == "channel"
	}
	if !hasChannel {
		errs = append(errs, errors.New("config: no channel module configured, the bot would receive nothing"))
	}
	return errs
}

func checkProcess(cfg *Config) []error {
	var errs []error
	if err := cfg.Log.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("config: log: %w", err))
	}
	if r := cfg.Telemetry.Tracing.SampleRatio; r < 0 || r > 1 {
		errs = append(errs, fmt.Errorf("config: telemetry.tracing.sample_ratio %v is outside [0, 1]", r))
	}
	return errs
}
