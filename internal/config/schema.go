// Package config reads the tgpt YAML file: ${VAR} references are resolved
// from the environment and an adjacent .env file, then the result is
// checked before any module sees its section.
package config

import (
	"github.com/flemzord/tgpt/internal/security"
	"github.com/flemzord/tgpt/internal/telemetry"
	"gopkg.in/yaml.v3"
)

// Config mirrors the top level of the file. Module sections stay raw nodes
// until the module registered under the key decodes them.
type Config struct {
	Version   string               `yaml:"version"`
	DataDir   string               `yaml:"data_dir,omitempty"` // empty selects the platform default
	Log       security.LogConfig   `yaml:"log,omitempty"`
	Telemetry TelemetryConfig      `yaml:"telemetry,omitempty"`
	Modules   map[string]yaml.Node `yaml:"modules"`
}

type TelemetryConfig struct {
	Tracing telemetry.TracingConfig `yaml:"tracing,omitempty"`
}

// Generic round-trips c through YAML into plain maps, ready for
// security.Redactor.RedactMap.
func (c *Config) Generic() (map[string]any, error) {
	var out map[string]any
	raw, err := yaml.Marshal(c)
	if err == nil {
		err = yaml.Unmarshal(raw, &out)
	}
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}
