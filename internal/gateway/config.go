package gateway

import "time"

// Config is the gateway.http section of the configuration file.
type Config struct {
	// Bind is the listen address. The default keeps the admin API local.
	Bind string `yaml:"bind"`

	Auth     AuthConfig                  `yaml:"auth"`
	Webhooks map[string]WebhookSourceCfg `yaml:"webhooks"`
	Timeouts Timeouts                    `yaml:"timeouts"`

	// Metrics mounts GET /metrics. Defaults to true.
	Metrics *bool `yaml:"metrics"`
}

// Timeouts bound the HTTP server and the health probes.
type Timeouts struct {
	Read     time.Duration `yaml:"read"`
	Write    time.Duration `yaml:"write"`
	Shutdown time.Duration `yaml:"shutdown"`

	// Health bounds each provider probe run by GET /health.
	Health time.Duration `yaml:"health"`
}

func (c *Config) defaults() {
	if c.Bind == "" {
		c.Bind = "127.0.0.1:8080"
	}
	if c.Metrics == nil {
		on := true
		c.Metrics = &on
	}
	if c.Auth.AttemptsPerMin == 0 {
		c.Auth.AttemptsPerMin = 30
	}

	t := &c.Timeouts
	for _, d := range []struct {
		field *time.Duration
		def   time.Duration
	}{
		{&t.Read, 10 * time.Second},
		{&t.Write, 30 * time.Second},
		{&t.Shutdown, 5 * time.Second},
		{&t.Health, 5 * time.Second},
	} {
		if *d.field <= 0 {
			*d.field = d.def
		}
	}
}

// AuthConfig protects the admin endpoints. They are not mounted at all
// when neither a bearer token nor a complete basic pair is set.
type AuthConfig struct {
	BearerToken string `yaml:"bearer_token"`
	BasicUser   string `yaml:"basic_user"`
	BasicPass   string `yaml:"basic_pass"`

	// AttemptsPerMin caps failed authentications per client address.
	// Negative disables the limit.
	AttemptsPerMin int `yaml:"attempts_per_min"`
}

// IsConfigured reports whether any credential is set.
func (a AuthConfig) IsConfigured() bool {
	return a.BearerToken != "" || (a.BasicUser != "" && a.BasicPass != "")
}

// WebhookSourceCfg configures one /webhooks/{source} endpoint.
type WebhookSourceCfg struct {
	// Secret enables HMAC-SHA256 validation of the X-Signature-256 header.
	Secret string `yaml:"secret"`
}
