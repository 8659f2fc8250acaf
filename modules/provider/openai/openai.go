// Package openai implements the provider.openai module: chat completions,
// blocking or streamed, Whisper transcription and image generation over
// the OpenAI HTTP API.
package openai

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/flemzord/tgpt/internal/core"
	"github.com/flemzord/tgpt/internal/provider"
	"gopkg.in/yaml.v3"
)

// ServiceName is the service the *Provider is published under.
const ServiceName = "provider.openai"

func init() {
	core.RegisterModule(&Provider{})
}

var (
	_ provider.Provider       = (*Provider)(nil)
	_ provider.Transcriber    = (*Provider)(nil)
	_ provider.ImageGenerator = (*Provider)(nil)
	_ provider.HealthChecker  = (*Provider)(nil)
	_ core.Configurable       = (*Provider)(nil)
	_ core.Provisioner        = (*Provider)(nil)
	_ core.Validator          = (*Provider)(nil)
)

// Provider is the provider.openai module.
type Provider struct {
	config Config
	logger *slog.Logger

	// client bounds whole exchanges with config.Timeout. Streams can
	// outlive any fixed timeout, so streamClient relies on the context.
	client       *http.Client
	streamClient *http.Client
	window       int

	sleep func(ctx context.Context, d time.Duration) error
}

func (p *Provider) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "provider.openai",
		New: func() core.Module { return &Provider{} },
	}
}

func (p *Provider) Configure(node *yaml.Node) error {
	if err := node.Decode(&p.config); err != nil {
		return fmt.Errorf("provider.openai: %w", err)
	}
	return nil
}

func (p *Provider) Provision(app *core.AppContext) error {
	p.logger = app.Logger
	p.config.defaults()

	p.client = &http.Client{Timeout: p.config.Timeout}
	p.streamClient = &http.Client{}
	if p.sleep == nil {
		p.sleep = sleepContext
	}

	p.window = p.config.ContextWindow
	if p.window <= 0 {
		p.window = contextWindow(p.config.Model)
	}
	if p.window == 0 {
		p.logger.Warn("provider.openai: unknown context window, history is capped by max_history_tokens only",
			"model", p.config.Model)
	}

	app.RegisterService(ServiceName, p)
	return nil
}

func (p *Provider) Validate() error {
	return p.config.validate()
}
