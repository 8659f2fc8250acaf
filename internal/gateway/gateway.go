// Package gateway provides the HTTP server of the bot: health and metrics
// for monitoring, the webhook endpoint Telegram posts updates to, and an
// authenticated API exposing usage counters. It binds to loopback by
// default.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/flemzord/tgpt/internal/core"
	"github.com/flemzord/tgpt/internal/security"
	"github.com/flemzord/tgpt/internal/usage"
	"gopkg.in/yaml.v3"
)

// Service names used for cross-module discovery.
const (
	DispatcherService = "gateway.webhook_dispatcher"
	usageService      = "usage.recorder"
	storeService      = "usage.store"
	configPathService = "config.path"
	providerPrefix    = "provider."
)

func init() {
	core.RegisterModule(&Gateway{})
}

var (
	_ core.Configurable = (*Gateway)(nil)
	_ core.Provisioner  = (*Gateway)(nil)
	_ core.Validator    = (*Gateway)(nil)
	_ core.Starter      = (*Gateway)(nil)
	_ core.Stopper      = (*Gateway)(nil)
)

// UsageReader exposes recorded usage counters. *usage.Recorder implements it.
type UsageReader interface {
	Snapshot(key string) usage.Counters
	All() map[string]usage.Counters
}

// Gateway is the gateway.http module. Other modules reach it only through
// the webhook dispatcher service.
type Gateway struct {
	config     Config
	appCtx     *core.AppContext
	logger     *slog.Logger
	dispatcher *WebhookDispatcher
	limiter    *security.RateLimiter

	server    *http.Server
	served    chan struct{} // closed when Serve returns
	startedAt time.Time

	// Bound at Start; both are optional and their endpoints answer 503.
	usage      UsageReader
	configPath string
}

func (g *Gateway) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "gateway.http",
		New: func() core.Module { return &Gateway{} },
	}
}

func (g *Gateway) Configure(node *yaml.Node) error {
	if err := node.Decode(&g.config); err != nil {
		return fmt.Errorf("gateway: %w", err)
	}
	g.config.defaults()
	return nil
}

// Provision creates the webhook dispatcher and publishes it, with the
// configured source secrets already set, so the channel can register on it.
func (g *Gateway) Provision(ctx *core.AppContext) error {
	g.config.defaults()
	g.appCtx = ctx
	g.logger = ctx.Logger
	g.limiter = security.NewRateLimiter(security.RateLimitConfig{MessagesPerMin: g.config.Auth.AttemptsPerMin})

	g.dispatcher = NewWebhookDispatcher(g.logger)
	for source, wh := range g.config.Webhooks {
		if wh.Secret == "" {
			continue
		}
		g.dispatcher.SetSecret(source, wh.Secret)
		g.logger.Info("webhook source configured", "source", source)
	}
	ctx.RegisterService(DispatcherService, g.dispatcher)
	return nil
}

func (g *Gateway) Validate() error {
	_, port, err := net.SplitHostPort(g.config.Bind)
	if err == nil {
		_, err = strconv.ParseUint(port, 10, 16)
	}
	if err != nil {
		return fmt.Errorf("gateway: invalid bind address %q: %w", g.config.Bind, err)
	}
	if g.config.Auth.BasicUser != "" && g.config.Auth.BasicPass == "" {
		return errors.New("gateway: auth.basic_user is set without auth.basic_pass")
	}
	return nil
}

// Start binds the listener synchronously, so a busy port fails startup,
// and serves in the background.
func (g *Gateway) Start() error {
	g.usage, _ = core.Lookup[UsageReader](g.appCtx, usageService)
	g.configPath, _ = core.Lookup[string](g.appCtx, configPathService)

	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", g.config.Bind)
	if err != nil {
		return fmt.Errorf("gateway: listen on %s: %w", g.config.Bind, err)
	}

	g.startedAt = time.Now()
	g.served = make(chan struct{})
	g.server = &http.Server{
		Handler:           g.buildRouter(),
		ReadHeaderTimeout: g.config.Timeouts.Read,
		ReadTimeout:       g.config.Timeouts.Read,
		WriteTimeout:      g.config.Timeouts.Write,
		ErrorLog:          slog.NewLogLogger(g.logger.Handler(), slog.LevelWarn),
	}
	g.logger.Info("gateway listening", "addr", ln.Addr().String(), "admin", g.config.Auth.IsConfigured())

	go func() {
		defer close(g.served)
		if err := g.server.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway: serve failed", "error", err)
		}
	}()
	return nil
}

// Stop drains in-flight requests for at most the shutdown timeout.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, g.config.Timeouts.Shutdown)
	defer cancel()

	g.logger.Info("gateway shutting down")
	err := g.server.Shutdown(ctx)
	<-g.served
	return err
}
