package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/flemzord/tgpt/internal/core"
	"github.com/flemzord/tgpt/internal/cron"
	"github.com/flemzord/tgpt/internal/gateway"
	"github.com/flemzord/tgpt/internal/provider"
	"github.com/flemzord/tgpt/internal/security"
	"github.com/flemzord/tgpt/internal/usage"
	"gopkg.in/yaml.v3"
)

const (
	// RecorderService is the name the usage recorder is registered under.
	RecorderService = "usage.recorder"
	storeService    = "usage.store"

	// inlineQueryTTL bounds how long an offered inline result can be answered.
	inlineQueryTTL = 10 * time.Minute
	startTimeout   = 30 * time.Second
)

func init() {
	core.RegisterModule(&Telegram{})
}

var (
	_ core.Configurable = (*Telegram)(nil)
	_ core.Provisioner  = (*Telegram)(nil)
	_ core.Validator    = (*Telegram)(nil)
	_ core.Starter      = (*Telegram)(nil)
	_ core.Stopper      = (*Telegram)(nil)
)

// Telegram is the channel.telegram module. It owns the Bot API client, the
// usage recorder and, once started, the bot with its update workers.
type Telegram struct {
	config   Config
	appCtx   *core.AppContext
	logger   *slog.Logger
	client   *Client
	recorder *usage.Recorder

	bot        *Bot
	dispatcher *dispatcher
	scheduler  *cron.Scheduler
	poller     *Poller
	hooked     bool // a webhook was set and must be removed on Stop
}

func (t *Telegram) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "channel.telegram",
		New: func() core.Module { return &Telegram{config: defaultConfig()} },
	}
}

func (t *Telegram) Configure(node *yaml.Node) error {
	if err := node.Decode(&t.config); err != nil {
		return fmt.Errorf("telegram: decode config: %w", err)
	}
	t.config.defaults()
	return nil
}

// Provision builds the client and publishes the usage recorder. Counters
// persist only when a usage store module was provisioned first.
func (t *Telegram) Provision(ctx *core.AppContext) error {
	t.config.defaults()
	t.appCtx, t.logger = ctx, ctx.Logger
	t.client = NewClient(t.config.Token, t.config.APIURL, t.config.RequestTimeout)

	if r, ok := core.Lookup[*security.Redactor](ctx, security.RedactorService); ok {
		r.AddLiteral(t.config.Token)
		r.AddLiteral(t.config.WebhookSecret)
	}

	opts := []usage.Option{usage.WithLogger(t.logger)}
	store, ok := core.Lookup[usage.Store](ctx, storeService)
	if ok {
		opts = append(opts, usage.WithStore(store))
	} else {
		t.logger.Warn("telegram: no usage store loaded, counters are kept in memory only")
	}
	t.recorder = usage.NewRecorder(usage.Config{
		Prices:    t.config.Prices,
		GuestPool: t.config.AllowedUserIDs != "*",
	}, opts...)
	ctx.RegisterService(RecorderService, t.recorder)
	return nil
}

func (t *Telegram) Validate() error {
	return t.config.validate()
}

// Start authenticates the token, restores the counters, then receives
// updates by polling or through the gateway webhook.
func (t *Telegram) Start() error {
	llm, ok := core.Lookup[provider.Provider](t.appCtx, t.config.Provider)
	if !ok {
		return fmt.Errorf("telegram: provider %q not found (is the module loaded?)", t.config.Provider)
	}

	ctx, cancel := context.WithTimeout(context.Background(), startTimeout)
	defer cancel()

	if err := t.startBot(ctx, llm); err != nil {
		return err
	}
	if err := t.startJobs(); err != nil {
		return err
	}
	if t.config.Mode == "webhook" {
		return t.startWebhook(ctx)
	}
	t.startPolling(ctx)
	return nil
}

func (t *Telegram) startBot(ctx context.Context, llm provider.Provider) error {
	me, err := t.client.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("telegram: getMe failed (check token): %w", err)
	}
	t.logger.Info("telegram bot authenticated", "id", me.ID, "username", me.Username, "model", llm.ModelName())

	if err := t.recorder.Restore(ctx); err != nil {
		return err
	}

	t.bot = newBot(t.config, t.client, llm, t.recorder, t.logger)
	t.bot.me = *me
	if err := t.bot.registerCommands(ctx); err != nil {
		t.logger.Warn("telegram: failed to register commands", "error", err)
	}
	t.dispatcher = newDispatcher(t.bot.HandleUpdate, t.config.Workers, t.config.QueueSize, t.logger)
	return nil
}

// startJobs schedules the counter flushes and the pruning of idle state.
func (t *Telegram) startJobs() error {
	b, ttl, log := t.bot, t.config.IdleTTL, t.logger
	prune := func(target string, store cron.Pruner, idle time.Duration) *cron.PruneJob {
		return &cron.PruneJob{Target: target, Store: store, MaxIdle: idle, Logger: log}
	}
	inline := prune("inline_queries", b.inline, inlineQueryTTL)
	inline.ScheduleExpr = "* * * * *"

	t.scheduler = cron.NewScheduler(log)
	for _, job := range []cron.Job{
		&cron.UsageFlushJob{Recorder: t.recorder, Logger: log},
		&cron.UsageRolloverJob{Recorder: t.recorder, Logger: log},
		prune("history", b.history, ttl),
		prune("last_prompts", b.last, ttl),
		prune("transcripts", b.transcripts, ttl),
		prune("conversations", b.flows, ttl),
		prune("rate_limits", b.limiter, ttl),
		inline,
		prune("memberships", b.members, membershipTTL),
	} {
		if err := t.scheduler.RegisterJob(job); err != nil {
			return err
		}
	}
	return t.scheduler.Start()
}

func (t *Telegram) startPolling(ctx context.Context) {
	// getUpdates is refused while a webhook is set.
	if err := t.client.DeleteWebhook(ctx); err != nil {
		t.logger.Warn("telegram: failed to delete webhook before polling", "error", err)
	}
	t.poller = NewPoller(t.client, t.dispatcher.submit, t.logger, t.config)
	t.poller.Start()
	t.logger.Info("telegram polling started", "timeout", t.config.PollingTimeout, "workers", t.config.Workers)
}

// startWebhook registers the receiver on the gateway dispatcher before
// telling Telegram where to post, so no delivery finds the route missing.
func (t *Telegram) startWebhook(ctx context.Context) error {
	d, ok := core.Lookup[*gateway.WebhookDispatcher](t.appCtx, gateway.DispatcherService)
	if !ok {
		return errors.New("telegram: gateway.webhook_dispatcher service not found (is the gateway module loaded?)")
	}
	if t.config.WebhookSecret == "" {
		t.logger.Warn("telegram: webhook has no secret token, set webhook_secret in production")
	}
	d.Register("telegram", updateReceiver(t.dispatcher.submit, t.logger, t.config.WebhookSecret), "")

	err := t.client.SetWebhook(ctx, SetWebhookRequest{
		URL:            t.config.WebhookURL,
		SecretToken:    t.config.WebhookSecret,
		AllowedUpdates: t.config.AllowedUpdates,
		MaxConnections: t.config.Workers,
	})
	if err != nil {
		return fmt.Errorf("telegram: setWebhook failed: %w", err)
	}
	t.hooked = true
	t.logger.Info("telegram webhook configured", "url", t.config.WebhookURL)
	return nil
}

// Stop stops intake, drains queued updates, then flushes the counters.
func (t *Telegram) Stop(ctx context.Context) error {
	t.logger.Info("telegram channel stopping")

	if t.poller != nil {
		t.poller.Stop()
	}
	if t.hooked {
		if err := t.client.DeleteWebhook(ctx); err != nil {
			t.logger.Warn("telegram: failed to delete webhook on shutdown", "error", err)
		}
	}

	var errs []error
	if t.dispatcher != nil {
		if err := t.dispatcher.stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("telegram: draining updates: %w", err))
		}
	}
	if t.scheduler != nil {
		errs = append(errs, t.scheduler.Stop(ctx))
	}
	if t.recorder != nil {
		n, err := t.recorder.Flush(ctx)
		if n > 0 {
			t.logger.Info("telegram: usage counters flushed", "keys", n)
		}
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Recorder returns the usage recorder.
func (t *Telegram) Recorder() *usage.Recorder {
	return t.recorder
}
