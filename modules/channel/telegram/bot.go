package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/google/uuid"

	"github.com/flemzord/tgpt/internal/channel"
	"github.com/flemzord/tgpt/internal/conversation"
	"github.com/flemzord/tgpt/internal/provider"
	"github.com/flemzord/tgpt/internal/relay"
	"github.com/flemzord/tgpt/internal/security"
	"github.com/flemzord/tgpt/internal/session"
	"github.com/flemzord/tgpt/internal/telemetry"
	"github.com/flemzord/tgpt/internal/usage"
)

// Bot turns Telegram updates into LLM requests and streams the answers
// back. It is safe for concurrent use; updates of the same chat are
// serialized by the dispatcher.
type Bot struct {
	cfg      Config
	client   *Client
	llm      provider.Provider
	recorder *usage.Recorder
	allow    *channel.AllowList
	limiter  *security.RateLimiter
	members  *membership

	history     *session.History
	last        *session.Store[string] // chat → last prompt, for /resend
	inline      *session.Store[string] // inline result id → query
	transcripts *session.Store[string] // conversation key → last transcript
	flows       *conversation.Manager[*Request]

	audio    audioTool
	text     *texts
	logger   *slog.Logger
	relayCfg relay.Config
	newID    func() string
	handler  channel.Handler[*Request]

	// me is the bot account, filled in by Start.
	me User
}

// botOption customizes a Bot, mostly for tests.
type botOption func(*Bot)

func withSleep(sleep relay.SleepFunc) botOption {
	return func(b *Bot) { b.relayCfg.Sleep = sleep }
}

func withAudioTool(a audioTool) botOption {
	return func(b *Bot) { b.audio = a }
}

func withIDs(newID func() string) botOption {
	return func(b *Bot) { b.newID = newID }
}

// historyBudget caps the configured history size so that a full
// conversation leaves a quarter of the model's context window for the
// answer. A window of zero is unknown.
func historyBudget(configured, window int) int {
	if configured <= 0 {
		configured = session.DefaultMaxHistoryTokens
	}
	if window <= 0 {
		return configured
	}
	return min(configured, window*3/4)
}

// newBot wires a Bot. cfg must have been validated.
func newBot(cfg Config, client *Client, llm provider.Provider, recorder *usage.Recorder, logger *slog.Logger, opts ...botOption) *Bot {
	b := &Bot{
		cfg:      cfg,
		client:   client,
		llm:      llm,
		recorder: recorder,
		allow:    channel.NewAllowList(channel.ParseIDs(cfg.AllowedUserIDs), channel.ParseIDs(cfg.AdminUserIDs)),
		limiter:  security.NewRateLimiter(cfg.RateLimit),
		members:  newMembership(client),
		history: session.NewHistory(session.HistoryConfig{
			SystemPrompt: cfg.SystemPrompt,
			MaxTokens:    historyBudget(cfg.MaxHistoryTokens, llm.ContextWindowSize()),
		}),
		last:        session.NewStore[string](),
		inline:      session.NewStore[string](),
		transcripts: session.NewStore[string](),
		audio:       ffmpeg{path: cfg.FFmpegPath, secrets: []string{cfg.Token}},
		text:        textsFor(cfg.BotLanguage),
		logger:      logger,
		relayCfg: relay.Config{
			MaxMessageLength: cfg.MaxMessageLength,
			Logger:           logger,
		},
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(b)
	}

	b.flows = conversation.NewManager[*Request](func(r *Request) string { return r.ConversationKey() }, logger,
		b.rateDialogFlow(), b.onboardingFlow())

	b.handler = channel.Chain[*Request](b.route,
		b.recoverer,
		b.observe,
		b.subscribed,
		b.allowed,
		b.rateLimited,
		b.withinBudget,
	)
	return b
}

// HandleUpdate processes one update. Rejections by a gate are reported to
// the user and returned as channel errors.
func (b *Bot) HandleUpdate(ctx context.Context, u *Update) error {
	telemetry.Updates.WithLabelValues(u.Kind()).Inc()

	req := newRequest(u)
	if req == nil {
		return nil
	}
	if req.Message != nil && req.Callback == nil {
		// Commands other than /cancel leave a running conversation alone.
		cmd := req.Message.Command()
		if _, _, active := b.flows.Active(req.ConversationKey()); active && (cmd == "" || cmd == "cancel") {
			req.route = routeFlow
		}
	}
	if req.route == "" {
		req.route = classifyRoute(req, b.cfg.EnableImageGeneration, b.cfg.EnableTranscription)
	}
	if req.route == routeIgnore {
		return nil
	}
	return b.handler(ctx, req)
}

// route dispatches a request that passed every gate.
func (b *Bot) route(ctx context.Context, req *Request) error {
	switch req.route {
	case routeHelp:
		return b.handleHelp(ctx, req)
	case routeReset:
		return b.handleReset(ctx, req)
	case routeStats:
		return b.handleStats(ctx, req)
	case routeResend:
		return b.handleResend(ctx, req)
	case routeImage:
		return b.handleImage(ctx, req)
	case routePrompt:
		return b.handlePrompt(ctx, req, promptText(req.Message))
	case routeMedia:
		return b.handleMedia(ctx, req)
	case routeInline:
		return b.handleInlineQuery(ctx, req)
	case routeInlineGPT:
		return b.handleInlineAnswer(ctx, req)
	case routeTranscript:
		return b.handleShowTranscript(ctx, req)
	case routeFlow:
		handled, err := b.flows.Handle(ctx, req)
		if err != nil || handled {
			return err
		}
		// The conversation ended between routing and handling.
		if req.Callback == nil && req.Message.Command() == "" {
			return b.handlePrompt(ctx, req, promptText(req.Message))
		}
		return nil
	default:
		return fmt.Errorf("telegram: no handler for route %q", req.route)
	}
}

// reply sends text to the chat of req, inside its forum topic.
func (b *Bot) reply(ctx context.Context, req *Request, text string) (*Message, error) {
	return b.client.SendMessage(ctx, SendMessageRequest{
		ChatID:                req.ChatID(),
		Text:                  text,
		MessageThreadID:       req.ThreadID(),
		DisableWebPagePreview: true,
	})
}

// replyTo returns the message id a prompt answer quotes, or 0.
func (b *Bot) replyTo(req *Request) int {
	if req.Message == nil {
		return 0
	}
	if b.cfg.EnableQuoting || req.IsGroup() {
		return req.Message.MessageID
	}
	return 0
}

// notify tells the sender why a request was rejected, in the form the
// update allows: a reply, an inline result or a callback alert.
func (b *Bot) notify(ctx context.Context, req *Request, text string) {
	var err error
	switch {
	case req.Inline != nil:
		err = b.answerInline(ctx, req.Inline.ID, b.newID(), text, "")
	case req.Callback != nil:
		err = b.client.AnswerCallbackQuery(ctx, AnswerCallbackQueryRequest{
			CallbackQueryID: req.Callback.ID,
			Text:            text,
			ShowAlert:       true,
		})
	default:
		_, err = b.reply(ctx, req, text)
	}
	if err != nil {
		b.logger.Warn("telegram: failed to notify user", "user_id", req.UserID(), "error", err)
	}
}

// chatAction returns an indicator that sends action to the chat of req.
func (b *Bot) chatAction(req *Request, action string) channel.ActionFunc {
	return func(ctx context.Context) error {
		return b.client.SendChatAction(ctx, req.ChatID(), req.ThreadID(), action)
	}
}

// budgetLimit returns the limit of userID and whether they are a guest.
func (b *Bot) budgetLimit(userID string) (float64, bool) {
	return b.cfg.budgets.Limit(b.allow, userID)
}

func userName(u *User) string {
	if name := u.Name(); name != "" {
		return name
	}
	return strconv.FormatInt(u.ID, 10)
}
