package telegram

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/flemzord/tgpt/internal/channel"
	"github.com/flemzord/tgpt/internal/telemetry"
)

// gates lists which checks a route goes through.
type gates struct {
	allow  bool // sender must be allowed
	budget bool // sender must have budget left, and is rate limited
}

var routeGates = map[string]gates{
	routeHelp:       {},
	routeReset:      {allow: true},
	routeStats:      {allow: true},
	routeResend:     {allow: true},
	routeTranscript: {allow: true},
	routeFlow:       {allow: true},
	routeImage:      {allow: true, budget: true},
	routePrompt:     {allow: true, budget: true},
	routeMedia:      {allow: true, budget: true},
	routeInline:     {allow: true, budget: true},
	routeInlineGPT:  {allow: true, budget: true},
}

// recoverer turns a handler panic into an error so one bad update cannot
// take a worker down.
func (b *Bot) recoverer(next channel.Handler[*Request]) channel.Handler[*Request] {
	return func(ctx context.Context, req *Request) (err error) {
		defer func() {
			if r := recover(); r != nil {
				b.logger.Error("telegram: handler panic",
					"route", req.route,
					"panic", r,
					"stack", string(debug.Stack()),
				)
				err = fmt.Errorf("telegram: handler panic: %v", r)
			}
		}()
		return next(ctx, req)
	}
}

// observe logs every handled request with its outcome and duration.
func (b *Bot) observe(next channel.Handler[*Request]) channel.Handler[*Request] {
	return func(ctx context.Context, req *Request) error {
		start := time.Now()
		err := next(ctx, req)

		attrs := []any{
			"route", req.route,
			"user_id", req.UserID(),
			"chat_id", req.ChatID(),
			"duration", time.Since(start),
		}
		switch {
		case err == nil:
			b.logger.Debug("telegram: update handled", attrs...)
		case isRejection(err):
			b.logger.Info("telegram: update rejected", append(attrs, "reason", err)...)
		default:
			b.logger.Error("telegram: update failed", append(attrs, "error", err)...)
		}
		return err
	}
}

// subscribed requires membership of the configured channel.
func (b *Bot) subscribed(next channel.Handler[*Request]) channel.Handler[*Request] {
	return func(ctx context.Context, req *Request) error {
		if b.cfg.RequiredChannel == "" {
			return next(ctx, req)
		}
		ok, err := b.members.IsMember(ctx, b.cfg.RequiredChannel, req.From.ID)
		if err != nil {
			// The bot must be an admin of the channel to see its members;
			// a failed lookup lets the request through.
			b.logger.Warn("telegram: subscription check failed", "channel", b.cfg.RequiredChannel, "error", err)
			return next(ctx, req)
		}
		if !ok {
			telemetry.Rejections.WithLabelValues("not_subscribed").Inc()
			b.notify(ctx, req, fmt.Sprintf(b.text.NotSubscribed, b.cfg.RequiredChannel))
			return channel.ErrNotSubscribed
		}
		return next(ctx, req)
	}
}

// allowed enforces the allow-list. In groups a sender who is not listed
// is let in when a listed user or an admin is a member of the group.
func (b *Bot) allowed(next channel.Handler[*Request]) channel.Handler[*Request] {
	return func(ctx context.Context, req *Request) error {
		if !routeGates[req.route].allow || b.isAllowed(ctx, req) {
			return next(ctx, req)
		}
		telemetry.Rejections.WithLabelValues("disallowed").Inc()
		b.logger.Warn("telegram: user is not allowed", "user_id", req.UserID(), "name", req.From.Name())
		b.notify(ctx, req, b.text.Disallowed)
		return channel.ErrDenied
	}
}

func (b *Bot) isAllowed(ctx context.Context, req *Request) bool {
	if b.allow.IsAllowed(req.UserID()) {
		return true
	}
	if req.IsInline() || !req.IsGroup() {
		return false
	}
	return b.members.AnyMember(ctx, req.ChatKey(), b.allow.Members())
}

// rateLimited caps how often one user may start billable requests.
// Admins are exempt.
func (b *Bot) rateLimited(next channel.Handler[*Request]) channel.Handler[*Request] {
	return func(ctx context.Context, req *Request) error {
		if !routeGates[req.route].budget || b.allow.IsAdmin(req.UserID()) {
			return next(ctx, req)
		}
		if err := b.limiter.Allow(req.UserID()); err != nil {
			telemetry.Rejections.WithLabelValues("rate_limited").Inc()
			b.notify(ctx, req, b.text.RateLimited)
			return fmt.Errorf("%w: %w", channel.ErrRateLimited, err)
		}
		return next(ctx, req)
	}
}

// withinBudget rejects senders whose budget for the period is spent and
// marks guests so their usage is also charged to the guest pool.
func (b *Bot) withinBudget(next channel.Handler[*Request]) channel.Handler[*Request] {
	return func(ctx context.Context, req *Request) error {
		if !routeGates[req.route].budget {
			return next(ctx, req)
		}
		_, req.Guest = b.budgetLimit(req.UserID())
		if !b.cfg.budgets.Within(b.recorder, b.allow, req.UserID()) {
			telemetry.Rejections.WithLabelValues("budget").Inc()
			b.logger.Warn("telegram: user reached their usage limit", "user_id", req.UserID(), "name", req.From.Name())
			b.notify(ctx, req, b.text.BudgetLimit)
			return channel.ErrBudgetExceeded
		}
		return next(ctx, req)
	}
}

// billable runs fn behind the rate limit and budget gates. Routes that
// are free by themselves use it before they spend tokens.
func (b *Bot) billable(ctx context.Context, req *Request, fn channel.Handler[*Request]) error {
	r := *req
	r.route = routePrompt
	return channel.Chain[*Request](fn, b.rateLimited, b.withinBudget)(ctx, &r)
}

// isRejection reports errors produced by a gate rather than a failure.
func isRejection(err error) bool {
	return errors.Is(err, channel.ErrDenied) ||
		errors.Is(err, channel.ErrNotSubscribed) ||
		errors.Is(err, channel.ErrRateLimited) ||
		errors.Is(err, channel.ErrBudgetExceeded)
}
