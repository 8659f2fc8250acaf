package telegram

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/flemzord/tgpt/internal/usage"
)

// commands returns the command menu of private chats.
func (b *Bot) commands() []BotCommand {
	cmds := []BotCommand{
		{Command: "help", Description: b.text.HelpDescription},
		{Command: "reset", Description: b.text.ResetDescription},
		{Command: "stats", Description: b.text.StatsDescription},
		{Command: "resend", Description: b.text.ResendDescription},
	}
	if b.cfg.EnableImageGeneration {
		cmds = append(cmds, BotCommand{Command: "image", Description: b.text.ImageDescription})
	}
	return append(cmds, BotCommand{Command: "onboard", Description: b.text.OnboardDescription})
}

// groupCommands returns the command menu of group chats, which adds /chat.
func (b *Bot) groupCommands() []BotCommand {
	return append([]BotCommand{{Command: "chat", Description: b.text.ChatDescription}}, b.commands()...)
}

// registerCommands publishes the command menus.
func (b *Bot) registerCommands(ctx context.Context) error {
	if err := b.client.SetMyCommands(ctx, SetMyCommandsRequest{
		Commands: b.groupCommands(),
		Scope:    BotCommandScope{Type: "all_group_chats"},
	}); err != nil {
		return fmt.Errorf("telegram: set group commands: %w", err)
	}
	if err := b.client.SetMyCommands(ctx, SetMyCommandsRequest{
		Commands: b.commands(),
		Scope:    BotCommandScope{Type: "default"},
	}); err != nil {
		return fmt.Errorf("telegram: set commands: %w", err)
	}
	return nil
}

// helpText renders the help message for req's chat type.
func (b *Bot) helpText(group bool) string {
	cmds := b.commands()
	if group {
		cmds = b.groupCommands()
	}
	lines := make([]string, 0, len(cmds))
	for _, c := range cmds {
		lines = append(lines, "/"+c.Command+" - "+c.Description)
	}
	return b.text.HelpIntro + "\n\n" +
		strings.Join(lines, "\n") + "\n\n" +
		b.text.HelpFooter + "\n\n" +
		b.text.HelpSource
}

func (b *Bot) handleHelp(ctx context.Context, req *Request) error {
	_, err := b.reply(ctx, req, b.helpText(req.IsGroup()))
	return err
}

// handleReset starts the chat's conversation over. Text after the command
// becomes the new system prompt.
func (b *Bot) handleReset(ctx context.Context, req *Request) error {
	b.logger.Info("telegram: resetting conversation", "user_id", req.UserID(), "chat_id", req.ChatID())
	b.history.Reset(req.ChatKey(), req.Message.CommandArgs())
	_, err := b.reply(ctx, req, b.text.ResetDone)
	return err
}

// handleResend replays the chat's last prompt.
func (b *Bot) handleResend(ctx context.Context, req *Request) error {
	prompt, ok := b.last.Take(req.ChatKey())
	if !ok {
		b.logger.Info("telegram: nothing to resend", "user_id", req.UserID(), "chat_id", req.ChatID())
		_, err := b.reply(ctx, req, b.text.ResendFailed)
		return err
	}
	b.logger.Info("telegram: resending last prompt", "user_id", req.UserID())

	return b.billable(ctx, req, func(ctx context.Context, r *Request) error {
		return b.handlePrompt(ctx, r, prompt)
	})
}

// handleStats reports the sender's usage and remaining budget.
func (b *Bot) handleStats(ctx context.Context, req *Request) error {
	userID := req.UserID()
	c := b.recorder.Snapshot(userID)
	messages, tokens := b.history.Stats(req.ChatKey())
	t := b.text

	var sb strings.Builder
	fmt.Fprintf(&sb, "*%s*:\n%d %s\n%d %s\n%s\n",
		EscapeMarkdownV2(t.StatsConversation[0]),
		messages, EscapeMarkdownV2(t.StatsConversation[1]),
		tokens, EscapeMarkdownV2(t.StatsConversation[2]),
		EscapeMarkdownV2("----------------------------"))

	writePeriod := func(title string, tokens, images int, seconds, cost float64) {
		minutes, secs := usage.TranscribeMinutes(seconds)
		fmt.Fprintf(&sb, "*%s:*\n%d %s\n%d %s\n%d %s %d %s\n%s\n",
			EscapeMarkdownV2(title),
			tokens, EscapeMarkdownV2(t.StatsTokens),
			images, EscapeMarkdownV2(t.StatsImages),
			minutes, EscapeMarkdownV2(t.StatsTranscribe[0]), secs, EscapeMarkdownV2(t.StatsTranscribe[1]),
			EscapeMarkdownV2(fmt.Sprintf("%s%.2f", t.StatsTotal, cost)))
	}
	writePeriod(t.UsageToday, c.TokensToday, c.ImagesToday, c.TranscribeSecondsToday, c.CostToday)
	sb.WriteString(EscapeMarkdownV2("----------------------------") + "\n")
	writePeriod(t.UsageMonth, c.TokensMonth, c.ImagesMonth, c.TranscribeSecondsMonth, c.CostMonth)

	remaining := b.cfg.budgets.Remaining(b.recorder, b.allow, userID)
	if !math.IsInf(remaining, 1) {
		label := t.StatsBudget
		if p := t.Periods[b.cfg.budgets.Period]; p != "" {
			label += " " + p
		}
		sb.WriteString("\n" + EscapeMarkdownV2(fmt.Sprintf("%s: $%.2f.", label, remaining)))
	}

	_, err := b.client.SendMessage(ctx, SendMessageRequest{
		ChatID:          req.ChatID(),
		Text:            sb.String(),
		ParseMode:       ParseModeMarkdownV2,
		MessageThreadID: req.ThreadID(),
	})
	return err
}
